package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/sometimes/internal/engine"
)

type shortlistEntry struct {
	ItemID string `json:"item_id"`
	Score  int    `json:"score"`
}

// previewView is the output of the preview command.
type previewView struct {
	engine.Preview
	Phrase    string           `json:"phrase"`
	Shortlist []shortlistEntry `json:"shortlist"`
	verbose   bool
}

func (v previewView) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Would deliver:  %s\n", formatDay(v.FireAt))
	fmt.Fprintf(&b, "Item:           %s, %s (%s)\n", v.Item.Title, v.Item.Author, v.Item.ID)
	fmt.Fprintf(&b, "Score:          %d (pool: %s)\n", v.Score, v.Pool)
	fmt.Fprintf(&b, "Hint:           %s\n", v.Hint)
	fmt.Fprintf(&b, "Context:        %s\n", v.Phrase)
	if v.verbose {
		b.WriteString("Shortlist:\n")
		for _, c := range v.Shortlist {
			fmt.Fprintf(&b, "  %4d  %s\n", c.Score, c.ItemID)
		}
	}
	return b.String()
}

// NewPreviewCommand creates the preview command.
func NewPreviewCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "preview",
		Short: "Dry-run the next scheduling pass",
		Long: `Compute a delivery time and pick an item the way the next scheduling
pass would, without saving or arming anything. Each run draws again, so
results vary. With --verbose the scored shortlist is shown.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPreview(rootOpts, cmd)
		},
	}
}

func runPreview(opts *RootOptions, cmd *cobra.Command) error {
	f := newFormatter(opts, cmd)
	a, err := openApp(cmd.Context(), opts, f)
	if err != nil {
		return err
	}
	defer a.Close()

	eng, closeEngine := a.offlineEngine()
	defer closeEngine()

	p, ok := eng.Preview(cmd.Context())
	if !ok {
		return f.fail(ExitFailure, ErrCodeNoCandidate, "the corpus is empty", nil)
	}

	v := previewView{
		Preview:   p,
		Phrase:    p.Context.Phrase(),
		Shortlist: make([]shortlistEntry, 0, len(p.Shortlist)),
		verbose:   opts.Verbose,
	}
	for _, c := range p.Shortlist {
		v.Shortlist = append(v.Shortlist, shortlistEntry{ItemID: c.Item.ID, Score: c.Score})
	}
	return f.Success(v)
}
