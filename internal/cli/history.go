package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/sometimes/internal/corpus"
	"github.com/roach88/sometimes/internal/ledger"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Kept  bool
	Limit int
}

type historyEntry struct {
	ledger.DeliveryRecord
	Title  string `json:"title,omitempty"`
	Author string `json:"author,omitempty"`
}

// historyView is the output of the history command.
type historyView struct {
	Records []historyEntry `json:"records"`
}

func (v historyView) Text() string {
	if len(v.Records) == 0 {
		return "No deliveries yet.\n"
	}
	var b strings.Builder
	for _, r := range v.Records {
		mark := " "
		if r.Kept {
			mark = "*"
		}
		title := r.Title
		if title == "" {
			title = "(no longer in corpus)"
		}
		fmt.Fprintf(&b, "%s %s  %-16s %s", mark, formatDay(r.DeliveredAt), r.ItemID, title)
		if r.Author != "" {
			fmt.Fprintf(&b, ", %s", r.Author)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List past deliveries, most recent first",
		Long: `List past deliveries, most recent first. Kept deliveries are marked
with an asterisk.

Example:
  sometimes history
  sometimes history --kept --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Kept, "kept", false, "only kept deliveries")
	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 0, "show at most n deliveries (0 = all)")

	return cmd
}

func runHistory(opts *HistoryOptions, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)
	if opts.Limit < 0 {
		return f.fail(ExitCommandError, ErrCodeInvalidInput, "limit must not be negative", nil)
	}

	a, err := openApp(cmd.Context(), opts.RootOptions, f)
	if err != nil {
		return err
	}
	defer a.Close()

	records := a.ledger.History(opts.Kept)
	if opts.Limit > 0 && len(records) > opts.Limit {
		records = records[:opts.Limit]
	}
	return f.Success(historyView{Records: entries(a.corpus, records)})
}

func entries(c *corpus.Corpus, records []ledger.DeliveryRecord) []historyEntry {
	out := make([]historyEntry, 0, len(records))
	for _, r := range records {
		e := historyEntry{DeliveryRecord: r}
		if it, ok := c.Lookup(r.ItemID); ok {
			e.Title, e.Author = it.Title, it.Author
		}
		out = append(out, e)
	}
	return out
}
