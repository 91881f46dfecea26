package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/sometimes/internal/corpus"
)

// ValidationResult holds corpus validation results.
type ValidationResult struct {
	Valid bool   `json:"valid"`
	Path  string `json:"path"`
	Items int    `json:"items"`
}

func (r ValidationResult) Text() string {
	return fmt.Sprintf("✓ %s: %d items\n", r.Path, r.Items)
}

// NewCorpusCommand creates the corpus command group.
func NewCorpusCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "corpus",
		Short: "Work with item collections",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "validate <file>",
		Short: "Check a corpus file against the item schema",
		Long: `Check a YAML or JSON corpus file: schema, required fields, tag
values and unique IDs. Exits 1 when the file is invalid.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCorpusValidate(rootOpts, args[0], cmd)
		},
	})

	return cmd
}

func runCorpusValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	f := newFormatter(opts, cmd)

	data, err := os.ReadFile(path)
	if err != nil {
		return f.fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("cannot read %s", path), err)
	}

	f.VerboseLog("validating %s (%d bytes)", path, len(data))
	items, err := corpus.Parse(data)
	if err != nil {
		return f.fail(ExitFailure, ErrCodeInvalidData, fmt.Sprintf("%s is not a valid corpus", path), err)
	}
	c, err := corpus.New(path, items)
	if err != nil {
		return f.fail(ExitFailure, ErrCodeInvalidData, fmt.Sprintf("%s is not a valid corpus", path), err)
	}

	return f.Success(ValidationResult{Valid: true, Path: path, Items: c.Len()})
}
