package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/sometimes/internal/ledger"
)

type keepView struct {
	historyEntry
}

func (v keepView) Text() string {
	verb := "Unkept"
	if v.Kept {
		verb = "Kept"
	}
	if v.Title == "" {
		return fmt.Sprintf("%s %s.\n", verb, v.ItemID)
	}
	return fmt.Sprintf("%s %q (%s).\n", verb, v.Title, v.ItemID)
}

// NewKeepCommand creates the keep command.
func NewKeepCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "keep <record-or-item-id>",
		Short: "Toggle the keep flag of a delivery",
		Long: `Toggle the keep flag of a delivery. The argument is a record ID or an
item ID; an item ID selects that item's most recent delivery.

Keeping records the moment you kept it: day, time of day, season and
weather.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeep(rootOpts, args[0], cmd)
		},
	}
}

func runKeep(opts *RootOptions, ref string, cmd *cobra.Command) error {
	f := newFormatter(opts, cmd)
	a, err := openApp(cmd.Context(), opts, f)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	rec, err := a.ledger.ToggleKept(ctx, ref, a.now(), a.currentWeather(ctx))
	if errors.Is(err, ledger.ErrRecordNotFound) {
		return f.fail(ExitFailure, ErrCodeNotFound, fmt.Sprintf("no delivery matches %q", ref), nil)
	}
	if err != nil {
		return storageFailure(f, "failed to update delivery", err)
	}

	return f.Success(keepView{entries(a.corpus, []ledger.DeliveryRecord{rec})[0]})
}
