package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/sometimes/internal/engine"
	"github.com/roach88/sometimes/internal/ledger"
	"github.com/roach88/sometimes/internal/prefs"
)

// displayTime is the layout for times shown to people.
const displayTime = "Mon 2006-01-02 15:04"

// statusView is the output of the status command.
type statusView struct {
	engine.Status
	Stats         ledger.Stats `json:"stats"`
	PendingTitle  string       `json:"pending_title,omitempty"`
	PauseDaysLeft int          `json:"pause_days_left,omitempty"`
}

func (v statusView) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "State:      %s\n", v.State)
	if v.Pending != nil {
		fmt.Fprintf(&b, "Next:       %s  %s (%s)\n", v.Pending.FireAt.Format(displayTime), v.PendingTitle, v.Pending.ItemID)
	} else {
		fmt.Fprintf(&b, "Next:       none\n")
	}
	fmt.Fprintf(&b, "Window:     %s\n", windowText(v.Preferences))
	fmt.Fprintf(&b, "Frequency:  %s\n", v.Preferences.FrequencyDescription())
	if v.Paused {
		fmt.Fprintf(&b, "Paused:     yes, %d day(s) left\n", v.PauseDaysLeft)
	} else {
		fmt.Fprintf(&b, "Paused:     no\n")
	}
	fmt.Fprintf(&b, "Corpus:     %d items (%s)\n", v.CorpusSize, v.CorpusSource)
	fmt.Fprintf(&b, "Delivered:  %d (%d kept)\n", v.Stats.Delivered, v.Stats.Kept)
	fmt.Fprintf(&b, "Cycle:      %d (%d delivered)\n", v.Stats.Cycle, v.Stats.CycleDelivered)
	return b.String()
}

func windowText(p prefs.Preferences) string {
	return fmt.Sprintf("%02d:00-%02d:00", p.StartHour, p.EndHour)
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the scheduled delivery and history totals",
		Long: `Show the next scheduled delivery, the delivery preferences and
totals from the delivery history.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(rootOpts, cmd)
		},
	}
}

func runStatus(opts *RootOptions, cmd *cobra.Command) error {
	f := newFormatter(opts, cmd)
	a, err := openApp(cmd.Context(), opts, f)
	if err != nil {
		return err
	}
	defer a.Close()

	eng, closeEngine := a.offlineEngine()
	defer closeEngine()

	v := statusView{
		Status: eng.Status(cmd.Context()),
		Stats:  a.ledger.Stats(),
	}
	if v.Pending != nil {
		if it, ok := a.corpus.Lookup(v.Pending.ItemID); ok {
			v.PendingTitle = it.Title
		}
	}
	if days, ok := v.Preferences.RemainingPauseDays(a.now()); ok {
		v.PauseDaysLeft = days
	}
	return f.Success(v)
}

func formatDay(t time.Time) string {
	return t.Format(displayTime)
}
