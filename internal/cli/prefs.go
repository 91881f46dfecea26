package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/sometimes/internal/prefs"
)

// prefsView is the output of the prefs, pause and resume commands.
type prefsView struct {
	prefs.Preferences
	Frequency     string `json:"frequency"`
	Paused        bool   `json:"paused"`
	PauseDaysLeft int    `json:"pause_days_left,omitempty"`
	Message       string `json:"message,omitempty"`
}

func newPrefsView(p prefs.Preferences, now time.Time, msg string) prefsView {
	v := prefsView{
		Preferences: p,
		Frequency:   p.FrequencyDescription(),
		Message:     msg,
	}
	if days, ok := p.RemainingPauseDays(now); ok {
		v.Paused = true
		v.PauseDaysLeft = days
	}
	return v
}

func (v prefsView) Text() string {
	var b strings.Builder
	if v.Message != "" {
		b.WriteString(v.Message + "\n")
	}
	fmt.Fprintf(&b, "Window:     %s\n", windowText(v.Preferences))
	fmt.Fprintf(&b, "Frequency:  %s\n", v.Frequency)
	if v.Paused {
		fmt.Fprintf(&b, "Paused:     until %s (%d day(s) left)\n", formatDay(*v.PauseUntil), v.PauseDaysLeft)
	} else {
		fmt.Fprintf(&b, "Paused:     no\n")
	}
	return b.String()
}

// PrefsSetOptions holds flags for the prefs set command.
type PrefsSetOptions struct {
	*RootOptions
	Start   int
	End     int
	PerWeek int
}

// NewPrefsCommand creates the prefs command group.
func NewPrefsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prefs",
		Short: "Show or change delivery preferences",
		Long: `Show or change delivery preferences. A running daemon picks up
changes on its next scheduling pass.`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:           "show",
		Short:         "Show delivery preferences",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return updatePrefs(rootOpts, cmd, "", nil)
		},
	})

	setOpts := &PrefsSetOptions{RootOptions: rootOpts}
	set := &cobra.Command{
		Use:   "set",
		Short: "Change the delivery window or frequency",
		Long: `Change the delivery window or frequency. Only the given flags change.
Hours are clamped: start to 0..23, end to 1..24, per-week to 1..7.

Example:
  sometimes prefs set --start 8 --end 20
  sometimes prefs set --per-week 3`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPrefsSet(setOpts, cmd)
		},
	}
	set.Flags().IntVar(&setOpts.Start, "start", prefs.DefaultStartHour, "first hour of the delivery window (0-23)")
	set.Flags().IntVar(&setOpts.End, "end", prefs.DefaultEndHour, "hour the delivery window closes (1-24)")
	set.Flags().IntVar(&setOpts.PerWeek, "per-week", prefs.DefaultItemsPerWeek, "deliveries per week (1-7)")
	cmd.AddCommand(set)

	return cmd
}

func runPrefsSet(opts *PrefsSetOptions, cmd *cobra.Command) error {
	flags := cmd.Flags()
	if !flags.Changed("start") && !flags.Changed("end") && !flags.Changed("per-week") {
		f := newFormatter(opts.RootOptions, cmd)
		return f.fail(ExitCommandError, ErrCodeInvalidInput, "nothing to change: pass --start, --end or --per-week", nil)
	}

	return updatePrefs(opts.RootOptions, cmd, "Preferences saved.", func(p prefs.Preferences, _ time.Time) prefs.Preferences {
		start, end := p.StartHour, p.EndHour
		if flags.Changed("start") {
			start = opts.Start
		}
		if flags.Changed("end") {
			end = opts.End
		}
		p = p.SetActiveHours(start, end)
		if flags.Changed("per-week") {
			p = p.SetFrequency(opts.PerWeek)
		}
		return p
	})
}

// updatePrefs loads preferences, applies fn if non-nil, saves, and prints
// the result. Pausing also empties the persisted pending slot.
func updatePrefs(opts *RootOptions, cmd *cobra.Command, msg string, fn func(prefs.Preferences, time.Time) prefs.Preferences) error {
	f := newFormatter(opts, cmd)
	a, err := openApp(cmd.Context(), opts, f)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	p, err := a.store.LoadPreferences(ctx)
	if err != nil {
		return storageFailure(f, "failed to load preferences", err)
	}

	if fn != nil {
		p = fn(p, a.now()).Normalize()
		if err := a.store.SavePreferences(ctx, p); err != nil {
			return storageFailure(f, "failed to save preferences", err)
		}
		if p.Paused(a.now()) {
			if err := a.store.ClearPending(ctx); err != nil {
				return storageFailure(f, "failed to clear pending delivery", err)
			}
		}
	}

	return f.Success(newPrefsView(p.Normalize(), a.now(), msg))
}

// PauseOptions holds flags for the pause command.
type PauseOptions struct {
	*RootOptions
	Days int
}

// NewPauseCommand creates the pause command.
func NewPauseCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PauseOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "pause",
		Short: "Suspend deliveries for a number of days",
		Long: `Suspend deliveries for a number of days. Nothing is scheduled while
paused; deliveries resume on their own when the pause ends.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Days < 1 {
				f := newFormatter(rootOpts, cmd)
				return f.fail(ExitCommandError, ErrCodeInvalidInput, "--days must be at least 1", nil)
			}
			return updatePrefs(rootOpts, cmd, fmt.Sprintf("Paused for %d day(s).", opts.Days), func(p prefs.Preferences, now time.Time) prefs.Preferences {
				return p.PauseFor(now, opts.Days)
			})
		},
	}
	cmd.Flags().IntVar(&opts.Days, "days", 7, "number of days to pause")

	return cmd
}

// NewResumeCommand creates the resume command.
func NewResumeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "resume",
		Short:         "End a pause early",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return updatePrefs(rootOpts, cmd, "Deliveries resumed.", func(p prefs.Preferences, _ time.Time) prefs.Preferences {
				return p.Resume()
			})
		},
	}
}
