package engine

import (
	"math/rand/v2"
	"time"

	"github.com/roach88/sometimes/internal/prefs"
)

// Timing constants.
const (
	// IntervalJitter is the fraction of the base interval added or removed.
	IntervalJitter = 0.25

	// MinFinalJitter and MaxFinalJitter bound the minute-level offset.
	MinFinalJitter = 15
	MaxFinalJitter = 45

	// MinLead is the earliest a delivery may be scheduled after now.
	MinLead = time.Hour
)

// NextTarget computes when the next delivery should fire.
//
// The result lies in the allowed-hours window of p (in now's location)
// and no earlier than now+MinLead, except that the floor is re-clamped
// into the window and may land later.
func NextTarget(now time.Time, p prefs.Preferences, rng *rand.Rand) time.Time {
	p = p.Normalize()

	base := 7.0 / float64(p.ItemsPerWeek) * 24
	hours := base + base*IntervalJitter*(rng.Float64()*2-1)
	t := now.Add(time.Duration(hours * float64(time.Hour)))

	t = clampToWindow(t, p, rng)

	minutes := MinFinalJitter + rng.IntN(MaxFinalJitter-MinFinalJitter+1)
	offset := time.Duration(minutes) * time.Minute
	if rng.IntN(2) == 0 {
		offset = -offset
	}
	switch {
	case inWindow(t.Add(offset), p):
		t = t.Add(offset)
	case inWindow(t.Add(-offset), p):
		t = t.Add(-offset)
	}

	if floor := now.Add(MinLead); !t.After(floor) {
		t = clampToWindow(floor, p, rng)
	}
	return t
}

// inWindow reports whether t's local hour is in [StartHour, EndHour).
func inWindow(t time.Time, p prefs.Preferences) bool {
	h := t.Hour()
	return h >= p.StartHour && h < p.EndHour
}

// clampToWindow moves t into the allowed hours. Before the window it picks
// a random minute in the window on the same day; at or after the end it
// picks a random minute in the next day's window. Times already inside the
// window are returned unchanged.
func clampToWindow(t time.Time, p prefs.Preferences, rng *rand.Rand) time.Time {
	h := t.Hour()
	if h >= p.StartHour && h < p.EndHour {
		return t
	}

	day := t
	if h >= p.EndHour {
		day = t.AddDate(0, 0, 1)
	}
	span := max(p.EndHour-p.StartHour, 1)
	hour := p.StartHour + rng.IntN(span)
	minute := rng.IntN(60)
	y, m, d := day.Date()
	return time.Date(y, m, d, hour, minute, 0, 0, t.Location())
}
