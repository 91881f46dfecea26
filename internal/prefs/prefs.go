package prefs

import (
	"context"
	"fmt"
	"math"
	"time"
)

// Defaults for a fresh installation.
const (
	DefaultStartHour    = 7
	DefaultEndHour      = 22
	DefaultItemsPerWeek = 3
)

// Preferences are the user's delivery constraints. Deliveries happen in the
// local window [StartHour, EndHour).
type Preferences struct {
	StartHour    int        `json:"start_hour"`
	EndHour      int        `json:"end_hour"`
	ItemsPerWeek int        `json:"items_per_week"`
	PauseUntil   *time.Time `json:"pause_until,omitempty"`
}

// Store loads and saves preferences. Loading with nothing saved returns
// Defaults.
type Store interface {
	LoadPreferences(ctx context.Context) (Preferences, error)
	SavePreferences(ctx context.Context, p Preferences) error
}

// Defaults returns the preferences of a fresh installation.
func Defaults() Preferences {
	return Preferences{
		StartHour:    DefaultStartHour,
		EndHour:      DefaultEndHour,
		ItemsPerWeek: DefaultItemsPerWeek,
	}
}

// Normalize clamps every field into range. Start is clamped to 0..23, end to
// 1..24 and frequency to 1..7. An empty window is widened to one hour.
func (p Preferences) Normalize() Preferences {
	p.StartHour = clamp(p.StartHour, 0, 23)
	p.EndHour = clamp(p.EndHour, 1, 24)
	if p.EndHour <= p.StartHour {
		p.EndHour = p.StartHour + 1
	}
	p.ItemsPerWeek = clamp(p.ItemsPerWeek, 1, 7)
	return p
}

// Validate reports the first out-of-range field.
func (p Preferences) Validate() error {
	switch {
	case p.StartHour < 0 || p.StartHour > 23:
		return fmt.Errorf("start hour %d out of range 0..23", p.StartHour)
	case p.EndHour < 1 || p.EndHour > 24:
		return fmt.Errorf("end hour %d out of range 1..24", p.EndHour)
	case p.EndHour <= p.StartHour:
		return fmt.Errorf("end hour %d must be after start hour %d", p.EndHour, p.StartHour)
	case p.ItemsPerWeek < 1 || p.ItemsPerWeek > 7:
		return fmt.Errorf("items per week %d out of range 1..7", p.ItemsPerWeek)
	}
	return nil
}

// SetActiveHours returns p with a new clamped window.
func (p Preferences) SetActiveHours(start, end int) Preferences {
	p.StartHour = start
	p.EndHour = end
	return p.Normalize()
}

// SetFrequency returns p with a new clamped frequency.
func (p Preferences) SetFrequency(perWeek int) Preferences {
	p.ItemsPerWeek = perWeek
	return p.Normalize()
}

// Paused reports whether deliveries are suspended at now.
func (p Preferences) Paused(now time.Time) bool {
	return p.PauseUntil != nil && now.Before(*p.PauseUntil)
}

// PauseFor returns p paused for days calendar days from now.
func (p Preferences) PauseFor(now time.Time, days int) Preferences {
	until := now.AddDate(0, 0, days)
	p.PauseUntil = &until
	return p
}

// Resume returns p with any pause cleared.
func (p Preferences) Resume() Preferences {
	p.PauseUntil = nil
	return p
}

// RemainingPauseDays returns the whole days left in the pause, rounded up,
// and false when not paused.
func (p Preferences) RemainingPauseDays(now time.Time) (int, bool) {
	if !p.Paused(now) {
		return 0, false
	}
	days := p.PauseUntil.Sub(now).Hours() / 24
	return int(math.Ceil(days)), true
}

// FrequencyDescription describes the delivery frequency for people.
func (p Preferences) FrequencyDescription() string {
	switch p.ItemsPerWeek {
	case 1:
		return "Once a week"
	case 7:
		return "Daily"
	default:
		return fmt.Sprintf("%d per week", p.ItemsPerWeek)
	}
}

func clamp(v, lo, hi int) int {
	return max(lo, min(hi, v))
}
