package corpus

import (
	"slices"

	"github.com/roach88/sometimes/internal/ambient"
)

// Item is one deliverable piece of content. Items are immutable after load.
type Item struct {
	ID       string   `yaml:"id" json:"id"`
	Title    string   `yaml:"title" json:"title"`
	Author   string   `yaml:"author" json:"author"`
	Body     string   `yaml:"body" json:"body"`
	Year     int      `yaml:"year,omitempty" json:"year,omitempty"`
	Affinity Affinity `yaml:"affinity,omitempty" json:"affinity"`
}

// Affinity tags describe when an item fits. Empty sets contribute nothing to
// the score and never exclude the item.
type Affinity struct {
	TimesOfDay   []ambient.TimeOfDay   `yaml:"times_of_day,omitempty" json:"times_of_day,omitempty"`
	Seasons      []ambient.Season      `yaml:"seasons,omitempty" json:"seasons,omitempty"`
	Weather      []ambient.Weather     `yaml:"weather,omitempty" json:"weather,omitempty"`
	SpecialDates []ambient.SpecialDate `yaml:"special_dates,omitempty" json:"special_dates,omitempty"`
	Length       string                `yaml:"length,omitempty" json:"length,omitempty"`
}

// MatchesTimeOfDay reports whether the item is tagged for t.
func (a Affinity) MatchesTimeOfDay(t ambient.TimeOfDay) bool {
	return slices.Contains(a.TimesOfDay, t)
}

// MatchesSeason reports whether the item is tagged for s.
func (a Affinity) MatchesSeason(s ambient.Season) bool {
	return slices.Contains(a.Seasons, s)
}

// MatchesWeather reports whether the item is tagged for w, either directly or
// through the any tag. Unknown weather never matches.
func (a Affinity) MatchesWeather(w ambient.Weather) bool {
	if !w.Known() {
		return false
	}
	return slices.Contains(a.Weather, w) || slices.Contains(a.Weather, ambient.WeatherAny)
}

// MatchesSpecialDate reports whether the item is tagged for d.
func (a Affinity) MatchesSpecialDate(d ambient.SpecialDate) bool {
	if d == ambient.NoSpecialDate {
		return false
	}
	return slices.Contains(a.SpecialDates, d)
}
