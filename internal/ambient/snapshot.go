package ambient

import (
	"strings"
	"time"
)

// Snapshot is the ambient context at a single instant.
//
// Snapshots are values: they are embedded into delivery records as JSON and
// never persisted as live objects.
type Snapshot struct {
	TimeOfDay   TimeOfDay   `json:"time_of_day"`
	Season      Season      `json:"season"`
	Weather     Weather     `json:"weather,omitempty"`
	SpecialDate SpecialDate `json:"special_date,omitempty"`
	DayType     DayType     `json:"day_type"`
	CapturedAt  time.Time   `json:"captured_at"`
}

// Build derives the snapshot for now. Pure and total.
//
// Weather is taken as given; pass WeatherUnknown when no reading exists.
// WeatherAny is not an observation and is treated as unknown.
func Build(now time.Time, weather Weather) Snapshot {
	if !weather.Known() {
		weather = WeatherUnknown
	}
	return Snapshot{
		TimeOfDay:   TimeOfDayAt(now),
		Season:      SeasonAt(now),
		Weather:     weather,
		SpecialDate: SpecialDateAt(now),
		DayType:     DayTypeAt(now),
		CapturedAt:  now,
	}
}

// HasWeather reports whether the snapshot carries an observed condition.
func (s Snapshot) HasWeather() bool {
	return s.Weather.Known()
}

var specialDateHints = map[SpecialDate]string{
	NewYear:        "for a new beginning",
	WinterSolstice: "for the longest night",
	SummerSolstice: "for the longest day",
	SpringEquinox:  "for the turning of spring",
	AutumnEquinox:  "for the changing season",
	Valentines:     "for love",
}

var timeOfDayHints = map[TimeOfDay]string{
	Morning: "this morning",
	Evening: "this evening",
	Night:   "the night",
}

var weatherHints = map[Weather]string{
	Rainy:  "the rain",
	Snowy:  "the snow",
	Stormy: "the storm",
	Foggy:  "the mist",
}

// Hint is the short phrase that accompanies a delivery, such as
// "for a winter evening" or "for this morning and the rain".
func (s Snapshot) Hint() string {
	if h, ok := specialDateHints[s.SpecialDate]; ok {
		return h
	}
	switch {
	case s.Season == Winter && s.TimeOfDay == Evening:
		return "for a winter evening"
	case s.Season == Autumn && s.Weather == Rainy:
		return "for an autumn rain"
	}

	var parts []string
	if h, ok := timeOfDayHints[s.TimeOfDay]; ok {
		parts = append(parts, h)
	}
	if h, ok := weatherHints[s.Weather]; ok {
		parts = append(parts, h)
	}
	if len(parts) == 0 {
		return "for right now"
	}
	return "for " + strings.Join(parts, " and ")
}

// Phrase describes the moment of delivery for sharing, for example
// "on a rainy Wednesday morning in December".
func (s Snapshot) Phrase() string {
	parts := make([]string, 0, 3)
	if s.HasWeather() {
		parts = append(parts, string(s.Weather))
	}
	parts = append(parts, s.CapturedAt.Weekday().String(), string(s.TimeOfDay))
	return "on a " + strings.Join(parts, " ") + " in " + s.CapturedAt.Month().String()
}
