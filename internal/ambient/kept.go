package ambient

import "time"

// KeptContext records the conditions under which a delivery was kept.
// It is display data only and never feeds back into scoring.
type KeptContext struct {
	DayOfWeek string    `json:"day_of_week"`
	TimeOfDay TimeOfDay `json:"time_of_day"`
	Season    Season    `json:"season"`
	Weather   Weather   `json:"weather,omitempty"`
	KeptAt    time.Time `json:"kept_at"`
}

// CaptureKept builds the keep-time context for now.
func CaptureKept(now time.Time, weather Weather) KeptContext {
	if !weather.Known() {
		weather = WeatherUnknown
	}
	return KeptContext{
		DayOfWeek: now.Weekday().String(),
		TimeOfDay: TimeOfDayAt(now),
		Season:    SeasonAt(now),
		Weather:   weather,
		KeptAt:    now,
	}
}
