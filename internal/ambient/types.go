package ambient

import (
	"fmt"
	"time"
)

// TimeOfDay is the coarse bucket of the local hour.
type TimeOfDay string

const (
	Morning   TimeOfDay = "morning"
	Afternoon TimeOfDay = "afternoon"
	Evening   TimeOfDay = "evening"
	Night     TimeOfDay = "night"
)

// TimesOfDay lists every TimeOfDay in day order.
var TimesOfDay = []TimeOfDay{Morning, Afternoon, Evening, Night}

// Valid reports whether t is one of the known buckets.
func (t TimeOfDay) Valid() bool {
	switch t {
	case Morning, Afternoon, Evening, Night:
		return true
	}
	return false
}

// TimeOfDayAt buckets the hour of t.
func TimeOfDayAt(t time.Time) TimeOfDay {
	switch h := t.Hour(); {
	case h >= 5 && h < 12:
		return Morning
	case h >= 12 && h < 17:
		return Afternoon
	case h >= 17 && h < 21:
		return Evening
	default:
		return Night
	}
}

// Season is the meteorological season of the local month.
type Season string

const (
	Spring Season = "spring"
	Summer Season = "summer"
	Autumn Season = "autumn"
	Winter Season = "winter"
)

// Seasons lists every Season in calendar order starting with spring.
var Seasons = []Season{Spring, Summer, Autumn, Winter}

// Valid reports whether s is one of the known seasons.
func (s Season) Valid() bool {
	switch s {
	case Spring, Summer, Autumn, Winter:
		return true
	}
	return false
}

// SeasonAt buckets the month of t.
func SeasonAt(t time.Time) Season {
	switch t.Month() {
	case time.March, time.April, time.May:
		return Spring
	case time.June, time.July, time.August:
		return Summer
	case time.September, time.October, time.November:
		return Autumn
	default:
		return Winter
	}
}

// Weather is a coarse weather condition. The zero value means unknown.
//
// WeatherAny is only meaningful as an item affinity tag: it matches any known
// condition but is never reported by a weather source.
type Weather string

const (
	WeatherUnknown Weather = ""
	Clear          Weather = "clear"
	Cloudy         Weather = "cloudy"
	Rainy          Weather = "rainy"
	Snowy          Weather = "snowy"
	Stormy         Weather = "stormy"
	Foggy          Weather = "foggy"
	WeatherAny     Weather = "any"
)

// Conditions lists the concrete conditions a weather source may report.
var Conditions = []Weather{Clear, Cloudy, Rainy, Snowy, Stormy, Foggy}

// Valid reports whether w is a concrete condition or the any tag.
func (w Weather) Valid() bool {
	switch w {
	case Clear, Cloudy, Rainy, Snowy, Stormy, Foggy, WeatherAny:
		return true
	}
	return false
}

// Known reports whether w is a concrete, observed condition.
func (w Weather) Known() bool {
	return w != WeatherUnknown && w != WeatherAny && w.Valid()
}

// SpecialDate marks a fixed calendar day with its own affinity.
type SpecialDate string

const (
	NoSpecialDate  SpecialDate = ""
	NewYear        SpecialDate = "new_year"
	Valentines     SpecialDate = "valentines"
	SpringEquinox  SpecialDate = "spring_equinox"
	SummerSolstice SpecialDate = "summer_solstice"
	AutumnEquinox  SpecialDate = "autumn_equinox"
	WinterSolstice SpecialDate = "winter_solstice"
)

var specialDays = []struct {
	month time.Month
	day   int
	date  SpecialDate
}{
	{time.January, 1, NewYear},
	{time.February, 14, Valentines},
	{time.March, 20, SpringEquinox},
	{time.June, 21, SummerSolstice},
	{time.September, 22, AutumnEquinox},
	{time.December, 21, WinterSolstice},
}

// Valid reports whether d is one of the known special dates.
func (d SpecialDate) Valid() bool {
	for _, sd := range specialDays {
		if sd.date == d {
			return true
		}
	}
	return false
}

// SpecialDateAt returns the special date falling on t's calendar day, or
// NoSpecialDate.
func SpecialDateAt(t time.Time) SpecialDate {
	_, m, d := t.Date()
	for _, sd := range specialDays {
		if sd.month == m && sd.day == d {
			return sd.date
		}
	}
	return NoSpecialDate
}

// DayType separates weekdays from weekends. Recorded for display only.
type DayType string

const (
	Weekday DayType = "weekday"
	Weekend DayType = "weekend"
)

// DayTypeAt returns the day type of t.
func DayTypeAt(t time.Time) DayType {
	switch t.Weekday() {
	case time.Saturday, time.Sunday:
		return Weekend
	}
	return Weekday
}

// ParseTimeOfDay converts s into a TimeOfDay.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	t := TimeOfDay(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown time of day %q", s)
	}
	return t, nil
}

// ParseSeason converts s into a Season.
func ParseSeason(s string) (Season, error) {
	v := Season(s)
	if !v.Valid() {
		return "", fmt.Errorf("unknown season %q", s)
	}
	return v, nil
}

// ParseWeather converts s into a Weather. The empty string parses as unknown.
func ParseWeather(s string) (Weather, error) {
	w := Weather(s)
	if w == WeatherUnknown || w.Valid() {
		return w, nil
	}
	return "", fmt.Errorf("unknown weather %q", s)
}

// ParseSpecialDate converts s into a SpecialDate.
func ParseSpecialDate(s string) (SpecialDate, error) {
	d := SpecialDate(s)
	if !d.Valid() {
		return "", fmt.Errorf("unknown special date %q", s)
	}
	return d, nil
}
