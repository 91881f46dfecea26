package weather

import (
	"time"

	"github.com/roach88/sometimes/internal/ambient"
)

// seasonal lists plausible conditions per season. Repeats weight the draw.
var seasonal = map[ambient.Season][]ambient.Weather{
	ambient.Winter: {ambient.Cloudy, ambient.Snowy, ambient.Clear, ambient.Cloudy, ambient.Foggy},
	ambient.Spring: {ambient.Rainy, ambient.Clear, ambient.Cloudy, ambient.Clear, ambient.Rainy},
	ambient.Summer: {ambient.Clear, ambient.Clear, ambient.Clear, ambient.Cloudy, ambient.Stormy},
	ambient.Autumn: {ambient.Foggy, ambient.Rainy, ambient.Cloudy, ambient.Clear, ambient.Foggy},
}

// SeasonalFallback returns a synthetic condition for the season of now.
// The pick rotates by day of year, so it is stable within a day.
func SeasonalFallback(now time.Time) ambient.Weather {
	list := seasonal[ambient.SeasonAt(now)]
	return list[now.YearDay()%len(list)]
}
