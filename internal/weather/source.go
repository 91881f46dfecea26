package weather

import (
	"context"

	"github.com/roach88/sometimes/internal/ambient"
)

// Source reports the current weather condition.
type Source interface {
	CurrentCondition(ctx context.Context) (ambient.Weather, error)
}

// Static always reports Condition.
type Static struct {
	Condition ambient.Weather
}

// CurrentCondition returns s.Condition.
func (s Static) CurrentCondition(context.Context) (ambient.Weather, error) {
	return s.Condition, nil
}
