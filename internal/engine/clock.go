package engine

import "time"

// Clock supplies wall-clock time. All scheduling decisions read the time
// through a Clock so tests can pin it.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the system time in Location (time.Local when nil).
type SystemClock struct {
	Location *time.Location
}

// Now returns the current time in c's location.
func (c SystemClock) Now() time.Time {
	now := time.Now()
	if c.Location != nil {
		now = now.In(c.Location)
	}
	return now
}
