package clock

import "time"

type Clock interface {
	Now() time.Time
}

// DefaultClock implements the Clock interface using the system clock.
// Values it returns carry a monotonic reading, so Sub between two of them
// is immune to wall-clock jumps.
type DefaultClock struct{}

func (c *DefaultClock) Now() time.Time {
	return time.Now()
}
