package resilience

import "time"

// Clock abstracts the subset of package time the breaker and the retry loop
// depend on. Tests substitute a manual clock to step through the windows.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type wallClock struct{}

func (wallClock) Now() time.Time                         { return time.Now() }
func (wallClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// WallClock is the production clock.
var WallClock Clock = wallClock{}
