package game

import "time"

// Clock returns the current time. All timer math goes through it.
type Clock func() time.Time

func SystemClock() time.Time {
	return time.Now()
}
