package engine

import "time"

// Clock supplies wall time for run timestamps and snapshot observation.
// Ordering never depends on it: changelog order comes from reserved
// sequence numbers.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the real clock in UTC.
type SystemClock struct{}

// Now returns the current time in UTC.
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}
