package token

import "time"

// Clock returns the current wall time. A nil Clock means [time.Now].
type Clock func() time.Time

// skewSlack is subtracted from the current epoch second before comparing it to exp.
const skewSlack = 1

// Now returns the epoch second used for every expiry comparison.
func Now(clock Clock) int64 {
	if clock == nil {
		clock = time.Now
	}
	return clock().Unix() - skewSlack
}

// FixedClock returns a Clock pinned to the given epoch second.
func FixedClock(epochSeconds int64) Clock {
	return func() time.Time { return time.Unix(epochSeconds, 0) }
}
