package connectivity

import "time"

// Backoff returns the wait before the next connect attempt after the given
// number of consecutive failures (starting at 1).
type Backoff interface {
	Next(failures int) time.Duration
}

// FixedBackoff waits the same interval after every failure.
type FixedBackoff struct {
	Interval time.Duration
}

// Next implements Backoff.
func (b FixedBackoff) Next(int) time.Duration {
	if b.Interval <= 0 {
		return DefaultReconnectInterval
	}
	return b.Interval
}

// ExponentialBackoff doubles from Base up to Max.
type ExponentialBackoff struct {
	Base time.Duration
	Max  time.Duration
}

// Next implements Backoff.
func (b ExponentialBackoff) Next(failures int) time.Duration {
	base := b.Base
	if base <= 0 {
		base = time.Second
	}
	limit := b.Max
	if limit < base {
		limit = base
	}
	if failures < 1 {
		failures = 1
	}
	wait := base
	for i := 1; i < failures; i++ {
		wait *= 2
		if wait >= limit || wait <= 0 {
			return limit
		}
	}
	return wait
}
