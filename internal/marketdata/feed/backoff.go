package feed

import "time"

// Backoff decides how long to wait before the next reconnect attempt.
// Implementations are not safe for concurrent use; each Supervisor owns one.
type Backoff interface {
	// Next returns the delay before the next attempt.
	Next() time.Duration
	// Reset is called after a successful connection.
	Reset()
}

// FixedBackoff waits the same delay before every attempt. This matches the
// upstream-feed default of one reconnect per fixed interval.
type FixedBackoff struct {
	Delay time.Duration
}

func (b FixedBackoff) Next() time.Duration { return b.Delay }
func (b FixedBackoff) Reset()              {}

// ExponentialBackoff doubles the delay after each failed attempt, capped at
// Max. Initial and Max must be positive.
type ExponentialBackoff struct {
	Initial time.Duration
	Max     time.Duration

	cur time.Duration
}

func (b *ExponentialBackoff) Next() time.Duration {
	if b.cur == 0 {
		b.cur = b.Initial
		return b.cur
	}
	b.cur *= 2
	if b.cur > b.Max {
		b.cur = b.Max
	}
	return b.cur
}

func (b *ExponentialBackoff) Reset() { b.cur = 0 }
