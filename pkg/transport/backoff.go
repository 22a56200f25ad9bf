// ABOUTME: Exponential reconnect delay as plain data
// ABOUTME: Doubles from a base delay up to a cap, reset on a successful open
package transport

import "time"

// Default reconnect delays
const (
	DefaultBackoffBase = time.Second
	DefaultBackoffMax  = 30 * time.Second
)

// Backoff computes reconnect delays. It holds no timers and is not safe for
// concurrent use.
type Backoff struct {
	Base time.Duration
	Max  time.Duration

	attempt int
	delay   time.Duration
}

// NewBackoff returns a backoff with the given bounds. Non-positive values
// take the defaults.
func NewBackoff(base, max time.Duration) *Backoff {
	if base <= 0 {
		base = DefaultBackoffBase
	}
	if max <= 0 {
		max = DefaultBackoffMax
	}
	if max < base {
		max = base
	}
	return &Backoff{Base: base, Max: max}
}

// Next returns min(Base*2^attempt, Max) and advances the attempt counter
func (b *Backoff) Next() time.Duration {
	d := b.Base
	for i := 0; i < b.attempt && d < b.Max; i++ {
		d *= 2
	}
	if d > b.Max {
		d = b.Max
	}
	b.attempt++
	b.delay = d
	return d
}

// Reset forgets previous failures
func (b *Backoff) Reset() {
	b.attempt = 0
	b.delay = 0
}

// Attempt returns the number of delays handed out since the last reset
func (b *Backoff) Attempt() int { return b.attempt }

// Delay returns the most recent delay, zero after a reset
func (b *Backoff) Delay() time.Duration { return b.delay }
