// Package backoff implements bounded exponential backoff with
// context-aware cancellable sleeps, shared by every reconnect path in the
// core.
package backoff

import (
	"context"
	"math"
	"time"
)

// Policy bounds an exponential backoff sequence: Base doubles on every
// attempt past the first, capped at Max.
type Policy struct {
	Base time.Duration
	Max  time.Duration
}

// Delay returns the delay before attempt (0-indexed; attempt 0 has no
// delay — the caller should not sleep before its first try).
func (p Policy) Delay(attempt int) time.Duration {
	base := p.Base
	if base <= 0 {
		base = time.Second
	}
	max := p.Max
	if max <= 0 {
		max = 30 * time.Second
	}
	if attempt <= 0 {
		return 0
	}
	d := float64(base) * math.Pow(2, float64(attempt-1))
	if d > float64(max) {
		d = float64(max)
	}
	return time.Duration(d)
}

// Sleep waits for d or until ctx is cancelled, whichever comes first. It
// returns ctx.Err() if cancellation won the race.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
