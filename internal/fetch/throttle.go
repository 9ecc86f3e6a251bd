package fetch

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Throttle is a last-call-timestamp gate enforcing a minimum spacing between
// successive calls of one operation class. Each adapter owns its own
// instances, making the dependency explicit and testable with a fake clock.
// It serializes callers; it is a pacing device, not a scheduler.
type Throttle struct {
	mu       sync.Mutex
	interval time.Duration
	clock    clockwork.Clock
	last     time.Time
}

// NewThrottle creates a throttle with the given minimum call spacing.
func NewThrottle(interval time.Duration, clock clockwork.Clock) *Throttle {
	return &Throttle{interval: interval, clock: clock}
}

// Wait blocks until at least the configured interval has elapsed since the
// previous call, then records the current time as the new last call. Returns
// early with the context error on cancellation.
func (t *Throttle) Wait(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.last.IsZero() {
		if wait := t.interval - t.clock.Since(t.last); wait > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-t.clock.After(wait):
			}
		}
	}

	t.last = t.clock.Now()
	return nil
}
