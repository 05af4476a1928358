package coinbase

import (
	"context"
	"sync"
	"time"

	"gdax-broker/pkg/exchange"
)

// EndpointClass selects the rate limit bucket for a request.
type EndpointClass int

const (
	Public EndpointClass = iota
	Private
)

func (c EndpointClass) String() string {
	if c == Private {
		return "private"
	}
	return "public"
}

const (
	throttleWindow  = time.Second
	throttleBackoff = 250 * time.Millisecond
)

// Throttler admits at most limit requests in any rolling window.
type Throttler struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	backoff time.Duration
	clock   Clock
	stamps  []time.Time
}

// NewThrottler builds a throttler over a one second window. A non-positive
// limit disables throttling.
func NewThrottler(limit int, clock Clock) *Throttler {
	if clock == nil {
		clock = systemClock{}
	}
	return &Throttler{limit: limit, window: throttleWindow, backoff: throttleBackoff, clock: clock}
}

// TryAcquire takes a slot if one is free in the current window.
func (t *Throttler) TryAcquire() bool {
	if t.limit <= 0 {
		return true
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock.Now()
	cutoff := now.Add(-t.window)
	keep := t.stamps[:0]
	for _, ts := range t.stamps {
		if ts.After(cutoff) {
			keep = append(keep, ts)
		}
	}
	t.stamps = keep
	if len(t.stamps) >= t.limit {
		return false
	}
	t.stamps = append(t.stamps, now)
	return true
}

// Wait blocks until a slot is free, polling every backoff interval. The
// progress callback runs on each tick and can abort the wait.
func (t *Throttler) Wait(ctx context.Context, progress ProgressFunc) error {
	for !t.TryAcquire() {
		if progress != nil && !progress() {
			return exchange.AbortedError("throttle wait aborted by caller")
		}
		if err := t.clock.Sleep(ctx, t.backoff); err != nil {
			return exchange.AbortedError("throttle wait cancelled: " + err.Error())
		}
	}
	return nil
}
