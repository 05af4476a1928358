package coinbase

import (
	"context"
	"time"
)

// Clock drives every wait in the client so tests can run without real delays.
type Clock interface {
	Now() time.Time
	// Sleep blocks for d or until ctx is done.
	Sleep(ctx context.Context, d time.Duration) error
}

// ProgressFunc is called on every wake-up of a wait loop. Returning false
// aborts the wait.
type ProgressFunc func() bool

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
