package orchestrator

import (
	"context"
	"time"
)

// Pacer spaces out task-added messages for interactive readers. It has no
// effect on ordering or on what ends up in the run.
type Pacer interface {
	Pace(ctx context.Context) error
}

type PacerFunc func(ctx context.Context) error

func (f PacerFunc) Pace(ctx context.Context) error { return f(ctx) }

// NoPacing never waits.
func NoPacing() Pacer {
	return PacerFunc(func(context.Context) error { return nil })
}

// FixedPacing waits d after each message, or until ctx is done.
func FixedPacing(d time.Duration) Pacer {
	if d <= 0 {
		return NoPacing()
	}
	return PacerFunc(func(ctx context.Context) error {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			return nil
		}
	})
}
