package transmit

import (
	"context"
	"fmt"
	"time"
)

// Waiter blocks until a send deadline. It returns early with ctx.Err() when
// ctx is cancelled.
type Waiter interface {
	WaitUntil(ctx context.Context, deadline time.Time) error
}

// BusyWaiter spins on the clock. It keeps send jitter low at the cost of one
// busy core.
type BusyWaiter struct{}

// WaitUntil implements Waiter.
func (BusyWaiter) WaitUntil(ctx context.Context, deadline time.Time) error {
	for i := 0; time.Now().Before(deadline); i++ {
		if i&1023 == 0 && ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return ctx.Err()
}

// SleepWaiter parks the goroutine with a timer.
type SleepWaiter struct{}

// WaitUntil implements Waiter.
func (SleepWaiter) WaitUntil(ctx context.Context, deadline time.Time) error {
	d := time.Until(deadline)
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// NewWaiter returns the waiter named by the transmit config.
func NewWaiter(name string) (Waiter, error) {
	switch name {
	case "", "busy":
		return BusyWaiter{}, nil
	case "sleep":
		return SleepWaiter{}, nil
	default:
		return nil, fmt.Errorf("unknown waiter %q", name)
	}
}
