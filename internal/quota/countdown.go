package quota

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrDisplay wraps the render failure that cancelled a countdown
var ErrDisplay = errors.New("countdown display failed")

// RenderFunc redraws the countdown with the time left
type RenderFunc func(ctx context.Context, remaining time.Duration) error

// Countdown re-renders a wait once per Step until it reaches zero
type Countdown struct {
	Step time.Duration
	// After defaults to time.After
	After func(time.Duration) <-chan time.Time
}

// NewCountdown returns a countdown ticking every second
func NewCountdown() *Countdown {
	return &Countdown{Step: time.Second, After: time.After}
}

// Run blocks until wait has elapsed, ctx is done, or render fails.
// A render failure cancels the run and is returned wrapped in ErrDisplay.
func (c *Countdown) Run(ctx context.Context, wait time.Duration, render RenderFunc) error {
	step := c.Step
	if step <= 0 {
		step = time.Second
	}
	after := c.After
	if after == nil {
		after = time.After
	}

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	remaining := wait
	for remaining > 0 {
		select {
		case <-ctx.Done():
			return context.Cause(ctx)
		case <-after(step):
		}

		remaining -= step
		if remaining < 0 {
			remaining = 0
		}
		if err := render(ctx, remaining); err != nil {
			cancel(fmt.Errorf("%w: %w", ErrDisplay, err))
			return context.Cause(ctx)
		}
	}
	return nil
}
