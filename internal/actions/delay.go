package actions

import (
	"context"
	"fmt"
	"time"
)

// Delay sleeps for the duration option, returning early on cancellation.
type Delay struct{}

// NewDelay creates the delay action.
func NewDelay() *Delay { return &Delay{} }

// Name implements Action.
func (*Delay) Name() string { return "delay" }

// Validate implements Action.
func (*Delay) Validate(opts Options) error {
	d, err := opts.Duration("duration")
	if err != nil {
		return err
	}
	if d <= 0 {
		return fmt.Errorf("%w: duration must be positive", ErrInvalidOptions)
	}
	return nil
}

// Run implements Action.
func (*Delay) Run(ctx context.Context, opts Options) error {
	d, err := opts.Duration("duration")
	if err != nil {
		return err
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
