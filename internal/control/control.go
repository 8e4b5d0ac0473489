// Package control carries the cooperative exit and pause signals shared by a
// run's scheduler, its steps and any observer watching the run.
package control

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Control holds two independent flags. Once exit has been requested it stays
// requested for the lifetime of the Control.
type Control struct {
	exit   atomic.Bool
	paused atomic.Bool
	done   chan struct{}
	once   sync.Once
}

// New returns a Control with both flags cleared.
func New() *Control {
	return &Control{done: make(chan struct{})}
}

// RequestExit asks every cooperating goroutine to stop. It is idempotent.
func (c *Control) RequestExit() {
	if c == nil {
		return
	}
	c.exit.Store(true)
	c.once.Do(func() { close(c.done) })
}

// ExitRequested reports whether RequestExit has been called.
func (c *Control) ExitRequested() bool {
	if c == nil {
		return false
	}
	return c.exit.Load()
}

// Done is closed when exit is requested.
func (c *Control) Done() <-chan struct{} {
	if c == nil {
		return nil
	}
	return c.done
}

// Pause raises the pause flag.
func (c *Control) Pause() {
	if c != nil {
		c.paused.Store(true)
	}
}

// Resume clears the pause flag.
func (c *Control) Resume() {
	if c != nil {
		c.paused.Store(false)
	}
}

// TogglePause flips the pause flag and returns the new value.
func (c *Control) TogglePause() bool {
	if c == nil {
		return false
	}
	for {
		current := c.paused.Load()
		if c.paused.CompareAndSwap(current, !current) {
			return !current
		}
	}
}

// Paused reports whether the pause flag is raised.
func (c *Control) Paused() bool {
	if c == nil {
		return false
	}
	return c.paused.Load()
}

// Proceed reports whether work may continue: exit not requested and not paused.
func (c *Control) Proceed() bool {
	return !c.ExitRequested() && !c.Paused()
}

const resumePollInterval = 50 * time.Millisecond

// WaitResumed blocks while the Control is paused. It returns false when exit
// was requested or ctx ended before the pause was lifted.
func (c *Control) WaitResumed(ctx context.Context) bool {
	if c == nil {
		return true
	}
	if !c.Paused() {
		return !c.ExitRequested()
	}
	ticker := time.NewTicker(resumePollInterval)
	defer ticker.Stop()
	for c.Paused() {
		select {
		case <-ctx.Done():
			return false
		case <-c.done:
			return false
		case <-ticker.C:
		}
	}
	return !c.ExitRequested()
}

type ctxKey struct{}

// WithControl stores c in ctx.
func WithControl(ctx context.Context, c *Control) context.Context {
	return context.WithValue(ctx, ctxKey{}, c)
}

// FromContext returns the Control stored in ctx, or nil.
func FromContext(ctx context.Context) *Control {
	if ctx == nil {
		return nil
	}
	c, _ := ctx.Value(ctxKey{}).(*Control)
	return c
}

// Bind returns a child of ctx that carries c and is cancelled as soon as exit
// is requested on c. Callers must call the returned cancel func.
func Bind(ctx context.Context, c *Control) (context.Context, context.CancelFunc) {
	bound, cancel := context.WithCancel(WithControl(ctx, c))
	if c == nil {
		return bound, cancel
	}
	go func() {
		select {
		case <-c.done:
			cancel()
		case <-bound.Done():
		}
	}()
	return bound, cancel
}
