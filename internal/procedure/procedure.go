// Package procedure defines runnable procedures, the step scheduler that
// drives multi-step procedures, and the registry that indexes them by name.
package procedure

import (
	"context"
	"strings"
	"sync/atomic"
)

// Status enumerates procedure run outcomes.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusAborted   Status = "aborted"
	StatusFailed    Status = "failed"
)

// Result captures the outcome of a procedure run.
type Result struct {
	Status  Status
	Message string
	Value   any
}

// Procedure is implemented by every runnable unit.
type Procedure interface {
	Name() string
	Run(ctx context.Context) (Result, error)
	Finished() bool
	Progress() Progress
}

// Progress is a point-in-time snapshot of a run, safe to take from any
// goroutine while the run is in flight.
type Progress struct {
	Name            string
	Finished        bool
	TotalSteps      int
	CompletedSteps  int
	CurrentStep     int
	CurrentStepName string
	Status          string
}

// Fraction returns completed/total in [0,1].
func (p Progress) Fraction() float64 {
	if p.TotalSteps <= 0 {
		return 0
	}
	f := float64(p.CompletedSteps) / float64(p.TotalSteps)
	if f > 1 {
		return 1
	}
	return f
}

// Base provides identity, the finished flag and the opaque status shared by
// every variant. Embed it by pointer.
type Base struct {
	name     string
	finished atomic.Bool
	status   atomic.Pointer[string]
}

// NewBase validates name and returns a Base for it.
func NewBase(name string) (*Base, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return nil, &ConstructionError{Err: ErrMissingName}
	}
	return &Base{name: trimmed}, nil
}

// Name implements Procedure.Name.
func (b *Base) Name() string {
	return b.name
}

// Run fails; variants override it.
func (b *Base) Run(context.Context) (Result, error) {
	return Result{Status: StatusFailed}, ErrNotImplemented
}

// Finished reports whether the run completed. It never reverts to false.
func (b *Base) Finished() bool {
	return b.finished.Load()
}

func (b *Base) markFinished() {
	b.finished.Store(true)
}

// SetStatus publishes an opaque status line for observers.
func (b *Base) SetStatus(status string) {
	b.status.Store(&status)
}

// Status returns the last published status line.
func (b *Base) Status() string {
	if s := b.status.Load(); s != nil {
		return *s
	}
	return ""
}

// Progress implements Procedure.Progress for procedures without steps.
func (b *Base) Progress() Progress {
	return Progress{Name: b.name, Finished: b.Finished(), Status: b.Status()}
}
