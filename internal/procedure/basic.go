package procedure

import (
	"context"
	"fmt"
)

// BasicFunc is the single callback of a basic procedure.
type BasicFunc func(ctx context.Context) (Result, error)

// Basic runs one callback exactly once.
type Basic struct {
	*Base
	fn BasicFunc
}

// NewBasic builds a basic procedure around fn.
func NewBasic(name string, fn BasicFunc) (*Basic, error) {
	base, err := NewBase(name)
	if err != nil {
		return nil, err
	}
	if fn == nil {
		return nil, &ConstructionError{Procedure: base.Name(), Err: fmt.Errorf("callback is required")}
	}
	return &Basic{Base: base, fn: fn}, nil
}

// Run invokes the callback synchronously. Errors are returned unchanged and
// leave the procedure unfinished so callers can tell an abort from a
// completion.
func (p *Basic) Run(ctx context.Context) (Result, error) {
	result, err := p.fn(ctx)
	if err != nil {
		return result, err
	}
	p.markFinished()
	if result.Status == "" {
		result.Status = StatusCompleted
	}
	return result, nil
}

// Progress reports the callback as a single step.
func (p *Basic) Progress() Progress {
	progress := p.Base.Progress()
	progress.TotalSteps = 1
	if progress.Finished {
		progress.CompletedSteps = 1
	}
	return progress
}
