package procedure

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/kingrea/butler/internal/control"
)

// StepFunc is the unit of work behind a step. The context is cancelled once
// exit is requested; long steps may watch it but are not forced to.
type StepFunc func(ctx context.Context) error

// Step describes one entry of a step procedure. Steps are stored by value
// and never change after AddStep.
type Step struct {
	Name     string
	Func     StepFunc
	Parallel bool
	// Blocking steps request exit for the whole run when they fail.
	Blocking bool
}

// StepOption customizes a step built with NewStep.
type StepOption func(*Step)

// Parallel runs the step concurrently with its neighbours up to the next
// sequential step.
func Parallel() StepOption {
	return func(s *Step) { s.Parallel = true }
}

// NonBlocking keeps the run going when the step fails.
func NonBlocking() StepOption {
	return func(s *Step) { s.Blocking = false }
}

// NewStep returns a blocking, sequential step unless options say otherwise.
func NewStep(name string, fn StepFunc, opts ...StepOption) Step {
	step := Step{Name: name, Func: fn, Blocking: true}
	for _, opt := range opts {
		opt(&step)
	}
	return step
}

// Hook runs before the first step or after the last one.
type Hook func(ctx context.Context, p *StepProcedure) error

// StepProcedureOption customizes a StepProcedure.
type StepProcedureOption func(*StepProcedure)

// WithSetUp registers a hook that runs once before any step. It may add steps.
func WithSetUp(hook Hook) StepProcedureOption {
	return func(p *StepProcedure) { p.setUp = hook }
}

// WithTearDown registers a hook that runs once the step loop and the final
// join are done.
func WithTearDown(hook Hook) StepProcedureOption {
	return func(p *StepProcedure) { p.tearDown = hook }
}

// WithSteps appends steps at construction time.
func WithSteps(steps ...Step) StepProcedureOption {
	return func(p *StepProcedure) { p.initial = append(p.initial, steps...) }
}

// StepProcedure runs an ordered list of steps. Parallel steps are launched
// without waiting; a sequential step first joins every outstanding parallel
// step, so it never overlaps parallel work.
type StepProcedure struct {
	*Base

	mu    sync.Mutex
	steps []Step

	initial  []Step
	setUp    Hook
	tearDown Hook
	started  atomic.Bool

	total     atomic.Int64
	current   atomic.Int64
	completed atomic.Int64
	active    atomic.Pointer[Step]
}

// NewStepProcedure builds an empty step procedure.
func NewStepProcedure(name string, opts ...StepProcedureOption) (*StepProcedure, error) {
	base, err := NewBase(name)
	if err != nil {
		return nil, err
	}
	p := &StepProcedure{Base: base}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	for _, step := range p.initial {
		if err := p.AddStep(step); err != nil {
			return nil, &ConstructionError{Procedure: base.Name(), Err: err}
		}
	}
	p.initial = nil
	return p, nil
}

// AddStep appends a step. A missing name is derived from the function symbol.
func (p *StepProcedure) AddStep(step Step) error {
	if step.Func == nil {
		return fmt.Errorf("procedure %s: step %q has no function", p.Name(), step.Name)
	}
	step.Name = strings.TrimSpace(step.Name)
	if step.Name == "" {
		step.Name = funcName(step.Func)
	}
	p.mu.Lock()
	p.steps = append(p.steps, step)
	p.mu.Unlock()
	p.total.Add(1)
	return nil
}

// Steps returns a copy of the step list.
func (p *StepProcedure) Steps() []Step {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Step(nil), p.steps...)
}

func (p *StepProcedure) stepAt(i int) (Step, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if i < 0 || i >= len(p.steps) {
		return Step{}, false
	}
	return p.steps[i], true
}

// CurrentStep returns the step most recently scheduled, if any.
func (p *StepProcedure) CurrentStep() (Step, bool) {
	if s := p.active.Load(); s != nil {
		return *s, true
	}
	return Step{}, false
}

// CurrentStepIndex is 1-based; 0 means the run has not started a step.
func (p *StepProcedure) CurrentStepIndex() int {
	return int(p.current.Load())
}

// CurrentStepName returns the name of the step most recently scheduled.
func (p *StepProcedure) CurrentStepName() string {
	if s := p.active.Load(); s != nil {
		return s.Name
	}
	return ""
}

// TotalSteps returns the number of steps added so far.
func (p *StepProcedure) TotalSteps() int {
	return int(p.total.Load())
}

// CompletedSteps counts steps whose function returned nil.
func (p *StepProcedure) CompletedSteps() int {
	return int(p.completed.Load())
}

// Progress implements Procedure.Progress.
func (p *StepProcedure) Progress() Progress {
	return Progress{
		Name:            p.Name(),
		Finished:        p.Finished(),
		TotalSteps:      p.TotalSteps(),
		CompletedSteps:  p.CompletedSteps(),
		CurrentStep:     p.CurrentStepIndex(),
		CurrentStepName: p.CurrentStepName(),
		Status:          p.Status(),
	}
}

// Run executes the steps in insertion order.
//
// A sequential step error ends the run at once: the error is returned, the
// procedure stays unfinished and the tear-down hook is skipped. Parallel step
// errors are collected at the join points and returned together once the run
// has finished. Any blocking failure requests exit on the run's control, which
// stops scheduling after the current step.
func (p *StepProcedure) Run(ctx context.Context) (Result, error) {
	if !p.started.CompareAndSwap(false, true) {
		return Result{Status: StatusFailed}, fmt.Errorf("procedure %s: already started", p.Name())
	}
	ctrl := control.FromContext(ctx)
	if ctrl == nil {
		ctrl = control.New()
	}
	parent := control.WithControl(ctx, ctrl)
	runCtx, cancel := control.Bind(ctx, ctrl)
	defer cancel()
	obs := observersFrom(ctx)

	if p.setUp != nil {
		if err := p.setUp(runCtx, p); err != nil {
			return Result{Status: StatusFailed}, fmt.Errorf("procedure %s: set up: %w", p.Name(), err)
		}
	}
	if p.TotalSteps() == 0 {
		return Result{Status: StatusFailed}, ErrNoSteps
	}

	batch := &parallelBatch{}
	var failures []error
	aborted := false
	for i := 0; ; i++ {
		step, ok := p.stepAt(i)
		if !ok {
			break
		}
		index := int(p.current.Add(1))
		p.active.Store(&step)
		if step.Parallel {
			batch.launch(func() error {
				return p.execute(runCtx, ctrl, obs, step, index)
			})
		} else {
			failures = append(failures, batch.join()...)
			if err := p.execute(runCtx, ctrl, obs, step, index); err != nil {
				return Result{Status: StatusFailed, Message: p.summary()}, errors.Join(append([]error{err}, failures...)...)
			}
		}
		if ctrl.ExitRequested() {
			aborted = true
			break
		}
	}
	failures = append(failures, batch.join()...)
	p.markFinished()

	if p.tearDown != nil {
		if err := p.tearDown(parent, p); err != nil {
			failures = append(failures, fmt.Errorf("procedure %s: tear down: %w", p.Name(), err))
		}
	}

	result := Result{Status: StatusCompleted, Message: p.summary()}
	switch {
	case aborted:
		result.Status = StatusAborted
	case len(failures) > 0:
		result.Status = StatusFailed
	}
	return result, errors.Join(failures...)
}

func (p *StepProcedure) summary() string {
	return fmt.Sprintf("%d/%d steps completed", p.CompletedSteps(), p.TotalSteps())
}

func (p *StepProcedure) execute(ctx context.Context, ctrl *control.Control, obs observers, step Step, index int) error {
	obs.StepStarted(p.Name(), step, index)
	err := invokeStep(ctx, step.Func)
	if err == nil {
		p.completed.Add(1)
		obs.StepFinished(p.Name(), step, index, nil)
		return nil
	}
	if step.Blocking {
		ctrl.RequestExit()
	}
	stepErr := &StepExecutionError{
		Procedure: p.Name(),
		Step:      step.Name,
		Index:     index,
		Blocking:  step.Blocking,
		Parallel:  step.Parallel,
		Err:       err,
	}
	obs.StepFinished(p.Name(), step, index, stepErr)
	return stepErr
}

func invokeStep(ctx context.Context, fn StepFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx)
}

// parallelBatch tracks the parallel steps launched since the last barrier.
// Only the scheduling goroutine calls launch and join.
type parallelBatch struct {
	group   *errgroup.Group
	pending int

	mu   sync.Mutex
	errs []error
}

func (b *parallelBatch) launch(fn func() error) {
	if b.group == nil {
		b.group = new(errgroup.Group)
	}
	b.pending++
	b.group.Go(func() error {
		err := fn()
		if err != nil {
			b.mu.Lock()
			b.errs = append(b.errs, err)
			b.mu.Unlock()
		}
		return err
	})
}

// join waits for every outstanding step and returns all of their errors.
func (b *parallelBatch) join() []error {
	if b.pending == 0 {
		return nil
	}
	_ = b.group.Wait()
	b.group = nil
	b.pending = 0
	b.mu.Lock()
	defer b.mu.Unlock()
	errs := b.errs
	b.errs = nil
	return errs
}

func funcName(fn any) string {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func || v.IsNil() {
		return "step"
	}
	f := runtime.FuncForPC(v.Pointer())
	if f == nil {
		return "step"
	}
	name := f.Name()
	if idx := strings.LastIndex(name, "/"); idx >= 0 {
		name = name[idx+1:]
	}
	if idx := strings.LastIndex(name, "."); idx >= 0 {
		name = name[idx+1:]
	}
	return strings.TrimSuffix(name, "-fm")
}
