package procedure

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingName is returned when a procedure is constructed without a name.
	ErrMissingName = errors.New("procedure: name is required")
	// ErrNotImplemented is returned by Base.Run; variants must override Run.
	ErrNotImplemented = errors.New("procedure: run is not implemented")
	// ErrNoSteps is returned when a step procedure runs with an empty step list.
	ErrNoSteps = errors.New("procedure: no steps added")
)

// ConstructionError reports a procedure that could not be built, either
// because of a bad name or because its parameters did not bind.
type ConstructionError struct {
	Procedure string
	Err       error
}

func (e *ConstructionError) Error() string {
	if e.Procedure == "" {
		return fmt.Sprintf("procedure: construct: %v", e.Err)
	}
	return fmt.Sprintf("procedure %s: construct: %v", e.Procedure, e.Err)
}

func (e *ConstructionError) Unwrap() error { return e.Err }

// StepExecutionError wraps the failure of a single step.
type StepExecutionError struct {
	Procedure string
	Step      string
	Index     int
	Blocking  bool
	Parallel  bool
	Err       error
}

func (e *StepExecutionError) Error() string {
	kind := "non-blocking"
	if e.Blocking {
		kind = "blocking"
	}
	return fmt.Sprintf("procedure %s: step %d (%s, %s) failed: %v", e.Procedure, e.Index, e.Step, kind, e.Err)
}

func (e *StepExecutionError) Unwrap() error { return e.Err }

// DiscoveryError reports a discovery pass aborted by a definition that could
// not be loaded.
type DiscoveryError struct {
	Path string
	Err  error
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("procedure: discover %s: %v", e.Path, e.Err)
}

func (e *DiscoveryError) Unwrap() error { return e.Err }

// DuplicateNameError reports two definitions sharing one procedure name.
type DuplicateNameError struct {
	Name   string
	First  string
	Second string
}

func (e *DuplicateNameError) Error() string {
	if e.First == "" && e.Second == "" {
		return fmt.Sprintf("procedure: %s already registered", e.Name)
	}
	return fmt.Sprintf("procedure: duplicate name %s (%s and %s)", e.Name, e.First, e.Second)
}

// NotFoundError reports an unknown procedure name.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("procedure: not found: %s", e.Name)
}

// DuplicateParameterError reports a parameter declared twice on one procedure.
type DuplicateParameterError struct {
	Name string
}

func (e *DuplicateParameterError) Error() string {
	return fmt.Sprintf("parameter %s declared more than once", e.Name)
}

// MissingRequiredParameterError reports a required parameter left without a value.
type MissingRequiredParameterError struct {
	Name string
}

func (e *MissingRequiredParameterError) Error() string {
	return fmt.Sprintf("parameter %s is required", e.Name)
}

// TypeMismatchError reports a parameter value whose type disagrees with the
// declaration.
type TypeMismatchError struct {
	Name string
	Want ParamType
	Got  string
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("parameter %s must be of type %s, got %s", e.Name, e.Want, e.Got)
}
