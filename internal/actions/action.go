// Package actions provides the built-in units of work that declarative
// procedure files refer to by name.
package actions

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kingrea/butler/internal/procedure"
)

var (
	// ErrActionNotFound is returned for an unknown action name.
	ErrActionNotFound = errors.New("action not found")
	// ErrInvalidOptions is returned when an action rejects its options.
	ErrInvalidOptions = errors.New("invalid action options")
)

// Action is one built-in step implementation.
type Action interface {
	Name() string
	// Validate checks options before any run starts.
	Validate(opts Options) error
	// Run performs the action. It should return early once ctx is done.
	Run(ctx context.Context, opts Options) error
}

// Options are the rendered `with` values of a step.
type Options map[string]any

// String returns the named option as a string.
func (o Options) String(key string) string {
	switch v := o[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// Int returns the named option as an int, parsing strings.
func (o Options) Int(key string) (int, error) {
	switch v := o[key].(type) {
	case nil:
		return 0, nil
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, fmt.Errorf("%w: %s must be an integer", ErrInvalidOptions, key)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("%w: %s must be an integer", ErrInvalidOptions, key)
	}
}

// Duration returns the named option as a duration. Bare numbers are seconds.
func (o Options) Duration(key string) (time.Duration, error) {
	switch v := o[key].(type) {
	case nil:
		return 0, nil
	case int:
		return time.Duration(v) * time.Second, nil
	case int64:
		return time.Duration(v) * time.Second, nil
	case float64:
		return time.Duration(v * float64(time.Second)), nil
	case string:
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return 0, fmt.Errorf("%w: %s: %v", ErrInvalidOptions, key, err)
		}
		return d, nil
	default:
		return 0, fmt.Errorf("%w: %s must be a duration", ErrInvalidOptions, key)
	}
}

// Bind validates opts for the named action and returns a step function that
// runs it.
func (r *Registry) Bind(name string, opts Options) (procedure.StepFunc, error) {
	action, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	if opts == nil {
		opts = Options{}
	}
	if err := action.Validate(opts); err != nil {
		return nil, fmt.Errorf("action %s: %w", name, err)
	}
	return func(ctx context.Context) error {
		return action.Run(ctx, opts)
	}, nil
}
