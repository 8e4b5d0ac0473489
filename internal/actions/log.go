package actions

import (
	"context"
	"errors"
	"fmt"

	"github.com/kingrea/butler/internal/logbook"
)

// Log writes message to the run journal at level (INFO by default).
type Log struct{}

// NewLog creates the log action.
func NewLog() *Log { return &Log{} }

// Name implements Action.
func (*Log) Name() string { return "log" }

// Validate implements Action.
func (*Log) Validate(opts Options) error {
	if opts.String("message") == "" {
		return fmt.Errorf("%w: message is required", ErrInvalidOptions)
	}
	if raw := opts.String("level"); raw != "" {
		if _, err := logbook.ParseLevel(raw); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidOptions, err)
		}
	}
	return nil
}

// Run implements Action.
func (*Log) Run(ctx context.Context, opts Options) error {
	level := logbook.LevelInfo
	if raw := opts.String("level"); raw != "" {
		parsed, err := logbook.ParseLevel(raw)
		if err != nil {
			return err
		}
		level = parsed
	}
	logbook.FromContext(ctx).Append(level, opts.String("message"))
	return nil
}

// Fail always returns an error carrying message.
type Fail struct{}

// NewFail creates the fail action.
func NewFail() *Fail { return &Fail{} }

// Name implements Action.
func (*Fail) Name() string { return "fail" }

// Validate implements Action.
func (*Fail) Validate(Options) error { return nil }

// Run implements Action.
func (*Fail) Run(_ context.Context, opts Options) error {
	message := opts.String("message")
	if message == "" {
		message = "step failed"
	}
	return errors.New(message)
}
