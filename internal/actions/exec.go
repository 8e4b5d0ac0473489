package actions

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"runtime"
	"strings"
	"sync"

	"github.com/kingrea/butler/internal/logbook"
)

// Exec runs a shell command. Options: command (required), dir.
// Every output line is journaled.
type Exec struct{}

// NewExec creates the exec action.
func NewExec() *Exec { return &Exec{} }

// Name implements Action.
func (*Exec) Name() string { return "exec" }

// Validate implements Action.
func (*Exec) Validate(opts Options) error {
	if strings.TrimSpace(opts.String("command")) == "" {
		return fmt.Errorf("%w: command is required", ErrInvalidOptions)
	}
	return nil
}

// Run implements Action.
func (e *Exec) Run(ctx context.Context, opts Options) error {
	command := opts.String("command")
	cmd := shellCommand(ctx, command)
	cmd.Dir = opts.String("dir")

	book := logbook.FromContext(ctx)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("exec: stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("exec: stderr: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("exec: start %q: %w", command, err)
	}
	var wg sync.WaitGroup
	wg.Add(2)
	go journalLines(&wg, stdout, book, logbook.LevelInfo)
	go journalLines(&wg, stderr, book, logbook.LevelWarn)
	wg.Wait()
	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("exec: %q: %w", command, err)
	}
	return nil
}

func shellCommand(ctx context.Context, command string) *exec.Cmd {
	if runtime.GOOS == "windows" {
		return exec.CommandContext(ctx, "cmd", "/C", command)
	}
	return exec.CommandContext(ctx, "sh", "-c", command)
}

// journalLines journals r line by line until EOF. Lines of any length are
// accepted so the child never blocks on a full pipe.
func journalLines(wg *sync.WaitGroup, r io.Reader, book *logbook.Logbook, level logbook.Level) {
	defer wg.Done()
	reader := bufio.NewReader(r)
	for {
		line, err := reader.ReadString('\n')
		line = strings.TrimRight(line, "\r\n")
		if err == nil || line != "" {
			book.Append(level, line)
		}
		if err != nil {
			if err != io.EOF {
				_, _ = io.Copy(io.Discard, r)
			}
			return
		}
	}
}
