package cli

import (
	"fmt"
	"io"
	"sync"

	"github.com/kingrea/butler/internal/procedure"
)

// linePrinter reports step progress as plain lines for non-interactive runs.
type linePrinter struct {
	mu sync.Mutex
	w  io.Writer
}

func newLinePrinter(w io.Writer) *linePrinter {
	return &linePrinter{w: w}
}

func (p *linePrinter) StepStarted(proc string, step procedure.Step, index int) {
	mode := "sequential"
	if step.Parallel {
		mode = "parallel"
	}
	p.printf("%s: step %d %s started (%s)\n", proc, index, step.Name, mode)
}

func (p *linePrinter) StepFinished(proc string, step procedure.Step, index int, err error) {
	switch {
	case err == nil:
		p.printf("%s: step %d %s ok\n", proc, index, step.Name)
	case step.Blocking:
		p.printf("%s: step %d %s FAILED: %v\n", proc, index, step.Name, err)
	default:
		p.printf("%s: step %d %s failed (non-blocking): %v\n", proc, index, step.Name, err)
	}
}

func (p *linePrinter) printf(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, format, args...)
}
