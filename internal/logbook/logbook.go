package logbook

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/kingrea/butler/internal/procedure"
)

// Level represents the severity of a journal entry.
type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

var levelRank = map[Level]int{
	LevelDebug: 0,
	LevelInfo:  1,
	LevelWarn:  2,
	LevelError: 3,
}

// ParseLevel accepts level names in any case. WARNING is an alias of WARN.
func ParseLevel(raw string) (Level, error) {
	level := Level(strings.ToUpper(strings.TrimSpace(raw)))
	if level == "WARNING" {
		level = LevelWarn
	}
	if _, ok := levelRank[level]; !ok {
		return "", fmt.Errorf("logbook: unknown level %q", raw)
	}
	return level, nil
}

// Enabled reports whether entries at level pass the min threshold.
func (l Level) Enabled(min Level) bool {
	return levelRank[l] >= levelRank[min]
}

// Logbook is the append-only run journal. Writes are serialized so parallel
// steps can share one instance. Reads never take the write lock.
type Logbook struct {
	path  string
	min   Level
	runID string
	// start is the file size when this logbook was opened; Tail reads from it.
	start int64
	mu    *sync.Mutex
}

// Option customizes a Logbook.
type Option func(*Logbook)

// WithMinLevel drops entries below level.
func WithMinLevel(level Level) Option {
	return func(l *Logbook) { l.min = level }
}

// WithRunID tags every entry with id.
func WithRunID(id string) Option {
	return func(l *Logbook) { l.runID = id }
}

// New creates a logbook that writes to the provided path.
func New(path string, opts ...Option) (*Logbook, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("logbook: ensure dir: %w", err)
	}
	book := &Logbook{path: path, min: LevelInfo, start: fileSize(path), mu: &sync.Mutex{}}
	for _, opt := range opts {
		opt(book)
	}
	return book, nil
}

func fileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}

// ForRun returns a logbook sharing this file whose entries carry runID. Its
// Tail starts at the current end of the journal.
func (l *Logbook) ForRun(runID string) *Logbook {
	if l == nil {
		return nil
	}
	clone := *l
	clone.runID = runID
	l.mu.Lock()
	clone.start = fileSize(l.path)
	l.mu.Unlock()
	return &clone
}

// Path returns the file backing this logbook.
func (l *Logbook) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// RunID returns the run tag, if any.
func (l *Logbook) RunID() string {
	if l == nil {
		return ""
	}
	return l.runID
}

// Append writes a single entry to the logbook.
func (l *Logbook) Append(level Level, message string) {
	if l == nil || !level.Enabled(l.min) {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	tag := ""
	if l.runID != "" {
		tag = "[" + shortID(l.runID) + "] "
	}
	line := fmt.Sprintf("%s %-5s %s%s\n",
		time.Now().UTC().Format(time.RFC3339),
		string(level),
		tag,
		entryReplacer.Replace(strings.TrimSpace(message)),
	)
	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return
	}
	defer file.Close()
	_, _ = file.WriteString(line)
}

// entryReplacer keeps one entry per line so Tail can count and filter entries.
var entryReplacer = strings.NewReplacer("\r\n", " | ", "\n", " | ", "\r", " | ")

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// Tail returns up to maxLines of the most recent entries written since this
// logbook was opened, and how many such entries exist. A logbook bound to a
// run only sees that run's entries. A line still being written is skipped.
func (l *Logbook) Tail(maxLines int) ([]string, int) {
	if l == nil || maxLines <= 0 {
		return nil, 0
	}
	file, err := os.Open(l.path)
	if err != nil {
		return nil, 0
	}
	defer file.Close()
	if _, err := file.Seek(l.start, io.SeekStart); err != nil {
		return nil, 0
	}

	tag := ""
	if l.runID != "" {
		tag = "[" + shortID(l.runID) + "] "
	}
	var lines []string
	total := 0
	reader := bufio.NewReader(file)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			break
		}
		line = strings.TrimSuffix(line, "\n")
		if tag != "" && !strings.Contains(line, tag) {
			continue
		}
		total++
		lines = append(lines, line)
		if len(lines) > maxLines {
			lines = lines[1:]
		}
	}
	if total == 0 {
		return nil, 0
	}
	return lines, total
}

// Debug appends a debug entry.
func (l *Logbook) Debug(format string, args ...any) {
	l.Append(LevelDebug, fmt.Sprintf(format, args...))
}

// Info appends an informational entry.
func (l *Logbook) Info(format string, args ...any) {
	l.Append(LevelInfo, fmt.Sprintf(format, args...))
}

// Warn appends a warning entry.
func (l *Logbook) Warn(format string, args ...any) {
	l.Append(LevelWarn, fmt.Sprintf(format, args...))
}

// Error appends an error entry.
func (l *Logbook) Error(format string, args ...any) {
	l.Append(LevelError, fmt.Sprintf(format, args...))
}

// StepStarted journals a step start.
func (l *Logbook) StepStarted(proc string, step procedure.Step, index int) {
	mode := "sequential"
	if step.Parallel {
		mode = "parallel"
	}
	l.Debug("%s: step %d %s started (%s)", proc, index, step.Name, mode)
}

// StepFinished journals the outcome of a step attempt.
func (l *Logbook) StepFinished(proc string, step procedure.Step, index int, err error) {
	switch {
	case err == nil:
		l.Info("%s: step %d %s done", proc, index, step.Name)
	case step.Blocking:
		l.Error("%s: step %d %s failed: %v", proc, index, step.Name, err)
	default:
		l.Warn("%s: step %d %s failed (non-blocking): %v", proc, index, step.Name, err)
	}
}

type contextKey struct{}

// WithLogbook attaches book to ctx.
func WithLogbook(ctx context.Context, book *Logbook) context.Context {
	return context.WithValue(ctx, contextKey{}, book)
}

// FromContext returns the attached logbook or nil. A nil logbook discards
// every entry.
func FromContext(ctx context.Context) *Logbook {
	if ctx == nil {
		return nil
	}
	book, _ := ctx.Value(contextKey{}).(*Logbook)
	return book
}
