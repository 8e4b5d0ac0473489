package builtin

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/kingrea/butler/internal/config"
	"github.com/kingrea/butler/internal/logbook"
	"github.com/kingrea/butler/internal/procedure"
)

func newProject(t *testing.T) *config.Config {
	t.Helper()
	root, err := config.InitProject(t.TempDir(), "proj")
	if err != nil {
		t.Fatalf("init project: %v", err)
	}
	cfg, err := config.Load(root)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	return cfg
}

func TestRegisterAddsBuiltins(t *testing.T) {
	reg := procedure.NewRegistry()
	if err := Register(reg, newProject(t)); err != nil {
		t.Fatalf("register: %v", err)
	}
	if got := reg.List(); !reflect.DeepEqual(got, []string{"clean-logs", "doctor"}) {
		t.Fatalf("unexpected builtins %v", got)
	}
	def, err := reg.Load("doctor")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if def.Source != procedure.SourceBuiltin {
		t.Fatalf("expected builtin source, got %q", def.Source)
	}
	var dup *procedure.DuplicateNameError
	if err := Register(reg, nil); !errors.As(err, &dup) {
		t.Fatalf("expected duplicate error on second registration, got %v", err)
	}
}

func TestDoctorReportsMissingToolsWithoutAborting(t *testing.T) {
	cfg := newProject(t)
	reg := procedure.NewRegistry()
	if err := Register(reg, cfg); err != nil {
		t.Fatalf("register: %v", err)
	}
	book, err := logbook.New(cfg.JournalPath())
	if err != nil {
		t.Fatalf("logbook: %v", err)
	}
	ctx := logbook.WithLogbook(context.Background(), book)
	proc, err := reg.Instantiate("doctor", map[string]any{"tools": "sh, definitely-not-a-real-tool-xyz"})
	if err != nil {
		t.Fatalf("instantiate: %v", err)
	}
	result, err := proc.Run(ctx)
	var stepErr *procedure.StepExecutionError
	if !errors.As(err, &stepErr) || stepErr.Blocking {
		t.Fatalf("expected non-blocking step failure, got %v", err)
	}
	if !proc.Finished() || result.Status != procedure.StatusFailed {
		t.Fatalf("expected finished run with failed status, got %+v", result)
	}
	progress := proc.Progress()
	if progress.TotalSteps != 4 || progress.CompletedSteps != 3 {
		t.Fatalf("unexpected progress %+v", progress)
	}
	lines, _ := book.Tail(10)
	joined := strings.Join(lines, "\n")
	if !strings.Contains(joined, "missing definitely-not-a-real-tool-xyz") || !strings.Contains(joined, "project layout ok") {
		t.Fatalf("summary not journaled:\n%s", joined)
	}
}

func TestCleanLogsKeepsJournal(t *testing.T) {
	cfg := newProject(t)
	if err := os.WriteFile(cfg.JournalPath(), []byte("keep\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"old-1.log", "old-2.log"} {
		if err := os.WriteFile(filepath.Join(cfg.LogsDir(), name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	reg := procedure.NewRegistry()
	if err := Register(reg, cfg); err != nil {
		t.Fatalf("register: %v", err)
	}
	result, err := reg.Run(context.Background(), "clean-logs", nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Value != 2 {
		t.Fatalf("expected 2 removed files, got %+v", result)
	}
	if data, err := os.ReadFile(cfg.JournalPath()); err != nil || string(data) != "keep\n" {
		t.Fatalf("journal should be untouched: %q %v", data, err)
	}

	if _, err := reg.Run(context.Background(), "clean-logs", map[string]any{"truncate_journal": true}); err != nil {
		t.Fatalf("run truncate: %v", err)
	}
	if info, err := os.Stat(cfg.JournalPath()); err != nil || info.Size() != 0 {
		t.Fatalf("expected truncated journal: %v", err)
	}
}
