package tui

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/kingrea/butler/internal/control"
	"github.com/kingrea/butler/internal/logbook"
	"github.com/kingrea/butler/internal/procedure"
	"github.com/kingrea/butler/internal/telemetry"
)

func runner(proc procedure.Procedure, ctrl *control.Control) RunFunc {
	return func() (procedure.Result, error) {
		ctx, cancel := control.Bind(context.Background(), ctrl)
		defer cancel()
		return proc.Run(ctx)
	}
}

func finish(t *testing.T, d *Dashboard) tea.Cmd {
	t.Helper()
	msg := d.waitForRun()()
	_, cmd := d.Update(msg)
	return cmd
}

func TestDashboardQuitsWhenRunFinishes(t *testing.T) {
	book, err := logbook.New(filepath.Join(t.TempDir(), "butler.log"))
	if err != nil {
		t.Fatalf("logbook: %v", err)
	}
	proc, err := procedure.NewBasic("greet", func(context.Context) (procedure.Result, error) {
		book.Info("hello from greet")
		return procedure.Result{Message: "said hello"}, nil
	})
	if err != nil {
		t.Fatalf("new basic: %v", err)
	}
	ctrl := control.New()
	d := NewDashboard(DashboardOptions{
		Procedure: proc,
		Control:   ctrl,
		Sampler:   telemetry.NewSampler(),
		Logbook:   book,
	}, runner(proc, ctrl))

	d.Update(tea.WindowSizeMsg{Width: 200, Height: 50})
	cmd := finish(t, d)
	if cmd == nil {
		t.Fatalf("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatalf("expected quit message")
	}
	if !d.Finished() {
		t.Fatalf("dashboard should be finished")
	}
	result, err := d.Result()
	if err != nil || result.Status != procedure.StatusCompleted {
		t.Fatalf("unexpected result %+v err=%v", result, err)
	}
	view := d.View()
	for _, want := range []string{"Procedure: greet", "completed", "hello from greet", "Max", "said hello"} {
		if !strings.Contains(view, want) {
			t.Fatalf("view missing %q:\n%s", want, view)
		}
	}
}

func TestDashboardCtrlCAsksBeforeAborting(t *testing.T) {
	started := make(chan struct{})
	proc, err := procedure.NewStepProcedure("long",
		procedure.WithSteps(
			procedure.NewStep("wait", func(ctx context.Context) error {
				close(started)
				<-ctx.Done()
				return nil
			}),
			procedure.NewStep("never", func(context.Context) error { return nil }),
		),
	)
	if err != nil {
		t.Fatalf("new step procedure: %v", err)
	}
	ctrl := control.New()
	d := NewDashboard(DashboardOptions{Procedure: proc, Control: ctrl}, runner(proc, ctrl))
	<-started

	d.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	if ctrl.ExitRequested() {
		t.Fatalf("first ctrl+c must only ask for confirmation")
	}
	if !strings.Contains(d.View(), "Abort the running procedure?") {
		t.Fatalf("expected confirmation prompt")
	}
	d.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("n")})
	if ctrl.ExitRequested() || d.confirming {
		t.Fatalf("declining should resume the run")
	}

	d.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	d.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("y")})
	if !ctrl.ExitRequested() {
		t.Fatalf("confirming should request exit")
	}
	finish(t, d)
	result, err := d.Result()
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Status != procedure.StatusAborted {
		t.Fatalf("expected aborted, got %s", result.Status)
	}
	if !strings.Contains(d.View(), "aborted") {
		t.Fatalf("view should show aborted status")
	}
}

func TestDashboardTogglesPause(t *testing.T) {
	release := make(chan struct{})
	proc, err := procedure.NewBasic("hold", func(context.Context) (procedure.Result, error) {
		<-release
		return procedure.Result{}, nil
	})
	if err != nil {
		t.Fatalf("new basic: %v", err)
	}
	ctrl := control.New()
	d := NewDashboard(DashboardOptions{Procedure: proc, Control: ctrl}, runner(proc, ctrl))

	d.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("p")})
	if !ctrl.Paused() {
		t.Fatalf("expected paused")
	}
	if !strings.Contains(d.View(), "paused") {
		t.Fatalf("view should show paused")
	}
	d.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("p")})
	if ctrl.Paused() {
		t.Fatalf("expected resumed")
	}
	close(release)
	finish(t, d)
}

func TestDashboardShowsStepProgress(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	proc, err := procedure.NewStepProcedure("steps",
		procedure.WithSteps(
			procedure.NewStep("first", func(context.Context) error { return nil }),
			procedure.NewStep("second", func(context.Context) error {
				close(entered)
				<-release
				return nil
			}),
		),
	)
	if err != nil {
		t.Fatalf("new step procedure: %v", err)
	}
	ctrl := control.New()
	d := NewDashboard(DashboardOptions{Procedure: proc, Control: ctrl}, runner(proc, ctrl))
	<-entered

	d.Update(tea.WindowSizeMsg{Width: 200, Height: 50})
	d.Update(refreshMsg{})
	view := d.View()
	if !strings.Contains(view, "Step 2/2: second") {
		t.Fatalf("view missing current step:\n%s", view)
	}
	if !strings.Contains(view, "1 of 2 steps completed") {
		t.Fatalf("view missing completed count:\n%s", view)
	}
	close(release)
	finish(t, d)
}
