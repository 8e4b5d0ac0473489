package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/kingrea/butler/internal/control"
	"github.com/kingrea/butler/internal/logbook"
	"github.com/kingrea/butler/internal/procedure"
	"github.com/kingrea/butler/internal/telemetry"
)

const (
	refreshInterval     = 100 * time.Millisecond
	defaultConsoleLines = 12
	defaultWidth        = 100
)

// RunFunc runs the procedure shown by the dashboard.
type RunFunc func() (procedure.Result, error)

// DashboardOptions wires a running procedure to the dashboard.
type DashboardOptions struct {
	Procedure procedure.Procedure
	Control   *control.Control
	Sampler   *telemetry.Sampler
	Logbook   *logbook.Logbook
	// ConsoleLines caps the journal tail; zero means the default.
	ConsoleLines int
}

type refreshMsg time.Time

type runFinishedMsg struct{}

// runState holds the outcome of the background run.
type runState struct {
	done   chan struct{}
	result procedure.Result
	err    error
}

func startRun(run RunFunc) *runState {
	state := &runState{done: make(chan struct{})}
	go func() {
		defer close(state.done)
		state.result, state.err = run()
	}()
	return state
}

// Dashboard polls a running procedure and renders its progress, process
// resources and the journal tail until the run ends.
type Dashboard struct {
	opts    DashboardOptions
	run     *runState
	spinner spinner.Model
	bar     progress.Model

	width      int
	height     int
	confirming bool
	finished   bool

	progress procedure.Progress
	sample   telemetry.Sample
	max      telemetry.Sample
	console  []string
	total    int
}

// NewDashboard starts run in the background and returns the model watching it.
func NewDashboard(opts DashboardOptions, run RunFunc) *Dashboard {
	if opts.Control == nil {
		opts.Control = control.New()
	}
	if opts.ConsoleLines <= 0 {
		opts.ConsoleLines = defaultConsoleLines
	}
	spin := spinner.New()
	spin.Spinner = spinner.Dot
	spin.Style = labelStyleRunning
	d := &Dashboard{
		opts:    opts,
		run:     startRun(run),
		spinner: spin,
		bar:     progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
	}
	d.refresh()
	return d
}

// Result blocks until the run ends and returns its outcome.
func (d *Dashboard) Result() (procedure.Result, error) {
	<-d.run.done
	return d.run.result, d.run.err
}

// Finished reports whether the run has ended.
func (d *Dashboard) Finished() bool { return d.finished }

func (d *Dashboard) Init() tea.Cmd {
	return tea.Batch(d.waitForRun(), d.scheduleRefresh(), d.spinner.Tick)
}

func (d *Dashboard) waitForRun() tea.Cmd {
	done := d.run.done
	return func() tea.Msg {
		<-done
		return runFinishedMsg{}
	}
}

func (d *Dashboard) scheduleRefresh() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return refreshMsg(t)
	})
}

func (d *Dashboard) refresh() {
	if d.opts.Procedure != nil {
		d.progress = d.opts.Procedure.Progress()
	}
	if d.opts.Sampler != nil {
		d.sample = d.opts.Sampler.Sample()
		d.max = d.opts.Sampler.Max()
	}
	d.console, d.total = d.opts.Logbook.Tail(d.opts.ConsoleLines)
}

func (d *Dashboard) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		d.width = msg.Width
		d.height = msg.Height
		d.bar.Width = max(10, min(60, msg.Width/2-12))
		return d, nil
	case refreshMsg:
		if d.finished {
			return d, nil
		}
		d.refresh()
		return d, d.scheduleRefresh()
	case runFinishedMsg:
		d.finished = true
		d.confirming = false
		d.refresh()
		return d, tea.Quit
	case spinner.TickMsg:
		if d.finished {
			return d, nil
		}
		var cmd tea.Cmd
		d.spinner, cmd = d.spinner.Update(msg)
		return d, cmd
	case tea.KeyMsg:
		return d, d.handleKey(msg)
	}
	return d, nil
}

func (d *Dashboard) handleKey(msg tea.KeyMsg) tea.Cmd {
	if d.finished {
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			return tea.Quit
		}
		return nil
	}
	if d.confirming {
		switch msg.String() {
		case "y", "Y", "ctrl+c":
			d.confirming = false
			d.opts.Control.RequestExit()
			d.opts.Logbook.Warn("exit requested from dashboard")
		case "n", "N", "esc":
			d.confirming = false
		}
		return nil
	}
	switch msg.String() {
	case "ctrl+c":
		if !d.opts.Control.ExitRequested() {
			d.confirming = true
		}
	case "p":
		if d.opts.Control.TogglePause() {
			d.opts.Logbook.Info("paused from dashboard")
		} else {
			d.opts.Logbook.Info("resumed from dashboard")
		}
	}
	return nil
}

func (d *Dashboard) View() string {
	width := d.width
	if width <= 0 {
		width = defaultWidth
	}
	leftWidth := max(40, width/2-2)
	rightWidth := max(30, width-leftWidth-6)

	name := d.progress.Name
	if name == "" && d.opts.Procedure != nil {
		name = d.opts.Procedure.Name()
	}
	header := lipgloss.JoinHorizontal(lipgloss.Top,
		headerStyle.Render("Procedure: "+name),
		"  ",
		d.stateLabel(),
	)

	left := lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render("Performance"),
		d.renderPerformance(),
		"",
		titleStyle.Render("Progress"),
		d.renderProgress(),
	)
	leftBox := panelStyle.Width(leftWidth).Render(left)
	rightBox := panelStyle.Width(rightWidth).Render(d.renderConsole())
	body := lipgloss.JoinHorizontal(lipgloss.Top, leftBox, rightBox)

	return lipgloss.JoinVertical(lipgloss.Left, header, body, d.renderFooter()) + "\n"
}

func (d *Dashboard) stateLabel() string {
	if d.finished {
		status := d.run.result.Status
		if status == "" && d.run.err != nil {
			status = procedure.StatusFailed
		}
		switch status {
		case procedure.StatusCompleted:
			return labelStyleDone.Render(string(status))
		case procedure.StatusAborted:
			return labelStylePaused.Render(string(status))
		default:
			return labelStyleFailed.Render(string(status))
		}
	}
	switch {
	case d.opts.Control.ExitRequested():
		return labelStyleFailed.Render("stopping")
	case d.opts.Control.Paused():
		return labelStylePaused.Render("paused")
	default:
		return d.spinner.View() + labelStyleRunning.Render("running")
	}
}

func (d *Dashboard) renderPerformance() string {
	row := func(label string, s telemetry.Sample) []string {
		if d.opts.Sampler == nil {
			return []string{label, "-", "-", "-", "-"}
		}
		return []string{
			label,
			telemetry.FormatElapsed(s.Elapsed),
			telemetry.FormatBytes(s.MemoryBytes),
			fmt.Sprintf("%.2f %%", s.CPUPercent),
			fmt.Sprintf("%.0f", s.Threads),
		}
	}
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(mutedStyle).
		Headers("", "Elapsed", "Memory", "CPU", "Threads").
		Row(row("Current", d.sample)...).
		Row(row("Max", d.max)...).
		String()
}

func (d *Dashboard) renderProgress() string {
	p := d.progress
	step := "waiting"
	if p.TotalSteps > 0 {
		current := p.CurrentStep
		if current == 0 && p.Finished {
			current = p.TotalSteps
		}
		step = fmt.Sprintf("Step %d/%d", current, p.TotalSteps)
		if p.CurrentStepName != "" {
			step += ": " + p.CurrentStepName
		}
	}
	lines := []string{
		bodyStyle.Render(step),
		d.bar.ViewAs(p.Fraction()),
		bodyStyle.Render(fmt.Sprintf("%d of %d steps completed", p.CompletedSteps, p.TotalSteps)),
	}
	if p.Status != "" {
		lines = append(lines, mutedStyle.Render(p.Status))
	}
	if d.finished && d.run.err != nil {
		lines = append(lines, labelStyleFailed.Render(truncate(d.run.err.Error(), 200)))
	}
	return strings.Join(lines, "\n")
}

func (d *Dashboard) renderConsole() string {
	title := titleStyle.Render(fmt.Sprintf("Console (%d of %d lines)", len(d.console), d.total))
	if len(d.console) == 0 {
		return lipgloss.JoinVertical(lipgloss.Left, title, mutedStyle.Render("No journal entries yet."))
	}
	return lipgloss.JoinVertical(lipgloss.Left, title, bodyStyle.Render(strings.Join(d.console, "\n")))
}

func (d *Dashboard) renderFooter() string {
	switch {
	case d.confirming:
		return labelStylePaused.Render("Abort the running procedure? (y/n)")
	case d.finished:
		return mutedStyle.Render(d.run.result.Message)
	default:
		return mutedStyle.Render("p: pause/resume · ctrl+c: abort")
	}
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "…"
}

// RunDashboard shows the dashboard while run executes and returns its
// outcome. If the program stops before the run does, exit is requested and
// the run is awaited.
func RunDashboard(opts DashboardOptions, run RunFunc, progOpts ...tea.ProgramOption) (procedure.Result, error) {
	d := NewDashboard(opts, run)
	_, progErr := tea.NewProgram(d, progOpts...).Run()
	if !d.finished {
		d.opts.Control.RequestExit()
	}
	result, err := d.Result()
	if err == nil && progErr != nil {
		err = fmt.Errorf("tui: dashboard: %w", progErr)
	}
	return result, err
}
