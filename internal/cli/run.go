package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/google/uuid"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/kingrea/butler/internal/config"
	"github.com/kingrea/butler/internal/control"
	"github.com/kingrea/butler/internal/logbook"
	"github.com/kingrea/butler/internal/procedure"
	"github.com/kingrea/butler/internal/telemetry"
	"github.com/kingrea/butler/internal/tui"
)

type runOptions struct {
	sets        []string
	noDashboard bool
	metricsAddr string
}

func newRunCmd(e *env) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run [NAME]",
		Short: "Run a procedure",
		Long:  "Run a procedure by name. Without NAME an interactive picker is shown.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, reg, err := e.open(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			interactive := !opts.noDashboard && isTerminal(cmd.OutOrStdout())

			name := ""
			if len(args) == 1 {
				name = args[0]
			} else {
				if !isTerminal(cmd.OutOrStdout()) {
					return errors.New("procedure name is required when not attached to a terminal")
				}
				name, err = tui.Pick(reg.Definitions())
				if err != nil {
					return err
				}
			}
			return runProcedure(cmd.Context(), cfg, reg, name, opts, interactive, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	cmd.Flags().StringArrayVar(&opts.sets, "set", nil, "Parameter value as KEY=VALUE (repeatable)")
	cmd.Flags().BoolVar(&opts.noDashboard, "no-dashboard", false, "Print step lines instead of the live dashboard")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve prometheus metrics on ADDR while the run lasts")
	return cmd
}

func runProcedure(ctx context.Context, cfg *config.Config, reg *procedure.Registry, name string, opts *runOptions, interactive bool, w, errW io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	def, err := reg.Load(name)
	if err != nil {
		return err
	}
	raw, err := parseSets(opts.sets)
	if err != nil {
		return err
	}
	values, err := def.Params.ParseValues(raw)
	if err != nil {
		return &procedure.ConstructionError{Procedure: def.Name, Err: err}
	}
	proc, err := reg.Instantiate(def.Name, values)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.LogsDir(), 0o755); err != nil {
		return fmt.Errorf("create logs dir: %w", err)
	}
	runID := uuid.NewString()
	book, err := logbook.New(cfg.JournalPath(), logbook.WithMinLevel(cfg.LogLevel()), logbook.WithRunID(runID))
	if err != nil {
		return err
	}
	sampler := telemetry.NewSampler()
	metrics, err := telemetry.NewStepMetrics(sampler.Registry())
	if err != nil {
		return err
	}

	ctx, stopMetrics := context.WithCancel(ctx)
	defer stopMetrics()
	if opts.metricsAddr != "" {
		ready := make(chan string, 1)
		serveErr := make(chan error, 1)
		go func() {
			serveErr <- telemetry.Serve(ctx, opts.metricsAddr, sampler.Registry(), ready)
		}()
		select {
		case addr := <-ready:
			fmt.Fprintf(errW, "metrics: http://%s/metrics\n", addr)
		case err := <-serveErr:
			return err
		}
	}

	ctrl := control.New()
	observers := []procedure.Observer{book, metrics}
	if !interactive {
		observers = append(observers, newLinePrinter(errW))
	}
	runCtx := logbook.WithLogbook(ctx, book)
	runCtx = procedure.WithObserver(runCtx, observers...)
	run := func() (procedure.Result, error) {
		bound, cancel := control.Bind(runCtx, ctrl)
		defer cancel()
		return proc.Run(bound)
	}

	book.Info("run %s started: %s", runID, def.Name)
	var result procedure.Result
	if interactive {
		result, err = tui.RunDashboard(tui.DashboardOptions{
			Procedure: proc,
			Control:   ctrl,
			Sampler:   sampler,
			Logbook:   book,
		}, run)
	} else {
		stop := interruptOnSignal(ctrl, book)
		result, err = run()
		stop()
	}
	if result.Status == "" {
		result.Status = procedure.StatusFailed
	}
	book.Info("run %s %s", runID, result.Status)

	summary := fmt.Sprintf("%s: %s", def.Name, result.Status)
	if result.Message != "" {
		summary += " (" + result.Message + ")"
	}
	fmt.Fprintln(w, summary)
	fmt.Fprintf(errW, "run id: %s, journal: %s\n", runID, book.Path())
	return err
}

// interruptOnSignal requests exit on the first interrupt. The returned func
// stops listening.
func interruptOnSignal(ctrl *control.Control, book *logbook.Logbook) func() {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt)
	done := make(chan struct{})
	go func() {
		select {
		case <-signals:
			book.Warn("interrupt received, stopping after the current step")
			ctrl.RequestExit()
		case <-done:
		}
	}()
	return func() {
		signal.Stop(signals)
		close(done)
	}
}

func parseSets(sets []string) (map[string]string, error) {
	raw := make(map[string]string, len(sets))
	for _, kv := range sets {
		key, value, ok := strings.Cut(kv, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --set %q, expected KEY=VALUE", kv)
		}
		raw[key] = value
	}
	return raw, nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
