// Package builtin holds the procedures compiled into butler.
package builtin

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/kingrea/butler/internal/config"
	"github.com/kingrea/butler/internal/logbook"
	"github.com/kingrea/butler/internal/procedure"
)

// Register installs every builtin procedure on reg.
func Register(reg *procedure.Registry, cfg *config.Config) error {
	defs := []func(*config.Config) (procedure.Definition, error){
		doctorDefinition,
		cleanLogsDefinition,
	}
	for _, build := range defs {
		def, err := build(cfg)
		if err != nil {
			return err
		}
		if err := reg.Register(def); err != nil {
			return err
		}
	}
	return nil
}

func doctorDefinition(cfg *config.Config) (procedure.Definition, error) {
	params, err := procedure.NewParamSet(procedure.Param{
		Name:        "tools",
		Type:        procedure.ParamString,
		Value:       "git,sh",
		Description: "Comma separated executables that must be on PATH.",
	})
	if err != nil {
		return procedure.Definition{}, err
	}
	return procedure.Definition{
		Name:        "doctor",
		Description: "Check the project layout and required tools.",
		Kind:        procedure.KindStep,
		Params:      params,
		Factory: func(values procedure.Values) (procedure.Procedure, error) {
			return newDoctor(cfg, splitList(values.String("tools")))
		},
	}, nil
}

type doctor struct {
	mu       sync.Mutex
	findings []string
}

func (d *doctor) record(format string, args ...any) {
	d.mu.Lock()
	d.findings = append(d.findings, fmt.Sprintf(format, args...))
	d.mu.Unlock()
}

func newDoctor(cfg *config.Config, tools []string) (*procedure.StepProcedure, error) {
	d := &doctor{}
	proc, err := procedure.NewStepProcedure("doctor",
		procedure.WithSetUp(func(_ context.Context, p *procedure.StepProcedure) error {
			for _, tool := range tools {
				if err := p.AddStep(procedure.NewStep("which "+tool, d.lookPath(tool), procedure.Parallel(), procedure.NonBlocking())); err != nil {
					return err
				}
			}
			if cfg != nil {
				if err := p.AddStep(procedure.NewStep("project layout", d.checkLayout(cfg), procedure.Parallel(), procedure.NonBlocking())); err != nil {
					return err
				}
			}
			return p.AddStep(procedure.NewStep("summary", d.summary))
		}),
	)
	if err != nil {
		return nil, err
	}
	proc.SetStatus("checking environment")
	return proc, nil
}

func (d *doctor) lookPath(tool string) procedure.StepFunc {
	return func(context.Context) error {
		path, err := exec.LookPath(tool)
		if err != nil {
			d.record("missing %s", tool)
			return fmt.Errorf("doctor: %s not found on PATH", tool)
		}
		d.record("found %s at %s", tool, path)
		return nil
	}
}

func (d *doctor) checkLayout(cfg *config.Config) procedure.StepFunc {
	return func(context.Context) error {
		var missing []string
		for _, dir := range []string{cfg.ProcedureDir(), cfg.LogsDir()} {
			info, err := os.Stat(dir)
			if err != nil || !info.IsDir() {
				missing = append(missing, dir)
			}
		}
		if len(missing) > 0 {
			d.record("missing directories: %s", strings.Join(missing, ", "))
			return fmt.Errorf("doctor: missing directories %s", strings.Join(missing, ", "))
		}
		d.record("project layout ok")
		return nil
	}
}

func (d *doctor) summary(ctx context.Context) error {
	d.mu.Lock()
	findings := append([]string(nil), d.findings...)
	d.mu.Unlock()
	sort.Strings(findings)
	book := logbook.FromContext(ctx)
	for _, finding := range findings {
		book.Info("doctor: %s", finding)
	}
	return nil
}

func cleanLogsDefinition(cfg *config.Config) (procedure.Definition, error) {
	params, err := procedure.NewParamSet(procedure.Param{
		Name:        "truncate_journal",
		Type:        procedure.ParamBool,
		Value:       false,
		Description: "Also empty the active journal.",
	})
	if err != nil {
		return procedure.Definition{}, err
	}
	return procedure.Definition{
		Name:        "clean-logs",
		Description: "Remove old log files from the project state directory.",
		Kind:        procedure.KindBasic,
		Params:      params,
		Factory: func(values procedure.Values) (procedure.Procedure, error) {
			if cfg == nil {
				return nil, fmt.Errorf("clean-logs: no project loaded")
			}
			truncate := values.Bool("truncate_journal")
			return procedure.NewBasic("clean-logs", func(context.Context) (procedure.Result, error) {
				removed, err := cleanLogs(cfg.LogsDir(), cfg.JournalPath(), truncate)
				if err != nil {
					return procedure.Result{Status: procedure.StatusFailed}, err
				}
				return procedure.Result{Message: fmt.Sprintf("removed %d files", removed), Value: removed}, nil
			})
		},
	}, nil
}

func cleanLogs(dir, journal string, truncate bool) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("clean-logs: read %s: %w", dir, err)
	}
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if path == filepath.Clean(journal) {
			if truncate {
				if err := os.Truncate(path, 0); err != nil {
					return removed, fmt.Errorf("clean-logs: truncate %s: %w", path, err)
				}
			}
			continue
		}
		if err := os.Remove(path); err != nil {
			return removed, fmt.Errorf("clean-logs: remove %s: %w", path, err)
		}
		removed++
	}
	return removed, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
