package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/kingrea/butler/internal/builtin"
	"github.com/kingrea/butler/internal/config"
	"github.com/kingrea/butler/internal/procedure"
	"github.com/kingrea/butler/plugins"
)

// env carries state shared by every command.
type env struct {
	projectDir string
}

// NewRootCmd assembles the butler command tree.
func NewRootCmd(version string) *cobra.Command {
	e := &env{}
	root := &cobra.Command{
		Use:           "butler",
		Short:         "butler runs named procedures defined in a project",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&e.projectDir, "project", "", "Project directory (default: search upward from the working directory)")

	root.AddCommand(
		newInitCmd(),
		newListCmd(e),
		newNewCmd(e),
		newRunCmd(e),
	)
	return root
}

// loadConfig resolves the project from --project or the working directory
// and reports filled-in defaults on errW.
func (e *env) loadConfig(errW io.Writer) (*config.Config, error) {
	start := e.projectDir
	if start == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("resolve working directory: %w", err)
		}
		start = wd
	}
	cfg, err := config.Load(start)
	if err != nil {
		return nil, err
	}
	for _, warning := range cfg.Warnings {
		fmt.Fprintln(errW, "warning:", warning)
	}
	return cfg, nil
}

// openRegistry builds a registry holding the builtin procedures plus every
// definition discovered under the configured procedure module.
func openRegistry(cfg *config.Config) (*procedure.Registry, error) {
	loader := plugins.NewLoader(cfg.ProjectDir)
	reg := procedure.NewRegistry(procedure.WithDiscoverer(loader))
	if err := builtin.Register(reg, cfg); err != nil {
		return nil, err
	}
	if err := reg.Discover(cfg.ProcedureModule()); err != nil {
		return nil, err
	}
	return reg, nil
}

func (e *env) open(errW io.Writer) (*config.Config, *procedure.Registry, error) {
	cfg, err := e.loadConfig(errW)
	if err != nil {
		return nil, nil, err
	}
	reg, err := openRegistry(cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, reg, nil
}
