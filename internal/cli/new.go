package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kingrea/butler/internal/procedure"
	"github.com/kingrea/butler/plugins"
)

func newNewCmd(e *env) *cobra.Command {
	var kind string
	var format string

	cmd := &cobra.Command{
		Use:   "new NAME",
		Short: "Scaffold a procedure definition in the project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := e.loadConfig(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			path, err := plugins.CreateProcedure(cfg.ProcedureDir(), args[0], procedure.Kind(kind), format)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created %s\n", path)
			return nil
		},
	}

	cmd.Flags().StringVar(&kind, "kind", string(procedure.KindStep), "Procedure kind (basic, step)")
	cmd.Flags().StringVar(&format, "format", plugins.FormatYAML, "Definition format (yaml, hcl, go)")
	return cmd
}
