package cli

import (
	"github.com/spf13/cobra"

	"github.com/kingrea/butler/internal/procedure"
)

type listEntry struct {
	Name        string            `json:"name"`
	Kind        procedure.Kind    `json:"kind"`
	Source      string            `json:"source"`
	Description string            `json:"description,omitempty"`
	Params      []procedure.Param `json:"params,omitempty"`
}

func newListCmd(e *env) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List available procedures",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, reg, err := e.open(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			out := newOutput(jsonOutput, cmd.OutOrStdout())

			defs := reg.Definitions()
			entries := make([]listEntry, len(defs))
			rows := make([][]string, len(defs))
			for i, def := range defs {
				entries[i] = listEntry{
					Name:        def.Name,
					Kind:        def.Kind,
					Source:      def.Source,
					Description: def.Description,
					Params:      def.Params.Params(),
				}
				rows[i] = []string{def.Name, string(def.Kind), def.Source, def.Description}
			}
			return out.Print([]string{"NAME", "KIND", "SOURCE", "DESCRIPTION"}, rows, entries)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	return cmd
}
