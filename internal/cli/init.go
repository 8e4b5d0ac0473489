package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kingrea/butler/internal/config"
)

func newInitCmd() *cobra.Command {
	var parent string

	cmd := &cobra.Command{
		Use:   "init NAME",
		Short: "Create a new butler project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if parent == "" {
				wd, err := os.Getwd()
				if err != nil {
					return fmt.Errorf("resolve working directory: %w", err)
				}
				parent = wd
			}
			root, err := config.InitProject(parent, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created project %s at %s\n", args[0], root)
			return nil
		},
	}

	cmd.Flags().StringVar(&parent, "path", "", "Directory to create the project in (default: working directory)")
	return cmd
}
