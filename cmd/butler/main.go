// cmd/butler/main.go
//
// Entry point for the butler CLI. Run `butler init NAME` to create a project,
// then `butler run` inside it to pick and run a procedure.

package main

import (
	"fmt"
	"os"

	"github.com/kingrea/butler/internal/cli"
)

// version is set through ldflags at build time.
var version = "dev"

func main() {
	if err := cli.NewRootCmd(version).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
