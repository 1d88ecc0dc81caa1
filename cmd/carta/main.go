// Command carta runs and administers carta instances.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/carta/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
