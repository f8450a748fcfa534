// Command jagtrack tracks joint activities reported by multiple observers.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/jagtrack/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		// Commands print their own results; errors that reach here are
		// flag and argument errors or failures with no formatted output.
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
