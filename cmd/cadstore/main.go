// Command cadstore serves a shared CAD object database and runs scenario
// files against it.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/cadstore/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
