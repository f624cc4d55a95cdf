package main

import (
	"fmt"
	"os"

	"github.com/open-verix/timeproof/internal/cli"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

func main() {
	cli.SetVersion(version, commit, buildTime)

	reg, err := newRegistry()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.ExitFatal)
	}

	if err := cli.Execute(reg); err != nil {
		os.Exit(cli.ExitCode(err))
	}
}
