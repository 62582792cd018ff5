// Command lakemap discovers storage trees and classifies datasets.
package main

import (
	"fmt"
	"os"

	"github.com/3leaps/lakemap/internal/cmd"
	"github.com/3leaps/lakemap/internal/observability"
)

// Set with -ldflags "-X main.version=... -X main.commit=... -X main.buildDate=...".
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	cmd.SetVersionInfo(version, commit, buildDate)
	err := cmd.Execute()
	observability.Sync()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(cmd.ExitCode(err))
	}
}
