package main

import (
	"fmt"
	"os"

	"github.com/piscisaureus/istgt/cmd/istgtd/commands"
)

// Build-time variables injected via ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.Version = version
	commands.Commit = commit
	commands.Date = date

	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "istgtd: %v\n", err)
		os.Exit(exitCode(err))
	}
}

// exitCode maps an error to the §6 CLI exit code contract: 1 for fatal init
// errors, 2 for runtime fatal errors. commands.Execute only returns runtime
// errors after Serve has started; anything returned before that point is an
// init error.
func exitCode(err error) int {
	if re, ok := err.(commands.RuntimeError); ok && re.Runtime {
		return 2
	}
	return 1
}
