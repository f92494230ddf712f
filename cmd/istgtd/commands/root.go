// Package commands is istgtd's CLI surface, built on spf13/cobra the way
// istgtd's own layout: a root command with persistent
// flags, subcommands for serve/version/config, package-level Version/Commit/
// Date set by main() from ldflags.
package commands

import (
	"github.com/spf13/cobra"
)

// Version, Commit and Date are set by main() from build-time ldflags.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// RuntimeError distinguishes a failure that occurred after the daemon
// started serving (exit code 2, §6) from an init-time failure (exit code 1).
type RuntimeError struct {
	Runtime bool
	Err     error
}

func (e RuntimeError) Error() string { return e.Err.Error() }
func (e RuntimeError) Unwrap() error { return e.Err }

var rootCmd = &cobra.Command{
	Use:   "istgtd",
	Short: "istgtd is an iSCSI target daemon",
	Long: `istgtd exposes block storage as iSCSI logical units to remote
initiators over TCP: initiators log in to named targets, negotiate
operational parameters, and issue SCSI commands serviced against a
backing file or block device.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(configCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
