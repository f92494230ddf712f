package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print istgtd's version, commit and build date",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("istgtd %s (commit %s, built %s)\n", Version, Commit, Date)
		return nil
	},
}
