package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/piscisaureus/istgt/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and validate the istgtd configuration file",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate <path>",
	Short: "Parse and validate a §6 configuration file without starting the daemon",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tree, err := config.ParseFile(args[0])
		if err != nil {
			return err
		}
		if err := config.Validate(tree); err != nil {
			return err
		}
		built, err := config.Build(tree)
		if err != nil {
			return err
		}
		fmt.Printf("OK: %d portal group(s), %d initiator group(s), %d target(s)\n",
			len(built.PortalGroups), len(tree.ByType(config.SectionInitiatorGroup)), built.Targets.Count())
		return nil
	},
}

func init() {
	configCmd.AddCommand(configValidateCmd)
}
