package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the configuration without starting the service",
	RunE: func(cmd *cobra.Command, args []string) error {
		// Loading already validates; reaching this point means the config is good.
		a := getApp()
		mode := "read-write"
		if a.Config.ReadOnly() {
			mode = "read-only"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "configuration ok (%s mode)\n", mode)
		return nil
	},
}
