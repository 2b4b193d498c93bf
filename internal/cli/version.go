package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"MDMWatch/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "mdmwatch "+version.Full())
	},
}
