package cli

import (
	"github.com/spf13/cobra"
)

var watchDryRun bool

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run checks now and then on the configured interval",
	Long: `Run every check immediately and then every scheduler.interval until
interrupted. A failing run is logged and the next tick proceeds normally.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().BoolVar(&watchDryRun, "dry-run", false, "evaluate without sending alerts or writing state")
}

func runWatch(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd, watchDryRun)
	if err != nil {
		return err
	}
	defer closeApp(a)

	return a.Watch(cmd.Context())
}
