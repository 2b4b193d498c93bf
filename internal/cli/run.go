package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"MDMWatch/internal/usecase"
)

var (
	runChecks []string
	runForce  bool
	runDryRun bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run every check once and exit",
	Long: `Fetch, classify and evaluate each configured check once.

Examples:
  mdmwatch run
  mdmwatch run --check stale-devices --check expiring-vpp-tokens
  mdmwatch run --force
  mdmwatch run --dry-run --log-level debug`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringSliceVar(&runChecks, "check", nil, "only run the named checks")
	runCmd.Flags().BoolVar(&runForce, "force", false, "send an alert for every check even if nothing changed")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "evaluate without sending alerts or writing state")
}

func runRun(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd, runDryRun)
	if err != nil {
		return err
	}
	defer closeApp(a)

	summary, runErr := a.Run(cmd.Context(), usecase.RunOptions{Only: runChecks, Force: runForce})
	printSummary(cmd, summary)
	if runErr != nil {
		return fmt.Errorf("run %s: %w", summary.RunID, runErr)
	}
	return nil
}

func printSummary(cmd *cobra.Command, summary usecase.Summary) {
	if len(summary.Checks) == 0 {
		return
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CHECK\tFETCHED\tMATCHED\tCOMPLETE\tREASON\tSENT\tERROR")
	for _, c := range summary.Checks {
		errText := "-"
		if c.Err != nil {
			errText = c.Err.Error()
		}
		fmt.Fprintf(w, "%s\t%d\t%d\t%t\t%s\t%t\t%s\n",
			c.Name, c.Fetched, c.Interesting, c.Complete, c.Reason, c.Sent, errText)
	}
	_ = w.Flush()
}
