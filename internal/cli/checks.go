package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var checksCmd = &cobra.Command{
	Use:   "checks",
	Short: "List configured checks",
	Args:  cobra.NoArgs,
	RunE:  runChecksList,
}

func runChecksList(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd, true)
	if err != nil {
		return err
	}
	defer closeApp(a)

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tTITLE\tURI")
	for _, c := range a.Checks() {
		fmt.Fprintf(w, "%s\t%s\t%s\n", c.Name, c.Title, c.URI)
	}
	return w.Flush()
}
