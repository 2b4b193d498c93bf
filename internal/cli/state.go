package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"MDMWatch/internal/domain"
)

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Inspect or reset per-check notification state",
	Long: `Inspect or reset what each check last notified.

Examples:
  mdmwatch state show stale-devices
  mdmwatch state reset stale-devices`,
}

var stateShowCmd = &cobra.Command{
	Use:   "show <check>",
	Short: "Print the stored state as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runStateShow,
}

var stateResetCmd = &cobra.Command{
	Use:   "reset <check>",
	Short: "Forget notified entries so the next run alerts again",
	Args:  cobra.ExactArgs(1),
	RunE:  runStateReset,
}

func init() {
	stateCmd.AddCommand(stateShowCmd)
	stateCmd.AddCommand(stateResetCmd)
}

type stateView struct {
	Check            string   `json:"check"`
	Recorded         bool     `json:"recorded"`
	NotifiedIDs      []string `json:"notifiedIds"`
	LastRun          string   `json:"lastRun,omitempty"`
	LastNotification string   `json:"lastNotification,omitempty"`
}

func runStateShow(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd, true)
	if err != nil {
		return err
	}
	defer closeApp(a)

	st, err := a.State(cmd.Context(), args[0])
	if err != nil && !errors.Is(err, domain.ErrStateNotFound) {
		return fmt.Errorf("read state: %w", err)
	}

	view := stateView{Check: args[0], Recorded: !st.Empty(), NotifiedIDs: st.NotifiedIDs}
	if view.NotifiedIDs == nil {
		view.NotifiedIDs = []string{}
	}
	if !st.LastRun.IsZero() {
		view.LastRun = st.LastRun.Format(time.RFC3339)
	}
	if st.LastNotification != nil {
		view.LastNotification = st.LastNotification.Format(time.RFC3339)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(view)
}

func runStateReset(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd, true)
	if err != nil {
		return err
	}
	defer closeApp(a)

	if err := a.ResetState(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("reset state: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "state for %s reset\n", args[0])
	return nil
}
