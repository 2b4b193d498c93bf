package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfigYAML = `
logging:
  level: error
state:
  backend: memory
checks:
  - name: stale-devices
    title: Stale devices
    uri: /deviceManagement/managedDevices
    classifier: stale
    time_field: lastSyncDateTime
    threshold_hours: 720
`

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "mdmwatch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testConfigYAML), 0o600))

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(append([]string{"--config", path}, args...))
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	err := Execute(context.Background())
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "mdmwatch dev")
}

func TestChecksCommandListsConfiguredChecks(t *testing.T) {
	out, err := execute(t, "checks")
	require.NoError(t, err)
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "stale-devices")
	assert.Contains(t, out, "/deviceManagement/managedDevices")
	assert.NotContains(t, out, "expiring-vpp-tokens")
}

func TestStateShowPrintsEmptyState(t *testing.T) {
	out, err := execute(t, "state", "show", "stale-devices")
	require.NoError(t, err)

	var view stateView
	require.NoError(t, json.Unmarshal([]byte(out), &view))
	assert.Equal(t, "stale-devices", view.Check)
	assert.False(t, view.Recorded)
	assert.Empty(t, view.NotifiedIDs)
	assert.Empty(t, view.LastNotification)
}

func TestStateResetUnknownCheckFails(t *testing.T) {
	_, err := execute(t, "state", "reset", "nope")
	assert.ErrorContains(t, err, "unknown check")
}
