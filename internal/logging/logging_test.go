package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSetupFansOutToFile(t *testing.T) {
	var console bytes.Buffer
	path := filepath.Join(t.TempDir(), "mdmwatch.log")

	logger, cleanup, err := Setup(Options{Level: "info", Format: "text", File: path, Console: &console})
	if err != nil {
		t.Fatalf("Setup error: %v", err)
	}
	logger.Info("run finished", "run_id", "r-1")
	logger.Debug("hidden")
	if err := cleanup(); err != nil {
		t.Fatalf("cleanup error: %v", err)
	}

	if !strings.Contains(console.String(), "msg=\"run finished\"") || strings.Contains(console.String(), "hidden") {
		t.Fatalf("unexpected console output: %q", console.String())
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var record map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(raw), &record); err != nil {
		t.Fatalf("file output is not JSON: %v (%q)", err, raw)
	}
	if record["run_id"] != "r-1" {
		t.Fatalf("unexpected record: %v", record)
	}
}

func TestSetupAutoFormatUsesJSONWhenNotTerminal(t *testing.T) {
	var console bytes.Buffer
	logger, _, err := Setup(Options{Console: &console})
	if err != nil {
		t.Fatalf("Setup error: %v", err)
	}
	logger.Warn("throttled")

	if !json.Valid(bytes.TrimSpace(console.Bytes())) {
		t.Fatalf("expected JSON output, got %q", console.String())
	}
}

func TestSetupBadFileFallsBackToConsole(t *testing.T) {
	var console bytes.Buffer
	logger, cleanup, err := Setup(Options{Format: "text", File: filepath.Join(t.TempDir(), "missing", "x.log"), Console: &console})
	if err == nil {
		t.Fatalf("expected error for unwritable log file")
	}
	logger.Info("still logging")
	_ = cleanup()
	if !strings.Contains(console.String(), "still logging") {
		t.Fatalf("console logger not usable: %q", console.String())
	}
}

func TestLevelFromString(t *testing.T) {
	cases := map[string]slog.Level{
		"error":   slog.LevelError,
		"WARNING": slog.LevelWarn,
		" debug ": slog.LevelDebug,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := levelFromString(in); got != want {
			t.Errorf("levelFromString(%q) = %v, want %v", in, got, want)
		}
	}
}
