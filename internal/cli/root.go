// Package cli provides the command-line interface for mdmwatch.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"MDMWatch/internal/app"
	"MDMWatch/internal/config"
	"MDMWatch/internal/logging"
	"MDMWatch/internal/version"
)

var (
	// Global flags
	configPath string
	logLevel   string

	// Loaded in PersistentPreRunE
	cfg      config.Config
	logger   *slog.Logger
	closeLog func() error
)

var rootCmd = &cobra.Command{
	Use:   "mdmwatch",
	Short: "Alert on device management collections that need attention",
	Long: `mdmwatch polls device management collections (devices, tokens,
approval requests), classifies the entries that need attention and sends an
alert only when something changed since the last notification.

State is kept per check so repeated runs stay quiet until a new entry
appears, an entry ages past its escalation threshold or a token is about
to expire.`,
	Version:       version.Full(),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if logLevel != "" {
			cfg.Logging.Level = logLevel
		}

		var logErr error
		logger, closeLog, logErr = logging.Setup(logging.Options{
			Level:   cfg.Logging.Level,
			Format:  cfg.Logging.Format,
			File:    cfg.Logging.File,
			Console: cmd.ErrOrStderr(),
		})
		if logErr != nil {
			logger.Warn("log file unavailable, logging to console only", "error", logErr)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if closeLog != nil {
			if err := closeLog(); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to close log file: %v\n", err)
			}
			closeLog = nil
		}
	},
}

// Execute runs the root command; ctx is cancelled on shutdown signals.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.Path(), "YAML or TOML config file (env MDMWATCH_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override logging.level (debug, info, warn, error)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(checksCmd)
	rootCmd.AddCommand(stateCmd)
	rootCmd.AddCommand(versionCmd)
}

// openApp wires the application for one command invocation.
func openApp(cmd *cobra.Command, dryRun bool) (*app.Application, error) {
	return app.New(cmd.Context(), cfg, logger, app.Options{DryRun: dryRun})
}

func closeApp(a *app.Application) {
	if err := a.Close(); err != nil {
		logger.Warn("close application", "error", err)
	}
}
