package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/okian/facegate/internal/config"
	"github.com/okian/facegate/pkg/logger"
	"github.com/okian/facegate/pkg/metrics"
)

// cfg is loaded once by the root command before any subcommand runs.
var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "facegate",
	Short: "Face-recognition attendance for an entry and an exit camera",
	Long: `facegate watches an entry and an exit camera, matches faces against an
enrolled gallery and keeps one attendance record per person per day.

Configuration comes from defaults, an optional YAML file (FACEGATE_CONFIG)
and FACEGATE_* environment variables. A .env file is read when present.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(serveCmd, enrollCmd, reportCmd, galleryCmd)
}

// setup loads .env, the layered config and the logger.
func setup(cmd *cobra.Command, _ []string) error {
	// .env is optional
	_ = godotenv.Load()

	loaded, err := config.Load(cmd.Context())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg = loaded

	// Only serve logs to stdout; the other commands print results there.
	w := cmd.ErrOrStderr()
	if cmd == serveCmd {
		w = cmd.OutOrStdout()
	}
	if err := logger.Init(logger.WithFormat(cfg.LogFormat), logger.WithWriter(w)); err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		logger.Get().Warn(context.Background(), "invalid log_level; falling back to info",
			logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}
	metrics.Configure(
		metrics.WithMetricsEnabled(cfg.MetricsEnabled),
		metrics.WithRefreshInterval(cfg.MetricsRefresh),
	)
	return nil
}
