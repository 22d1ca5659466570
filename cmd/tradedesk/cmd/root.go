package cmd

import (
	"fmt"

	"github.com/rustyeddy/tradedesk/config"
	"github.com/rustyeddy/tradedesk/internal/logging"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var rootCmd = &cobra.Command{
	Use:   "tradedesk",
	Short: "A risk-managed simulated trading desk",
	Long: `Tradedesk runs a simulated equity trading desk behind a risk policy.

It provides:
  - Order placement with pre-trade risk checks and simulated fills
  - Position tracking with automatic stop-loss and take-profit exits
  - A daily loss monitor with emergency stop
  - A REST API and websocket event stream for dashboards
  - Order and fill journals (SQLite, CSV, PostgreSQL)

Complete documentation is available at https://github.com/rustyeddy/tradedesk`,
	SilenceUsage: true,
}

var (
	cfgFile  string
	envFile  string
	logLevel string
)

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (YAML or JSON)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env", ".env", "dotenv file with TRADEDESK_* overrides")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log level (debug, info, warn, error)")
}

// loadConfig reads the config named by the persistent flags.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile, envFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	log, err := logging.New(cfg.Log.Level, cfg.Log.File)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	return log, nil
}
