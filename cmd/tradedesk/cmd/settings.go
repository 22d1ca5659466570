package cmd

import (
	"errors"
	"fmt"

	"github.com/rustyeddy/tradedesk/risk"
	"github.com/rustyeddy/tradedesk/store"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Inspect the persisted risk settings",
	Long: `Read or reset the risk settings kept in the configured store.

The store wins over the risk section of the config file: the config only
seeds the store the first time the desk starts.

Examples:
  tradedesk settings show
  tradedesk settings reset`,
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective risk settings",
	Args:  cobra.NoArgs,
	RunE:  runSettingsShow,
}

var settingsResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Overwrite the stored settings with the config file's",
	Args:  cobra.NoArgs,
	RunE:  runSettingsReset,
}

func init() {
	rootCmd.AddCommand(settingsCmd)
	settingsCmd.AddCommand(settingsShowCmd)
	settingsCmd.AddCommand(settingsResetCmd)
}

func runSettingsShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := store.Open(cfg.Store.DSN)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	s, err := risk.LoadOrDefault(cmd.Context(), st, cfg.Risk)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	daily, err := st.LoadDaily(cmd.Context())
	if err != nil && !errors.Is(err, risk.ErrNotFound) {
		return fmt.Errorf("load daily state: %w", err)
	}

	out, err := yaml.Marshal(struct {
		Settings risk.Settings    `yaml:"settings"`
		Daily    *risk.DailyState `yaml:"daily,omitempty"`
	}{Settings: s, Daily: dailyOrNil(daily, err)})
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "# store: %s\n%s", cfg.Store.DSN, out)
	return nil
}

func dailyOrNil(d risk.DailyState, err error) *risk.DailyState {
	if err != nil {
		return nil
	}
	return &d
}

func runSettingsReset(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := store.Open(cfg.Store.DSN)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	if err := st.SaveSettings(cmd.Context(), cfg.Risk); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Risk settings reset: %s\n", cfg.Risk)
	return nil
}
