// Package cmd implements the alertrelay CLI using cobra.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/alertrelay/alertrelay/internal/config"
)

const version = "0.1.0"
const logo = "📣"

var cfgPath string

// rootCmd is the base command.
var rootCmd = &cobra.Command{
	Use:   "alertrelay",
	Short: logo + " alertrelay - notification dispatch gateway",
	Long:  logo + " alertrelay - queue alerts and deliver them to Telegram, Discord, cqhttp and Slack",
}

// Execute runs the root command and exits on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Version = version
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default ~/.alertrelay/config.json)")

	rootCmd.AddCommand(onboardCmd)
	rootCmd.AddCommand(gatewayCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(confirmCmd)
	rootCmd.AddCommand(scheduleCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(backendsCmd)
}

func configPath() string {
	if cfgPath != "" {
		return cfgPath
	}
	return config.ConfigPath()
}

// loadConfig loads and validates the config file.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s:\n%w", configPath(), err)
	}
	return cfg, nil
}
