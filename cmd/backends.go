package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alertrelay/alertrelay/internal/config"
)

var backendsCmd = &cobra.Command{
	Use:   "backends",
	Short: "Show backend configuration",
	RunE:  runBackends,
}

func runBackends(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath())
	if err != nil {
		return err
	}
	b := cfg.Backends

	fmt.Println("Backend Status")
	fmt.Printf("%-10s %-8s %-10s %-10s %s\n", "Backend", "Enabled", "Attempts", "Delay", "Details")
	fmt.Println(repeatStr("-", 64))

	details := "token: " + tokenHint(b.Telegram.Token)
	if b.Telegram.Proxy != "" {
		details += ", proxy"
	}
	fmt.Printf("%-10s %-8s %-10d %-10s %s\n", "telegram", yesNo(b.Telegram.Enabled),
		b.Telegram.Retry.MaxAttempts, b.Telegram.Retry.Delay, details)
	fmt.Printf("%-10s %-8s %-10d %-10s %s\n", "discord", yesNo(b.Discord.Enabled),
		b.Discord.Retry.MaxAttempts, b.Discord.Retry.Delay, "timeout: "+b.Discord.Timeout.String())
	fmt.Printf("%-10s %-8s %-10d %-10s %s\n", "cqhttp", yesNo(b.Cqhttp.Enabled),
		b.Cqhttp.Retry.MaxAttempts, b.Cqhttp.Retry.Delay, "token: "+tokenHint(b.Cqhttp.Token))
	fmt.Printf("%-10s %-8s %-10d %-10s %s\n", "slack", yesNo(b.Slack.Enabled),
		b.Slack.Retry.MaxAttempts, b.Slack.Retry.Delay, "timeout: "+b.Slack.Timeout.String())
	return nil
}

func yesNo(b bool) string {
	if b {
		return "✓"
	}
	return "✗"
}

func tokenHint(token string) string {
	if token == "" {
		return "(not set)"
	}
	if len(token) > 10 {
		return token[:10] + "..."
	}
	return token
}

func repeatStr(s string, n int) string {
	return strings.Repeat(s, n)
}

// describe renders the enabled/disabled state of the optional services.
func describe(cfg *config.Config) []string {
	lines := []string{
		fmt.Sprintf("Remote:    %s", yesNo(cfg.Remote.Enabled)),
		fmt.Sprintf("Heartbeat: %s %s", yesNo(cfg.Heartbeat.Enabled), cfg.Heartbeat.Schedule),
		fmt.Sprintf("Metrics:   %s %s", yesNo(cfg.Metrics.Enabled), cfg.Metrics.Addr()),
	}
	if cfg.Metrics.Enabled && cfg.Metrics.Notify {
		lines = append(lines, "Notify:    ✓ POST /v1/notify")
	}
	return lines
}
