package config

import (
	"errors"
	"fmt"

	"github.com/robfig/cron/v3"

	"github.com/alertrelay/alertrelay/internal/bus"
	"github.com/alertrelay/alertrelay/internal/config/backend"
)

// Validate reports every malformed value in cfg at once.
func (c *Config) Validate() error {
	var errs []error

	switch c.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level: unknown level %q", c.Log.Level))
	}
	switch c.Log.Format {
	case "", "console", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format: unknown format %q", c.Log.Format))
	}

	b := c.Backends
	errs = append(errs,
		validateBackend("telegram", b.Telegram.Retry, b.Telegram.Timeout, b.Telegram.RatePerSec),
		validateBackend("discord", b.Discord.Retry, b.Discord.Timeout, b.Discord.RatePerSec),
		validateBackend("cqhttp", b.Cqhttp.Retry, b.Cqhttp.Timeout, b.Cqhttp.RatePerSec),
		validateBackend("slack", b.Slack.Retry, b.Slack.Timeout, b.Slack.RatePerSec),
	)
	if b.Telegram.Enabled && b.Telegram.Token == "" {
		errs = append(errs, errors.New("backends.telegram: token is required when enabled"))
	}

	if c.Remote.Enabled {
		if !b.Telegram.Enabled {
			errs = append(errs, errors.New("remote: requires backends.telegram.enabled"))
		}
		if c.Remote.ChatID == 0 {
			errs = append(errs, errors.New("remote.chatId: required when remote is enabled"))
		}
	}

	if c.Heartbeat.Enabled {
		if _, err := cron.ParseStandard(c.Heartbeat.Schedule); err != nil {
			errs = append(errs, fmt.Errorf("heartbeat.schedule: %w", err))
		}
		if _, err := bus.ParseBackend(c.Heartbeat.Backend); err != nil {
			errs = append(errs, fmt.Errorf("heartbeat.backend: %w", err))
		}
		if len(c.Heartbeat.Targets) == 0 {
			errs = append(errs, errors.New("heartbeat.targets: at least one target is required"))
		}
	}

	if c.Metrics.Enabled && (c.Metrics.Port <= 0 || c.Metrics.Port > 65535) {
		errs = append(errs, fmt.Errorf("metrics.port: %d out of range", c.Metrics.Port))
	}
	if c.ShutdownTimeout < 0 {
		errs = append(errs, errors.New("shutdownTimeout: must not be negative"))
	}
	return errors.Join(errs...)
}

func validateBackend(name string, r backend.RetryConfig, timeout backend.Duration, rate float64) error {
	var errs []error
	if r.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("backends.%s.retry.maxAttempts: must be at least 1, got %d", name, r.MaxAttempts))
	}
	if r.Delay < 0 {
		errs = append(errs, fmt.Errorf("backends.%s.retry.delay: must not be negative", name))
	}
	if timeout < 0 {
		errs = append(errs, fmt.Errorf("backends.%s.timeout: must not be negative", name))
	}
	if rate < 0 {
		errs = append(errs, fmt.Errorf("backends.%s.ratePerSec: must not be negative", name))
	}
	return errors.Join(errs...)
}
