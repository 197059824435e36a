package backend

import "time"

// TelegramConfig configures the Telegram bot backend.
type TelegramConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Token   string `json:"token" yaml:"token"`
	Proxy   string `json:"proxy,omitempty" yaml:"proxy,omitempty"`
	// APIEndpoint overrides the Bot API URL format, e.g. for a local Bot API server.
	APIEndpoint string      `json:"apiEndpoint,omitempty" yaml:"apiEndpoint,omitempty"`
	Logger      string      `json:"logger,omitempty" yaml:"logger,omitempty"`
	Timeout     Duration    `json:"timeout" yaml:"timeout"`
	RatePerSec  float64     `json:"ratePerSec" yaml:"ratePerSec"`
	Retry       RetryConfig `json:"retry" yaml:"retry"`
}

func DefaultTelegramConfig() TelegramConfig {
	return TelegramConfig{
		Timeout: defaultTimeout,
		Retry: RetryConfig{
			MaxAttempts:  5,
			Delay:        Duration(5 * time.Second),
			TextFallback: true,
		},
	}
}
