package backend

// DiscordConfig configures delivery to Discord incoming webhooks.
// Targets are webhook URLs carried by each envelope.
type DiscordConfig struct {
	Enabled    bool        `json:"enabled" yaml:"enabled"`
	Logger     string      `json:"logger,omitempty" yaml:"logger,omitempty"`
	Timeout    Duration    `json:"timeout" yaml:"timeout"`
	RatePerSec float64     `json:"ratePerSec" yaml:"ratePerSec"`
	Retry      RetryConfig `json:"retry" yaml:"retry"`
}

func DefaultDiscordConfig() DiscordConfig {
	return DiscordConfig{Timeout: defaultTimeout, Retry: DefaultRetryConfig()}
}
