package backend

// SlackConfig configures delivery to Slack incoming webhooks.
type SlackConfig struct {
	Enabled    bool        `json:"enabled" yaml:"enabled"`
	Logger     string      `json:"logger,omitempty" yaml:"logger,omitempty"`
	Timeout    Duration    `json:"timeout" yaml:"timeout"`
	RatePerSec float64     `json:"ratePerSec" yaml:"ratePerSec"`
	Retry      RetryConfig `json:"retry" yaml:"retry"`
}

func DefaultSlackConfig() SlackConfig {
	return SlackConfig{Timeout: defaultTimeout, Retry: DefaultRetryConfig()}
}
