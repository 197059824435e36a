package backend

// CqhttpConfig configures delivery to cqhttp (OneBot) HTTP gateways.
type CqhttpConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
	// Token is sent as a bearer token when non-empty.
	Token      string      `json:"token,omitempty" yaml:"token,omitempty"`
	Logger     string      `json:"logger,omitempty" yaml:"logger,omitempty"`
	Timeout    Duration    `json:"timeout" yaml:"timeout"`
	RatePerSec float64     `json:"ratePerSec" yaml:"ratePerSec"`
	Retry      RetryConfig `json:"retry" yaml:"retry"`
}

func DefaultCqhttpConfig() CqhttpConfig {
	return CqhttpConfig{Timeout: defaultTimeout, Retry: DefaultRetryConfig()}
}
