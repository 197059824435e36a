package backend

import "time"

// RetryConfig bounds how hard a backend tries before giving up on one send.
type RetryConfig struct {
	MaxAttempts int      `json:"maxAttempts" yaml:"maxAttempts"`
	Delay       Duration `json:"delay" yaml:"delay"`
	// TextFallback resends the text alone when the backend rejects a request
	// as malformed. Only Telegram honours it.
	TextFallback bool `json:"textFallback" yaml:"textFallback"`
}

// DefaultRetryConfig is a single attempt with no fallback.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxAttempts: 1}
}

const defaultTimeout = Duration(60 * time.Second)
