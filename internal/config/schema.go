// Package config defines the configuration schema for alertrelay.
//
// Files are JSON by default; a .yaml or .yml extension selects YAML. Keys use
// camelCase in both formats.
package config

import (
	"net"
	"path/filepath"
	"strconv"
	"time"

	"github.com/alertrelay/alertrelay/internal/config/backend"
)

// Duration is re-exported so callers need not import the backend package.
type Duration = backend.Duration

// LogConfig selects the zap logger level and encoder.
type LogConfig struct {
	Level  string `json:"level" yaml:"level"`   // debug|info|warn|error
	Format string `json:"format" yaml:"format"` // console|json
}

func defaultLogConfig() LogConfig {
	return LogConfig{Level: "info", Format: "console"}
}

// RemoteConfig configures the Telegram confirm protocol and the EXIT listener.
type RemoteConfig struct {
	Enabled         bool     `json:"enabled" yaml:"enabled"`
	ChatID          int64    `json:"chatId" yaml:"chatId"`
	ConfirmInterval Duration `json:"confirmInterval" yaml:"confirmInterval"`
	ListenInterval  Duration `json:"listenInterval" yaml:"listenInterval"`
	ExitDelay       Duration `json:"exitDelay" yaml:"exitDelay"`
}

func defaultRemoteConfig() RemoteConfig {
	return RemoteConfig{
		ConfirmInterval: Duration(10 * time.Second),
		ListenInterval:  Duration(20 * time.Second),
		ExitDelay:       Duration(5 * time.Second),
	}
}

// HeartbeatConfig schedules a periodic backend status report.
type HeartbeatConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
	// Schedule is a standard five-field cron spec or a descriptor like "@every 1h".
	Schedule string   `json:"schedule" yaml:"schedule"`
	Backend  string   `json:"backend" yaml:"backend"`
	Targets  []string `json:"targets" yaml:"targets"`
}

func defaultHeartbeatConfig() HeartbeatConfig {
	return HeartbeatConfig{Schedule: "@every 30m", Backend: "telegram", Targets: []string{}}
}

// ScheduleConfig controls the persisted scheduled-notification jobs.
type ScheduleConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Store   string `json:"store,omitempty" yaml:"store,omitempty"`
}

func defaultScheduleConfig() ScheduleConfig {
	return ScheduleConfig{Enabled: true}
}

// StorePath returns the job store location, ~/.alertrelay/cron/jobs.json
// unless overridden.
func (s ScheduleConfig) StorePath() string {
	if s.Store != "" {
		return s.Store
	}
	return filepath.Join(DataDir(), "cron", "jobs.json")
}

// MetricsConfig holds the HTTP listener serving /metrics, /healthz and,
// when Notify is set, the POST /v1/notify ingest endpoint.
type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Host    string `json:"host" yaml:"host"`
	Port    int    `json:"port" yaml:"port"`
	Notify  bool   `json:"notify" yaml:"notify"`
	// NotifyToken, if set, must be presented as a bearer token on /v1/notify.
	NotifyToken string `json:"notifyToken,omitempty" yaml:"notifyToken,omitempty"`
}

func defaultMetricsConfig() MetricsConfig {
	return MetricsConfig{Host: "0.0.0.0", Port: 18790}
}

// Addr returns host:port for net.Listen.
func (m MetricsConfig) Addr() string {
	return net.JoinHostPort(m.Host, strconv.Itoa(m.Port))
}

// Config is the root configuration object, loaded from ~/.alertrelay/config.json.
type Config struct {
	Log             LogConfig              `json:"log" yaml:"log"`
	Backends        backend.BackendsConfig `json:"backends" yaml:"backends"`
	Remote          RemoteConfig           `json:"remote" yaml:"remote"`
	Heartbeat       HeartbeatConfig        `json:"heartbeat" yaml:"heartbeat"`
	Schedules       ScheduleConfig         `json:"schedules" yaml:"schedules"`
	Metrics         MetricsConfig          `json:"metrics" yaml:"metrics"`
	ShutdownTimeout Duration               `json:"shutdownTimeout" yaml:"shutdownTimeout"`
}

// DefaultConfig returns a Config populated with all default values.
func DefaultConfig() Config {
	return Config{
		Log:             defaultLogConfig(),
		Backends:        backend.DefaultBackendsConfig(),
		Remote:          defaultRemoteConfig(),
		Heartbeat:       defaultHeartbeatConfig(),
		Schedules:       defaultScheduleConfig(),
		Metrics:         defaultMetricsConfig(),
		ShutdownTimeout: Duration(30 * time.Second),
	}
}
