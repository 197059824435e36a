package backend

type BackendsConfig struct {
	Telegram TelegramConfig `json:"telegram" yaml:"telegram"`
	Discord  DiscordConfig  `json:"discord" yaml:"discord"`
	Cqhttp   CqhttpConfig   `json:"cqhttp" yaml:"cqhttp"`
	Slack    SlackConfig    `json:"slack" yaml:"slack"`
}

func DefaultBackendsConfig() BackendsConfig {
	return BackendsConfig{
		Telegram: DefaultTelegramConfig(),
		Discord:  DefaultDiscordConfig(),
		Cqhttp:   DefaultCqhttpConfig(),
		Slack:    DefaultSlackConfig(),
	}
}
