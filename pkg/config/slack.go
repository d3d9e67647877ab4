package config

// SlackConfig holds the optional duty-channel integration settings. The
// integration is disabled unless both the token and channel resolve; the
// token itself stays in the environment, only its variable name is
// configurable.
type SlackConfig struct {
	// TokenEnv names the environment variable holding the bot token.
	TokenEnv string `yaml:"token_env"`

	// Channel is the duty channel ID that receives dispatches.
	Channel string `yaml:"channel"`

	// DashboardURL is the base URL linked from channel posts. Empty
	// omits the links.
	DashboardURL string `yaml:"dashboard_url"`
}

// DefaultSlackConfig returns the built-in defaults: integration off.
func DefaultSlackConfig() *SlackConfig {
	return &SlackConfig{
		TokenEnv: "SLACK_BOT_TOKEN",
	}
}

// LoadSlackConfigFromEnv loads duty-channel settings from environment
// variables.
func LoadSlackConfigFromEnv() *SlackConfig {
	cfg := DefaultSlackConfig()
	cfg.TokenEnv = getEnvOrDefault("SLACK_TOKEN_ENV", cfg.TokenEnv)
	cfg.Channel = getEnvOrDefault("SLACK_CHANNEL", cfg.Channel)
	cfg.DashboardURL = getEnvOrDefault("SLACK_DASHBOARD_URL", cfg.DashboardURL)
	return cfg
}
