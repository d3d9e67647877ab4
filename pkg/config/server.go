package config

import "time"

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// APIKey guards all /event routes via the X-API-Key header.
	// Empty disables authentication (development mode).
	APIKey string `yaml:"api_key"`

	// RateLimitRPS is the per-client request budget. Zero disables limiting.
	RateLimitRPS   float64 `yaml:"rate_limit_rps"`
	RateLimitBurst int     `yaml:"rate_limit_burst"`

	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DefaultServerConfig returns the built-in server defaults.
// WriteTimeout is zero because SSE streams are long-lived.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Host:            "0.0.0.0",
		Port:            8000,
		RateLimitRPS:    10,
		RateLimitBurst:  20,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    0,
		ShutdownTimeout: 15 * time.Second,
	}
}

// LoadServerConfigFromEnv loads server configuration from environment variables.
func LoadServerConfigFromEnv() *ServerConfig {
	cfg := DefaultServerConfig()
	cfg.Host = getEnvOrDefault("HOST", cfg.Host)
	cfg.Port = getEnvIntOrDefault("PORT", cfg.Port)
	cfg.APIKey = getEnvOrDefault("API_KEY", "")
	cfg.RateLimitRPS = getEnvFloatOrDefault("RATE_LIMIT_RPS", cfg.RateLimitRPS)
	cfg.RateLimitBurst = getEnvIntOrDefault("RATE_LIMIT_BURST", cfg.RateLimitBurst)
	cfg.ShutdownTimeout = getEnvDurationOrDefault("SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	return cfg
}
