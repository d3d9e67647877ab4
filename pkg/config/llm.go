package config

import "time"

// LLMConfig holds resolved LLM client configuration.
// The engine talks to an OpenAI-compatible chat-completions endpoint;
// Provider is informational (logging, health reporting).
type LLMConfig struct {
	Provider      string        `yaml:"provider"`       // e.g. "openai", "deepseek", "local"
	Model         string        `yaml:"model"`          // primary model name
	FallbackModel string        `yaml:"fallback_model"` // optional model used after persistent primary failure
	APIKey        string        `yaml:"api_key"`        // bearer token, may be empty for local endpoints
	BaseURL       string        `yaml:"base_url"`       // chat-completions base URL (without /chat/completions)
	Timeout       time.Duration `yaml:"timeout"`        // per-request wall clock budget
	Temperature   float64       `yaml:"temperature"`    // sampling temperature for reasoning calls
	MaxRetries    int           `yaml:"max_retries"`    // retry attempts on transient failures
}

// DefaultLLMConfig returns the built-in LLM defaults.
func DefaultLLMConfig() *LLMConfig {
	return &LLMConfig{
		Provider:    "openai",
		Model:       "gpt-4o-mini",
		BaseURL:     "https://api.openai.com/v1",
		Timeout:     60 * time.Second,
		Temperature: 0.1,
		MaxRetries:  3,
	}
}

// LoadLLMConfigFromEnv loads LLM configuration from environment variables,
// falling back to built-in defaults for anything unset.
func LoadLLMConfigFromEnv() *LLMConfig {
	cfg := DefaultLLMConfig()
	cfg.Provider = getEnvOrDefault("LLM_PROVIDER", cfg.Provider)
	cfg.Model = getEnvOrDefault("LLM_MODEL", cfg.Model)
	cfg.FallbackModel = getEnvOrDefault("LLM_FALLBACK_MODEL", "")
	cfg.APIKey = getEnvOrDefault("LLM_API_KEY", "")
	cfg.BaseURL = getEnvOrDefault("LLM_BASE_URL", cfg.BaseURL)
	cfg.Timeout = getEnvDurationOrDefault("LLM_TIMEOUT", cfg.Timeout)
	cfg.MaxRetries = getEnvIntOrDefault("LLM_MAX_RETRIES", cfg.MaxRetries)
	return cfg
}
