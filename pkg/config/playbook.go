package config

import (
	"strings"
	"time"
)

// PlaybookConfig locates the published disposal-plan documents (处置预案).
// Sources maps a scenario ID to its document URL; RepoURL optionally
// names a GitHub directory whose markdown files are listed over the API.
type PlaybookConfig struct {
	Sources        map[string]string `yaml:"sources"`
	RepoURL        string            `yaml:"repo_url"`
	AllowedDomains []string          `yaml:"allowed_domains"` // empty = any http(s) host
	CacheTTL       time.Duration     `yaml:"cache_ttl"`
	TokenEnv       string            `yaml:"token_env"` // env var holding the repository token
}

// DefaultPlaybookConfig returns the built-in playbook defaults. No
// sources are configured by default; the agent runs without plan
// documents until they are.
func DefaultPlaybookConfig() *PlaybookConfig {
	return &PlaybookConfig{
		AllowedDomains: []string{"github.com", "raw.githubusercontent.com"},
		CacheTTL:       5 * time.Minute,
		TokenEnv:       "GITHUB_TOKEN",
	}
}

// LoadPlaybookConfigFromEnv loads playbook configuration from environment
// variables. Per-scenario sources are file-only; the environment carries
// the repository and fetch policy.
func LoadPlaybookConfigFromEnv() *PlaybookConfig {
	cfg := DefaultPlaybookConfig()
	cfg.RepoURL = getEnvOrDefault("PLAYBOOK_REPO_URL", cfg.RepoURL)
	if domains := getEnvOrDefault("PLAYBOOK_ALLOWED_DOMAINS", ""); domains != "" {
		cfg.AllowedDomains = splitAndTrim(domains)
	}
	cfg.CacheTTL = getEnvDurationOrDefault("PLAYBOOK_CACHE_TTL", cfg.CacheTTL)
	cfg.TokenEnv = getEnvOrDefault("PLAYBOOK_TOKEN_ENV", cfg.TokenEnv)
	return cfg
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
