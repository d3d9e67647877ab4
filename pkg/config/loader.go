package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// fileConfig mirrors the optional apron.yaml overrides file. Fields set
// here override environment-derived values.
type fileConfig struct {
	LLM      *LLMConfig      `yaml:"llm"`
	Server   *ServerConfig   `yaml:"server"`
	Session  *SessionConfig  `yaml:"session"`
	Engine   *EngineConfig   `yaml:"engine"`
	Queue    *QueueConfig    `yaml:"queue"`
	Slack    *SlackConfig    `yaml:"slack"`
	Playbook *PlaybookConfig `yaml:"playbook"`
}

// Initialize loads, validates, and returns ready-to-use configuration.
// This is the primary entry point for configuration loading.
//
// Steps performed:
//  1. Resolve built-in defaults overlaid with environment variables
//  2. Merge the optional overrides file on top (APRON_CONFIG_FILE)
//  3. Validate the resolved configuration
//  4. Return Config ready for use
func Initialize(_ context.Context) (*Config, error) {
	cfg := &Config{
		LLM:      LoadLLMConfigFromEnv(),
		Server:   LoadServerConfigFromEnv(),
		Session:  LoadSessionConfigFromEnv(),
		Engine:   LoadEngineConfigFromEnv(),
		Queue:    LoadQueueConfigFromEnv(),
		Slack:    LoadSlackConfigFromEnv(),
		Playbook: LoadPlaybookConfigFromEnv(),
	}

	if path := os.Getenv("APRON_CONFIG_FILE"); path != "" {
		if err := applyFileOverrides(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load configuration file: %w", err)
		}
	}

	if err := NewValidator(cfg).ValidateAll(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}

	stats := cfg.Stats()
	slog.Info("Configuration initialized successfully",
		"llm_provider", stats.LLMProvider,
		"llm_model", stats.LLMModel,
		"session_backend", stats.SessionBackend,
		"workers", stats.Workers,
		"recursion_limit", stats.RecursionLimit)

	return cfg, nil
}

// applyFileOverrides merges settings from a YAML overrides file into cfg.
// Environment variables inside the file are expanded before parsing.
func applyFileOverrides(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	data = []byte(os.ExpandEnv(string(data)))

	var overrides fileConfig
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	// Non-zero file values override env-derived values.
	if overrides.LLM != nil {
		if err := mergo.Merge(cfg.LLM, overrides.LLM, mergo.WithOverride); err != nil {
			return fmt.Errorf("merge llm config: %w", err)
		}
	}
	if overrides.Server != nil {
		if err := mergo.Merge(cfg.Server, overrides.Server, mergo.WithOverride); err != nil {
			return fmt.Errorf("merge server config: %w", err)
		}
	}
	if overrides.Session != nil {
		if err := mergo.Merge(cfg.Session, overrides.Session, mergo.WithOverride); err != nil {
			return fmt.Errorf("merge session config: %w", err)
		}
	}
	if overrides.Engine != nil {
		if err := mergo.Merge(cfg.Engine, overrides.Engine, mergo.WithOverride); err != nil {
			return fmt.Errorf("merge engine config: %w", err)
		}
	}
	if overrides.Queue != nil {
		if err := mergo.Merge(cfg.Queue, overrides.Queue, mergo.WithOverride); err != nil {
			return fmt.Errorf("merge queue config: %w", err)
		}
	}
	if overrides.Slack != nil {
		if err := mergo.Merge(cfg.Slack, overrides.Slack, mergo.WithOverride); err != nil {
			return fmt.Errorf("merge slack config: %w", err)
		}
	}
	if overrides.Playbook != nil {
		if err := mergo.Merge(cfg.Playbook, overrides.Playbook, mergo.WithOverride); err != nil {
			return fmt.Errorf("merge playbook config: %w", err)
		}
	}

	return nil
}
