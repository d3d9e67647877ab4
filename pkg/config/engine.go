package config

import "time"

// EngineConfig holds agent-loop and enrichment knobs.
type EngineConfig struct {
	// RecursionLimit caps node executions per user turn. When exceeded the
	// turn ends with awaiting_user=true and an explanatory final answer.
	RecursionLimit int `yaml:"recursion_limit"`

	// MaxEnrichmentWorkers bounds the parallel auto-enrichment fan-out.
	MaxEnrichmentWorkers int `yaml:"max_enrichment_workers"`

	// EnrichmentTimeout is the wall clock budget per enrichment lookup.
	EnrichmentTimeout time.Duration `yaml:"enrichment_timeout"`

	// NormalizeTimeout is the budget for the LLM deep-normalisation pass.
	NormalizeTimeout time.Duration `yaml:"normalize_timeout"`

	// ScenarioDir overrides the embedded scenario descriptors when set.
	ScenarioDir string `yaml:"scenario_dir"`

	// TopologyFile overrides the embedded airport topology when set.
	TopologyFile string `yaml:"topology_file"`

	// RefdataDir overrides the embedded reference datasets (flight plan,
	// aircraft, weather) when set.
	RefdataDir string `yaml:"refdata_dir"`
}

// DefaultEngineConfig returns the built-in engine defaults.
func DefaultEngineConfig() *EngineConfig {
	return &EngineConfig{
		RecursionLimit:       50,
		MaxEnrichmentWorkers: 3,
		EnrichmentTimeout:    10 * time.Second,
		NormalizeTimeout:     5 * time.Second,
	}
}

// LoadEngineConfigFromEnv loads engine configuration from environment variables.
func LoadEngineConfigFromEnv() *EngineConfig {
	cfg := DefaultEngineConfig()
	cfg.RecursionLimit = getEnvIntOrDefault("RECURSION_LIMIT", cfg.RecursionLimit)
	cfg.MaxEnrichmentWorkers = getEnvIntOrDefault("MAX_ENRICHMENT_WORKERS", cfg.MaxEnrichmentWorkers)
	cfg.EnrichmentTimeout = getEnvDurationOrDefault("ENRICHMENT_TIMEOUT", cfg.EnrichmentTimeout)
	cfg.NormalizeTimeout = getEnvDurationOrDefault("NORMALIZE_TIMEOUT", cfg.NormalizeTimeout)
	cfg.ScenarioDir = getEnvOrDefault("SCENARIO_DIR", "")
	cfg.TopologyFile = getEnvOrDefault("TOPOLOGY_FILE", "")
	cfg.RefdataDir = getEnvOrDefault("REFDATA_DIR", "")
	return cfg
}
