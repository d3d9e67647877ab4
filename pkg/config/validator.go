package config

import "fmt"

// ConfigValidator validates resolved configuration with clear error messages
type ConfigValidator struct {
	cfg *Config
}

// NewValidator creates a validator for the given configuration
func NewValidator(cfg *Config) *ConfigValidator {
	return &ConfigValidator{cfg: cfg}
}

// ValidateAll performs comprehensive validation (fail-fast - stops at first error)
func (v *ConfigValidator) ValidateAll() error {
	if err := v.validateLLM(); err != nil {
		return fmt.Errorf("LLM validation failed: %w", err)
	}

	if err := v.validateServer(); err != nil {
		return fmt.Errorf("server validation failed: %w", err)
	}

	if err := v.validateSession(); err != nil {
		return fmt.Errorf("session store validation failed: %w", err)
	}

	if err := v.validateEngine(); err != nil {
		return fmt.Errorf("engine validation failed: %w", err)
	}

	if err := v.validateQueue(); err != nil {
		return fmt.Errorf("queue validation failed: %w", err)
	}

	if err := v.validateSlack(); err != nil {
		return fmt.Errorf("slack validation failed: %w", err)
	}

	if err := v.validatePlaybook(); err != nil {
		return fmt.Errorf("playbook validation failed: %w", err)
	}

	return nil
}

func (v *ConfigValidator) validateLLM() error {
	llm := v.cfg.LLM
	if llm == nil {
		return NewValidationError("llm", "", ErrMissingRequiredField)
	}
	if llm.Model == "" {
		return NewValidationError("llm", "model", ErrMissingRequiredField)
	}
	if llm.BaseURL == "" {
		return NewValidationError("llm", "base_url", ErrMissingRequiredField)
	}
	if llm.Timeout <= 0 {
		return NewValidationError("llm", "timeout", fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	if llm.MaxRetries < 0 {
		return NewValidationError("llm", "max_retries", fmt.Errorf("%w: must be >= 0", ErrInvalidValue))
	}
	return nil
}

func (v *ConfigValidator) validateServer() error {
	srv := v.cfg.Server
	if srv == nil {
		return NewValidationError("server", "", ErrMissingRequiredField)
	}
	if srv.Port < 1 || srv.Port > 65535 {
		return NewValidationError("server", "port", fmt.Errorf("%w: %d", ErrInvalidValue, srv.Port))
	}
	if srv.RateLimitRPS < 0 {
		return NewValidationError("server", "rate_limit_rps", fmt.Errorf("%w: must be >= 0", ErrInvalidValue))
	}
	return nil
}

func (v *ConfigValidator) validateSession() error {
	sess := v.cfg.Session
	if sess == nil {
		return NewValidationError("session", "", ErrMissingRequiredField)
	}
	switch sess.Backend {
	case SessionBackendMemory, SessionBackendRedis, SessionBackendSQL:
	default:
		return NewValidationError("session", "backend",
			fmt.Errorf("%w: %q (expected memory, redis, or sql)", ErrInvalidValue, sess.Backend))
	}
	if sess.Backend == SessionBackendRedis && sess.RedisAddr == "" {
		return NewValidationError("session", "redis_addr", ErrMissingRequiredField)
	}
	if sess.TTL <= 0 {
		return NewValidationError("session", "ttl", fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	return nil
}

func (v *ConfigValidator) validateEngine() error {
	eng := v.cfg.Engine
	if eng == nil {
		return NewValidationError("engine", "", ErrMissingRequiredField)
	}
	if eng.RecursionLimit < 1 {
		return NewValidationError("engine", "recursion_limit", fmt.Errorf("%w: must be at least 1", ErrInvalidValue))
	}
	if eng.MaxEnrichmentWorkers < 1 {
		return NewValidationError("engine", "max_enrichment_workers", fmt.Errorf("%w: must be at least 1", ErrInvalidValue))
	}
	if eng.EnrichmentTimeout <= 0 {
		return NewValidationError("engine", "enrichment_timeout", fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	return nil
}

func (v *ConfigValidator) validateQueue() error {
	q := v.cfg.Queue
	if q == nil {
		return NewValidationError("queue", "", ErrMissingRequiredField)
	}
	if q.WorkerCount < 1 {
		return NewValidationError("queue", "worker_count", fmt.Errorf("%w: must be at least 1", ErrInvalidValue))
	}
	if q.QueueDepth < 1 {
		return NewValidationError("queue", "queue_depth", fmt.Errorf("%w: must be at least 1", ErrInvalidValue))
	}
	return nil
}

// validateSlack tolerates a missing section: the integration is optional
// and off by default.
func (v *ConfigValidator) validateSlack() error {
	sl := v.cfg.Slack
	if sl == nil || sl.Channel == "" {
		return nil
	}
	if sl.TokenEnv == "" {
		return NewValidationError("slack", "token_env", ErrMissingRequiredField)
	}
	return nil
}

// validatePlaybook tolerates a missing section: plan documents are
// optional reference material.
func (v *ConfigValidator) validatePlaybook() error {
	pb := v.cfg.Playbook
	if pb == nil {
		return nil
	}
	for scenarioID, docURL := range pb.Sources {
		if scenarioID == "" || docURL == "" {
			return NewValidationError("playbook", "sources",
				fmt.Errorf("%w: empty scenario id or document URL", ErrInvalidValue))
		}
	}
	if (len(pb.Sources) > 0 || pb.RepoURL != "") && pb.CacheTTL < 0 {
		return NewValidationError("playbook", "cache_ttl", fmt.Errorf("%w: must be >= 0", ErrInvalidValue))
	}
	return nil
}
