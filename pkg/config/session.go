package config

import "time"

// Session store backends.
const (
	SessionBackendMemory = "memory"
	SessionBackendRedis  = "redis"
	SessionBackendSQL    = "sql"
)

// SessionConfig holds session store configuration.
type SessionConfig struct {
	// Backend selects the store implementation: memory, redis, or sql.
	Backend string `yaml:"backend"`

	// TTL is how long an idle session survives before the janitor reaps it.
	TTL time.Duration `yaml:"ttl"`

	// CleanupInterval is the janitor sweep period for backends without
	// native expiry (memory, sql).
	CleanupInterval time.Duration `yaml:"cleanup_interval"`

	// LockTTL bounds how long a turn may hold the per-session lock.
	LockTTL time.Duration `yaml:"lock_ttl"`

	// RedisAddr is the host:port of the Redis server (redis backend).
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`

	// DatabaseURL is the Postgres DSN (sql backend). When empty, discrete
	// DB_* variables are assembled by the database package.
	DatabaseURL string `yaml:"database_url"`
}

// DefaultSessionConfig returns the built-in session store defaults.
func DefaultSessionConfig() *SessionConfig {
	return &SessionConfig{
		Backend:         SessionBackendMemory,
		TTL:             2 * time.Hour,
		CleanupInterval: 5 * time.Minute,
		LockTTL:         5 * time.Minute,
		RedisAddr:       "localhost:6379",
	}
}

// LoadSessionConfigFromEnv loads session store configuration from environment variables.
func LoadSessionConfigFromEnv() *SessionConfig {
	cfg := DefaultSessionConfig()
	cfg.Backend = getEnvOrDefault("SESSION_STORE_BACKEND", cfg.Backend)
	cfg.TTL = getEnvDurationOrDefault("SESSION_TTL", cfg.TTL)
	cfg.CleanupInterval = getEnvDurationOrDefault("SESSION_CLEANUP_INTERVAL", cfg.CleanupInterval)
	cfg.LockTTL = getEnvDurationOrDefault("SESSION_LOCK_TTL", cfg.LockTTL)
	cfg.RedisAddr = getEnvOrDefault("REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisPassword = getEnvOrDefault("REDIS_PASSWORD", "")
	cfg.RedisDB = getEnvIntOrDefault("REDIS_DB", 0)
	cfg.DatabaseURL = getEnvOrDefault("DATABASE_URL", "")
	return cfg
}
