package config

import "time"

// QueueConfig contains worker pool configuration.
// These values control how session turns are scheduled and drained.
type QueueConfig struct {
	// WorkerCount is the number of goroutines executing turns.
	WorkerCount int `yaml:"worker_count"`

	// QueueDepth is the buffered submission queue capacity. A full queue
	// rejects new turns instead of blocking the API handler.
	QueueDepth int `yaml:"queue_depth"`

	// TurnTimeout is the maximum time a single turn may run.
	TurnTimeout time.Duration `yaml:"turn_timeout"`

	// GracefulShutdownTimeout is the max time to wait for in-flight turns
	// to complete during shutdown.
	GracefulShutdownTimeout time.Duration `yaml:"graceful_shutdown_timeout"`
}

// DefaultQueueConfig returns the built-in worker pool defaults.
func DefaultQueueConfig() *QueueConfig {
	return &QueueConfig{
		WorkerCount:             5,
		QueueDepth:              100,
		TurnTimeout:             5 * time.Minute,
		GracefulShutdownTimeout: 30 * time.Second,
	}
}

// LoadQueueConfigFromEnv loads worker pool configuration from environment variables.
func LoadQueueConfigFromEnv() *QueueConfig {
	cfg := DefaultQueueConfig()
	cfg.WorkerCount = getEnvIntOrDefault("WORKER_COUNT", cfg.WorkerCount)
	cfg.QueueDepth = getEnvIntOrDefault("QUEUE_DEPTH", cfg.QueueDepth)
	cfg.TurnTimeout = getEnvDurationOrDefault("TURN_TIMEOUT", cfg.TurnTimeout)
	cfg.GracefulShutdownTimeout = getEnvDurationOrDefault("GRACEFUL_SHUTDOWN_TIMEOUT", cfg.GracefulShutdownTimeout)
	return cfg
}
