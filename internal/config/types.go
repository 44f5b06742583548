package config

import "time"

// RetryConfig shapes the delay before a failed task is re-queued.
// With Multiplier <= 1 every retry waits Delay.
type RetryConfig struct {
	Delay      time.Duration `json:"delay" mapstructure:"delay" default:"1s" validate:"gte=0"`
	Multiplier float64       `json:"multiplier" mapstructure:"multiplier" default:"1" validate:"gte=0"`
	MaxDelay   time.Duration `json:"max_delay" mapstructure:"max_delay" default:"1m" validate:"gte=0"`
	Jitter     float64       `json:"jitter" mapstructure:"jitter" default:"0" validate:"gte=0,lte=1"` // Randomization factor
}

// BreakerConfig configures the per-type circuit breakers.
type BreakerConfig struct {
	Enabled          bool          `json:"enabled" mapstructure:"enabled"`
	FailureThreshold uint32        `json:"failure_threshold" mapstructure:"failure_threshold" default:"5" validate:"gte=1"` // Consecutive failures that open the breaker
	OpenTimeout      time.Duration `json:"open_timeout" mapstructure:"open_timeout" default:"30s" validate:"gt=0"`
	HalfOpenRequests uint32        `json:"half_open_requests" mapstructure:"half_open_requests" default:"3" validate:"gte=1"`
}

// LogConfig selects logger level and encoding.
type LogConfig struct {
	Level  string `json:"level" mapstructure:"level" default:"info" validate:"oneof=debug info warn error"`
	Format string `json:"format" mapstructure:"format" default:"console" validate:"oneof=console json"`
}

// ArchiveConfig controls the SQLite result archive.
type ArchiveConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Path    string `json:"path" mapstructure:"path" default:".taskengine/results.db" validate:"required_if=Enabled true"`
}

// Config is the top-level configuration.
type Config struct {
	Workers            int           `json:"workers" mapstructure:"workers" default:"4" validate:"gte=1"`
	MaxConcurrentTasks int           `json:"max_concurrent_tasks" mapstructure:"max_concurrent_tasks" default:"4" validate:"gte=1"`
	QueueMaxSize       int           `json:"queue_max_size" mapstructure:"queue_max_size" default:"1000" validate:"gte=1"`
	DefaultMaxRetries  int           `json:"default_max_retries" mapstructure:"default_max_retries" default:"3" validate:"gte=0"`
	DefaultTimeout     time.Duration `json:"default_timeout" mapstructure:"default_timeout" default:"30s" validate:"gte=0"` // Zero disables the deadline
	TickInterval       time.Duration `json:"tick_interval" mapstructure:"tick_interval" default:"1s" validate:"gt=0"`
	StopTimeout        time.Duration `json:"stop_timeout" mapstructure:"stop_timeout" default:"5s" validate:"gt=0"`
	CascadeFailures    bool          `json:"cascade_failures" mapstructure:"cascade_failures"` // Fail queued dependents when a dependency fails

	Retry   RetryConfig   `json:"retry" mapstructure:"retry"`
	Breaker BreakerConfig `json:"breaker" mapstructure:"breaker"`
	Log     LogConfig     `json:"log" mapstructure:"log"`
	Archive ArchiveConfig `json:"archive" mapstructure:"archive"`
}
