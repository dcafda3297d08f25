package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server        ServerConfig       `mapstructure:"server"        validate:"required"`
	Generation    GenerationConfig   `mapstructure:"generation"    validate:"required"`
	Tracker       TrackerConfig      `mapstructure:"tracker"       validate:"required"`
	Notifications NotificationConfig `mapstructure:"notifications" validate:"required"`
	Redis         RedisConfig        `mapstructure:"redis"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port            int           `mapstructure:"port"             validate:"required,gt=0,lt=65536"`
	LogLevel        string        `mapstructure:"log_level"        validate:"required,oneof=debug info warn error"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
}

// GenerationConfig describes the remote generation worker.
type GenerationConfig struct {
	// BaseURL is the root of the worker API (submit and status endpoints)
	BaseURL string `mapstructure:"base_url" validate:"required,url"`

	// RequestTimeout bounds a single non-streaming request
	RequestTimeout time.Duration `mapstructure:"request_timeout" validate:"gt=0"`

	// SubmitRetries is how many times a submission is retried on transient errors
	SubmitRetries uint64 `mapstructure:"submit_retries" validate:"lte=10"`

	// StreamLifetime bounds how long a streamed submission may stay open
	StreamLifetime time.Duration `mapstructure:"stream_lifetime" validate:"gt=0"`
}

// TrackerConfig controls status polling.
type TrackerConfig struct {
	PollInterval    time.Duration `mapstructure:"poll_interval"    validate:"gt=0"`
	MaxAttempts     int           `mapstructure:"max_attempts"     validate:"gt=0"`
	SyntheticWindow time.Duration `mapstructure:"synthetic_window" validate:"gt=0"`
	StatusTimeout   time.Duration `mapstructure:"status_timeout"   validate:"gt=0"`
}

// NotificationConfig controls the notification bus buffer.
type NotificationConfig struct {
	PendingTTL  time.Duration `mapstructure:"pending_ttl"  validate:"gt=0"`
	SettleDelay time.Duration `mapstructure:"settle_delay" validate:"gte=0"`
	DedupeSize  int           `mapstructure:"dedupe_size"  validate:"gt=0"`

	// Heartbeat is the keep-alive interval on notification streams
	Heartbeat time.Duration `mapstructure:"heartbeat" validate:"gt=0"`

	// StreamBuffer is how many notifications one stream may queue before it is
	// treated as a slow consumer
	StreamBuffer int `mapstructure:"stream_buffer" validate:"gt=0"`
}

// RedisConfig enables persistence of tracked tasks across restarts.
// An empty URL disables persistence.
type RedisConfig struct {
	URL       string `mapstructure:"url"        validate:"omitempty,url"`
	KeyPrefix string `mapstructure:"key_prefix" validate:"required"`
}
