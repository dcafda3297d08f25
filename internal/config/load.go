package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g. GENWATCH_SERVER_PORT
const EnvPrefix = "GENWATCH"

// setDefaults registers every key so environment variables can override it.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.shutdown_timeout", 15*time.Second)

	v.SetDefault("generation.base_url", "")
	v.SetDefault("generation.request_timeout", 15*time.Second)
	v.SetDefault("generation.submit_retries", 2)
	v.SetDefault("generation.stream_lifetime", 10*time.Minute)

	v.SetDefault("tracker.poll_interval", 2*time.Second)
	v.SetDefault("tracker.max_attempts", 120)
	v.SetDefault("tracker.synthetic_window", 8*time.Second)
	v.SetDefault("tracker.status_timeout", 10*time.Second)

	v.SetDefault("notifications.pending_ttl", 30*time.Second)
	v.SetDefault("notifications.settle_delay", 100*time.Millisecond)
	v.SetDefault("notifications.dedupe_size", 4096)
	v.SetDefault("notifications.heartbeat", 15*time.Second)
	v.SetDefault("notifications.stream_buffer", 64)

	v.SetDefault("redis.url", "")
	v.SetDefault("redis.key_prefix", "genwatch")
}

// Load configuration from environment variables and optionally a config file.
// Environment variables take precedence over values from the config file.
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}
