// Package config loads the engine configuration once at start-up. Values come from
// defaults, an optional YAML file and AUTOFLOW_* environment variables, in increasing
// precedence.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

const EnvPrefix = "AUTOFLOW"

type Config struct {
	DatabaseURL string `mapstructure:"database_url" validate:"required"`

	HTTP struct {
		Port int `mapstructure:"port" validate:"min=1,max=65535"`
	} `mapstructure:"http"`

	Worker struct {
		ID           string        `mapstructure:"id"`
		BatchSize    int           `mapstructure:"batch_size"    validate:"min=1"`
		MaxAttempts  int           `mapstructure:"max_attempts"  validate:"min=1"`
		RetryBackoff time.Duration `mapstructure:"retry_backoff"`
		MaxBackoff   time.Duration `mapstructure:"max_backoff"`
		Lease        time.Duration `mapstructure:"lease"`
		Schedule     string        `mapstructure:"schedule"      validate:"required"`
	} `mapstructure:"worker"`

	Breaker struct {
		Limit    int           `mapstructure:"limit"`
		Window   time.Duration `mapstructure:"window"`
		Cooldown time.Duration `mapstructure:"cooldown"`
		RedisURL string        `mapstructure:"redis_url"`
	} `mapstructure:"breaker"`

	Actions struct {
		Timeout     time.Duration `mapstructure:"timeout"`
		EmailAPIURL string        `mapstructure:"email_api_url"`
		EmailAPIKey string        `mapstructure:"email_api_key"`
		EmailFrom   string        `mapstructure:"email_from"`
	} `mapstructure:"actions"`

	Auth struct {
		ServiceKey string `mapstructure:"service_key"`
		JWTSecret  string `mapstructure:"jwt_secret"`
	} `mapstructure:"auth"`

	EventBus struct {
		Provider      string `mapstructure:"provider"       validate:"oneof=none gochannel kafka"`
		Brokers       string `mapstructure:"brokers"        validate:"required_if=Provider kafka"`
		ConsumerGroup string `mapstructure:"consumer_group"`
	} `mapstructure:"event_bus"`

	Log struct {
		Level      string `mapstructure:"level"       validate:"oneof=debug info warn error"`
		File       string `mapstructure:"file"`
		MaxSizeMB  int    `mapstructure:"max_size_mb"`
		MaxBackups int    `mapstructure:"max_backups"`
		MaxAgeDays int    `mapstructure:"max_age_days"`
		Compress   bool   `mapstructure:"compress"`
	} `mapstructure:"log"`

	Otel bool `mapstructure:"otel"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database_url", "")

	v.SetDefault("http.port", 9091)

	v.SetDefault("worker.id", "")
	v.SetDefault("worker.batch_size", 10)
	v.SetDefault("worker.max_attempts", 3)
	v.SetDefault("worker.retry_backoff", time.Minute)
	v.SetDefault("worker.max_backoff", time.Hour)
	v.SetDefault("worker.lease", 5*time.Minute)
	v.SetDefault("worker.schedule", "@every 1m")

	v.SetDefault("breaker.limit", 100)
	v.SetDefault("breaker.window", time.Minute)
	v.SetDefault("breaker.cooldown", 2*time.Minute)
	v.SetDefault("breaker.redis_url", "")

	v.SetDefault("actions.timeout", 10*time.Second)
	v.SetDefault("actions.email_api_url", "")
	v.SetDefault("actions.email_api_key", "")
	v.SetDefault("actions.email_from", "")

	v.SetDefault("auth.service_key", "")
	v.SetDefault("auth.jwt_secret", "")

	v.SetDefault("event_bus.provider", "none")
	v.SetDefault("event_bus.brokers", "")
	v.SetDefault("event_bus.consumer_group", "cg-autoflow")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 30)
	v.SetDefault("log.compress", true)

	v.SetDefault("otel", false)
}

// Load reads the configuration. An empty path skips the file.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)

		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// Validate checks the loaded values. Call it after applying command line overrides.
func (c *Config) Validate() error {
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	return nil
}
