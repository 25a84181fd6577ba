// Package config provides configuration loading and validation utilities.
package config

import "time"

// Config holds runtime configuration for the TinkuBot orchestrator.
type Config struct {
	AppEnv   string `mapstructure:"-"`
	LogLevel string `mapstructure:"log_level" validate:"omitempty,oneof=debug info warn error"`

	Server       ServerConfig       `mapstructure:"server"`
	Bot          BotConfig          `mapstructure:"bot"`
	Redis        RedisConfig        `mapstructure:"redis" validate:"required"`
	DB           DBConfig           `mapstructure:"db" validate:"required"`
	Flow         FlowConfig         `mapstructure:"flow"`
	Availability AvailabilityConfig `mapstructure:"availability"`
	Sentry       SentryConfig       `mapstructure:"sentry"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

// ServerConfig configures the metrics/health HTTP server.
type ServerConfig struct {
	Port            string        `mapstructure:"port" validate:"required"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// BotConfig configures the Telegram transport adapter.
type BotConfig struct {
	Enabled   bool            `mapstructure:"enabled"`
	Token     string          `mapstructure:"token" validate:"required_if=Enabled true"`
	Mode      string          `mapstructure:"mode" validate:"omitempty,oneof=polling webhook"`
	Timeout   time.Duration   `mapstructure:"timeout"`
	DedupTTL  time.Duration   `mapstructure:"dedup_ttl"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

// RateLimitConfig throttles inbound updates per sender.
type RateLimitConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Limit   int           `mapstructure:"limit" validate:"omitempty,min=1"`
	Window  time.Duration `mapstructure:"window"`
}

// RedisConfig defines connection parameters for the Redis client.
type RedisConfig struct {
	Addr            string        `mapstructure:"addr" validate:"required"`
	Password        string        `mapstructure:"password"`
	DB              int           `mapstructure:"db"`
	PoolSize        int           `mapstructure:"pool_size"`
	MinIdleConns    int           `mapstructure:"min_idle_conns"`
	PoolTimeout     time.Duration `mapstructure:"pool_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	MaxRetries      int           `mapstructure:"max_retries"`
	MinRetryBackoff time.Duration `mapstructure:"min_retry_backoff"`
	MaxRetryBackoff time.Duration `mapstructure:"max_retry_backoff"`
}

// DBConfig defines PostgreSQL connection parameters.
type DBConfig struct {
	Host     string `mapstructure:"host" validate:"required"`
	Port     string `mapstructure:"port" validate:"required"`
	User     string `mapstructure:"user" validate:"required"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name" validate:"required"`
	SSLMode  string `mapstructure:"sslmode"`
}

// FlowConfig tunes conversation flow persistence.
type FlowConfig struct {
	TTL             time.Duration `mapstructure:"ttl"`
	ConfirmAttempts int           `mapstructure:"confirm_attempts" validate:"omitempty,min=1,max=10"`
	ProfileCacheTTL time.Duration `mapstructure:"profile_cache_ttl"`
}

// AvailabilityConfig tunes the availability coordination protocol.
type AvailabilityConfig struct {
	RequestTopic   string        `mapstructure:"request_topic"`
	ResponseTopic  string        `mapstructure:"response_topic"`
	HardDeadline   time.Duration `mapstructure:"hard_deadline"`
	GraceWindow    time.Duration `mapstructure:"grace_window"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	DocumentTTL    time.Duration `mapstructure:"document_ttl"`
	PublishQoS     int           `mapstructure:"publish_qos" validate:"omitempty,min=0,max=1"`
	PublishTimeout time.Duration `mapstructure:"publish_timeout"`
	RetryDelay     time.Duration `mapstructure:"retry_delay"`
	QueueSize      int           `mapstructure:"queue_size"`
	MaxCandidates  int           `mapstructure:"max_candidates"`
}

// SentryConfig controls Sentry error reporting.
type SentryConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	DSN         string  `mapstructure:"dsn" validate:"required_if=Enabled true"`
	SampleRate  float64 `mapstructure:"sample_rate"`
	Environment string  `mapstructure:"environment"`
}

// LoggingConfig controls log output and rotation.
type LoggingConfig struct {
	Format     string `mapstructure:"format" validate:"omitempty,oneof=text json"`
	FilePath   string `mapstructure:"file_path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// DSN returns the PostgreSQL connection string.
func (c DBConfig) DSN() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	return "host=" + c.Host +
		" port=" + c.Port +
		" user=" + c.User +
		" password=" + c.Password +
		" dbname=" + c.Name +
		" sslmode=" + sslMode
}

// withDefaults fills unset tunables with production defaults.
func (c *Config) withDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Bot.Timeout == 0 {
		c.Bot.Timeout = 10 * time.Second
	}
	if c.Bot.DedupTTL == 0 {
		c.Bot.DedupTTL = 10 * time.Minute
	}
	if c.Bot.RateLimit.Limit == 0 {
		c.Bot.RateLimit.Limit = 20
	}
	if c.Bot.RateLimit.Window == 0 {
		c.Bot.RateLimit.Window = time.Minute
	}
	if c.Flow.TTL == 0 {
		c.Flow.TTL = time.Hour
	}
	if c.Flow.ConfirmAttempts == 0 {
		c.Flow.ConfirmAttempts = 3
	}
	if c.Flow.ProfileCacheTTL == 0 {
		c.Flow.ProfileCacheTTL = 5 * time.Minute
	}

	a := &c.Availability
	if a.RequestTopic == "" {
		a.RequestTopic = "availability:requests"
	}
	if a.ResponseTopic == "" {
		a.ResponseTopic = "availability:responses"
	}
	if a.HardDeadline == 0 {
		a.HardDeadline = 90 * time.Second
	}
	if a.GraceWindow == 0 {
		a.GraceWindow = 5 * time.Second
	}
	if a.PollInterval == 0 {
		a.PollInterval = time.Second
	}
	if a.DocumentTTL == 0 {
		a.DocumentTTL = 10 * time.Minute
	}
	if a.PublishTimeout == 0 {
		a.PublishTimeout = 5 * time.Second
	}
	if a.RetryDelay == 0 {
		a.RetryDelay = 2 * time.Second
	}
	if a.QueueSize == 0 {
		a.QueueSize = 64
	}
	if a.MaxCandidates == 0 {
		a.MaxCandidates = 10
	}
}
