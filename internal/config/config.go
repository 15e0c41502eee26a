package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration for the chat-core service.
type Config struct {
	LogFormat  string `envconfig:"LOG_FORMAT" default:"json"`
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Completion CompletionConfig
	Session    SessionConfig
	Retry      RetryConfig
	Animation  AnimationConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host      string `envconfig:"SERVER_HOST" default:"0.0.0.0"`
	Port      string `envconfig:"SERVER_PORT" default:"8080"`
	JWTSecret string `envconfig:"JWT_SECRET" required:"true"`
}

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	DSN string `envconfig:"DATABASE_DSN" required:"true"`
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	URI string `envconfig:"REDIS_URI" required:"true"`
}

// CompletionConfig holds configuration for the remote completion endpoint.
type CompletionConfig struct {
	BaseURL      string        `envconfig:"COMPLETION_URL" required:"true"`
	DefaultModel string        `envconfig:"COMPLETION_MODEL" default:"gpt-4o-mini"`
	Timeout      time.Duration `envconfig:"COMPLETION_TIMEOUT" default:"60s"`
}

// SessionConfig holds configuration for the session token provider used
// against the completion endpoint.
type SessionConfig struct {
	AccessToken string `envconfig:"SESSION_ACCESS_TOKEN" required:"true"`
	RefreshURL  string `envconfig:"SESSION_REFRESH_URL"`
}

// RetryConfig holds the retry policy for completion calls.
type RetryConfig struct {
	MaxAttempts int           `envconfig:"RETRY_MAX_ATTEMPTS" default:"3"`
	BaseDelay   time.Duration `envconfig:"RETRY_BASE_DELAY" default:"500ms"`
	Exponential bool          `envconfig:"RETRY_EXPONENTIAL" default:"true"`
}

// AnimationConfig holds the text reveal cadence.
type AnimationConfig struct {
	Interval  time.Duration `envconfig:"ANIMATION_INTERVAL" default:"20ms"`
	ChunkSize int           `envconfig:"ANIMATION_CHUNK_SIZE" default:"3"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks configuration for logical errors beyond required fields.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("RETRY_MAX_ATTEMPTS must be at least 1, got %d", c.Retry.MaxAttempts)
	}
	if c.Animation.ChunkSize < 1 {
		return fmt.Errorf("ANIMATION_CHUNK_SIZE must be at least 1, got %d", c.Animation.ChunkSize)
	}
	return nil
}
