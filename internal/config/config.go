// Package config provides configuration helpers that define runtime defaults,
// validation, and connection parameters for the Flux service.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/joho/godotenv"
)

// RateLimitConfig defines the parameters for per-connection message rate limiting.
type RateLimitConfig struct {
	Burst          int           `env:"RATE_LIMIT_BURST"`
	RefillInterval time.Duration `env:"RATE_LIMIT_REFILL_INTERVAL"`
}

// DatabaseConfig selects and tunes the relational store.
type DatabaseConfig struct {
	URL             string        `env:"DATABASE_URL"`
	MaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS"`
	MaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `env:"DB_CONN_LIFETIME"`
	PingTimeout     time.Duration `env:"DB_PING_TIMEOUT"`
}

// AuthConfig holds token signing parameters.
type AuthConfig struct {
	SecretKey       string        `env:"SECRET_KEY,required=true"`
	AccessTokenTTL  time.Duration `env:"ACCESS_TOKEN_TTL"`
	RefreshTokenTTL time.Duration `env:"REFRESH_TOKEN_TTL"`
	RedisURL        string        `env:"REDIS_URL"`
}

// ChatConfig bounds the resources a single live connection may use.
type ChatConfig struct {
	MaxMessageSize int64         `env:"MAX_MESSAGE_SIZE"`
	SendBufferSize int           `env:"SEND_BUFFER_SIZE"`
	PongWait       time.Duration `env:"PONG_WAIT"`
	WriteWait      time.Duration `env:"WRITE_WAIT"`
	RateLimit      RateLimitConfig
}

// Config holds the server configuration settings including security controls.
type Config struct {
	ServiceName     string        `env:"SERVICE_NAME"`
	Env             string        `env:"SERVICE_ENV"`
	Port            string        `env:"SERVER_PORT"`
	LogLevel        string        `env:"LOG_LEVEL"`
	RawOrigins      string        `env:"ALLOWED_ORIGINS"`
	OTelEndpoint    string        `env:"OTEL_ENDPOINT"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT"`
	AllowedOrigins  []string
	Database        DatabaseConfig
	Auth            AuthConfig
	Chat            ChatConfig
}

// Default returns a Config populated with default values for all settings.
// The secret key is left empty and must be provided by the caller.
func Default() Config {
	return Config{
		ServiceName: "flux-api",
		Env:         "development",
		Port:        ":8080",
		LogLevel:    "INFO",
		AllowedOrigins: []string{
			"http://localhost:3000",
			"http://localhost:8080",
		},
		ShutdownTimeout: 10 * time.Second,
		Database: DatabaseConfig{
			URL:             "flux.db",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 15 * time.Minute,
			PingTimeout:     5 * time.Second,
		},
		Auth: AuthConfig{
			AccessTokenTTL:  5 * time.Minute,
			RefreshTokenTTL: 7 * 24 * time.Hour,
		},
		Chat: ChatConfig{
			MaxMessageSize: 4096,
			SendBufferSize: 256,
			PongWait:       60 * time.Second,
			WriteWait:      10 * time.Second,
			RateLimit: RateLimitConfig{
				Burst:          20,
				RefillInterval: time.Second,
			},
		},
	}
}

// Load reads an optional .env file, then the process environment, and fills
// every unset value from Default.
func Load() (Config, error) {
	// A missing .env file is the normal case outside local development.
	_ = godotenv.Load()

	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return Config{}, fmt.Errorf("config error: %w", err)
	}
	if cfg.RawOrigins != "" {
		cfg.AllowedOrigins = ParseOrigins(cfg.RawOrigins)
	}
	cfg = Sanitize(cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports settings that cannot be defaulted.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Auth.SecretKey) == "" {
		return errors.New("config error: SECRET_KEY is required")
	}
	return nil
}

// Sanitize replaces zero or negative values with their defaults.
func Sanitize(cfg Config) Config {
	def := Default()

	if cfg.ServiceName == "" {
		cfg.ServiceName = def.ServiceName
	}
	if cfg.Env == "" {
		cfg.Env = def.Env
	}
	if cfg.Port == "" {
		cfg.Port = def.Port
	}
	if !strings.Contains(cfg.Port, ":") {
		cfg.Port = ":" + cfg.Port
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = def.LogLevel
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = def.AllowedOrigins
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = def.ShutdownTimeout
	}

	cfg.Database = sanitizeDatabase(cfg.Database, def.Database)

	if cfg.Auth.AccessTokenTTL <= 0 {
		cfg.Auth.AccessTokenTTL = def.Auth.AccessTokenTTL
	}
	if cfg.Auth.RefreshTokenTTL <= 0 {
		cfg.Auth.RefreshTokenTTL = def.Auth.RefreshTokenTTL
	}

	cfg.Chat = sanitizeChat(cfg.Chat, def.Chat)
	return cfg
}

func sanitizeDatabase(db, def DatabaseConfig) DatabaseConfig {
	if db.URL == "" {
		db.URL = def.URL
	}
	if db.MaxOpenConns <= 0 {
		db.MaxOpenConns = def.MaxOpenConns
	}
	if db.MaxIdleConns <= 0 {
		db.MaxIdleConns = def.MaxIdleConns
	}
	if db.ConnMaxLifetime <= 0 {
		db.ConnMaxLifetime = def.ConnMaxLifetime
	}
	if db.PingTimeout <= 0 {
		db.PingTimeout = def.PingTimeout
	}
	return db
}

func sanitizeChat(chat, def ChatConfig) ChatConfig {
	if chat.MaxMessageSize <= 0 {
		chat.MaxMessageSize = def.MaxMessageSize
	}
	if chat.SendBufferSize <= 0 {
		chat.SendBufferSize = def.SendBufferSize
	}
	if chat.PongWait <= 0 {
		chat.PongWait = def.PongWait
	}
	if chat.WriteWait <= 0 {
		chat.WriteWait = def.WriteWait
	}
	if chat.RateLimit.Burst <= 0 {
		chat.RateLimit.Burst = def.RateLimit.Burst
	}
	if chat.RateLimit.RefillInterval <= 0 {
		chat.RateLimit.RefillInterval = def.RateLimit.RefillInterval
	}
	return chat
}

// ParseOrigins splits a comma separated origin list and trims each entry.
func ParseOrigins(origins string) []string {
	parts := strings.Split(origins, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// IsPostgres reports whether the database URL selects the PostgreSQL driver.
func (d DatabaseConfig) IsPostgres() bool {
	return strings.HasPrefix(d.URL, "postgres://") || strings.HasPrefix(d.URL, "postgresql://")
}
