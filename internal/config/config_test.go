package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSanitize_FillsDefaults(t *testing.T) {
	req := require.New(t)

	cfg := Sanitize(Config{})

	req.Equal(":8080", cfg.Port)
	req.Equal("flux-api", cfg.ServiceName)
	req.Equal(int64(4096), cfg.Chat.MaxMessageSize)
	req.Equal(256, cfg.Chat.SendBufferSize)
	req.Equal(20, cfg.Chat.RateLimit.Burst)
	req.Equal(time.Second, cfg.Chat.RateLimit.RefillInterval)
	req.Equal(5*time.Minute, cfg.Auth.AccessTokenTTL)
	req.Equal(7*24*time.Hour, cfg.Auth.RefreshTokenTTL)
	req.Equal("flux.db", cfg.Database.URL)
	req.NotEmpty(cfg.AllowedOrigins)
}

func TestSanitize_KeepsExplicitValues(t *testing.T) {
	req := require.New(t)

	cfg := Sanitize(Config{
		Port: "9090",
		Chat: ChatConfig{
			MaxMessageSize: 128,
			RateLimit:      RateLimitConfig{Burst: 3, RefillInterval: 2 * time.Second},
		},
	})

	req.Equal(":9090", cfg.Port)
	req.Equal(int64(128), cfg.Chat.MaxMessageSize)
	req.Equal(3, cfg.Chat.RateLimit.Burst)
	req.Equal(2*time.Second, cfg.Chat.RateLimit.RefillInterval)
}

func TestSanitize_RejectsNegativeValues(t *testing.T) {
	req := require.New(t)

	cfg := Sanitize(Config{Chat: ChatConfig{MaxMessageSize: -1, SendBufferSize: -5}})

	req.Equal(int64(4096), cfg.Chat.MaxMessageSize)
	req.Equal(256, cfg.Chat.SendBufferSize)
}

func TestParseOrigins(t *testing.T) {
	req := require.New(t)

	req.Equal(
		[]string{"http://a.example", "https://b.example", "*"},
		ParseOrigins(" http://a.example, https://b.example ,,* "),
	)
}

func TestLoad_RequiresSecret(t *testing.T) {
	t.Setenv("SECRET_KEY", "")
	_, err := Load()
	require.Error(t, err)
}

func TestLoad_FromEnvironment(t *testing.T) {
	req := require.New(t)
	t.Setenv("SECRET_KEY", "s3cret")
	t.Setenv("SERVER_PORT", ":9999")
	t.Setenv("ALLOWED_ORIGINS", "http://one.example,http://two.example")
	t.Setenv("MAX_MESSAGE_SIZE", "2048")
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "3s")
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost:5432/flux")

	cfg, err := Load()
	req.NoError(err)

	req.Equal(":9999", cfg.Port)
	req.Equal([]string{"http://one.example", "http://two.example"}, cfg.AllowedOrigins)
	req.Equal(int64(2048), cfg.Chat.MaxMessageSize)
	req.Equal(3*time.Second, cfg.Chat.RateLimit.RefillInterval)
	req.True(cfg.Database.IsPostgres())
	req.Equal("s3cret", cfg.Auth.SecretKey)
}
