package server

import (
	"log/slog"
	"testing"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

func TestOriginPolicy_Allowed(t *testing.T) {
	logger := logs.GetLoggerFromLevel(slog.LevelError)
	policy := NewOriginPolicy([]string{" http://Localhost:3000 ", "bogus", ""}, logger)
	wildcard := NewOriginPolicy([]string{"*"}, logger)

	tests := []struct {
		name   string
		policy *OriginPolicy
		origin string
		want   bool
	}{
		{"Configured origin", policy, "http://localhost:3000", true},
		{"Different port", policy, "http://localhost:3001", false},
		{"Different scheme", policy, "https://localhost:3000", false},
		{"Path is ignored", policy, "http://localhost:3000/chat", true},
		{"Empty origin", policy, "", false},
		{"Wildcard allows any", wildcard, "https://anything.example", true},
		{"Wildcard still needs a valid origin", wildcard, "null", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, tt.policy.Allowed(tt.origin))
		})
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		token  string
		ok     bool
	}{
		{"Bearer abc", "abc", true},
		{"bearer abc", "abc", true},
		{"Basic abc", "", false},
		{"Bearer ", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		token, ok := bearerToken(tt.header)
		require.Equal(t, tt.ok, ok, tt.header)
		require.Equal(t, tt.token, token, tt.header)
	}
}
