package app

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", strings.Repeat("s", 32))

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, time.Hour, cfg.AccessTokenTTL)
	require.Equal(t, 720*time.Hour, cfg.RefreshTokenTTL)
	require.True(t, cfg.RefreshRotation)
	require.Equal(t, 5*time.Minute, cfg.MenuCacheTTL)
	require.Equal(t, 120, cfg.RateLimitPerMinute)
	require.Equal(t, "retail-authz", cfg.JWTIssuer)
	require.False(t, cfg.IsProduction())
}

func TestLoadConfigRejectsShortSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "too-short")

	_, err := LoadConfig()
	require.ErrorContains(t, err, "at least 32 bytes")
}

func TestLoadConfigRejectsRefreshShorterThanAccess(t *testing.T) {
	t.Setenv("JWT_SECRET", strings.Repeat("s", 40))
	t.Setenv("ACCESS_TOKEN_TTL", "2h")
	t.Setenv("REFRESH_TOKEN_TTL", "1h")

	_, err := LoadConfig()
	require.ErrorContains(t, err, "refresh token ttl")
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", strings.Repeat("s", 40))
	t.Setenv("APP_ENV", "production")
	t.Setenv("REFRESH_ROTATION", "false")
	t.Setenv("RATE_LIMIT_PER_MINUTE", "10")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.True(t, cfg.IsProduction())
	require.False(t, cfg.RefreshRotation)
	require.Equal(t, 10, cfg.RateLimitPerMinute)
}

func TestIsProductionNilSafe(t *testing.T) {
	var cfg *Config
	require.False(t, cfg.IsProduction())
}
