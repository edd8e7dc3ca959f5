package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	require.Equal(t, "HS256", cfg.JWTAlgorithm)
	require.Equal(t, 15*time.Minute, cfg.AccessTTL)
	require.Equal(t, 7*24*time.Hour, cfg.RefreshTTL)
	require.Equal(t, 10*time.Minute, cfg.OTPTTL)
	require.Equal(t, 6, cfg.OTPLength)
	require.Equal(t, 120, cfg.RateLimitPerMin)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("JWT_ALGORITHM", "HS512")
	t.Setenv("ACCESS_TTL_MINUTES", "30")
	t.Setenv("REFRESH_TTL_DAYS", "1")
	t.Setenv("OTP_TTL_MINUTES", "5")
	t.Setenv("OTP_LENGTH", "8")

	cfg := Load()

	require.Equal(t, "HS512", cfg.JWTAlgorithm)
	require.Equal(t, 30*time.Minute, cfg.AccessTTL)
	require.Equal(t, 24*time.Hour, cfg.RefreshTTL)
	require.Equal(t, 5*time.Minute, cfg.OTPTTL)
	require.Equal(t, 8, cfg.OTPLength)
}

func TestLoadIgnoresGarbage(t *testing.T) {
	t.Setenv("ACCESS_TTL_MINUTES", "soon")
	t.Setenv("OTP_LENGTH", "many")

	cfg := Load()

	require.Equal(t, 15*time.Minute, cfg.AccessTTL)
	require.Equal(t, 6, cfg.OTPLength)
}
