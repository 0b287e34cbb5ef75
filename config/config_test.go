package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.True(t, cfg.IsLocal())
	assert.Equal(t, PolicyTrustedExtended, cfg.VerificationPolicy)
	assert.Equal(t, []string{"google.com", "github.com"}, cfg.TrustedProviders)
	assert.Equal(t, 15*time.Minute, cfg.AccessTokenTTL())
	assert.Equal(t, 30*24*time.Hour, cfg.RefreshTokenTTL())
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("VERIFICATION_POLICY", PolicyStrict)
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("ACCESS_TOKEN_TTL_MIN", "5")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, PolicyStrict, cfg.VerificationPolicy)
	assert.False(t, cfg.IsLocal())
	assert.Equal(t, 5*time.Minute, cfg.AccessTokenTTL())
}

func TestLoadConfigRejectsUnknownPolicy(t *testing.T) {
	t.Setenv("VERIFICATION_POLICY", "LENIENT")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "VERIFICATION_POLICY")
}
