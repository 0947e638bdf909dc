package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setSecret(t *testing.T) {
	t.Helper()
	t.Setenv("ASTREON_JWT_SECRET", "0123456789abcdef0123456789abcdef")
}

func TestLoad_Defaults(t *testing.T) {
	setSecret(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "ASTR-****-****-****", cfg.License.DefaultFormat)
	assert.Equal(t, 100, cfg.License.MaxBatchSize)
	assert.InDelta(t, 1.00, cfg.License.ResellerPrice, 1e-9)
	assert.Equal(t, []string{"*"}, cfg.CORS.AllowedOrigins)
	assert.Empty(t, cfg.Database.Type, "memory storage by default")
	assert.False(t, cfg.Redis.Enabled)
}

func TestLoad_RejectsDefaultSecret(t *testing.T) {
	t.Setenv("ASTREON_JWT_SECRET", "change-me-in-production")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("ASTREON_JWT_SECRET", "too-short")
	_, err = Load()
	assert.Error(t, err)
}

func TestLoad_Overrides(t *testing.T) {
	setSecret(t)
	t.Setenv("ASTREON_SERVER_PORT", "9090")
	t.Setenv("ASTREON_LICENSE_DEFAULT_FORMAT", "KEY-********")
	t.Setenv("ASTREON_CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("ASTREON_DATABASE_TYPE", "postgres")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "KEY-********", cfg.License.DefaultFormat)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.AllowedOrigins)
	assert.Equal(t, "postgres", cfg.Database.Type)
}

func TestLoad_RejectsBadFormat(t *testing.T) {
	setSecret(t)
	t.Setenv("ASTREON_LICENSE_DEFAULT_FORMAT", "NO-WILDCARDS")
	_, err := Load()
	assert.Error(t, err)
}
