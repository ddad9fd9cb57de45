package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newViper(values map[string]any) *viper.Viper {
	v := viper.New()
	setDefaults(v)
	for k, val := range values {
		v.Set(k, val)
	}
	return v
}

func TestDefaults(t *testing.T) {
	cfg, err := fromViper(newViper(nil))
	require.NoError(t, err)

	assert.Equal(t, Local, cfg.Env)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, DefaultMaxUploadBytes, cfg.Upload.MaxBytes)
	assert.Equal(t, int64(25*1024*1024), cfg.Upload.MaxBytes)
	assert.False(t, cfg.Upload.StrictSniff)
	assert.Equal(t, 24*time.Hour, cfg.TokenTTL)
	assert.Equal(t, "esplit:jobs", cfg.Redis.JobsChannel)
	assert.Contains(t, cfg.DatabaseDSN, "dbname=esplit")
	assert.NotEmpty(t, cfg.JWTSecret, "local env falls back to a dev secret")
}

func TestExplicitDSNWins(t *testing.T) {
	cfg, err := fromViper(newViper(map[string]any{
		"DATABASE_DSN": "postgres://u:p@db:5432/x",
	}))
	require.NoError(t, err)
	assert.Equal(t, "postgres://u:p@db:5432/x", cfg.DatabaseDSN)
}

func TestProductionRequiresSecret(t *testing.T) {
	_, err := fromViper(newViper(map[string]any{"ENV": "production"}))
	require.Error(t, err)

	cfg, err := fromViper(newViper(map[string]any{"ENV": "production", "JWT_SECRET": "s3cret"}))
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		values map[string]any
	}{
		{"zero ttl", map[string]any{"TOKEN_TTL": "0s"}},
		{"negative max bytes", map[string]any{"UPLOAD_MAX_BYTES": -1}},
		{"url expiry too long", map[string]any{"MINIO_URL_EXPIRY": "200h"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := fromViper(newViper(tt.values))
			assert.Error(t, err)
		})
	}
}
