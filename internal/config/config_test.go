package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8000", cfg.APIURL)
	assert.Equal(t, filepath.Join(dir, "drivepass", "session.db"), cfg.StorePath)
	assert.Equal(t, 30*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, 3, cfg.HTTPRetries)
	assert.Equal(t, time.Minute, cfg.ResendCooldown)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("DRIVEPASS_API_URL", "https://api.example.com")
	t.Setenv("DRIVEPASS_DATABASE_DSN", "postgres://u:p@db/app")
	t.Setenv("DRIVEPASS_STORE_PATH", "/tmp/s.db")
	t.Setenv("DRIVEPASS_HTTP_TIMEOUT", "5s")
	t.Setenv("DRIVEPASS_HTTP_RETRIES", "0")
	t.Setenv("DRIVEPASS_RESEND_COOLDOWN", "2m")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.com", cfg.APIURL)
	assert.Equal(t, "postgres://u:p@db/app", cfg.DatabaseDSN)
	assert.Equal(t, "/tmp/s.db", cfg.StorePath)
	assert.Equal(t, 5*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, 0, cfg.HTTPRetries)
	assert.Equal(t, 2*time.Minute, cfg.ResendCooldown)
}

func TestLoad_BadDuration(t *testing.T) {
	t.Setenv("DRIVEPASS_HTTP_TIMEOUT", "soon")
	_, err := Load()
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	ok := Config{APIURL: "http://x", StorePath: "/s", HTTPTimeout: time.Second, ResendCooldown: time.Second}
	require.NoError(t, ok.Validate())

	bad := ok
	bad.APIURL = ""
	bad.HTTPRetries = -1
	bad.ResendCooldown = 0
	err := bad.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DRIVEPASS_API_URL")
	assert.Contains(t, err.Error(), "DRIVEPASS_HTTP_RETRIES")
	assert.Contains(t, err.Error(), "DRIVEPASS_RESEND_COOLDOWN")
}
