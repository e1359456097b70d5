package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.ServerPort)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 24*time.Hour, cfg.CacheTTL())
	assert.Empty(t, cfg.RedisAddr)
	assert.Equal(t, 5*time.Minute, cfg.ProgressGrace())
	assert.Equal(t, 3, cfg.MaxConcurrentScrapes)
	assert.Equal(t, "https://www.amazon.com", cfg.AmazonDomain)
	assert.Equal(t, "https://www.daraz.pk", cfg.DarazDomain)
	assert.Equal(t, 3*time.Second, cfg.AmazonMinDelay)
	assert.Equal(t, 5*time.Second, cfg.AmazonMaxDelay)
	assert.Equal(t, 1500*time.Millisecond, cfg.DarazMinDelay)
	assert.Equal(t, 3*time.Second, cfg.DarazMaxDelay)
	assert.Equal(t, 15*time.Second, cfg.AmazonTimeout)
	assert.Equal(t, 30*time.Second, cfg.DarazTimeout)
	assert.False(t, cfg.AmazonHeadless)
	assert.Zero(t, cfg.UpstreamPerMinute)
	assert.Equal(t, 280.0, cfg.PKRToUSDRate)
}

func TestLoad_FileAndEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("DARAZ_DOMAIN=https://www.daraz.com.bd\nSERVER_PORT=7000\nAMAZON_HEADLESS=true\n"), 0o600))

	t.Setenv("SERVER_PORT", "8081")
	t.Setenv("DARAZ_MIN_DELAY", "250ms")
	t.Setenv("REDIS_ADDR", "localhost:6379")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://www.daraz.com.bd", cfg.DarazDomain)
	assert.Equal(t, "8081", cfg.ServerPort, "environment wins over file")
	assert.True(t, cfg.AmazonHeadless)
	assert.Equal(t, 250*time.Millisecond, cfg.DarazMinDelay)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
}

func TestLoad_RejectsInvalid(t *testing.T) {
	t.Setenv("MAX_CONCURRENT_SCRAPES", "0")
	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	assert.Error(t, err)
}
