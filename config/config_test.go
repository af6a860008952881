package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "./data", cfg.DataDir)
	assert.True(t, cfg.SyncWrites)
	assert.Zero(t, cfg.RetentionDays)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("RECORDSTORE_DATA_DIR", "/var/lib/recordstore")
	t.Setenv("RECORDSTORE_RETENTION_DAYS", "365")
	t.Setenv("RECORDSTORE_SYNC_WRITES", "false")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/recordstore", cfg.DataDir)
	assert.Equal(t, 365, cfg.RetentionDays)
	assert.False(t, cfg.SyncWrites)
}

func TestRetentionCutoff(t *testing.T) {
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

	cfg := &Config{RetentionDays: 30}
	assert.Equal(t, "2024-04-10", cfg.RetentionCutoff(now))

	cfg = &Config{}
	assert.Empty(t, cfg.RetentionCutoff(now), "zero retention disables pruning")
}
