package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// injected configurations
var (
	APP_NAME    string = "recordstore"
	APP_VERSION string = "0.1.0"
)

// Config holds application settings sourced from the environment and an
// optional .env file in the working directory.
type Config struct {
	// DataDir is the directory holding the embedded database files.
	DataDir string

	// SyncWrites toggles per-commit fsync on the storage engine.
	SyncWrites bool

	// RetentionDays is the age beyond which daily records and attendance
	// entries are eligible for pruning. Zero disables pruning.
	RetentionDays int

	// LogLevel selects the logger verbosity ("debug", "info", "warn", "error").
	LogLevel string
}

// RetentionCutoff returns the prune cutoff date (YYYY-MM-DD) relative to
// now, or "" when retention is disabled.
func (c *Config) RetentionCutoff(now time.Time) string {
	if c.RetentionDays <= 0 {
		return ""
	}
	return now.AddDate(0, 0, -c.RetentionDays).Format("2006-01-02")
}

// Load reads configuration from a .env file (if present) and the process
// environment. Environment variables use the RECORDSTORE_ prefix, e.g.
// RECORDSTORE_DATA_DIR.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.SetEnvPrefix("RECORDSTORE")
	v.AutomaticEnv()

	v.SetDefault("DATA_DIR", "./data")
	v.SetDefault("SYNC_WRITES", true)
	v.SetDefault("RETENTION_DAYS", 0)
	v.SetDefault("LOG_LEVEL", "info")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("config: failed to read .env: %w", err)
		}
	}

	return &Config{
		DataDir:       v.GetString("DATA_DIR"),
		SyncWrites:    v.GetBool("SYNC_WRITES"),
		RetentionDays: v.GetInt("RETENTION_DAYS"),
		LogLevel:      v.GetString("LOG_LEVEL"),
	}, nil
}
