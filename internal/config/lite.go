// Package config provides configuration management for the symptom ledger.
// This file contains the lightweight configuration for standalone operation.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// LiteConfig is the configuration of the standalone server. It requires no
// external databases and uses sensible defaults.
type LiteConfig struct {
	// Data storage
	DataDir string // Base directory for the SQLite files

	// Cache settings
	CacheMaxItems int           // Maximum logs in the memory cache
	CacheTTL      time.Duration // Cache entry lifetime

	// Assessment settings
	EnabledTypes []string // Empty enables every registered type

	// Ledger settings
	MaxConflictRetries int
	StoreTimeout       time.Duration

	// HTTP settings
	HTTPHost string
	HTTPPort int

	// Logging
	LogLevel  string // Log level: debug, info, warn, error
	LogFormat string // Log format: json, text
}

// DefaultLiteConfig returns a configuration with sensible defaults
func DefaultLiteConfig() *LiteConfig {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".symptom-ledger")

	return &LiteConfig{
		DataDir:            dataDir,
		CacheMaxItems:      1000,
		CacheTTL:           15 * time.Minute,
		MaxConflictRetries: 3,
		StoreTimeout:       5 * time.Second,
		HTTPHost:           "127.0.0.1",
		HTTPPort:           8080,
		LogLevel:           "info",
		LogFormat:          "json",
	}
}

// LoadLiteConfig loads configuration from environment variables.
// Falls back to defaults if not set.
func LoadLiteConfig() *LiteConfig {
	cfg := DefaultLiteConfig()

	if v := os.Getenv("SYMPTOM_LEDGER_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}

	if v := os.Getenv("SYMPTOM_LEDGER_CACHE_MAX_ITEMS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.CacheMaxItems = n
		}
	}
	if v := os.Getenv("SYMPTOM_LEDGER_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.CacheTTL = d
		}
	}

	if v := os.Getenv("SYMPTOM_LEDGER_ENABLED_TYPES"); v != "" {
		cfg.EnabledTypes = normalizeTypes(strings.Split(v, ","))
	}

	if v := os.Getenv("SYMPTOM_LEDGER_MAX_CONFLICT_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.MaxConflictRetries = n
		}
	}
	if v := os.Getenv("SYMPTOM_LEDGER_STORE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.StoreTimeout = d
		}
	}

	if v := os.Getenv("SYMPTOM_LEDGER_HTTP_HOST"); v != "" {
		cfg.HTTPHost = v
	}
	if v := os.Getenv("SYMPTOM_LEDGER_HTTP_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.HTTPPort = n
		}
	}

	if v := os.Getenv("SYMPTOM_LEDGER_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("SYMPTOM_LEDGER_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}

	return cfg
}

// LedgerDBPath returns the path to the symptom ledger SQLite database
func (c *LiteConfig) LedgerDBPath() string {
	return filepath.Join(c.DataDir, "ledger.db")
}

// FlagsDBPath returns the path to the biomarker flag SQLite database
func (c *LiteConfig) FlagsDBPath() string {
	return filepath.Join(c.DataDir, "flags.db")
}

// EnsureDataDir creates the data directory if it doesn't exist
func (c *LiteConfig) EnsureDataDir() error {
	return os.MkdirAll(c.DataDir, 0755)
}
