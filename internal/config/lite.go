// Package config provides configuration management for the dashboard server.
// This file contains the lightweight configuration for standalone demo operation.
package config

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/febril-severity-server/internal/domain"
)

// LiteConfig describes a standalone demo deployment. It requires no external
// services: evaluations live in memory, predictions come from the heuristic
// scorer and observations go to a local SQLite file.
type LiteConfig struct {
	// Data storage
	DataDir string // Base directory for the observation database and exports

	// HTTP settings
	HTTPPort int

	// Demo credential accepted by the static identity provider
	DemoUser     string
	DemoPassword string

	// Logging
	LogLevel  string // Log level: debug, info, warn, error
	LogFormat string // Log format: json, text
}

// DefaultLiteConfig returns a configuration with sensible defaults.
func DefaultLiteConfig() *LiteConfig {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".febril-severity")

	return &LiteConfig{
		DataDir:      dataDir,
		HTTPPort:     8080,
		DemoUser:     "prueba",
		DemoPassword: "0258",
		LogLevel:     "info",
		LogFormat:    "json",
	}
}

// LoadLiteConfig loads configuration from environment variables.
// Falls back to defaults if not set.
func LoadLiteConfig() *LiteConfig {
	cfg := DefaultLiteConfig()

	if v := os.Getenv("FEBRIL_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("FEBRIL_HTTP_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.HTTPPort = n
		}
	}
	if v := os.Getenv("FEBRIL_DEMO_USER"); v != "" {
		cfg.DemoUser = v
	}
	if v := os.Getenv("FEBRIL_DEMO_PASSWORD"); v != "" {
		cfg.DemoPassword = v
	}
	if v := os.Getenv("FEBRIL_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("FEBRIL_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}

	return cfg
}

// ObservationDBPath returns the path to the observation SQLite database.
func (c *LiteConfig) ObservationDBPath() string {
	return filepath.Join(c.DataDir, "observations.db")
}

// ExportDir returns the directory for JSON exports.
func (c *LiteConfig) ExportDir() string {
	return filepath.Join(c.DataDir, "exports")
}

// EnsureDataDir creates the data directory if it doesn't exist.
func (c *LiteConfig) EnsureDataDir() error {
	if err := os.MkdirAll(c.DataDir, 0755); err != nil {
		return err
	}
	return os.MkdirAll(c.ExportDir(), 0755)
}

// Apply overlays the demo deployment onto a full configuration.
func (c *LiteConfig) Apply(cfg *domain.Config) {
	cfg.Server.Port = c.HTTPPort
	cfg.Store.Driver = "memory"
	cfg.Store.Seed = true
	cfg.Backend.Mode = "mock"
	cfg.Auth.Provider = "static"
	cfg.Auth.DemoUser = c.DemoUser
	cfg.Auth.DemoPassword = c.DemoPassword
	cfg.Session.Backend = "memory"
	cfg.Observation.Driver = "sqlite"
	cfg.Observation.Path = c.ObservationDBPath()
	cfg.Logging.Level = c.LogLevel
	cfg.Logging.Format = c.LogFormat
}
