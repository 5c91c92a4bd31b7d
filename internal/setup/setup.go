// Package setup inspects a deployment before the server starts: where its
// data lives, which adapters are selected and what still needs attention.
package setup

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/febril-severity-server/internal/domain"
)

// Status represents the current setup status.
type Status struct {
	ConfigFile         string
	StoreDriver        string
	BackendMode        string
	BackendURL         string
	AuthProvider       string
	SessionBackend     string
	ObservationDriver  string
	ObservationDB      string
	ObservationDBFound bool
	DataDir            string
	DataDirFound       bool
	Issues             []string
}

// GetStatus checks the deployment described by cfg. configFile is the file
// the configuration was loaded from, or "" when only defaults and the
// environment were used.
func GetStatus(cfg *domain.Config, configFile string) *Status {
	status := &Status{
		ConfigFile:        configFile,
		StoreDriver:       cfg.Store.Driver,
		BackendMode:       cfg.Backend.Mode,
		BackendURL:        cfg.Backend.URL,
		AuthProvider:      cfg.Auth.Provider,
		SessionBackend:    cfg.Session.Backend,
		ObservationDriver: cfg.Observation.Driver,
		Issues:            []string{},
	}

	if cfg.Observation.Driver == "sqlite" && cfg.Observation.Path != "" {
		status.ObservationDB = cfg.Observation.Path
		status.DataDir = filepath.Dir(cfg.Observation.Path)

		if _, err := os.Stat(status.DataDir); err == nil {
			status.DataDirFound = true
		} else {
			status.Issues = append(status.Issues, fmt.Sprintf("Data directory will be created on first run: %s", status.DataDir))
		}
		if _, err := os.Stat(status.ObservationDB); err == nil {
			status.ObservationDBFound = true
		}
	}

	return status
}

// Validate checks cfg for settings that would make the server start in a
// state it cannot serve from. Missing data directories are warnings only.
func Validate(cfg *domain.Config) (bool, []string) {
	var issues []string

	if cfg.Backend.Mode == "live" && strings.TrimSpace(cfg.Backend.URL) == "" {
		issues = append(issues, "Backend mode is live but no backend URL is set")
	}
	if cfg.Store.Driver == "postgres" && cfg.Database.Host == "" {
		issues = append(issues, "Postgres store selected but database.host is empty")
	}
	if cfg.Session.Backend == "redis" && cfg.Session.RedisURL == "" {
		issues = append(issues, "Redis sessions selected but session.redis_url is empty")
	}
	if cfg.Auth.Provider == "static" && cfg.Auth.DemoUser == "" {
		issues = append(issues, "Static identity provider has no demo user")
	}
	if cfg.Auth.Provider == "jwt" && cfg.Auth.JWTSecret == "" {
		issues = append(issues, "JWT provider has no secret; tokens will not be verified")
	}

	if cfg.Observation.Driver == "sqlite" {
		if cfg.Observation.Path == "" {
			issues = append(issues, "SQLite observations selected but observation.path is empty")
		} else if _, err := os.Stat(filepath.Dir(cfg.Observation.Path)); os.IsNotExist(err) {
			issues = append(issues, fmt.Sprintf("Data directory will be created on first run: %s", filepath.Dir(cfg.Observation.Path)))
		}
	}

	return len(issues) == 0 || allWarnings(issues), issues
}

// allWarnings returns true if all issues are just warnings (not errors).
func allWarnings(issues []string) bool {
	for _, issue := range issues {
		if !strings.Contains(issue, "will be created") && !strings.Contains(issue, "will not be verified") {
			return false
		}
	}
	return true
}

// EnsureDataDir creates the data directory and its exports subdirectory.
func EnsureDataDir(dataDir string) error {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	path := filepath.Join(dataDir, "exports")
	if err := os.MkdirAll(path, 0755); err != nil {
		return fmt.Errorf("failed to create exports directory: %w", err)
	}

	return nil
}
