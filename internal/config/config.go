package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/febril-severity-server/internal/domain"
)

// Manager implements the ConfigManager interface using Viper
type Manager struct {
	v      *viper.Viper
	config *domain.Config
	file   string

	backendDefaulted bool
}

// DefaultBackendURL is used when no backend origin is configured.
const DefaultBackendURL = "http://localhost:8000"

// NewManager creates a new configuration manager. An empty configFile
// searches the default locations for config.yaml.
func NewManager(configFile string) (*Manager, error) {
	m := &Manager{file: configFile}
	if err := m.loadConfig(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return m, nil
}

// loadConfig loads configuration from various sources
func (m *Manager) loadConfig() error {
	v := viper.New()

	if m.file != "" {
		v.SetConfigFile(m.file)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/febril-severity-server/")
	}

	// FEBRIL_BACKEND_URL overrides backend.url, and so on
	v.SetEnvPrefix("FEBRIL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Read configuration file (optional - will use defaults and env vars if not found)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &domain.Config{}
	if err := v.Unmarshal(config); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	m.backendDefaulted = config.Backend.URL == ""
	if m.backendDefaulted {
		config.Backend.URL = DefaultBackendURL
	}

	m.v = v
	m.config = config
	return nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.request_timeout", "30s")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})

	// Store defaults
	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.seed", true)

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.database", "febril")
	v.SetDefault("database.username", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "5m")
	v.SetDefault("database.migrations_path", "migrations")

	// Prediction backend defaults
	v.SetDefault("backend.url", "")
	v.SetDefault("backend.mode", "mock")
	v.SetDefault("backend.timeout", "15s")
	v.SetDefault("backend.anon_key", "")
	v.SetDefault("backend.health_ttl", "10s")

	// Auth defaults
	v.SetDefault("auth.provider", "static")
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.url", "")
	v.SetDefault("auth.audience", "authenticated")
	v.SetDefault("auth.bootstrap_timeout", "5s")
	v.SetDefault("auth.demo_user", "prueba")
	v.SetDefault("auth.demo_password", "0258")

	// Session defaults
	v.SetDefault("session.backend", "memory")
	v.SetDefault("session.redis_url", "redis://localhost:6379/0")
	v.SetDefault("session.ttl", "12h")
	v.SetDefault("session.max_entries", 10000)

	// Observation defaults
	v.SetDefault("observation.driver", "sqlite")
	v.SetDefault("observation.path", "")

	// History defaults
	v.SetDefault("history.page_size", 8)
	v.SetDefault("history.fetch_limit", 200)
	v.SetDefault("history.search_fields", []string{"prediccion", "grupo_edad", "triage"})
	v.SetDefault("history.cache_size", 128)

	// Rate limit defaults
	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.per_minute", 30)
	v.SetDefault("rate_limit.burst", 10)
	v.SetDefault("rate_limit.max_clients", 4096)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
}

// GetConfig returns the complete configuration
func (m *Manager) GetConfig() *domain.Config {
	return m.config
}

// GetDatabaseConfig returns database configuration
func (m *Manager) GetDatabaseConfig() *domain.DatabaseConfig {
	return &m.config.Database
}

// GetServerConfig returns server configuration
func (m *Manager) GetServerConfig() *domain.ServerConfig {
	return &m.config.Server
}

// GetBackendConfig returns the prediction backend configuration
func (m *Manager) GetBackendConfig() *domain.BackendConfig {
	return &m.config.Backend
}

// Reload reloads the configuration
func (m *Manager) Reload() error {
	return m.loadConfig()
}

// Validate validates the configuration
func (m *Manager) Validate() error {
	config := m.config

	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	switch config.Store.Driver {
	case "memory":
	case "postgres":
		if config.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}
		if config.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
		if config.Database.Username == "" {
			return fmt.Errorf("database username is required")
		}
	default:
		return fmt.Errorf("invalid store driver: %s", config.Store.Driver)
	}

	switch config.Backend.Mode {
	case "live", "mock":
	default:
		return fmt.Errorf("invalid backend mode: %s", config.Backend.Mode)
	}

	switch config.Auth.Provider {
	case "jwt", "static":
	default:
		return fmt.Errorf("invalid auth provider: %s", config.Auth.Provider)
	}

	switch config.Session.Backend {
	case "memory":
	case "redis":
		if config.Session.RedisURL == "" {
			return fmt.Errorf("redis URL is required for the redis session backend")
		}
	default:
		return fmt.Errorf("invalid session backend: %s", config.Session.Backend)
	}

	switch config.Observation.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("invalid observation driver: %s", config.Observation.Driver)
	}

	if config.History.PageSize <= 0 {
		return fmt.Errorf("history page size must be positive: %d", config.History.PageSize)
	}
	if config.Auth.BootstrapTimeout <= 0 {
		return fmt.Errorf("auth bootstrap timeout must be positive")
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(config.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", config.Logging.Level)
	}

	return nil
}

// Warnings reports settings that are missing but not fatal. Read-only pages
// keep working without them; authenticated flows generally do not.
func (m *Manager) Warnings() []string {
	var warnings []string
	cfg := m.config
	if m.backendDefaulted {
		warnings = append(warnings, "backend.url not set, using "+cfg.Backend.URL)
	}
	if cfg.Backend.Mode == "live" && cfg.Backend.AnonKey == "" {
		warnings = append(warnings, "backend.anon_key not set, data service requests are anonymous")
	}
	if cfg.Auth.Provider == "jwt" && cfg.Auth.JWTSecret == "" {
		warnings = append(warnings, "auth.jwt_secret not set, every request runs as the development user")
	}
	return warnings
}

// LogWarnings emits Warnings through the given logger.
func (m *Manager) LogWarnings(logger *logrus.Logger) {
	for _, w := range m.Warnings() {
		logger.WithField("component", "config").Warn(w)
	}
}

// GetDatabaseConnectionString returns a formatted database connection string
func (m *Manager) GetDatabaseConnectionString() string {
	db := m.config.Database
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		db.Host, db.Port, db.Username, db.Password, db.Database, db.SSLMode)
}

// GetDatabaseURL returns the database configuration as a postgres:// URL,
// the form golang-migrate expects.
func (m *Manager) GetDatabaseURL() string {
	db := m.config.Database
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		db.Username, db.Password, db.Host, db.Port, db.Database, db.SSLMode)
}

// ConfigFileUsed returns the config file that was read, or "" when only
// defaults and the environment applied.
func (m *Manager) ConfigFileUsed() string {
	return m.v.ConfigFileUsed()
}

// IsProduction returns true if running in production mode
func (m *Manager) IsProduction() bool {
	return strings.ToLower(m.v.GetString("environment")) == "production"
}

// IsDevelopment returns true if running in development mode
func (m *Manager) IsDevelopment() bool {
	env := strings.ToLower(m.v.GetString("environment"))
	return env == "development" || env == "dev" || env == ""
}
