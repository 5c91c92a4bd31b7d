package domain

import (
	"time"
)

// Config represents the main application configuration
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Store       StoreConfig       `mapstructure:"store"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Backend     BackendConfig     `mapstructure:"backend"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Session     SessionConfig     `mapstructure:"session"`
	Observation ObservationConfig `mapstructure:"observation"`
	History     HistoryConfig     `mapstructure:"history"`
	RateLimit   RateLimitConfig   `mapstructure:"rate_limit"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
}

// StoreConfig selects the evaluation store adapter.
type StoreConfig struct {
	Driver string `mapstructure:"driver"` // "postgres" or "memory"
	Seed   bool   `mapstructure:"seed"`   // seed the memory store with demo records
}

// DatabaseConfig represents database connection configuration
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Database        string        `mapstructure:"database"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

// BackendConfig points at the ML prediction service.
type BackendConfig struct {
	URL       string        `mapstructure:"url"`
	Mode      string        `mapstructure:"mode"` // "live" or "mock"
	Timeout   time.Duration `mapstructure:"timeout"`
	AnonKey   string        `mapstructure:"anon_key"`
	HealthTTL time.Duration `mapstructure:"health_ttl"`
}

// AuthConfig configures identity verification.
type AuthConfig struct {
	Provider         string        `mapstructure:"provider"` // "jwt" or "static"
	URL              string        `mapstructure:"url"`      // identity service used for sign-in
	JWTSecret        string        `mapstructure:"jwt_secret"`
	Audience         string        `mapstructure:"audience"`
	BootstrapTimeout time.Duration `mapstructure:"bootstrap_timeout"`
	DemoUser         string        `mapstructure:"demo_user"`
	DemoPassword     string        `mapstructure:"demo_password"`
}

// SessionConfig selects where application state is kept between requests.
type SessionConfig struct {
	Backend    string        `mapstructure:"backend"` // "memory" or "redis"
	RedisURL   string        `mapstructure:"redis_url"`
	TTL        time.Duration `mapstructure:"ttl"`
	MaxEntries int           `mapstructure:"max_entries"`
}

// ObservationConfig selects the clinical observation store.
type ObservationConfig struct {
	Driver string `mapstructure:"driver"` // "sqlite" or "postgres"
	Path   string `mapstructure:"path"`
}

// HistoryConfig tunes the history query engine.
type HistoryConfig struct {
	PageSize     int      `mapstructure:"page_size"`
	FetchLimit   int      `mapstructure:"fetch_limit"`
	SearchFields []string `mapstructure:"search_fields"`
	CacheSize    int      `mapstructure:"cache_size"`
}

// RateLimitConfig bounds requests per client.
type RateLimitConfig struct {
	Enabled    bool `mapstructure:"enabled"`
	PerMinute  int  `mapstructure:"per_minute"`
	Burst      int  `mapstructure:"burst"`
	MaxClients int  `mapstructure:"max_clients"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
