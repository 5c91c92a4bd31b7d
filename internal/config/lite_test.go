package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/febril-severity-server/internal/domain"
)

func TestDefaultLiteConfig(t *testing.T) {
	cfg := DefaultLiteConfig()

	assert.NotEmpty(t, cfg.DataDir)
	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, "prueba", cfg.DemoUser)
	assert.Equal(t, "0258", cfg.DemoPassword)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
}

func TestLoadLiteConfig_Defaults(t *testing.T) {
	clearEnvVars(t)

	cfg := LoadLiteConfig()

	assert.NotEmpty(t, cfg.DataDir)
	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, "prueba", cfg.DemoUser)
}

func TestLoadLiteConfig_EnvironmentOverrides(t *testing.T) {
	clearEnvVars(t)

	t.Setenv("FEBRIL_DATA_DIR", "/tmp/test-febril")
	t.Setenv("FEBRIL_HTTP_PORT", "9090")
	t.Setenv("FEBRIL_DEMO_USER", "demo")
	t.Setenv("FEBRIL_LOG_LEVEL", "debug")

	cfg := LoadLiteConfig()

	assert.Equal(t, "/tmp/test-febril", cfg.DataDir)
	assert.Equal(t, 9090, cfg.HTTPPort)
	assert.Equal(t, "demo", cfg.DemoUser)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadLiteConfig_InvalidPortIgnored(t *testing.T) {
	clearEnvVars(t)
	t.Setenv("FEBRIL_HTTP_PORT", "not-a-port")

	cfg := LoadLiteConfig()

	assert.Equal(t, 8080, cfg.HTTPPort)
}

func TestLiteConfig_ObservationDBPath(t *testing.T) {
	cfg := &LiteConfig{DataDir: "/home/user/.febril-severity"}

	assert.Equal(t, "/home/user/.febril-severity/observations.db", cfg.ObservationDBPath())
	assert.Equal(t, "/home/user/.febril-severity/exports", cfg.ExportDir())
}

func TestLiteConfig_EnsureDataDir(t *testing.T) {
	tmpDir := t.TempDir()

	cfg := &LiteConfig{DataDir: filepath.Join(tmpDir, "febril")}

	err := cfg.EnsureDataDir()
	require.NoError(t, err)

	_, err = os.Stat(cfg.DataDir)
	assert.NoError(t, err)

	_, err = os.Stat(cfg.ExportDir())
	assert.NoError(t, err)
}

func TestLiteConfig_Apply(t *testing.T) {
	lite := &LiteConfig{DataDir: "/data", HTTPPort: 9000, DemoUser: "u", DemoPassword: "p", LogLevel: "warn", LogFormat: "text"}
	cfg := &domain.Config{}
	cfg.Store.Driver = "postgres"
	cfg.Backend.Mode = "live"

	lite.Apply(cfg)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, "mock", cfg.Backend.Mode)
	assert.Equal(t, "static", cfg.Auth.Provider)
	assert.Equal(t, "u", cfg.Auth.DemoUser)
	assert.Equal(t, "/data/observations.db", cfg.Observation.Path)
	assert.Equal(t, "text", cfg.Logging.Format)
}

func clearEnvVars(t *testing.T) {
	t.Helper()
	vars := []string{
		"FEBRIL_DATA_DIR",
		"FEBRIL_HTTP_PORT",
		"FEBRIL_DEMO_USER",
		"FEBRIL_DEMO_PASSWORD",
		"FEBRIL_LOG_LEVEL",
		"FEBRIL_LOG_FORMAT",
	}
	for _, v := range vars {
		t.Setenv(v, "")
		os.Unsetenv(v)
	}
}
