package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	// Run from an empty directory so no stray config.yaml is picked up
	t.Chdir(t.TempDir())
	m, err := NewManager("")
	require.NoError(t, err)
	return m
}

func TestNewManager_Defaults(t *testing.T) {
	m := newTestManager(t)
	cfg := m.GetConfig()

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, "mock", cfg.Backend.Mode)
	assert.Equal(t, DefaultBackendURL, cfg.Backend.URL)
	assert.Equal(t, 5*time.Second, cfg.Auth.BootstrapTimeout)
	assert.Equal(t, "authenticated", cfg.Auth.Audience)
	assert.Equal(t, 8, cfg.History.PageSize)
	assert.Equal(t, 200, cfg.History.FetchLimit)
	assert.Equal(t, []string{"prediccion", "grupo_edad", "triage"}, cfg.History.SearchFields)
	assert.Equal(t, 30, cfg.RateLimit.PerMinute)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.Server.AllowedOrigins)
	assert.NoError(t, m.Validate())
}

func TestNewManager_EnvironmentOverrides(t *testing.T) {
	t.Setenv("FEBRIL_BACKEND_URL", "http://ml.internal:8000")
	t.Setenv("FEBRIL_BACKEND_MODE", "live")
	t.Setenv("FEBRIL_SERVER_PORT", "9191")
	t.Setenv("FEBRIL_HISTORY_PAGE_SIZE", "10")

	m := newTestManager(t)
	cfg := m.GetConfig()

	assert.Equal(t, "http://ml.internal:8000", cfg.Backend.URL)
	assert.Equal(t, "live", cfg.Backend.Mode)
	assert.Equal(t, 9191, cfg.Server.Port)
	assert.Equal(t, 10, cfg.History.PageSize)
}

func TestNewManager_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "febril.yaml")
	content := `
store:
  driver: postgres
database:
  host: db
  database: febril
  username: febril
history:
  search_fields: [prediccion, sexo, area]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	m, err := NewManager(path)
	require.NoError(t, err)

	cfg := m.GetConfig()
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "db", cfg.Database.Host)
	assert.Equal(t, []string{"prediccion", "sexo", "area"}, cfg.History.SearchFields)
	assert.NoError(t, m.Validate())
	assert.Equal(t, "postgres://febril:@db:5432/febril?sslmode=disable", m.GetDatabaseURL())
}

func TestNewManager_MissingExplicitFile(t *testing.T) {
	_, err := NewManager(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestManager_Validate(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{"bad port", map[string]string{"FEBRIL_SERVER_PORT": "70000"}, "invalid server port"},
		{"bad store", map[string]string{"FEBRIL_STORE_DRIVER": "mongo"}, "invalid store driver"},
		{"bad backend mode", map[string]string{"FEBRIL_BACKEND_MODE": "replay"}, "invalid backend mode"},
		{"bad auth provider", map[string]string{"FEBRIL_AUTH_PROVIDER": "oauth"}, "invalid auth provider"},
		{"bad session backend", map[string]string{"FEBRIL_SESSION_BACKEND": "memcached"}, "invalid session backend"},
		{"bad log level", map[string]string{"FEBRIL_LOGGING_LEVEL": "verbose"}, "invalid log level"},
		{"zero page size", map[string]string{"FEBRIL_HISTORY_PAGE_SIZE": "0"}, "history page size"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			m := newTestManager(t)
			err := m.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestManager_Warnings(t *testing.T) {
	t.Setenv("FEBRIL_BACKEND_MODE", "live")
	t.Setenv("FEBRIL_AUTH_PROVIDER", "jwt")

	m := newTestManager(t)
	warnings := m.Warnings()

	require.Len(t, warnings, 3)
	assert.Contains(t, warnings[0], "backend.url")
	assert.Contains(t, warnings[1], "backend.anon_key")
	assert.Contains(t, warnings[2], "auth.jwt_secret")
}

func TestManager_NoWarningsWhenConfigured(t *testing.T) {
	t.Setenv("FEBRIL_BACKEND_URL", "http://ml:8000")

	m := newTestManager(t)

	assert.Empty(t, m.Warnings())
}
