package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	content := `
supabase:
  url: https://example.supabase.co
  key: service-role-key
server:
  port: 9000
  response_deadline_seconds: 60
rpa:
  login_wait_seconds: 30
  debug_dir: /tmp/debug
storage:
  database_path: runs.db
observability:
  logging:
    level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://example.supabase.co", cfg.Supabase.URL)
	assert.Equal(t, "service-role-key", cfg.Supabase.Key)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "runs.db", cfg.Storage.DatabasePath)
	assert.Equal(t, "debug", cfg.Observability.Logging.Level)
	assert.Equal(t, 60, cfg.Server.ResponseDeadlineSeconds)
	assert.Equal(t, float64(30), cfg.RPA.LoginWait().Seconds())
}

func TestLoadExpandsEnvVars(t *testing.T) {
	os.Setenv("TEST_SUPABASE_KEY", "expanded-key")
	defer os.Unsetenv("TEST_SUPABASE_KEY")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "supabase:\n  url: https://x.supabase.co\n  key: ${TEST_SUPABASE_KEY}\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "expanded-key", cfg.Supabase.Key)
}

func TestLoadFromEnv(t *testing.T) {
	os.Setenv("SUPABASE_URL", "https://env.supabase.co")
	os.Setenv("SUPABASE_KEY", "env-key")
	os.Setenv("RPA_DB_PATH", "test.db")
	defer func() {
		os.Unsetenv("SUPABASE_URL")
		os.Unsetenv("SUPABASE_KEY")
		os.Unsetenv("RPA_DB_PATH")
	}()

	cfg := LoadFromEnv()
	assert.Equal(t, "https://env.supabase.co", cfg.Supabase.URL)
	assert.Equal(t, "env-key", cfg.Supabase.Key)
	assert.Equal(t, "test.db", cfg.Storage.DatabasePath)
	assert.NoError(t, cfg.Validate())
}

func TestValidateRequiresCredentials(t *testing.T) {
	cfg := &Config{}
	assert.Error(t, cfg.Validate())

	cfg.Supabase.URL = "https://x.supabase.co"
	assert.Error(t, cfg.Validate())

	cfg.Supabase.Key = "k"
	assert.NoError(t, cfg.Validate())
}

func TestDurationDefaults(t *testing.T) {
	cfg := &Config{}
	assert.Equal(t, float64(300), cfg.Server.ResponseDeadline().Seconds())
	assert.Equal(t, float64(120), cfg.RPA.LoginWait().Seconds())
}
