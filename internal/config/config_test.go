package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	assert.Equal(t, "127.0.0.1:8300", cfg.Server.Addr())
	assert.Equal(t, "ransomchat.db", cfg.Store.Path)
	assert.Empty(t, cfg.Redis.Addr)
	assert.Equal(t, "behaviours", cfg.Personas.Dir)
	assert.Equal(t, "https://api.openai.com/v1", cfg.LLM.BaseURL)
	assert.Equal(t, 4, cfg.Scheduler.Workers)
	assert.Equal(t, 10*time.Minute, cfg.Scheduler.LockTTL.Std())
	assert.Equal(t, 60, cfg.Scheduler.LockRetries)
	assert.Equal(t, time.Second, cfg.Scheduler.LockRetryInterval.Std())
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load("/nonexistent/path/config.yaml")
	require.NoError(t, err)
	// Should return defaults
	assert.Equal(t, 8300, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadValidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	yaml := `
server:
  host: 0.0.0.0
  port: 9300
store:
  path: /var/lib/ransomchat/chats.db
redis:
  addr: redis:6379
  db: 2
personas:
  dir: /etc/ransomchat/behaviours
llm:
  baseUrl: https://llm.internal/v1
  model: gpt-4o-mini
scheduler:
  workers: 8
  lockTtl: 5m
  lockRetryInterval: 500ms
logging:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9300", cfg.Server.Addr())
	assert.Equal(t, "/var/lib/ransomchat/chats.db", cfg.Store.Path)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.Equal(t, 2, cfg.Redis.DB)
	assert.Equal(t, "/etc/ransomchat/behaviours", cfg.Personas.Dir)
	assert.Equal(t, "https://llm.internal/v1", cfg.LLM.BaseURL)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	assert.Equal(t, 8, cfg.Scheduler.Workers)
	assert.Equal(t, 5*time.Minute, cfg.Scheduler.LockTTL.Std())
	assert.Equal(t, 500*time.Millisecond, cfg.Scheduler.LockRetryInterval.Std())
	// Unset fields keep their defaults
	assert.Equal(t, 64, cfg.Scheduler.QueueSize)
	assert.Equal(t, 60, cfg.Scheduler.LockRetries)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{{invalid yaml"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config")
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("RANSOMCHAT_SERVER_PORT", "12345")
	t.Setenv("RANSOMCHAT_REDIS_ADDR", "10.0.0.7:6379")
	t.Setenv("RANSOMCHAT_LOG_LEVEL", "DEBUG")

	cfg, err := Load("/nonexistent/config.yaml")
	require.NoError(t, err)

	assert.Equal(t, 12345, cfg.Server.Port)
	assert.Equal(t, "10.0.0.7:6379", cfg.Redis.Addr)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestExpandSensitiveFields(t *testing.T) {
	t.Setenv("TEST_REDIS_PASS", "s3cret")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"redis:\n  addr: redis:6379\n  password: ${TEST_REDIS_PASS}\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "s3cret", cfg.Redis.Password)
}

func TestExpandUnsetVarLeftAlone(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"redis:\n  password: ${RANSOMCHAT_NO_SUCH_VAR}\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "${RANSOMCHAT_NO_SUCH_VAR}", cfg.Redis.Password)
}

func TestValidateValid(t *testing.T) {
	cfg := Defaults()
	issues := Validate(&cfg)
	assert.Empty(t, issues)
}

func TestValidateInvalidPort(t *testing.T) {
	cfg := Defaults()
	cfg.Server.Port = 99999
	issues := Validate(&cfg)
	require.Len(t, issues, 1)
	assert.Equal(t, "server.port", issues[0].Path)
}

func TestValidateInvalidLogLevel(t *testing.T) {
	cfg := Defaults()
	cfg.Logging.Level = "verbose"
	issues := Validate(&cfg)
	require.Len(t, issues, 1)
	assert.Equal(t, "logging.level", issues[0].Path)
}
