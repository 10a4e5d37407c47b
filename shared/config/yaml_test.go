package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const sampleYaml = `
server:
  address: ":9090"
  name: "Test Server"
  version: "1.2.3"
  log_level: "debug"
  authorization: "none"
  session_timeout: "10m"
  stateless: true
  event_retain_limit: 256
  jwt_secret: "topsecret"
  ssl:
    enabled: true
    mode: "acme"
    acme_domains: ["example.com"]
    acme_email: "ops@example.com"
tasks:
  store: "postgres"
  database_url: "postgres://localhost/tasks"
  default_ttl: "1h"
  sweep_interval: "45s"
  list_page_size: 25
users:
  alice:
    keys:
      - "hash-of-alice-key"
    params:
      tier: "gold"
`

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestYamlConfig_Load(t *testing.T) {
	cfg, err := NewYamlConfig(writeConfigFile(t, sampleYaml), zap.NewNop())
	require.NoError(t, err)
	defer cfg.Close()

	addr, err := cfg.ListenAddr()
	require.NoError(t, err)
	assert.Equal(t, ":9090", addr)

	name, err := cfg.ServerName()
	require.NoError(t, err)
	assert.Equal(t, "Test Server", name)

	version, err := cfg.ServerVersion()
	require.NoError(t, err)
	assert.Equal(t, "1.2.3", version)

	level, err := cfg.LogLevel()
	require.NoError(t, err)
	assert.Equal(t, "debug", level)

	authType, err := cfg.AuthorizationType()
	require.NoError(t, err)
	assert.Equal(t, NotAuthorizedEverywhere, authType)

	timeout, err := cfg.SessionTimeout()
	require.NoError(t, err)
	assert.Equal(t, 10*time.Minute, timeout)

	stateless, err := cfg.StatelessMode()
	require.NoError(t, err)
	assert.True(t, stateless)

	retain, err := cfg.EventRetainLimit()
	require.NoError(t, err)
	assert.Equal(t, 256, retain)

	secret, err := cfg.JWTSecret()
	require.NoError(t, err)
	assert.Equal(t, "topsecret", secret)
}

func TestYamlConfig_TaskSettings(t *testing.T) {
	cfg, err := NewYamlConfig(writeConfigFile(t, sampleYaml), zap.NewNop())
	require.NoError(t, err)
	defer cfg.Close()

	backend, err := cfg.TaskStoreBackend()
	require.NoError(t, err)
	assert.Equal(t, "postgres", backend)

	dbURL, err := cfg.TaskDatabaseURL()
	require.NoError(t, err)
	assert.Equal(t, "postgres://localhost/tasks", dbURL)

	ttl, err := cfg.TaskDefaultTTL()
	require.NoError(t, err)
	assert.Equal(t, time.Hour, ttl)

	sweep, err := cfg.TaskSweepInterval()
	require.NoError(t, err)
	assert.Equal(t, 45*time.Second, sweep)

	pageSize, err := cfg.TaskListPageSize()
	require.NoError(t, err)
	assert.Equal(t, 25, pageSize)
}

func TestYamlConfig_SSLSettings(t *testing.T) {
	cfg, err := NewYamlConfig(writeConfigFile(t, sampleYaml), zap.NewNop())
	require.NoError(t, err)
	defer cfg.Close()

	enabled, err := cfg.SSLEnabled()
	require.NoError(t, err)
	assert.True(t, enabled)

	mode, err := cfg.SSLMode()
	require.NoError(t, err)
	assert.Equal(t, "acme", mode)

	domains, err := cfg.SSLAcmeDomains()
	require.NoError(t, err)
	assert.Equal(t, []string{"example.com"}, domains)
}

func TestYamlConfig_Users(t *testing.T) {
	cfg, err := NewYamlConfig(writeConfigFile(t, sampleYaml), zap.NewNop())
	require.NoError(t, err)
	defer cfg.Close()

	userID, err := cfg.GetUserIDByKeyHash("hash-of-alice-key")
	require.NoError(t, err)
	assert.Equal(t, "alice", userID)

	_, err = cfg.GetUserIDByKeyHash("unknown-hash")
	assert.ErrorIs(t, err, ErrNotFound)

	params, err := cfg.GetUserParams("alice")
	require.NoError(t, err)
	assert.Equal(t, "gold", params["tier"])
}

func TestYamlConfig_Defaults(t *testing.T) {
	cfg, err := NewYamlConfig(writeConfigFile(t, "server:\n  address: \":8080\"\n"), zap.NewNop())
	require.NoError(t, err)
	defer cfg.Close()

	// Unspecified authorization falls back to the strict default.
	authType, err := cfg.AuthorizationType()
	require.NoError(t, err)
	assert.Equal(t, AuthorizedUsersOnly, authType)

	timeout, err := cfg.SessionTimeout()
	require.NoError(t, err)
	assert.Equal(t, DefaultSessionTimeout, timeout)

	retain, err := cfg.EventRetainLimit()
	require.NoError(t, err)
	assert.Equal(t, DefaultEventRetainLimit, retain)

	backend, err := cfg.TaskStoreBackend()
	require.NoError(t, err)
	assert.Equal(t, "memory", backend)
}

func TestYamlConfig_InvalidDurationUsesDefault(t *testing.T) {
	content := "server:\n  session_timeout: \"not-a-duration\"\n"
	cfg, err := NewYamlConfig(writeConfigFile(t, content), zap.NewNop())
	require.NoError(t, err)
	defer cfg.Close()

	timeout, err := cfg.SessionTimeout()
	require.NoError(t, err)
	assert.Equal(t, DefaultSessionTimeout, timeout)
}

func TestYamlConfig_MissingFile(t *testing.T) {
	_, err := NewYamlConfig(filepath.Join(t.TempDir(), "missing.yaml"), zap.NewNop())
	assert.Error(t, err)
}

func TestYamlConfig_WatchReloads(t *testing.T) {
	path := writeConfigFile(t, sampleYaml)
	cfg, err := NewYamlConfig(path, zap.NewNop())
	require.NoError(t, err)
	defer cfg.Close()

	require.NoError(t, cfg.Watch())

	updated := "server:\n  address: \":7070\"\n  name: \"Renamed\"\n"
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o600))

	deadline := time.Now().Add(3 * time.Second)
	for {
		name, err := cfg.ServerName()
		require.NoError(t, err)
		if name == "Renamed" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("config was never reloaded after file change")
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestHashAPIKey(t *testing.T) {
	h1 := HashAPIKey("key-1")
	h2 := HashAPIKey("key-1")
	h3 := HashAPIKey("key-2")
	assert.Equal(t, h1, h2)
	assert.NotEqual(t, h1, h3)
	assert.Len(t, h1, 64) // hex-encoded SHA-256
}
