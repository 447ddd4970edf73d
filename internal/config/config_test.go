package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.Address())
	assert.Equal(t, "./data/support.db", cfg.Database.Path)
	assert.Equal(t, "ws://localhost:8080/ws", cfg.Client.RealtimeURL)
	assert.Equal(t, 50, cfg.Client.PageSize)
	assert.Equal(t, 4*time.Second, cfg.Realtime.HeartbeatInterval)
	assert.Equal(t, 5*time.Second, cfg.Realtime.ReconnectDelay)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  host: 127.0.0.1
  port: 9090
auth:
  admin_token: secret
realtime:
  heartbeat_interval: 2s
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9090", cfg.Address())
	assert.Equal(t, "secret", cfg.Auth.AdminToken)
	assert.Equal(t, 2*time.Second, cfg.Realtime.HeartbeatInterval)
	// Unset keys keep their defaults
	assert.Equal(t, 5*time.Second, cfg.Realtime.ReconnectDelay)
}
