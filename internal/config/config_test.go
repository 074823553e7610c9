package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "lobbynet.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, 30, cfg.TickRate)
	assert.Equal(t, 64, cfg.ReceiveBatch)
	assert.Equal(t, 200, cfg.ChatLogCapacity)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := writeFile(t, `
lobby_url: wss://lobby.example.com/ws
name: Alice
tick_rate: 60
stun_servers: ["stun:stun.example.com:3478"]
reset_dedup_on_leave: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "wss://lobby.example.com/ws", cfg.LobbyURL)
	assert.Equal(t, "Alice", cfg.Name)
	assert.Equal(t, 60, cfg.TickRate)
	assert.Equal(t, []string{"stun:stun.example.com:3478"}, cfg.STUNServers)
	assert.True(t, cfg.ResetDedupOnLeave)
	assert.Equal(t, 64, cfg.ReceiveBatch, "untouched fields keep defaults")
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := writeFile(t, "name: Alice\ntick_rate: 60\n")
	t.Setenv("LOBBYNET_NAME", "Bob")
	t.Setenv("LOBBYNET_STUN_SERVERS", "stun:a:1,stun:b:2")
	t.Setenv("LOBBYNET_DEBUG", "true")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "Bob", cfg.Name)
	assert.Equal(t, 60, cfg.TickRate)
	assert.Equal(t, []string{"stun:a:1", "stun:b:2"}, cfg.STUNServers)
	assert.True(t, cfg.Debug)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "config file not found")

	_, err = Load(writeFile(t, "tick_rate: [oops"))
	assert.ErrorContains(t, err, "parse config")

	t.Setenv("LOBBYNET_TICK_RATE", "fast")
	_, err = Load("")
	assert.ErrorContains(t, err, "parse env")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"tick rate zero", func(c *Config) { c.TickRate = 0 }, "tick_rate"},
		{"tick rate huge", func(c *Config) { c.TickRate = 5000 }, "tick_rate"},
		{"batch", func(c *Config) { c.ReceiveBatch = 0 }, "receive_batch"},
		{"chat log", func(c *Config) { c.ChatLogCapacity = -1 }, "chat_log_capacity"},
		{"chat rate", func(c *Config) { c.ChatRate = 0 }, "chat_rate"},
		{"chat burst", func(c *Config) { c.ChatBurst = 0 }, "chat_burst"},
		{"max members", func(c *Config) { c.MaxMembers = 0 }, "max_members"},
		{"http url", func(c *Config) { c.LobbyURL = "http://localhost/ws" }, "ws or wss"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}

	assert.NoError(t, Default().Validate())
}
