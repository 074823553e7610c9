// Package config loads lobbynet settings. Sources apply in order: built-in
// defaults, an optional YAML file, then LOBBYNET_* environment variables.
// Binaries apply their command-line flags last.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "LOBBYNET_"

// Config is shared by the peer CLI and the lobby hub.
type Config struct {
	// Peer
	LobbyURL          string   `yaml:"lobby_url" env:"LOBBY_URL"`
	Name              string   `yaml:"name" env:"NAME"`
	TickRate          int      `yaml:"tick_rate" env:"TICK_RATE"`
	ReceiveBatch      int      `yaml:"receive_batch" env:"RECEIVE_BATCH"`
	ChatLogCapacity   int      `yaml:"chat_log_capacity" env:"CHAT_LOG_CAPACITY"`
	STUNServers       []string `yaml:"stun_servers" env:"STUN_SERVERS" envSeparator:","`
	ResetDedupOnLeave bool     `yaml:"reset_dedup_on_leave" env:"RESET_DEDUP_ON_LEAVE"`
	LocalEcho         bool     `yaml:"local_echo" env:"LOCAL_ECHO"`

	// Hub
	Listen      string  `yaml:"listen" env:"LISTEN"`
	MetricsAddr string  `yaml:"metrics_addr" env:"METRICS_ADDR"`
	ChatRate    float64 `yaml:"chat_rate" env:"CHAT_RATE"`
	ChatBurst   int     `yaml:"chat_burst" env:"CHAT_BURST"`
	MaxMembers  int     `yaml:"max_members" env:"MAX_MEMBERS"`

	Debug bool `yaml:"debug" env:"DEBUG"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		LobbyURL:        "ws://localhost:8787/ws",
		TickRate:        30,
		ReceiveBatch:    64,
		ChatLogCapacity: 200,
		STUNServers: []string{
			"stun:stun.l.google.com:19302",
			"stun:stun1.l.google.com:19302",
		},
		Listen:     ":8787",
		ChatRate:   5,
		ChatBurst:  10,
		MaxMembers: 8,
	}
}

// Load builds a Config from defaults, the YAML file at path (skipped when
// path is empty) and the environment, then validates it.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("config file not found: %s", path)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports the first setting that cannot work.
func (c *Config) Validate() error {
	switch {
	case c.TickRate < 1 || c.TickRate > 1000:
		return fmt.Errorf("invalid config: tick_rate %d outside [1, 1000]", c.TickRate)
	case c.ReceiveBatch < 1:
		return fmt.Errorf("invalid config: receive_batch must be positive, got %d", c.ReceiveBatch)
	case c.ChatLogCapacity < 1:
		return fmt.Errorf("invalid config: chat_log_capacity must be positive, got %d", c.ChatLogCapacity)
	case c.ChatRate <= 0:
		return fmt.Errorf("invalid config: chat_rate must be positive, got %g", c.ChatRate)
	case c.ChatBurst < 1:
		return fmt.Errorf("invalid config: chat_burst must be positive, got %d", c.ChatBurst)
	case c.MaxMembers < 1:
		return fmt.Errorf("invalid config: max_members must be positive, got %d", c.MaxMembers)
	}

	u, err := url.Parse(c.LobbyURL)
	if err != nil {
		return fmt.Errorf("invalid config: lobby_url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("invalid config: lobby_url must use ws or wss, got %q", c.LobbyURL)
	}
	return nil
}
