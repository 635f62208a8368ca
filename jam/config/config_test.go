package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/noobtra/soundcloud-jam/jam/protocol"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.ServerURL != protocol.DefaultServerURL {
		t.Errorf("Expected default server URL %s, got %s", protocol.DefaultServerURL, cfg.ServerURL)
	}
	if cfg.ListenAddr != "127.0.0.1:9006" {
		t.Errorf("Expected default listen address 127.0.0.1:9006, got %s", cfg.ListenAddr)
	}
	if cfg.PingIntervalMs != protocol.DefaultPingIntervalMs {
		t.Errorf("Expected ping interval %d, got %d", protocol.DefaultPingIntervalMs, cfg.PingIntervalMs)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default config should validate, got %v", err)
	}
}

func TestLoad(t *testing.T) {
	t.Run("missing file falls back to defaults", func(t *testing.T) {
		cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if cfg.ServerURL != protocol.DefaultServerURL {
			t.Errorf("Expected default server URL, got %s", cfg.ServerURL)
		}
	})

	t.Run("file overrides defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "jam.json")
		content := `{"server_url": "wss://jam.example.com/ws", "ping_interval_ms": 5000}`
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("Failed to write config file: %v", err)
		}

		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if cfg.ServerURL != "wss://jam.example.com/ws" {
			t.Errorf("Expected file server URL, got %s", cfg.ServerURL)
		}
		if cfg.PingIntervalMs != 5000 {
			t.Errorf("Expected ping interval 5000, got %d", cfg.PingIntervalMs)
		}
		if cfg.ListenAddr != "127.0.0.1:9006" {
			t.Errorf("Unset fields should keep defaults, got %s", cfg.ListenAddr)
		}
	})

	t.Run("malformed file is an error", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "jam.json")
		if err := os.WriteFile(path, []byte("{nope"), 0644); err != nil {
			t.Fatalf("Failed to write config file: %v", err)
		}
		if _, err := Load(path); err == nil {
			t.Error("Malformed config file should be an error")
		}
	})

	t.Run("environment overrides the file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "jam.json")
		content := `{"server_url": "ws://file.example.com/ws"}`
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("Failed to write config file: %v", err)
		}

		t.Setenv("JAM_SERVER_URL", "wss://env.example.com/ws")
		t.Setenv("JAM_RECONNECT_MAX_MS", "60000")
		t.Setenv("JAM_PING_INTERVAL_MS", "not-a-number")

		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if cfg.ServerURL != "wss://env.example.com/ws" {
			t.Errorf("Env should beat the file, got %s", cfg.ServerURL)
		}
		if cfg.ReconnectMaxMs != 60000 {
			t.Errorf("Expected reconnect max 60000, got %d", cfg.ReconnectMaxMs)
		}
		if cfg.PingIntervalMs != protocol.DefaultPingIntervalMs {
			t.Errorf("Unparseable env should be ignored, got %d", cfg.PingIntervalMs)
		}
	})
}

func TestValidate(t *testing.T) {
	mutations := map[string]func(*Config){
		"http server url":     func(c *Config) { c.ServerURL = "http://example.com" },
		"empty listen addr":   func(c *Config) { c.ListenAddr = "" },
		"empty state file":    func(c *Config) { c.StateFile = "" },
		"zero ping interval":  func(c *Config) { c.PingIntervalMs = 0 },
		"zero reconnect base": func(c *Config) { c.ReconnectBaseMs = 0 },
		"max below base":      func(c *Config) { c.ReconnectMaxMs = c.ReconnectBaseMs - 1 },
		"zero keep alive":     func(c *Config) { c.KeepAliveIntervalMs = 0 },
	}

	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestDurationGetters(t *testing.T) {
	cfg := Default()
	if cfg.PingInterval() != 20*time.Second {
		t.Errorf("Expected 20s ping interval, got %v", cfg.PingInterval())
	}
	if cfg.ReconnectBase() != time.Second {
		t.Errorf("Expected 1s reconnect base, got %v", cfg.ReconnectBase())
	}
	if cfg.ReconnectMax() != 30*time.Second {
		t.Errorf("Expected 30s reconnect max, got %v", cfg.ReconnectMax())
	}
	if cfg.KeepAliveInterval() != 24*time.Second {
		t.Errorf("Expected 24s keep-alive interval, got %v", cfg.KeepAliveInterval())
	}
}
