package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/noobtra/soundcloud-jam/jam/protocol"
)

var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the agent configuration. Interval fields are milliseconds, to
// match the wire protocol's timestamp unit.
type Config struct {
	ServerURL           string `json:"server_url"`
	ListenAddr          string `json:"listen_addr"`
	StateFile           string `json:"state_file"`
	AllowedOrigin       string `json:"allowed_origin"`
	PingIntervalMs      int    `json:"ping_interval_ms"`
	ReconnectBaseMs     int    `json:"reconnect_base_ms"`
	ReconnectMaxMs      int    `json:"reconnect_max_ms"`
	KeepAliveIntervalMs int    `json:"keep_alive_interval_ms"`
}

// Default returns the production configuration.
func Default() *Config {
	return &Config{
		ServerURL:           protocol.DefaultServerURL,
		ListenAddr:          "127.0.0.1:9006",
		StateFile:           "data/jam_state.json",
		AllowedOrigin:       "https://soundcloud.com",
		PingIntervalMs:      protocol.DefaultPingIntervalMs,
		ReconnectBaseMs:     protocol.DefaultReconnectBaseMs,
		ReconnectMaxMs:      protocol.DefaultReconnectMaxMs,
		KeepAliveIntervalMs: 24_000,
	}
}

// Load builds the configuration from defaults, an optional JSON file, and
// JAM_* environment variables, in that order.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// Optional file; defaults + env apply.
		case err != nil:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := json.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays JAM_* environment variables.
func (c *Config) applyEnv() {
	if v := os.Getenv("JAM_SERVER_URL"); v != "" {
		c.ServerURL = v
	}
	if v := os.Getenv("JAM_LISTEN_ADDR"); v != "" {
		c.ListenAddr = v
	}
	if v := os.Getenv("JAM_STATE_FILE"); v != "" {
		c.StateFile = v
	}
	if v := os.Getenv("JAM_ALLOWED_ORIGIN"); v != "" {
		c.AllowedOrigin = v
	}
	intEnv("JAM_PING_INTERVAL_MS", &c.PingIntervalMs)
	intEnv("JAM_RECONNECT_BASE_MS", &c.ReconnectBaseMs)
	intEnv("JAM_RECONNECT_MAX_MS", &c.ReconnectMaxMs)
	intEnv("JAM_KEEP_ALIVE_INTERVAL_MS", &c.KeepAliveIntervalMs)
}

func intEnv(key string, dst *int) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return
	}
	*dst = n
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if !strings.HasPrefix(c.ServerURL, "ws://") && !strings.HasPrefix(c.ServerURL, "wss://") {
		return fmt.Errorf("%w: server_url must be a ws:// or wss:// URL", ErrInvalidConfig)
	}
	if c.ListenAddr == "" {
		return fmt.Errorf("%w: listen_addr is required", ErrInvalidConfig)
	}
	if c.StateFile == "" {
		return fmt.Errorf("%w: state_file is required", ErrInvalidConfig)
	}
	if c.PingIntervalMs <= 0 {
		return fmt.Errorf("%w: ping_interval_ms must be positive", ErrInvalidConfig)
	}
	if c.ReconnectBaseMs <= 0 || c.ReconnectMaxMs < c.ReconnectBaseMs {
		return fmt.Errorf("%w: reconnect delays must satisfy 0 < base <= max", ErrInvalidConfig)
	}
	if c.KeepAliveIntervalMs <= 0 {
		return fmt.Errorf("%w: keep_alive_interval_ms must be positive", ErrInvalidConfig)
	}
	return nil
}

// Duration getters.

func (c *Config) PingInterval() time.Duration {
	return time.Duration(c.PingIntervalMs) * time.Millisecond
}

func (c *Config) ReconnectBase() time.Duration {
	return time.Duration(c.ReconnectBaseMs) * time.Millisecond
}

func (c *Config) ReconnectMax() time.Duration {
	return time.Duration(c.ReconnectMaxMs) * time.Millisecond
}

func (c *Config) KeepAliveInterval() time.Duration {
	return time.Duration(c.KeepAliveIntervalMs) * time.Millisecond
}
