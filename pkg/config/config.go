package config

import (
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full client configuration.
type Config struct {
	Gateway   GatewayConfig   `yaml:"gateway"`
	Realtime  RealtimeConfig  `yaml:"realtime"`
	Lifecycle LifecycleConfig `yaml:"lifecycle"`
	Cache     CacheConfig     `yaml:"cache"`
	Logging   LoggingConfig   `yaml:"logging"`
	Status    StatusConfig    `yaml:"status"`
}

// GatewayConfig points at the campus gateway's HTTP API.
type GatewayConfig struct {
	BaseURL string        `yaml:"base_url"` // e.g. https://gw.campuslink.app
	APIKey  string        `yaml:"api_key"`  // Sent as X-API-Key on every request
	Timeout time.Duration `yaml:"timeout"`  // Session round-trip timeout (default: 10s)
}

// RealtimeConfig configures the websocket transport.
type RealtimeConfig struct {
	URL               string        `yaml:"url"`                // e.g. wss://gw.campuslink.app/realtime
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"` // default: 30s
	JoinTimeout       time.Duration `yaml:"join_timeout"`       // default: 10s
	WriteTimeout      time.Duration `yaml:"write_timeout"`      // default: 5s
}

// LifecycleConfig tunes the resume routine.
type LifecycleConfig struct {
	DebounceWindow   time.Duration `yaml:"debounce_window"`   // default: 2s
	RefreshThreshold time.Duration `yaml:"refresh_threshold"` // default: 5m
	HistorySize      int           `yaml:"history_size"`      // resume records kept (default: 16)
}

// CacheConfig configures the local query cache and the optional shared cache.
type CacheConfig struct {
	// Path is the SQLite cache file. ":memory:" keeps it ephemeral.
	Path string `yaml:"path"`

	// OlricServers, when set, enables shared cache invalidation across
	// processes on the same host or cluster.
	OlricServers []string      `yaml:"olric_servers"`
	OlricTimeout time.Duration `yaml:"olric_timeout"` // default: 5s
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level      string `yaml:"level"`       // debug, info, warn, error
	Format     string `yaml:"format"`      // json, console
	OutputFile string `yaml:"output_file"` // Empty for stdout
}

// StatusConfig configures the local status HTTP server.
type StatusConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"` // e.g. 127.0.0.1:8090
}

// DefaultConfig returns a configuration with sane development defaults.
func DefaultConfig() *Config {
	return &Config{
		Gateway: GatewayConfig{
			BaseURL: "http://localhost:8080",
			Timeout: 10 * time.Second,
		},
		Realtime: RealtimeConfig{
			URL:               "ws://localhost:8080/realtime",
			HeartbeatInterval: 30 * time.Second,
			JoinTimeout:       10 * time.Second,
			WriteTimeout:      5 * time.Second,
		},
		Lifecycle: LifecycleConfig{
			DebounceWindow:   2 * time.Second,
			RefreshThreshold: 5 * time.Minute,
			HistorySize:      16,
		},
		Cache: CacheConfig{
			Path:         ":memory:",
			OlricTimeout: 5 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Status: StatusConfig{
			Enabled:    true,
			ListenAddr: "127.0.0.1:8090",
		},
	}
}

// DecodeStrict decodes YAML from a reader and rejects any unknown fields.
func DecodeStrict(r io.Reader, out interface{}) error {
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Load reads the config file at path on top of the defaults and validates
// the result.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	if err := DecodeStrict(f, cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("config validation failed: %w", joinErrors(errs))
	}
	return cfg, nil
}

func joinErrors(errs []error) error {
	msg := ""
	for i, e := range errs {
		if i > 0 {
			msg += "; "
		}
		msg += e.Error()
	}
	return fmt.Errorf("%s", msg)
}
