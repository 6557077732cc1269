package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if errs := cfg.Validate(); len(errs) > 0 {
		t.Errorf("default config must validate, got %v", errs)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := `
gateway:
  base_url: https://gw.campuslink.app
  api_key: anon-key
realtime:
  url: wss://gw.campuslink.app/realtime
lifecycle:
  debounce_window: 3s
cache:
  path: /tmp/campuslink-cache.db
logging:
  level: debug
  format: json
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Gateway.BaseURL != "https://gw.campuslink.app" {
		t.Errorf("base_url not applied: %s", cfg.Gateway.BaseURL)
	}
	if cfg.Lifecycle.DebounceWindow != 3*time.Second {
		t.Errorf("debounce_window not applied: %v", cfg.Lifecycle.DebounceWindow)
	}
	// Fields absent from the file keep their defaults.
	if cfg.Realtime.HeartbeatInterval != 30*time.Second {
		t.Errorf("heartbeat default lost: %v", cfg.Realtime.HeartbeatInterval)
	}
	if cfg.Lifecycle.HistorySize != 16 {
		t.Errorf("history_size default lost: %d", cfg.Lifecycle.HistorySize)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := `
gateway:
  base_url: https://gw.campuslink.app
  tpyo_field: oops
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected unknown field rejection")
	}
}

func TestValidateAggregatesErrors(t *testing.T) {
	cfg := &Config{
		Gateway:  GatewayConfig{BaseURL: "ftp://nope"},
		Realtime: RealtimeConfig{URL: "https://not-a-socket"},
		Cache:    CacheConfig{},
		Logging:  LoggingConfig{Level: "loud", Format: "xml"},
	}
	errs := cfg.Validate()
	if len(errs) < 4 {
		t.Fatalf("expected all problems reported at once, got %d: %v", len(errs), errs)
	}

	paths := make(map[string]bool)
	for _, e := range errs {
		ve, ok := e.(ValidationError)
		if !ok {
			t.Fatalf("expected ValidationError, got %T", e)
		}
		paths[ve.Path] = true
	}
	for _, want := range []string{"gateway.base_url", "realtime.url", "cache.path", "logging.level", "logging.format"} {
		if !paths[want] {
			t.Errorf("missing validation error for %s in %v", want, errs)
		}
	}
}

func TestValidationErrorIncludesHint(t *testing.T) {
	err := ValidationError{Path: "realtime.url", Message: "invalid scheme", Hint: "expected ws:// or wss://"}
	s := err.Error()
	if !strings.Contains(s, "realtime.url") || !strings.Contains(s, "expected ws://") {
		t.Errorf("unhelpful error string: %s", s)
	}
}

func TestValidateOlricServers(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Cache.OlricServers = []string{"127.0.0.1:3320", "127.0.0.1:3320", "no-port"}
	errs := cfg.Validate()
	if len(errs) != 2 {
		t.Fatalf("expected duplicate and malformed server errors, got %v", errs)
	}
}
