package config

import (
	"fmt"
	"net"
	"net/url"
	"path/filepath"
	"strings"
	"time"
)

// ValidationError represents a single validation error with context.
type ValidationError struct {
	Path    string // e.g. "realtime.url"
	Message string // e.g. "invalid URL"
	Hint    string // e.g. "expected ws:// or wss://"
}

func (e ValidationError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s: %s; %s", e.Path, e.Message, e.Hint)
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// Validate performs validation of the entire config. It aggregates all
// errors and returns them, allowing the caller to print all issues at once.
func (c *Config) Validate() []error {
	var errs []error

	errs = append(errs, c.validateGateway()...)
	errs = append(errs, c.validateRealtime()...)
	errs = append(errs, c.validateLifecycle()...)
	errs = append(errs, c.validateCache()...)
	errs = append(errs, c.validateLogging()...)
	errs = append(errs, c.validateStatus()...)

	return errs
}

func (c *Config) validateGateway() []error {
	var errs []error
	gw := c.Gateway

	if gw.BaseURL == "" {
		errs = append(errs, ValidationError{
			Path:    "gateway.base_url",
			Message: "must not be empty",
		})
	} else if err := validateHTTPURL(gw.BaseURL); err != nil {
		errs = append(errs, ValidationError{
			Path:    "gateway.base_url",
			Message: err.Error(),
			Hint:    "expected http:// or https://",
		})
	}

	if gw.Timeout < 0 {
		errs = append(errs, ValidationError{
			Path:    "gateway.timeout",
			Message: fmt.Sprintf("must be >= 0; got %v", gw.Timeout),
		})
	}

	return errs
}

func (c *Config) validateRealtime() []error {
	var errs []error
	rt := c.Realtime

	if rt.URL == "" {
		errs = append(errs, ValidationError{
			Path:    "realtime.url",
			Message: "must not be empty",
		})
	} else {
		u, err := url.Parse(rt.URL)
		if err != nil {
			errs = append(errs, ValidationError{
				Path:    "realtime.url",
				Message: fmt.Sprintf("invalid URL: %v", err),
			})
		} else if u.Scheme != "ws" && u.Scheme != "wss" {
			errs = append(errs, ValidationError{
				Path:    "realtime.url",
				Message: fmt.Sprintf("invalid scheme %q", u.Scheme),
				Hint:    "expected ws:// or wss://",
			})
		}
	}

	if rt.HeartbeatInterval != 0 && rt.HeartbeatInterval < time.Second {
		errs = append(errs, ValidationError{
			Path:    "realtime.heartbeat_interval",
			Message: fmt.Sprintf("must be >= 1s or 0 (for default); got %v", rt.HeartbeatInterval),
			Hint:    "recommended: 30s",
		})
	}
	if rt.JoinTimeout < 0 {
		errs = append(errs, ValidationError{
			Path:    "realtime.join_timeout",
			Message: fmt.Sprintf("must be >= 0; got %v", rt.JoinTimeout),
		})
	}
	if rt.WriteTimeout < 0 {
		errs = append(errs, ValidationError{
			Path:    "realtime.write_timeout",
			Message: fmt.Sprintf("must be >= 0; got %v", rt.WriteTimeout),
		})
	}

	return errs
}

func (c *Config) validateLifecycle() []error {
	var errs []error
	lc := c.Lifecycle

	if lc.DebounceWindow < 0 {
		errs = append(errs, ValidationError{
			Path:    "lifecycle.debounce_window",
			Message: fmt.Sprintf("must be >= 0; got %v", lc.DebounceWindow),
		})
	}
	if lc.RefreshThreshold < 0 {
		errs = append(errs, ValidationError{
			Path:    "lifecycle.refresh_threshold",
			Message: fmt.Sprintf("must be >= 0; got %v", lc.RefreshThreshold),
		})
	}
	if lc.HistorySize < 0 {
		errs = append(errs, ValidationError{
			Path:    "lifecycle.history_size",
			Message: fmt.Sprintf("must be >= 0; got %d", lc.HistorySize),
		})
	}

	return errs
}

func (c *Config) validateCache() []error {
	var errs []error
	cc := c.Cache

	if cc.Path == "" {
		errs = append(errs, ValidationError{
			Path:    "cache.path",
			Message: "must not be empty",
			Hint:    `use ":memory:" for an ephemeral cache`,
		})
	}

	seen := make(map[string]bool)
	for i, addr := range cc.OlricServers {
		path := fmt.Sprintf("cache.olric_servers[%d]", i)
		if err := validateHostPort(addr); err != nil {
			errs = append(errs, ValidationError{
				Path:    path,
				Message: err.Error(),
				Hint:    "expected format: host:port",
			})
		}
		if seen[addr] {
			errs = append(errs, ValidationError{
				Path:    path,
				Message: "duplicate server address",
			})
		}
		seen[addr] = true
	}

	return errs
}

func (c *Config) validateLogging() []error {
	var errs []error
	log := c.Logging

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[log.Level] {
		errs = append(errs, ValidationError{
			Path:    "logging.level",
			Message: fmt.Sprintf("invalid value %q", log.Level),
			Hint:    "allowed values: debug, info, warn, error",
		})
	}

	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[log.Format] {
		errs = append(errs, ValidationError{
			Path:    "logging.format",
			Message: fmt.Sprintf("invalid value %q", log.Format),
			Hint:    "allowed values: json, console",
		})
	}

	if log.OutputFile != "" {
		dir := filepath.Dir(log.OutputFile)
		if dir == "" {
			errs = append(errs, ValidationError{
				Path:    "logging.output_file",
				Message: "invalid path",
			})
		}
	}

	return errs
}

func (c *Config) validateStatus() []error {
	var errs []error
	st := c.Status

	if st.Enabled {
		if st.ListenAddr == "" {
			errs = append(errs, ValidationError{
				Path:    "status.listen_addr",
				Message: "required when status.enabled is true",
				Hint:    "e.g. 127.0.0.1:8090",
			})
		} else if err := validateHostPort(st.ListenAddr); err != nil {
			errs = append(errs, ValidationError{
				Path:    "status.listen_addr",
				Message: err.Error(),
				Hint:    "expected format: host:port",
			})
		}
	}

	return errs
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL: %v", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("missing host")
	}
	return nil
}

func validateHostPort(addr string) error {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("expected format host:port")
	}
	if strings.TrimSpace(port) == "" {
		return fmt.Errorf("port must not be empty")
	}
	_ = host // an empty host means "all interfaces", which is allowed
	return nil
}
