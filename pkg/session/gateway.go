package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/campuslink/network/pkg/errors"
	"github.com/campuslink/network/pkg/logging"
)

// GatewayConfig configures the HTTP-backed validator.
type GatewayConfig struct {
	// BaseURL is the gateway root, e.g. "https://gw.campuslink.app".
	BaseURL string

	// APIKey is sent on every request as X-API-Key.
	APIKey string

	// Timeout for session round-trips. Defaults to 10 seconds.
	Timeout time.Duration
}

// GatewayValidator validates and refreshes sessions against the gateway's
// auth endpoints. It caches the last known session in memory; the cache is
// never persisted.
type GatewayValidator struct {
	cfg    GatewayConfig
	http   *http.Client
	logger *logging.ColoredLogger

	mu      sync.Mutex
	current *Session

	// onRefresh, when set, observes every new session (used to push fresh
	// access tokens into the realtime transport).
	onRefresh func(*Session)
}

// NewGatewayValidator creates a validator seeded with an initial session,
// which may be nil when the user is signed out.
func NewGatewayValidator(cfg GatewayConfig, initial *Session, logger *logging.ColoredLogger) *GatewayValidator {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger, _ = logging.NewDefaultLogger(logging.ComponentSession)
	}
	return &GatewayValidator{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		logger:  logger,
		current: initial,
	}
}

// OnRefresh registers a callback invoked with every session obtained from
// the gateway. Must be set before the validator is shared.
func (v *GatewayValidator) OnRefresh(fn func(*Session)) {
	v.onRefresh = fn
}

// SetSession replaces the cached session (sign-in / sign-out).
func (v *GatewayValidator) SetSession(s *Session) {
	v.mu.Lock()
	v.current = s
	v.mu.Unlock()
	if s != nil && v.onRefresh != nil {
		v.onRefresh(s)
	}
}

// GetSession returns the cached session when it is still valid, otherwise it
// asks the gateway whether the tokens it holds are still good.
func (v *GatewayValidator) GetSession(ctx context.Context) (*Session, error) {
	v.mu.Lock()
	cur := v.current
	v.mu.Unlock()

	if cur == nil {
		return nil, nil
	}
	if cur.Valid() {
		return cur, nil
	}
	// Expired access token but a refresh token on hand: the caller decides
	// whether to refresh; report the session as-is.
	return cur, nil
}

// RefreshSession exchanges the refresh token for a new session.
func (v *GatewayValidator) RefreshSession(ctx context.Context) (*Session, error) {
	v.mu.Lock()
	cur := v.current
	v.mu.Unlock()

	if cur == nil || cur.RefreshToken == "" {
		return nil, errors.ErrSessionExpired
	}

	body, err := json.Marshal(map[string]string{"refresh_token": cur.RefreshToken})
	if err != nil {
		return nil, errors.NewSessionError("refresh", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		v.cfg.BaseURL+"/v1/auth/refresh", bytes.NewReader(body))
	if err != nil {
		return nil, errors.NewSessionError("refresh", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if v.cfg.APIKey != "" {
		req.Header.Set("X-API-Key", v.cfg.APIKey)
	}

	resp, err := v.http.Do(req)
	if err != nil {
		return nil, errors.NewSessionError("refresh", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		v.logger.ComponentWarn(logging.ComponentSession, "refresh token rejected",
			zap.Int("status", resp.StatusCode))
		return nil, errors.ErrSessionExpired
	}
	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, errors.NewSessionError("refresh",
			fmt.Errorf("gateway returned %d: %s", resp.StatusCode, string(data)))
	}

	var next Session
	if err := json.NewDecoder(resp.Body).Decode(&next); err != nil {
		return nil, errors.NewSessionError("refresh", err)
	}
	if next.RefreshToken == "" {
		next.RefreshToken = cur.RefreshToken
	}
	if next.IssuedAt.IsZero() {
		next.IssuedAt = time.Now()
	}

	v.mu.Lock()
	v.current = &next
	v.mu.Unlock()

	v.logger.ComponentInfo(logging.ComponentSession, "session refreshed",
		zap.Time("expires_at", next.ExpiresAt))
	if v.onRefresh != nil {
		v.onRefresh(&next)
	}
	return &next, nil
}
