package session

import (
	"context"
	"time"
)

// Session represents an authentication session issued by the gateway.
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	UserID       string    `json:"user_id,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
	IssuedAt     time.Time `json:"issued_at,omitempty"`
}

// Valid reports whether the session can be used right now.
func (s *Session) Valid() bool {
	if s == nil || s.AccessToken == "" {
		return false
	}
	return s.ExpiresAt.IsZero() || time.Now().Before(s.ExpiresAt)
}

// ExpiresWithin reports whether the session's remaining lifetime is below d.
func (s *Session) ExpiresWithin(d time.Duration) bool {
	if s == nil || s.ExpiresAt.IsZero() {
		return false
	}
	return time.Until(s.ExpiresAt) < d
}

// Validator answers session validity questions and performs proactive
// refreshes on behalf of the resume routine. It never navigates or alerts
// the user; the external auth guard owns sign-in redirects.
type Validator interface {
	// GetSession returns the current session, or nil when signed out.
	GetSession(ctx context.Context) (*Session, error)

	// RefreshSession exchanges the refresh token for a new session.
	RefreshSession(ctx context.Context) (*Session, error)
}
