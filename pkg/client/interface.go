package client

import (
	"context"
	"time"

	"github.com/campuslink/network/pkg/config"
	"github.com/campuslink/network/pkg/realtime"
	"github.com/campuslink/network/pkg/session"
)

// Client is the main entry point for applications talking to the campus
// network.
type Client interface {
	// Realtime subscriptions
	Realtime() RealtimeClient

	// Session management
	Sessions() SessionClient

	// Lifecycle
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	Health(ctx context.Context) (*HealthStatus, error)

	// Config access (snapshot copy)
	Config() *config.Config
}

// RealtimeClient manages live database-change subscriptions.
type RealtimeClient interface {
	// Subscribe creates a binding for one table on one channel. The caller
	// owns the returned binding and stops it when done.
	Subscribe(ctx context.Context, cfg realtime.SubscriptionConfig) (*realtime.Binding, error)

	// SubscribeTables creates a multi-table binding: all bindings share one
	// channel and one transport subscription.
	SubscribeTables(ctx context.Context, channelName string, bindings []realtime.TableBinding) (*realtime.MultiBinding, error)

	// Channels reports the state of every registered channel.
	Channels() []realtime.ChannelStatus

	// ReconnectAll tears down and recreates every registered channel.
	ReconnectAll(ctx context.Context) []realtime.ReconnectOutcome

	// OnForeground runs the resume routine, subject to debouncing.
	OnForeground(ctx context.Context) bool

	// ResumeHistory returns the most recent resume records, newest last.
	ResumeHistory() []realtime.ResumeRecord

	// Run consumes lifecycle transitions until ctx is cancelled.
	Run(ctx context.Context, source realtime.LifecycleSource)
}

// SessionClient manages the auth session the realtime layer rides on.
type SessionClient interface {
	// SignIn installs a session and pushes its token to the transport.
	SignIn(ctx context.Context, s *session.Session) error

	// SignOut drops the session and tears down every live channel.
	SignOut(ctx context.Context) error

	// Current returns the active session, or nil when signed out.
	Current(ctx context.Context) (*session.Session, error)
}

// HealthStatus summarizes the client's view of the world.
type HealthStatus struct {
	Connected      bool          `json:"connected"`
	Channels       int           `json:"channels"`
	FailedChannels int           `json:"failed_channels"`
	SignedIn       bool          `json:"signed_in"`
	Resuming       bool          `json:"resuming"`
	LastResumeAt   time.Time     `json:"last_resume_at,omitempty"`
	Uptime         time.Duration `json:"uptime"`
}
