package client

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/campuslink/network/pkg/cache"
	"github.com/campuslink/network/pkg/config"
	"github.com/campuslink/network/pkg/errors"
	"github.com/campuslink/network/pkg/logging"
	"github.com/campuslink/network/pkg/realtime"
	"github.com/campuslink/network/pkg/session"
)

// campusClient wires the transport, registry, session validator, caches and
// lifecycle monitor into one assembly.
type campusClient struct {
	cfg    *config.Config
	logger *logging.ColoredLogger

	transport *realtime.WebsocketTransport
	manager   *realtime.Manager
	validator *session.GatewayValidator
	monitor   *realtime.Monitor
	store     *cache.SQLiteStore
	shared    *cache.OlricCache

	mu        sync.Mutex
	connected bool
	startedAt time.Time
}

// NewClient assembles a client from cfg. A nil cfg uses defaults. The
// realtime socket is not dialed here; the first subscribe does that.
func NewClient(cfg *config.Config) (Client, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	logger, err := newLogger(cfg.Logging)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build logger")
	}

	transport := realtime.NewWebsocketTransport(realtime.WebsocketConfig{
		URL:               cfg.Realtime.URL,
		APIKey:            cfg.Gateway.APIKey,
		HeartbeatInterval: cfg.Realtime.HeartbeatInterval,
		JoinTimeout:       cfg.Realtime.JoinTimeout,
		WriteTimeout:      cfg.Realtime.WriteTimeout,
	}, logger)

	manager := realtime.NewManager(transport, logger)

	validator := session.NewGatewayValidator(session.GatewayConfig{
		BaseURL: cfg.Gateway.BaseURL,
		APIKey:  cfg.Gateway.APIKey,
		Timeout: cfg.Gateway.Timeout,
	}, nil, logger)
	// Every refreshed session re-authorizes the live channels.
	validator.OnRefresh(func(s *session.Session) {
		transport.SetAccessToken(s.AccessToken)
	})

	store, err := cache.NewSQLiteStore(cfg.Cache.Path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open local cache")
	}

	invalidator := cache.Invalidator(store)
	var shared *cache.OlricCache
	if len(cfg.Cache.OlricServers) > 0 {
		shared, err = cache.NewOlricCache(cache.OlricConfig{
			Servers: cfg.Cache.OlricServers,
			Timeout: cfg.Cache.OlricTimeout,
		}, logger.Logger)
		if err != nil {
			store.Close()
			return nil, errors.Wrap(err, "failed to connect shared cache")
		}
		invalidator = cache.Multi{store, shared}
	}

	monitor := realtime.NewMonitor(manager, validator, invalidator, realtime.MonitorConfig{
		DebounceWindow:   cfg.Lifecycle.DebounceWindow,
		RefreshThreshold: cfg.Lifecycle.RefreshThreshold,
		HistorySize:      cfg.Lifecycle.HistorySize,
	}, logger)

	return &campusClient{
		cfg:       cfg,
		logger:    logger,
		transport: transport,
		manager:   manager,
		validator: validator,
		monitor:   monitor,
		store:     store,
		shared:    shared,
	}, nil
}

func newLogger(cfg config.LoggingConfig) (*logging.ColoredLogger, error) {
	if cfg.OutputFile != "" {
		return logging.NewFileLogger(logging.ComponentClient, cfg.OutputFile, cfg.Format == "console")
	}
	return logging.NewColoredLogger(logging.ComponentClient, cfg.Format == "console")
}

func (c *campusClient) Realtime() RealtimeClient { return (*realtimeFacade)(c) }
func (c *campusClient) Sessions() SessionClient  { return (*sessionFacade)(c) }

func (c *campusClient) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connected {
		return nil
	}
	c.connected = true
	c.startedAt = time.Now()
	c.logger.ComponentInfo(logging.ComponentClient, "client started",
		zap.String("gateway", c.cfg.Gateway.BaseURL),
		zap.String("realtime", c.cfg.Realtime.URL))
	return nil
}

func (c *campusClient) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return nil
	}
	c.connected = false
	c.mu.Unlock()

	if err := c.manager.Close(ctx); err != nil {
		c.logger.ComponentWarn(logging.ComponentClient, "registry close failed", zap.Error(err))
	}
	if err := c.transport.Close(); err != nil {
		c.logger.ComponentWarn(logging.ComponentClient, "transport close failed", zap.Error(err))
	}
	if c.shared != nil {
		if err := c.shared.Close(ctx); err != nil {
			c.logger.ComponentWarn(logging.ComponentClient, "shared cache close failed", zap.Error(err))
		}
	}
	if err := c.store.Close(); err != nil {
		c.logger.ComponentWarn(logging.ComponentClient, "local cache close failed", zap.Error(err))
	}
	c.logger.ComponentInfo(logging.ComponentClient, "client stopped")
	return nil
}

func (c *campusClient) Health(ctx context.Context) (*HealthStatus, error) {
	states := c.manager.ChannelStates()
	failed := 0
	for _, st := range states {
		if st.State == realtime.StateFailed {
			failed++
		}
	}

	sess, err := c.validator.GetSession(ctx)
	if err != nil {
		return nil, err
	}
	resume := c.monitor.ResumeState()

	c.mu.Lock()
	startedAt := c.startedAt
	c.mu.Unlock()
	uptime := time.Duration(0)
	if !startedAt.IsZero() {
		uptime = time.Since(startedAt)
	}

	return &HealthStatus{
		Connected:      c.transport.Connected(),
		Channels:       len(states),
		FailedChannels: failed,
		SignedIn:       sess.Valid(),
		Resuming:       resume.Reconnecting,
		LastResumeAt:   resume.LastReconnectAt,
		Uptime:         uptime,
	}, nil
}

// Config returns a copy of the client configuration.
func (c *campusClient) Config() *config.Config {
	cp := *c.cfg
	return &cp
}

// realtimeFacade exposes the subscription surface of the assembly.
type realtimeFacade campusClient

func (f *realtimeFacade) Subscribe(ctx context.Context, cfg realtime.SubscriptionConfig) (*realtime.Binding, error) {
	b := realtime.NewBinding(f.manager)
	if err := b.Apply(ctx, cfg); err != nil {
		return nil, err
	}
	return b, nil
}

func (f *realtimeFacade) SubscribeTables(ctx context.Context, channelName string, bindings []realtime.TableBinding) (*realtime.MultiBinding, error) {
	mb := realtime.NewMultiBinding(f.manager)
	if err := mb.Apply(ctx, channelName, bindings); err != nil {
		return nil, err
	}
	return mb, nil
}

func (f *realtimeFacade) Channels() []realtime.ChannelStatus {
	return f.manager.ChannelStates()
}

func (f *realtimeFacade) ReconnectAll(ctx context.Context) []realtime.ReconnectOutcome {
	return f.manager.ReconnectAll(ctx)
}

func (f *realtimeFacade) OnForeground(ctx context.Context) bool {
	return f.monitor.OnForeground(ctx)
}

func (f *realtimeFacade) ResumeHistory() []realtime.ResumeRecord {
	return f.monitor.History()
}

func (f *realtimeFacade) Run(ctx context.Context, source realtime.LifecycleSource) {
	f.monitor.Run(ctx, source)
}

// sessionFacade exposes sign-in/sign-out on top of the validator.
type sessionFacade campusClient

func (f *sessionFacade) SignIn(ctx context.Context, s *session.Session) error {
	if s == nil || s.AccessToken == "" {
		return errors.New("sign-in requires a session with an access token")
	}
	f.validator.SetSession(s)
	f.logger.ComponentInfo(logging.ComponentSession, "signed in",
		zap.String("user_id", s.UserID))
	return nil
}

// SignOut drops the session and tears every channel down. Unsubscribing is
// deliberate here: a signed-out socket would be rejected on the next join
// anyway, and lingering handles would leak server resources.
func (f *sessionFacade) SignOut(ctx context.Context) error {
	f.validator.SetSession(nil)
	for _, name := range f.manager.Topics() {
		if err := f.manager.Unsubscribe(ctx, name); err != nil {
			f.logger.ComponentWarn(logging.ComponentSession, "teardown on sign-out failed",
				zap.String("channel", name), zap.Error(err))
		}
	}
	f.logger.ComponentInfo(logging.ComponentSession, "signed out")
	return nil
}

func (f *sessionFacade) Current(ctx context.Context) (*session.Session, error) {
	return f.validator.GetSession(ctx)
}
