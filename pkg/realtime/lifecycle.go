package realtime

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/campuslink/network/pkg/cache"
	"github.com/campuslink/network/pkg/logging"
	"github.com/campuslink/network/pkg/session"
)

// Phase is a host process lifecycle phase.
type Phase int

const (
	PhaseBackground Phase = iota
	PhaseForeground
)

// LifecycleSource emits process phase transitions. It decouples the monitor
// from any specific host platform's notification mechanism (mobile
// backgrounding, tab visibility, OS signals).
type LifecycleSource interface {
	Events() <-chan Phase
}

// Monitor defaults.
const (
	DefaultDebounceWindow   = 2000 * time.Millisecond
	DefaultRefreshThreshold = 5 * time.Minute
	DefaultHistorySize      = 16
)

// MonitorConfig configures the lifecycle monitor.
type MonitorConfig struct {
	// DebounceWindow is the minimum elapsed time between two full resume
	// routine executions.
	DebounceWindow time.Duration

	// RefreshThreshold triggers a proactive session refresh when the
	// session's remaining lifetime falls below it.
	RefreshThreshold time.Duration

	// CacheKeys is the fixed set of keys invalidated on every successful
	// resume. Defaults to cache.ResumeKeys().
	CacheKeys []string

	// HistorySize bounds the retained resume records.
	HistorySize int
}

func (c MonitorConfig) withDefaults() MonitorConfig {
	if c.DebounceWindow == 0 {
		c.DebounceWindow = DefaultDebounceWindow
	}
	if c.RefreshThreshold == 0 {
		c.RefreshThreshold = DefaultRefreshThreshold
	}
	if c.CacheKeys == nil {
		c.CacheKeys = cache.ResumeKeys()
	}
	if c.HistorySize == 0 {
		c.HistorySize = DefaultHistorySize
	}
	return c
}

// ResumeState is the process-wide resume guard. Mutated only by the resume
// routine, never persisted.
type ResumeState struct {
	Reconnecting    bool      `json:"reconnecting"`
	LastReconnectAt time.Time `json:"last_reconnect_at"`
}

// ResumeRecord is one entry in the resume history ring.
type ResumeRecord struct {
	At        time.Time          `json:"at"`
	Refreshed bool               `json:"refreshed"`
	Skipped   string             `json:"skipped,omitempty"`
	Outcomes  []ReconnectOutcome `json:"-"`
	Failed    int                `json:"failed"`
	Channels  int                `json:"channels"`
}

// Monitor observes foreground/background transitions and runs the debounced
// resume routine: validate session, refresh if expiring, invalidate the
// fixed cache keys, then reconnect every registered channel.
type Monitor struct {
	manager  *Manager
	sessions session.Validator
	cache    cache.Invalidator
	logger   *logging.ColoredLogger
	cfg      MonitorConfig

	mu      sync.Mutex
	state   ResumeState
	history []ResumeRecord
}

// NewMonitor creates a lifecycle monitor. One monitor exists per process; it
// is constructed at application start and stopped via the Run context.
func NewMonitor(manager *Manager, sessions session.Validator, invalidator cache.Invalidator,
	cfg MonitorConfig, logger *logging.ColoredLogger) *Monitor {
	if logger == nil {
		logger, _ = logging.NewDefaultLogger(logging.ComponentLifecycle)
	}
	return &Monitor{
		manager:  manager,
		sessions: sessions,
		cache:    invalidator,
		logger:   logger,
		cfg:      cfg.withDefaults(),
	}
}

// Run consumes phase transitions until the context is cancelled or the
// source closes. Only Background -> Foreground triggers the resume routine;
// backgrounding performs no teardown since transports self-suspend under
// OS-level network restrictions and proactive teardown would cause reconnect
// churn on brief backgrounding.
func (mo *Monitor) Run(ctx context.Context, source LifecycleSource) {
	phase := PhaseForeground
	for {
		select {
		case <-ctx.Done():
			return
		case p, ok := <-source.Events():
			if !ok {
				return
			}
			if phase == PhaseBackground && p == PhaseForeground {
				mo.OnForeground(ctx)
			}
			phase = p
		}
	}
}

// OnForeground runs the resume routine unless it is debounced or already in
// flight. Returns true when the routine actually ran.
func (mo *Monitor) OnForeground(ctx context.Context) bool {
	mo.mu.Lock()
	if mo.state.Reconnecting {
		mo.mu.Unlock()
		mo.logger.ComponentDebug(logging.ComponentLifecycle, "resume already in flight, trigger dropped")
		return false
	}
	if !mo.state.LastReconnectAt.IsZero() && time.Since(mo.state.LastReconnectAt) < mo.cfg.DebounceWindow {
		mo.mu.Unlock()
		mo.logger.ComponentDebug(logging.ComponentLifecycle, "resume debounced")
		return false
	}
	mo.state.Reconnecting = true
	mo.state.LastReconnectAt = time.Now()
	mo.mu.Unlock()

	// The flag is released whatever happens in the routine; a failed resume
	// must not wedge future resumes.
	defer func() {
		mo.mu.Lock()
		mo.state.Reconnecting = false
		mo.mu.Unlock()
	}()

	mo.resume(ctx)
	return true
}

func (mo *Monitor) resume(ctx context.Context) {
	record := ResumeRecord{At: time.Now()}
	defer func() {
		mo.mu.Lock()
		mo.history = append(mo.history, record)
		if len(mo.history) > mo.cfg.HistorySize {
			mo.history = mo.history[len(mo.history)-mo.cfg.HistorySize:]
		}
		mo.mu.Unlock()
	}()

	// 1. Session validity. Without a valid session there is nothing to do
	// here: no reconnects, no cache invalidation. The external auth guard
	// observes the invalid session independently and redirects to sign-in.
	sess, err := mo.sessions.GetSession(ctx)
	if err != nil {
		record.Skipped = "session lookup failed"
		mo.logger.ComponentError(logging.ComponentLifecycle, "resume aborted: session lookup failed",
			zap.Error(err))
		return
	}
	if !sess.Valid() {
		record.Skipped = "no valid session"
		mo.logger.ComponentDebug(logging.ComponentLifecycle, "resume skipped: no valid session")
		return
	}

	// 2. Proactive refresh when the session is about to expire.
	if sess.ExpiresWithin(mo.cfg.RefreshThreshold) {
		if _, err := mo.sessions.RefreshSession(ctx); err != nil {
			record.Skipped = "session refresh failed"
			mo.logger.ComponentWarn(logging.ComponentLifecycle, "resume aborted: session refresh failed",
				zap.Error(err))
			return
		}
		record.Refreshed = true
	}

	// 3. Invalidate the fixed cache keys before any channel reconnects, so a
	// screen never renders stale cached data against a fresh feed.
	for _, key := range mo.cfg.CacheKeys {
		if err := mo.cache.Invalidate(ctx, key); err != nil {
			mo.logger.ComponentWarn(logging.ComponentLifecycle, "cache invalidation failed",
				zap.String("key", key), zap.Error(err))
		}
	}

	// 4. Reconnect everything in place. Partial failures are reported, not
	// fatal; failed channels are retried on the next resume pass.
	outcomes := mo.manager.ReconnectAll(ctx)
	record.Outcomes = outcomes
	record.Channels = len(outcomes)
	for _, o := range outcomes {
		if o.Err != nil {
			record.Failed++
		}
	}

	mo.logger.ComponentInfo(logging.ComponentLifecycle, "resume complete",
		zap.Bool("refreshed", record.Refreshed),
		zap.Int("channels", record.Channels),
		zap.Int("failed", record.Failed))
}

// ResumeState returns a snapshot of the resume guard.
func (mo *Monitor) ResumeState() ResumeState {
	mo.mu.Lock()
	defer mo.mu.Unlock()
	return mo.state
}

// History returns the retained resume records, oldest first.
func (mo *Monitor) History() []ResumeRecord {
	mo.mu.Lock()
	defer mo.mu.Unlock()
	out := make([]ResumeRecord, len(mo.history))
	copy(out, mo.history)
	return out
}
