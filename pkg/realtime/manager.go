package realtime

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/campuslink/network/pkg/errors"
	"github.com/campuslink/network/pkg/logging"
)

// Manager owns the channel registry and is the only component that talks to
// the transport. All registry mutations happen under its mutex; transport
// round-trips run outside it.
type Manager struct {
	transport Transport
	logger    *logging.ColoredLogger

	mu     sync.Mutex
	reg    *registry
	closed bool
}

// NewManager creates a subscription manager on top of a transport.
func NewManager(transport Transport, logger *logging.ColoredLogger) *Manager {
	if logger == nil {
		logger, _ = logging.NewDefaultLogger(logging.ComponentRealtime)
	}
	return &Manager{
		transport: transport,
		logger:    logger,
		reg:       newRegistry(),
	}
}

// recreateFunc builds the closure that rebuilds the identical transport
// subscription on demand: all listeners are attached before the subscribe
// call is finalized.
func (m *Manager) recreateFunc(name string, listeners []TableListener) RecreateFunc {
	return func(ctx context.Context) (ChannelHandle, error) {
		b := m.transport.Channel(name)
		for _, l := range listeners {
			obs := l.Observer
			b = b.On(l.Spec, obs.OnEvent)
		}
		return b.Subscribe(ctx)
	}
}

// Subscribe registers a channel under name with the given table listeners.
// If an entry for name already exists its current handle is torn down first
// (best effort) and the entry is replaced in place, preserving its
// subscriber count. Idempotent under repeated calls with the same name.
//
// Two unrelated consumers subscribing the same name is a caller contract
// violation: the later call replaces the earlier handle. Use Attach to share
// a channel deliberately.
func (m *Manager) Subscribe(ctx context.Context, name string, listeners []TableListener) error {
	if name == "" {
		return errors.New("channel name required")
	}
	if len(listeners) == 0 {
		return errors.New("at least one table listener required")
	}
	for i := range listeners {
		listeners[i].Spec = listeners[i].Spec.normalize()
		if listeners[i].Spec.Table == "" {
			return errors.New("table required in listener spec")
		}
		if listeners[i].Observer == nil {
			return errors.New("observer required in listener spec")
		}
	}

	recreate := m.recreateFunc(name, listeners)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return errors.ErrClosed
	}
	var oldHandle ChannelHandle
	subscribers := 1
	if prev, ok := m.reg.get(name); ok {
		oldHandle = prev.handle
		if prev.subscribers > 1 {
			subscribers = prev.subscribers
		}
	}
	entry := &channelEntry{
		name:        name,
		recreate:    recreate,
		listeners:   listeners,
		subscribers: subscribers,
		state:       StateSubscribing,
	}
	m.reg.put(entry)
	m.mu.Unlock()

	if oldHandle != nil {
		m.teardown(ctx, name, oldHandle)
	}

	handle, err := recreate(ctx)

	m.mu.Lock()
	cur, ok := m.reg.get(name)
	if !ok || cur != entry {
		// Unsubscribed or replaced while the subscribe round-trip was in
		// flight; the handle we just obtained is stale.
		m.mu.Unlock()
		if handle != nil {
			m.teardown(ctx, name, handle)
		}
		return err
	}
	if err != nil {
		entry.state = StateFailed
		entry.lastErr = err
		m.mu.Unlock()
		m.logger.ComponentError(logging.ComponentRealtime, "channel subscribe failed",
			zap.String("channel", name), zap.String("code", errors.CodeOf(err)), zap.Error(err))
		return err
	}
	entry.handle = handle
	entry.state = StateActive
	entry.lastErr = nil
	m.mu.Unlock()

	m.logger.ComponentDebug(logging.ComponentRealtime, "channel subscribed",
		zap.String("channel", name), zap.Int("tables", len(listeners)))
	return nil
}

// Attach adds one more subscriber to an existing channel entry without
// touching the transport. Returns false if no entry exists for name.
func (m *Manager) Attach(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.reg.get(name)
	if !ok {
		return false
	}
	entry.subscribers++
	return true
}

// Unsubscribe releases one subscriber for name. When the count reaches zero
// the handle is torn down and the entry removed. No-op, never an error, if
// name is absent.
func (m *Manager) Unsubscribe(ctx context.Context, name string) error {
	m.mu.Lock()
	entry, ok := m.reg.get(name)
	if !ok {
		m.mu.Unlock()
		return nil
	}
	entry.subscribers--
	if entry.subscribers > 0 {
		m.mu.Unlock()
		return nil
	}
	handle := entry.handle
	entry.handle = nil
	m.reg.remove(name)
	m.mu.Unlock()

	if handle != nil {
		m.teardown(ctx, name, handle)
	}
	m.logger.ComponentDebug(logging.ComponentRealtime, "channel unsubscribed",
		zap.String("channel", name))
	return nil
}

// ReconnectAll recreates every registered channel's transport subscription in
// place. Failures are independent: a failed recreate for one entry never
// blocks the others. Per-name outcomes are returned instead of a first-error
// abort; failed entries stay registered and are retried on the next pass.
func (m *Manager) ReconnectAll(ctx context.Context) []ReconnectOutcome {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	entries := m.reg.snapshot()
	stale := make([]ChannelHandle, len(entries))
	for i, e := range entries {
		e.state = StateReconnecting
		stale[i] = e.handle
		e.handle = nil
	}
	m.mu.Unlock()

	outcomes := make([]ReconnectOutcome, len(entries))
	var wg sync.WaitGroup
	for i, e := range entries {
		wg.Add(1)
		go func(i int, e *channelEntry, old ChannelHandle) {
			defer wg.Done()
			if old != nil {
				m.teardown(ctx, e.name, old)
			}
			handle, err := e.recreate(ctx)

			m.mu.Lock()
			cur, ok := m.reg.get(e.name)
			if !ok || cur != e {
				m.mu.Unlock()
				if handle != nil {
					m.teardown(ctx, e.name, handle)
				}
				outcomes[i] = ReconnectOutcome{Name: e.name}
				return
			}
			if err != nil {
				e.state = StateFailed
				e.lastErr = err
			} else {
				e.handle = handle
				e.state = StateActive
				e.lastErr = nil
			}
			m.mu.Unlock()

			if err != nil {
				m.logger.ComponentWarn(logging.ComponentRealtime, "channel reconnect failed",
					zap.String("channel", e.name), zap.String("code", errors.CodeOf(err)), zap.Error(err))
			}
			outcomes[i] = ReconnectOutcome{Name: e.name, Err: err}
		}(i, e, stale[i])
	}
	wg.Wait()

	failed := 0
	for _, o := range outcomes {
		if o.Err != nil {
			failed++
		}
	}
	m.logger.ComponentInfo(logging.ComponentRealtime, "reconnect pass complete",
		zap.Int("channels", len(outcomes)), zap.Int("failed", failed))
	return outcomes
}

// Topics returns the registered channel names, sorted.
func (m *Manager) Topics() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, m.reg.len())
	for _, e := range m.reg.snapshot() {
		names = append(names, e.name)
	}
	sort.Strings(names)
	return names
}

// ChannelStates returns an introspection snapshot of every entry, sorted by
// name.
func (m *Manager) ChannelStates() []ChannelStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ChannelStatus, 0, m.reg.len())
	for _, e := range m.reg.snapshot() {
		out = append(out, e.status())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Close tears down every channel and rejects further subscribes. Used on
// sign-out and process shutdown.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	entries := m.reg.snapshot()
	m.reg = newRegistry()
	m.mu.Unlock()

	for _, e := range entries {
		if e.handle != nil {
			m.teardown(ctx, e.name, e.handle)
		}
	}
	m.logger.ComponentInfo(logging.ComponentRealtime, "manager closed",
		zap.Int("channels", len(entries)))
	return nil
}

// teardown closes a handle best effort. Transport teardown errors are
// swallowed and logged.
func (m *Manager) teardown(ctx context.Context, name string, handle ChannelHandle) {
	if err := handle.Close(ctx); err != nil {
		m.logger.ComponentWarn(logging.ComponentRealtime, "channel teardown failed",
			zap.String("channel", name), zap.Error(err))
	}
}
