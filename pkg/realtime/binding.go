package realtime

import (
	"context"
	"sync"

	"github.com/campuslink/network/pkg/errors"
)

// Binding ties one consumer's interest in a single table to a channel for
// the consumer's own activation lifetime. The payload callback is routed
// through a stable HandlerCell, so a consumer handing in a fresh closure
// does not tear down and recreate the live subscription.
type Binding struct {
	manager *Manager

	mu      sync.Mutex
	active  bool
	channel string
	spec    EventSpec
	cell    *HandlerCell
}

// NewBinding creates an inactive binding on the manager.
func NewBinding(manager *Manager) *Binding {
	return &Binding{
		manager: manager,
		cell:    NewHandlerCell(nil),
	}
}

// Apply activates or deactivates the binding according to cfg. A new config
// replaces the previous one for this binding. When only the callback
// changed, the cell target is swapped and the subscription is left alone.
func (b *Binding) Apply(ctx context.Context, cfg SubscriptionConfig) error {
	if !cfg.Enabled {
		return b.Stop(ctx)
	}
	if cfg.ChannelName == "" {
		return errors.New("channel name required")
	}
	if cfg.Table == "" {
		return errors.New("table required")
	}

	spec := EventSpec{
		Event:  cfg.Event,
		Schema: cfg.Schema,
		Table:  cfg.Table,
		Filter: cfg.Filter,
	}.normalize()

	b.mu.Lock()
	b.cell.Set(cfg.OnPayload)
	unchanged := b.active && b.channel == cfg.ChannelName && b.spec == spec
	prev := b.channel
	b.channel = cfg.ChannelName
	b.spec = spec
	b.active = true
	b.mu.Unlock()

	if unchanged {
		// Callback freshness only; the cell target is already swapped and
		// resubscribing would churn the transport for nothing.
		return nil
	}

	if prev != "" && prev != cfg.ChannelName {
		_ = b.manager.Unsubscribe(ctx, prev)
	}

	listeners := []TableListener{{Spec: spec, Observer: b.cell}}
	return b.manager.Subscribe(ctx, cfg.ChannelName, listeners)
}

// UpdateHandler swaps the payload callback without touching the transport.
func (b *Binding) UpdateHandler(h PayloadHandler) {
	b.cell.Set(h)
}

// Stop deactivates the binding. Safe to call more than once and after the
// consumer ceased to exist.
func (b *Binding) Stop(ctx context.Context) error {
	b.mu.Lock()
	if !b.active {
		b.mu.Unlock()
		return nil
	}
	b.active = false
	name := b.channel
	b.channel = ""
	b.mu.Unlock()

	return b.manager.Unsubscribe(ctx, name)
}

// MultiBinding carries n independent table bindings under exactly one
// channel name and one transport subscription. One recreate invocation
// attaches all n handlers before finalizing the subscribe call.
type MultiBinding struct {
	manager *Manager

	mu      sync.Mutex
	active  bool
	channel string
	cells   []*HandlerCell
}

// NewMultiBinding creates an inactive multi-table binding on the manager.
func NewMultiBinding(manager *Manager) *MultiBinding {
	return &MultiBinding{manager: manager}
}

// Apply subscribes the channel with all table bindings. A new call replaces
// the previous set.
func (mb *MultiBinding) Apply(ctx context.Context, channelName string, bindings []TableBinding) error {
	if channelName == "" {
		return errors.New("channel name required")
	}
	if len(bindings) == 0 {
		return errors.New("at least one table binding required")
	}

	listeners := make([]TableListener, len(bindings))
	cells := make([]*HandlerCell, len(bindings))
	for i, tb := range bindings {
		if tb.Table == "" {
			return errors.New("table required in binding")
		}
		cells[i] = NewHandlerCell(tb.OnPayload)
		listeners[i] = TableListener{
			Spec: EventSpec{
				Event:  tb.Event,
				Schema: tb.Schema,
				Table:  tb.Table,
				Filter: tb.Filter,
			}.normalize(),
			Observer: cells[i],
		}
	}

	mb.mu.Lock()
	prev := mb.channel
	wasActive := mb.active
	mb.channel = channelName
	mb.cells = cells
	mb.active = true
	mb.mu.Unlock()

	if wasActive && prev != "" && prev != channelName {
		_ = mb.manager.Unsubscribe(ctx, prev)
	}

	return mb.manager.Subscribe(ctx, channelName, listeners)
}

// UpdateHandler swaps the callback for the i-th table binding without
// recreating the subscription.
func (mb *MultiBinding) UpdateHandler(i int, h PayloadHandler) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	if i >= 0 && i < len(mb.cells) {
		mb.cells[i].Set(h)
	}
}

// Stop deactivates the binding. Safe to call more than once.
func (mb *MultiBinding) Stop(ctx context.Context) error {
	mb.mu.Lock()
	if !mb.active {
		mb.mu.Unlock()
		return nil
	}
	mb.active = false
	name := mb.channel
	mb.channel = ""
	mb.mu.Unlock()

	return mb.manager.Unsubscribe(ctx, name)
}
