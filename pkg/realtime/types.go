package realtime

import (
	"sync/atomic"
	"time"
)

// Event identifies the kind of row change a listener is interested in.
type Event string

const (
	EventInsert Event = "INSERT"
	EventUpdate Event = "UPDATE"
	EventDelete Event = "DELETE"
	EventAll    Event = "*"
)

// DefaultSchema is used when a config leaves the schema empty.
const DefaultSchema = "public"

// EventSpec describes one table listen inside a channel subscription.
// Filter, when set, is an equality expression on a single column,
// e.g. "user_id=eq.7f3c...".
type EventSpec struct {
	Event  Event  `json:"event"`
	Schema string `json:"schema"`
	Table  string `json:"table"`
	Filter string `json:"filter,omitempty"`
}

// normalize fills in defaults for omitted fields.
func (s EventSpec) normalize() EventSpec {
	if s.Event == "" {
		s.Event = EventAll
	}
	if s.Schema == "" {
		s.Schema = DefaultSchema
	}
	return s
}

// Matches reports whether a payload falls under this spec.
func (s EventSpec) Matches(p ChangePayload) bool {
	if s.Table != p.Table || s.Schema != p.Schema {
		return false
	}
	return s.Event == EventAll || s.Event == p.Type
}

// ChangePayload is a single row-change event delivered to consumers.
type ChangePayload struct {
	Type            Event                  `json:"type"`
	Schema          string                 `json:"schema"`
	Table           string                 `json:"table"`
	Record          map[string]interface{} `json:"record,omitempty"`
	OldRecord       map[string]interface{} `json:"old_record,omitempty"`
	CommitTimestamp time.Time              `json:"commit_timestamp"`
}

// PayloadHandler consumes change payloads. Handlers run on the transport's
// read loop and must not block.
type PayloadHandler func(payload ChangePayload)

// Observer receives change payloads for one table binding. The registry
// stores observers, not raw callbacks, so a consumer can swap its handler
// without disturbing the live subscription.
type Observer interface {
	OnEvent(payload ChangePayload)
}

// HandlerCell is an Observer with a stable identity whose target handler can
// be replaced at any time.
type HandlerCell struct {
	v atomic.Value // holds PayloadHandler
}

// NewHandlerCell creates a cell pointing at h. A nil h is allowed; events are
// dropped until Set is called.
func NewHandlerCell(h PayloadHandler) *HandlerCell {
	c := &HandlerCell{}
	c.Set(h)
	return c
}

// Set replaces the cell's target handler.
func (c *HandlerCell) Set(h PayloadHandler) {
	if h == nil {
		h = func(ChangePayload) {}
	}
	c.v.Store(h)
}

// OnEvent forwards the payload to the current target handler.
func (c *HandlerCell) OnEvent(p ChangePayload) {
	if h, ok := c.v.Load().(PayloadHandler); ok {
		h(p)
	}
}

// TableListener pairs one table event spec with the observer that should
// receive its payloads.
type TableListener struct {
	Spec     EventSpec
	Observer Observer
}

// SubscriptionConfig is a consumer's declaration of interest in one table
// under one channel name. Immutable per call; applying a new config replaces
// the previous one for that binding.
type SubscriptionConfig struct {
	ChannelName string
	Table       string
	Event       Event
	Schema      string
	Filter      string
	OnPayload   PayloadHandler
	Enabled     bool
}

// TableBinding is one of several table interests combined under a single
// channel name in the multi-table variant.
type TableBinding struct {
	Table     string
	Event     Event
	Schema    string
	Filter    string
	OnPayload PayloadHandler
}

// ChannelState tracks where a registry entry is in its lifecycle.
type ChannelState string

const (
	StateSubscribing  ChannelState = "subscribing"
	StateActive       ChannelState = "active"
	StateReconnecting ChannelState = "reconnecting"
	StateFailed       ChannelState = "failed"
)

// ChannelStatus is an introspection snapshot of one registry entry.
type ChannelStatus struct {
	Name        string       `json:"name"`
	State       ChannelState `json:"state"`
	Subscribers int          `json:"subscribers"`
	Tables      []string     `json:"tables"`
	LastError   string       `json:"last_error,omitempty"`
}

// ReconnectOutcome reports the result of recreating one channel during a
// reconnect-all pass.
type ReconnectOutcome struct {
	Name string
	Err  error
}
