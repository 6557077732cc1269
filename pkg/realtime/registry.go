package realtime

import "context"

// RecreateFunc rebuilds the transport subscription for a channel entry,
// reattaching every listener before finalizing the subscribe call.
type RecreateFunc func(ctx context.Context) (ChannelHandle, error)

// channelEntry is the registry's bookkeeping for one channel name. At most
// one live handle exists per name at any instant; the handle is replaced in
// place during a reconnect, the entry itself survives.
type channelEntry struct {
	name        string
	handle      ChannelHandle
	recreate    RecreateFunc
	listeners   []TableListener
	subscribers int
	state       ChannelState
	lastErr     error
}

func (e *channelEntry) status() ChannelStatus {
	tables := make([]string, 0, len(e.listeners))
	for _, l := range e.listeners {
		tables = append(tables, l.Spec.Table)
	}
	st := ChannelStatus{
		Name:        e.name,
		State:       e.state,
		Subscribers: e.subscribers,
		Tables:      tables,
	}
	if e.lastErr != nil {
		st.LastError = e.lastErr.Error()
	}
	return st
}

// registry maps channel names to their entries. Pure bookkeeping, no I/O.
// Not safe for concurrent use; the Manager's mutex guards every access.
type registry struct {
	entries map[string]*channelEntry
}

func newRegistry() *registry {
	return &registry{entries: make(map[string]*channelEntry)}
}

func (r *registry) get(name string) (*channelEntry, bool) {
	e, ok := r.entries[name]
	return e, ok
}

func (r *registry) put(e *channelEntry) {
	r.entries[e.name] = e
}

func (r *registry) remove(name string) {
	delete(r.entries, name)
}

func (r *registry) len() int {
	return len(r.entries)
}

// snapshot returns the current entries in no particular order.
func (r *registry) snapshot() []*channelEntry {
	out := make([]*channelEntry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	return out
}
