package realtime

import (
	"context"
	"sync"
	"testing"

	"github.com/campuslink/network/pkg/errors"
)

// fakeHandle is a transport handle that records teardown.
type fakeHandle struct {
	name string

	mu       sync.Mutex
	closed   bool
	closeErr error
}

func (h *fakeHandle) Close(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	return h.closeErr
}

func (h *fakeHandle) isClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

// fakeTransport hands out handles and records every subscribe.
type fakeTransport struct {
	mu         sync.Mutex
	handles    map[string][]*fakeHandle
	specs      map[string][]EventSpec
	handlers   map[string][]PayloadHandler
	subscribes map[string]int
	failErr    map[string]error
	onRecreate func(name string)
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		handles:    make(map[string][]*fakeHandle),
		specs:      make(map[string][]EventSpec),
		handlers:   make(map[string][]PayloadHandler),
		subscribes: make(map[string]int),
		failErr:    make(map[string]error),
	}
}

func (f *fakeTransport) Channel(name string) ChannelBuilder {
	return &fakeBuilder{f: f, name: name}
}

func (f *fakeTransport) setFailure(name string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.failErr, name)
	} else {
		f.failErr[name] = err
	}
}

// liveCount returns how many handles for name have not been torn down.
func (f *fakeTransport) liveCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, h := range f.handles[name] {
		if !h.isClosed() {
			n++
		}
	}
	return n
}

func (f *fakeTransport) subscribeCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subscribes[name]
}

// emit delivers a payload to the handlers of the latest subscription.
func (f *fakeTransport) emit(name string, p ChangePayload) {
	f.mu.Lock()
	specs := f.specs[name]
	handlers := f.handlers[name]
	f.mu.Unlock()
	for i, s := range specs {
		if s.Matches(p) {
			handlers[i](p)
		}
	}
}

type fakeBuilder struct {
	f        *fakeTransport
	name     string
	specs    []EventSpec
	handlers []PayloadHandler
}

func (b *fakeBuilder) On(spec EventSpec, handler PayloadHandler) ChannelBuilder {
	b.specs = append(b.specs, spec.normalize())
	b.handlers = append(b.handlers, handler)
	return b
}

func (b *fakeBuilder) Subscribe(ctx context.Context) (ChannelHandle, error) {
	b.f.mu.Lock()
	defer b.f.mu.Unlock()
	b.f.subscribes[b.name]++
	if cb := b.f.onRecreate; cb != nil {
		cb(b.name)
	}
	if err := b.f.failErr[b.name]; err != nil {
		return nil, err
	}
	h := &fakeHandle{name: b.name}
	b.f.handles[b.name] = append(b.f.handles[b.name], h)
	b.f.specs[b.name] = b.specs
	b.f.handlers[b.name] = b.handlers
	return h, nil
}

func tableListeners(table string) []TableListener {
	return []TableListener{{
		Spec:     EventSpec{Table: table},
		Observer: NewHandlerCell(nil),
	}}
}

func TestSubscribeUniquenessInvariant(t *testing.T) {
	ft := newFakeTransport()
	m := NewManager(ft, nil)
	ctx := context.Background()
	name := FeedChannel("campus-1")

	if err := m.Subscribe(ctx, name, tableListeners("posts")); err != nil {
		t.Fatalf("first subscribe failed: %v", err)
	}
	if err := m.Subscribe(ctx, name, tableListeners("posts")); err != nil {
		t.Fatalf("second subscribe failed: %v", err)
	}

	if got := ft.liveCount(name); got != 1 {
		t.Errorf("expected exactly one live handle, got %d", got)
	}
	if got := ft.subscribeCount(name); got != 2 {
		t.Errorf("expected 2 transport subscribes, got %d", got)
	}
	if got := len(m.Topics()); got != 1 {
		t.Errorf("expected 1 registered topic, got %d", got)
	}
}

func TestUnsubscribeUnknownNameIsNoop(t *testing.T) {
	m := NewManager(newFakeTransport(), nil)
	if err := m.Unsubscribe(context.Background(), "never-subscribed"); err != nil {
		t.Errorf("unsubscribe of unknown name returned error: %v", err)
	}
}

func TestReplaceNotLeak(t *testing.T) {
	ft := newFakeTransport()
	m := NewManager(ft, nil)
	ctx := context.Background()
	name := ConversationChannel("c-42")

	if err := m.Subscribe(ctx, name, tableListeners("messages")); err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	if err := m.Unsubscribe(ctx, name); err != nil {
		t.Fatalf("unsubscribe failed: %v", err)
	}
	if err := m.Subscribe(ctx, name, tableListeners("messages")); err != nil {
		t.Fatalf("resubscribe failed: %v", err)
	}

	if got := ft.liveCount(name); got != 1 {
		t.Errorf("expected exactly one live handle after replace, got %d", got)
	}
}

func TestReconnectAllPartialFailure(t *testing.T) {
	ft := newFakeTransport()
	m := NewManager(ft, nil)
	ctx := context.Background()

	names := []string{
		FeedChannel("campus-1"),
		ConversationChannel("c-1"),
		NotificationsChannel("u-1"),
	}
	for _, n := range names {
		if err := m.Subscribe(ctx, n, tableListeners("t")); err != nil {
			t.Fatalf("subscribe %s failed: %v", n, err)
		}
	}

	bad := names[1]
	ft.setFailure(bad, errors.ErrQuotaExceeded)

	outcomes := m.ReconnectAll(ctx)
	if len(outcomes) != len(names) {
		t.Fatalf("expected %d outcomes, got %d", len(names), len(outcomes))
	}
	for _, o := range outcomes {
		if o.Name == bad && o.Err == nil {
			t.Errorf("expected failure outcome for %s", bad)
		}
		if o.Name != bad && o.Err != nil {
			t.Errorf("unexpected failure for %s: %v", o.Name, o.Err)
		}
	}

	for _, st := range m.ChannelStates() {
		switch st.Name {
		case bad:
			if st.State != StateFailed {
				t.Errorf("expected %s failed, got %s", bad, st.State)
			}
		default:
			if st.State != StateActive {
				t.Errorf("expected %s active after reconnect, got %s", st.Name, st.State)
			}
			if ft.liveCount(st.Name) != 1 {
				t.Errorf("expected one live handle for %s, got %d", st.Name, ft.liveCount(st.Name))
			}
		}
	}

	// The failed entry is retried on the next pass, not by an internal timer.
	ft.setFailure(bad, nil)
	for _, o := range m.ReconnectAll(ctx) {
		if o.Err != nil {
			t.Errorf("expected clean second pass, %s failed: %v", o.Name, o.Err)
		}
	}
	for _, st := range m.ChannelStates() {
		if st.State != StateActive {
			t.Errorf("expected %s active after retry, got %s", st.Name, st.State)
		}
	}
}

func TestAttachSharesEntry(t *testing.T) {
	ft := newFakeTransport()
	m := NewManager(ft, nil)
	ctx := context.Background()
	name := InboxChannel("u-7")

	if m.Attach(name) {
		t.Error("attach to missing entry should report false")
	}

	if err := m.Subscribe(ctx, name, tableListeners("conversations")); err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	if !m.Attach(name) {
		t.Fatal("attach to existing entry should report true")
	}

	// First release keeps the channel alive for the remaining subscriber.
	if err := m.Unsubscribe(ctx, name); err != nil {
		t.Fatalf("unsubscribe failed: %v", err)
	}
	if got := ft.liveCount(name); got != 1 {
		t.Errorf("expected handle still live after first release, got %d", got)
	}

	if err := m.Unsubscribe(ctx, name); err != nil {
		t.Fatalf("second unsubscribe failed: %v", err)
	}
	if got := ft.liveCount(name); got != 0 {
		t.Errorf("expected handle torn down after last release, got %d live", got)
	}
	if got := len(m.Topics()); got != 0 {
		t.Errorf("expected empty registry, got %d topics", got)
	}
}

func TestTeardownErrorIsSwallowed(t *testing.T) {
	ft := newFakeTransport()
	m := NewManager(ft, nil)
	ctx := context.Background()
	name := ProfileChannel("u-9")

	if err := m.Subscribe(ctx, name, tableListeners("profiles")); err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	ft.mu.Lock()
	ft.handles[name][0].closeErr = errors.New("socket already gone")
	ft.mu.Unlock()

	if err := m.Unsubscribe(ctx, name); err != nil {
		t.Errorf("teardown error must not propagate, got %v", err)
	}
}

func TestSubscribeFailureLeavesFailedEntry(t *testing.T) {
	ft := newFakeTransport()
	m := NewManager(ft, nil)
	ctx := context.Background()
	name := AdminAuditChannel()

	ft.setFailure(name, errors.ErrInvalidFilter)
	if err := m.Subscribe(ctx, name, tableListeners("audit_log")); err == nil {
		t.Fatal("expected subscribe error")
	}

	states := m.ChannelStates()
	if len(states) != 1 || states[0].State != StateFailed {
		t.Fatalf("expected one failed entry, got %+v", states)
	}

	// The next reconnect pass recovers it.
	ft.setFailure(name, nil)
	outcomes := m.ReconnectAll(ctx)
	if len(outcomes) != 1 || outcomes[0].Err != nil {
		t.Fatalf("expected recovery on reconnect, got %+v", outcomes)
	}
	if got := m.ChannelStates()[0].State; got != StateActive {
		t.Errorf("expected active after recovery, got %s", got)
	}
}

func TestCloseRejectsFurtherSubscribes(t *testing.T) {
	ft := newFakeTransport()
	m := NewManager(ft, nil)
	ctx := context.Background()
	name := FeedChannel("campus-2")

	if err := m.Subscribe(ctx, name, tableListeners("posts")); err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	if err := m.Close(ctx); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if got := ft.liveCount(name); got != 0 {
		t.Errorf("expected all handles torn down on close, got %d live", got)
	}
	if err := m.Subscribe(ctx, name, tableListeners("posts")); err != errors.ErrClosed {
		t.Errorf("expected ErrClosed after close, got %v", err)
	}
}
