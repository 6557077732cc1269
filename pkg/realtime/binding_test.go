package realtime

import (
	"context"
	"sync"
	"testing"
)

func TestBindingLifecycle(t *testing.T) {
	ft := newFakeTransport()
	m := NewManager(ft, nil)
	b := NewBinding(m)
	ctx := context.Background()
	name := PostCommentsChannel("p-1")

	err := b.Apply(ctx, SubscriptionConfig{
		ChannelName: name,
		Table:       "comments",
		Event:       EventInsert,
		Filter:      "post_id=eq.p-1",
		OnPayload:   func(ChangePayload) {},
		Enabled:     true,
	})
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if got := ft.liveCount(name); got != 1 {
		t.Fatalf("expected one live handle, got %d", got)
	}

	if err := b.Stop(ctx); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if got := ft.liveCount(name); got != 0 {
		t.Errorf("expected handle torn down on stop, got %d live", got)
	}

	// Stop must be safe to call more than once.
	if err := b.Stop(ctx); err != nil {
		t.Errorf("second stop returned error: %v", err)
	}
}

func TestCallbackSwapDoesNotResubscribe(t *testing.T) {
	ft := newFakeTransport()
	m := NewManager(ft, nil)
	b := NewBinding(m)
	ctx := context.Background()
	name := ConversationChannel("c-9")

	var mu sync.Mutex
	var got []string
	first := func(p ChangePayload) {
		mu.Lock()
		got = append(got, "first")
		mu.Unlock()
	}
	second := func(p ChangePayload) {
		mu.Lock()
		got = append(got, "second")
		mu.Unlock()
	}

	cfg := SubscriptionConfig{
		ChannelName: name,
		Table:       "messages",
		Event:       EventInsert,
		OnPayload:   first,
		Enabled:     true,
	}
	if err := b.Apply(ctx, cfg); err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	subsBefore := ft.subscribeCount(name)

	// Same channel, same table/filter, fresh closure: only the cell target
	// moves.
	cfg.OnPayload = second
	if err := b.Apply(ctx, cfg); err != nil {
		t.Fatalf("re-apply failed: %v", err)
	}
	if got := ft.subscribeCount(name); got != subsBefore {
		t.Errorf("callback swap must not resubscribe: %d -> %d", subsBefore, got)
	}

	ft.emit(name, ChangePayload{Type: EventInsert, Schema: DefaultSchema, Table: "messages"})
	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 || got[0] != "second" {
		t.Errorf("expected only the swapped callback to fire, got %v", got)
	}
}

func TestBindingSpecChangeResubscribes(t *testing.T) {
	ft := newFakeTransport()
	m := NewManager(ft, nil)
	b := NewBinding(m)
	ctx := context.Background()
	name := FeedChannel("campus-3")

	cfg := SubscriptionConfig{
		ChannelName: name,
		Table:       "posts",
		Event:       EventInsert,
		OnPayload:   func(ChangePayload) {},
		Enabled:     true,
	}
	if err := b.Apply(ctx, cfg); err != nil {
		t.Fatalf("apply failed: %v", err)
	}

	cfg.Event = EventAll
	if err := b.Apply(ctx, cfg); err != nil {
		t.Fatalf("re-apply failed: %v", err)
	}
	if got := ft.subscribeCount(name); got != 2 {
		t.Errorf("spec change should resubscribe, got %d subscribes", got)
	}
	if got := ft.liveCount(name); got != 1 {
		t.Errorf("expected one live handle after spec change, got %d", got)
	}
}

func TestBindingDisabledConfigStops(t *testing.T) {
	ft := newFakeTransport()
	m := NewManager(ft, nil)
	b := NewBinding(m)
	ctx := context.Background()
	name := NotificationsChannel("u-2")

	cfg := SubscriptionConfig{
		ChannelName: name,
		Table:       "notifications",
		OnPayload:   func(ChangePayload) {},
		Enabled:     true,
	}
	if err := b.Apply(ctx, cfg); err != nil {
		t.Fatalf("apply failed: %v", err)
	}

	cfg.Enabled = false
	if err := b.Apply(ctx, cfg); err != nil {
		t.Fatalf("disable failed: %v", err)
	}
	if got := ft.liveCount(name); got != 0 {
		t.Errorf("expected teardown on disable, got %d live", got)
	}
}

func TestBindingRapidToggle(t *testing.T) {
	ft := newFakeTransport()
	m := NewManager(ft, nil)
	b := NewBinding(m)
	ctx := context.Background()
	name := SkillAssessmentChannel("u-5")

	cfg := SubscriptionConfig{
		ChannelName: name,
		Table:       "assessments",
		OnPayload:   func(ChangePayload) {},
		Enabled:     true,
	}
	for i := 0; i < 10; i++ {
		if err := b.Apply(ctx, cfg); err != nil {
			t.Fatalf("apply %d failed: %v", i, err)
		}
		if err := b.Stop(ctx); err != nil {
			t.Fatalf("stop %d failed: %v", i, err)
		}
	}
	if got := ft.liveCount(name); got != 0 {
		t.Errorf("expected no live handles after toggling, got %d", got)
	}

	if err := b.Apply(ctx, cfg); err != nil {
		t.Fatalf("final apply failed: %v", err)
	}
	if got := ft.liveCount(name); got != 1 {
		t.Errorf("expected exactly one live handle, got %d", got)
	}
}

func TestMultiBindingSingleSubscription(t *testing.T) {
	ft := newFakeTransport()
	m := NewManager(ft, nil)
	mb := NewMultiBinding(m)
	ctx := context.Background()
	name := ConversationChannel("c-77")

	var mu sync.Mutex
	hits := map[string]int{}
	record := func(tag string) PayloadHandler {
		return func(ChangePayload) {
			mu.Lock()
			hits[tag]++
			mu.Unlock()
		}
	}

	bindings := []TableBinding{
		{Table: "messages", Event: EventInsert, OnPayload: record("messages")},
		{Table: "message_reactions", Event: EventAll, OnPayload: record("reactions")},
		{Table: "read_receipts", Event: EventUpdate, OnPayload: record("receipts")},
	}
	if err := mb.Apply(ctx, name, bindings); err != nil {
		t.Fatalf("apply failed: %v", err)
	}

	// All three tables ride one transport subscription.
	if got := ft.subscribeCount(name); got != 1 {
		t.Errorf("expected a single transport subscribe, got %d", got)
	}
	ft.mu.Lock()
	attached := len(ft.specs[name])
	ft.mu.Unlock()
	if attached != 3 {
		t.Errorf("expected 3 listeners attached before subscribe, got %d", attached)
	}

	ft.emit(name, ChangePayload{Type: EventInsert, Schema: DefaultSchema, Table: "messages"})
	ft.emit(name, ChangePayload{Type: EventUpdate, Schema: DefaultSchema, Table: "read_receipts"})
	ft.emit(name, ChangePayload{Type: EventDelete, Schema: DefaultSchema, Table: "message_reactions"})
	// Wrong event for the receipts binding: must not be delivered.
	ft.emit(name, ChangePayload{Type: EventInsert, Schema: DefaultSchema, Table: "read_receipts"})

	mu.Lock()
	defer mu.Unlock()
	if hits["messages"] != 1 || hits["reactions"] != 1 || hits["receipts"] != 1 {
		t.Errorf("unexpected deliveries: %v", hits)
	}

	if err := mb.Stop(ctx); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if err := mb.Stop(ctx); err != nil {
		t.Errorf("second stop returned error: %v", err)
	}
	if got := ft.liveCount(name); got != 0 {
		t.Errorf("expected teardown on stop, got %d live", got)
	}
}

func TestMultiBindingHandlerSwap(t *testing.T) {
	ft := newFakeTransport()
	m := NewManager(ft, nil)
	mb := NewMultiBinding(m)
	ctx := context.Background()
	name := InboxChannel("u-11")

	var mu sync.Mutex
	var tags []string
	mk := func(tag string) PayloadHandler {
		return func(ChangePayload) {
			mu.Lock()
			tags = append(tags, tag)
			mu.Unlock()
		}
	}

	if err := mb.Apply(ctx, name, []TableBinding{
		{Table: "conversations", OnPayload: mk("old")},
	}); err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	subs := ft.subscribeCount(name)

	mb.UpdateHandler(0, mk("new"))
	if got := ft.subscribeCount(name); got != subs {
		t.Errorf("handler swap must not resubscribe")
	}

	ft.emit(name, ChangePayload{Type: EventInsert, Schema: DefaultSchema, Table: "conversations"})
	mu.Lock()
	defer mu.Unlock()
	if len(tags) != 1 || tags[0] != "new" {
		t.Errorf("expected swapped handler delivery, got %v", tags)
	}
}
