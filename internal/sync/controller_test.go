package sync

import (
	"context"
	"fmt"
	gosync "sync"
	"testing"
	"time"

	"github.com/nhle/portal-notify/internal/fetch"
	"github.com/nhle/portal-notify/internal/model"
	"github.com/nhle/portal-notify/internal/store"
	"github.com/nhle/portal-notify/internal/transport"
)

// fakeChannel records join/subscribe/unsubscribe traffic and can deliver
// push signals to whatever handler is registered.
type fakeChannel struct {
	mu       gosync.Mutex
	nextID   int
	joins    []string
	events   []string
	handlers map[string]transport.Handler // handle id → handler
	topics   map[string]string            // handle id → topic
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{
		handlers: make(map[string]transport.Handler),
		topics:   make(map[string]string),
	}
}

func (f *fakeChannel) JoinRoom(role, identity string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.joins = append(f.joins, role+"|"+identity)
	return nil
}

func (f *fakeChannel) Subscribe(topic string, fn transport.Handler) transport.Handle {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := fmt.Sprintf("h%d", f.nextID)
	f.handlers[id] = fn
	f.topics[id] = topic
	f.events = append(f.events, "sub:"+topic)
	return transport.Handle{ID: id, Topic: topic}
}

func (f *fakeChannel) Unsubscribe(h transport.Handle) {
	if h.Zero() {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.handlers[h.ID]; ok {
		delete(f.handlers, h.ID)
		delete(f.topics, h.ID)
		f.events = append(f.events, "unsub:"+h.Topic)
	}
}

func (f *fakeChannel) LeaveRooms() {}

// signal delivers a push signal to every handler on the topic.
func (f *fakeChannel) signal(topic string) {
	f.mu.Lock()
	var fns []transport.Handler
	for id, fn := range f.handlers {
		if f.topics[id] == topic {
			fns = append(fns, fn)
		}
	}
	f.mu.Unlock()

	for _, fn := range fns {
		fn(nil)
	}
}

func (f *fakeChannel) activeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.handlers)
}

func (f *fakeChannel) eventLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.events))
	copy(out, f.events)
	return out
}

func (f *fakeChannel) joinLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.joins))
	copy(out, f.joins)
	return out
}

// fakeFetcher serves canned snapshots per scope key and counts calls. A
// scope key present in gates blocks its fetch until the gate is closed.
type fakeFetcher struct {
	mu      gosync.Mutex
	results map[string][]model.Notification
	calls   map[string]int
	bypass  map[string]int
	gates   map[string]chan struct{}
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		results: make(map[string][]model.Notification),
		calls:   make(map[string]int),
		bypass:  make(map[string]int),
		gates:   make(map[string]chan struct{}),
	}
}

func (f *fakeFetcher) Fetch(ctx context.Context, scope model.Scope, opts fetch.Options) ([]model.Notification, error) {
	key := scope.Key()

	f.mu.Lock()
	f.calls[key]++
	if opts.Bypass {
		f.bypass[key]++
	}
	gate := f.gates[key]
	items := f.results[key]
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	return items, nil
}

func (f *fakeFetcher) Invalidate(model.Scope) {}

func (f *fakeFetcher) set(scope model.Scope, items ...model.Notification) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results[scope.Key()] = items
}

func (f *fakeFetcher) counts(scope model.Scope) (calls, bypass int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[scope.Key()], f.bypass[scope.Key()]
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func newTestController(fetcher *fakeFetcher, channel *fakeChannel) (*Controller, *store.NotificationStore) {
	notes := store.NewNotificationStore()
	c := New(Config{
		Fetcher:  fetcher,
		Channel:  channel,
		Notes:    notes,
		Coalesce: 30 * time.Millisecond,
	})
	return c, notes
}

func TestSetScope_DisabledScopeStaysIdle(t *testing.T) {
	fetcher := newFakeFetcher()
	channel := newFakeChannel()
	c, _ := newTestController(fetcher, channel)

	c.SetScope(model.Scope{Role: model.RoleFaculty}) // no identity

	if got := c.State(); got != StateIdle {
		t.Errorf("expected Idle, got %v", got)
	}
	if calls, _ := fetcher.counts(model.Scope{Role: model.RoleFaculty}); calls != 0 {
		t.Errorf("disabled scope must not fetch, got %d calls", calls)
	}
	if channel.activeCount() != 0 {
		t.Error("disabled scope must not subscribe")
	}
}

func TestSetScope_EstablishesSync(t *testing.T) {
	fetcher := newFakeFetcher()
	channel := newFakeChannel()
	c, notes := newTestController(fetcher, channel)

	scope := model.Scope{Role: model.RoleAdmin}
	fetcher.set(scope, model.Notification{ID: "n1", Type: model.TypePayment, Time: "2026-01-01T00:00:00Z"})

	c.SetScope(scope)

	waitFor(t, "synced state", func() bool { return c.State() == StateSynced })

	if notes.Len() != 1 || notes.List()[0].ID != "n1" {
		t.Errorf("store should hold the snapshot, got %v", notes.List())
	}
	if channel.activeCount() != 1 {
		t.Errorf("expected one active subscription, got %d", channel.activeCount())
	}
	if joins := channel.joinLog(); len(joins) != 1 || joins[0] != "admin|" {
		t.Errorf("expected one admin room join, got %v", joins)
	}
}

func TestPushSignals_CoalesceIntoOneBypassFetch(t *testing.T) {
	fetcher := newFakeFetcher()
	channel := newFakeChannel()
	c, notes := newTestController(fetcher, channel)

	scope := model.Scope{Role: model.RoleAdmin}
	c.SetScope(scope)
	waitFor(t, "synced state", func() bool { return c.State() == StateSynced })

	fetcher.set(scope, model.Notification{ID: "fresh", Type: model.TypeLeaveRequest, ApplicationDate: "2026-01-01T00:00:00Z"})

	// Two signals land within the coalescing window.
	channel.signal("admin-notification")
	channel.signal("admin-notification")

	waitFor(t, "resync to land", func() bool { return notes.Len() == 1 })
	waitFor(t, "return to synced", func() bool { return c.State() == StateSynced })

	// Give a second (incorrect) fetch a chance to happen before counting.
	time.Sleep(100 * time.Millisecond)

	if _, bypass := fetcher.counts(scope); bypass != 1 {
		t.Errorf("two signals in one window must produce exactly one bypass fetch, got %d", bypass)
	}
}

func TestScopeChange_UnsubscribesBeforeSubscribing(t *testing.T) {
	fetcher := newFakeFetcher()
	channel := newFakeChannel()
	c, _ := newTestController(fetcher, channel)

	c.SetScope(model.Scope{Role: model.RoleFaculty, Identity: "a@x"})
	waitFor(t, "first sync", func() bool { return c.State() == StateSynced })

	c.SetScope(model.Scope{Role: model.RoleFaculty, Identity: "b@x"})
	waitFor(t, "second sync", func() bool {
		return c.State() == StateSynced && channel.activeCount() == 1
	})

	want := []string{"sub:faculty-notification", "unsub:faculty-notification", "sub:faculty-notification"}
	got := channel.eventLog()
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected unsubscribe before re-subscribe: %v", got)
		}
	}
}

func TestScopeChange_DiscardsLateFetch(t *testing.T) {
	fetcher := newFakeFetcher()
	channel := newFakeChannel()
	c, notes := newTestController(fetcher, channel)

	scopeA := model.Scope{Role: model.RoleFaculty, Identity: "a@x"}
	scopeB := model.Scope{Role: model.RoleFaculty, Identity: "b@x"}

	gate := make(chan struct{})
	fetcher.mu.Lock()
	fetcher.gates[scopeA.Key()] = gate
	fetcher.mu.Unlock()
	fetcher.set(scopeA, model.Notification{ID: "stale", Type: model.TypeAssignment, Time: "2026-01-01T00:00:00Z"})
	fetcher.set(scopeB, model.Notification{ID: "current", Type: model.TypeAssignment, Time: "2026-01-02T00:00:00Z"})

	c.SetScope(scopeA) // fetch for a@x blocks on the gate
	c.SetScope(scopeB)
	waitFor(t, "b@x to sync", func() bool { return c.State() == StateSynced })

	// Release a@x's in-flight fetch; its late result must be discarded.
	close(gate)
	time.Sleep(100 * time.Millisecond)

	got := notes.List()
	if len(got) != 1 || got[0].ID != "current" {
		t.Errorf("late response for the previous scope must not appear, got %v", got)
	}
	if notes.Scope() != scopeB {
		t.Errorf("store should track b@x, got %+v", notes.Scope())
	}
}

func TestResync_ForcesBypassFetch(t *testing.T) {
	fetcher := newFakeFetcher()
	channel := newFakeChannel()
	c, notes := newTestController(fetcher, channel)

	scope := model.Scope{Role: model.RoleStudent, Identity: "s@x"}
	c.SetScope(scope)
	waitFor(t, "synced state", func() bool { return c.State() == StateSynced })

	fetcher.set(scope, model.Notification{ID: "g1", Type: model.TypeGrade, Time: "2026-01-01T00:00:00Z"})
	c.Resync()

	waitFor(t, "manual resync to land", func() bool { return notes.Len() == 1 })
	if _, bypass := fetcher.counts(scope); bypass != 1 {
		t.Errorf("manual resync must bypass the cache, got %d bypass calls", bypass)
	}
}

func TestTeardown_UnsubscribesAndClears(t *testing.T) {
	fetcher := newFakeFetcher()
	channel := newFakeChannel()
	c, notes := newTestController(fetcher, channel)

	scope := model.Scope{Role: model.RoleAdmin}
	fetcher.set(scope, model.Notification{ID: "n1", Type: model.TypeFeeUpdated, Time: "2026-01-01T00:00:00Z"})
	c.SetScope(scope)
	waitFor(t, "synced state", func() bool { return c.State() == StateSynced })

	c.Teardown()

	if c.State() != StateTornDown {
		t.Errorf("expected TornDown, got %v", c.State())
	}
	if channel.activeCount() != 0 {
		t.Error("teardown must remove the subscription")
	}
	if notes.Len() != 0 {
		t.Error("teardown must clear the store")
	}

	// A torn-down controller ignores further scope changes.
	c.SetScope(scope)
	if c.State() != StateTornDown {
		t.Error("SetScope after teardown must be a no-op")
	}
}

func TestPrime_SeedsStoreFromCachedSnapshot(t *testing.T) {
	state, err := store.NewStateStore(":memory:")
	if err != nil {
		t.Fatalf("creating state store: %v", err)
	}
	t.Cleanup(func() { state.Close() })

	scope := model.Scope{Role: model.RoleStudent, Identity: "s@x"}
	cached := []model.Notification{{ID: "c1", Type: model.TypeGrade, Time: "2026-01-01T00:00:00Z"}}
	if err := state.SaveSnapshot(context.Background(), scope.Key(), cached); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}

	notes := store.NewNotificationStore()
	c := New(Config{
		Fetcher: newFakeFetcher(),
		Channel: newFakeChannel(),
		Notes:   notes,
		State:   state,
	})

	c.Prime(context.Background(), scope)

	if notes.Len() != 1 || notes.List()[0].ID != "c1" {
		t.Errorf("store should render the cached snapshot, got %v", notes.List())
	}

	select {
	case r := <-c.Results():
		if !r.FromCache {
			t.Error("primed result must be marked FromCache")
		}
	default:
		t.Error("expected a primed result on the channel")
	}
}
