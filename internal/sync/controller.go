// Package sync orchestrates the notification sync core for one session: it
// resolves the scope's route, subscribes the transport channel, pulls
// snapshots, and feeds results into the notification store.
//
// A push signal is only a wake-up; its payload is never merged. The reaction
// to any signal is a cache-bypassing refetch of the canonical snapshot, so a
// late-arriving result can only re-establish ground truth, never corrupt it.
package sync

import (
	"context"
	gosync "sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/nhle/portal-notify/internal/fetch"
	"github.com/nhle/portal-notify/internal/model"
	"github.com/nhle/portal-notify/internal/route"
	"github.com/nhle/portal-notify/internal/store"
	"github.com/nhle/portal-notify/internal/transport"
)

// State is the controller's position in the session sync lifecycle.
type State int

const (
	StateIdle State = iota
	StateSubscribing
	StateSynced
	StateResyncing
	StateTornDown
)

// Result is delivered after every sync attempt. It doubles as a tea.Msg for
// the UI layer.
type Result struct {
	Scope         model.Scope
	Notifications []model.Notification
	// FromCache marks results seeded from the local snapshot cache
	// before the first network fetch completed.
	FromCache bool
	Err       error
}

// PushChannel is the transport surface the controller needs. Satisfied by
// *transport.Channel.
type PushChannel interface {
	JoinRoom(role, identity string) error
	Subscribe(topic string, fn transport.Handler) transport.Handle
	Unsubscribe(h transport.Handle)
	LeaveRooms()
}

// SnapshotFetcher pulls a scope's canonical notification list. Satisfied by
// *fetch.Fetcher.
type SnapshotFetcher interface {
	Fetch(ctx context.Context, scope model.Scope, opts fetch.Options) ([]model.Notification, error)
	Invalidate(scope model.Scope)
}

// DefaultCoalesce is the window within which a burst of push signals
// collapses into a single refetch.
const DefaultCoalesce = 300 * time.Millisecond

// Controller drives the state machine
// Idle → Subscribing → Synced ⇄ Resyncing → TornDown for one session.
type Controller struct {
	fetcher  SnapshotFetcher
	channel  PushChannel
	notes    *store.NotificationStore
	state    *store.StateStore
	logger   *zap.Logger
	coalesce time.Duration

	mu         gosync.Mutex
	st         State
	scope      model.Scope
	handle     transport.Handle
	generation uint64
	cancel     context.CancelFunc
	signals    chan struct{}

	resultCh chan Result
}

// Config wires a Controller's collaborators.
type Config struct {
	Fetcher SnapshotFetcher
	Channel PushChannel
	Notes   *store.NotificationStore
	// State is the durable local store; nil disables snapshot caching.
	State *store.StateStore
	// Coalesce overrides DefaultCoalesce when positive.
	Coalesce time.Duration
	Logger   *zap.Logger
}

// New creates a Controller in the Idle state.
func New(cfg Config) *Controller {
	if cfg.Coalesce <= 0 {
		cfg.Coalesce = DefaultCoalesce
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Controller{
		fetcher:  cfg.Fetcher,
		channel:  cfg.Channel,
		notes:    cfg.Notes,
		state:    cfg.State,
		logger:   cfg.Logger,
		coalesce: cfg.Coalesce,
		resultCh: make(chan Result, 16),
	}
}

// State returns the controller's current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.st
}

// Results exposes the stream of sync outcomes.
func (c *Controller) Results() <-chan Result {
	return c.resultCh
}

// WaitForNextResult returns a tea.Cmd that waits for the next sync result.
// Call it again after processing each Result to keep listening.
func (c *Controller) WaitForNextResult() tea.Cmd {
	return func() tea.Msg {
		r, ok := <-c.resultCh
		if !ok {
			return nil
		}
		return r
	}
}

// Prime seeds the store from the durable snapshot cache so the UI has
// last-known-good data before the first fetch completes. No-op without a
// state store or cached snapshot.
func (c *Controller) Prime(ctx context.Context, scope model.Scope) {
	if c.state == nil {
		return
	}
	items, _, err := c.state.LoadSnapshot(ctx, scope.Key())
	if err != nil {
		c.logger.Warn("loading cached snapshot failed",
			zap.String("scope", scope.Key()), zap.Error(err))
		return
	}
	if len(items) == 0 {
		return
	}
	c.notes.Replace(scope, items)
	c.emit(Result{Scope: scope, Notifications: items, FromCache: true})
}

// SetScope reacts to the session's (role, identity) becoming available or
// changing. The previous subscription is always removed before a new one is
// created, and any in-flight fetch for the previous scope is cancelled; its
// late result will be discarded. A scope that resolves to the disabled route
// leaves the controller Idle.
func (c *Controller) SetScope(scope model.Scope) {
	c.mu.Lock()
	if c.st == StateTornDown {
		c.mu.Unlock()
		return
	}
	if scope == c.scope && c.st != StateIdle {
		c.mu.Unlock()
		return
	}

	c.teardownLocked()
	c.scope = scope

	r := route.Resolve(scope)
	if !r.Enabled {
		c.st = StateIdle
		c.mu.Unlock()
		return
	}

	c.st = StateSubscribing
	c.generation++
	gen := c.generation

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	signals := make(chan struct{}, 1)
	c.signals = signals
	c.mu.Unlock()

	go c.establish(ctx, gen, scope, r, signals)
}

// Resync forces an immediate cache-bypassing refetch of the current scope,
// as if a push signal had arrived.
func (c *Controller) Resync() {
	c.mu.Lock()
	signals := c.signals
	st := c.st
	c.mu.Unlock()

	if st != StateSynced && st != StateResyncing {
		return
	}
	select {
	case signals <- struct{}{}:
	default:
	}
}

// Teardown ends the session: unsubscribes, cancels in-flight work, forgets
// room joins, and clears the store. The controller cannot be reused after.
func (c *Controller) Teardown() {
	c.mu.Lock()
	c.teardownLocked()
	c.st = StateTornDown
	c.mu.Unlock()

	c.notes.Clear()
}

// teardownLocked removes the active subscription and cancels in-flight
// fetches. Callers hold the lock.
func (c *Controller) teardownLocked() {
	if !c.handle.Zero() {
		c.channel.Unsubscribe(c.handle)
		c.handle = transport.Handle{}
	}
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.signals = nil
	c.channel.LeaveRooms()
	if !c.scope.Zero() {
		c.fetcher.Invalidate(c.scope)
	}
}

// establish runs the Subscribing phase: snapshot fetch, store replace, room
// join, then topic subscription. The fetch comes first so the subscription
// always starts from ground truth; anything pushed during the gap triggers
// its own resync once the handler is live.
func (c *Controller) establish(ctx context.Context, gen uint64, scope model.Scope, r route.Route, signals chan struct{}) {
	items, err := c.fetcher.Fetch(ctx, scope, fetch.Options{})
	if !c.current(gen) {
		return
	}
	if err != nil {
		// Store keeps last-known-good; the subscription below lets a
		// later push recover freshness.
		c.emit(Result{Scope: scope, Err: err})
	} else {
		c.apply(ctx, scope, items)
	}

	if err := c.channel.JoinRoom(string(scope.Role), scope.Identity); err != nil {
		c.logger.Warn("room join failed", zap.String("scope", scope.Key()), zap.Error(err))
	}

	h := c.channel.Subscribe(r.Topic, func([]byte) {
		select {
		case signals <- struct{}{}:
		default:
		}
	})

	c.mu.Lock()
	if gen != c.generation || c.st == StateTornDown {
		c.mu.Unlock()
		c.channel.Unsubscribe(h)
		return
	}
	c.handle = h
	c.st = StateSynced
	c.mu.Unlock()

	go c.signalLoop(ctx, gen, scope, signals)
}

// signalLoop coalesces push signals and performs one resync per burst. The
// coalescing window starts at the first signal of a burst, so a continuous
// stream of signals cannot starve the refetch.
func (c *Controller) signalLoop(ctx context.Context, gen uint64, scope model.Scope, signals chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-signals:
		}

		timer := time.NewTimer(c.coalesce)
	drain:
		for {
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-signals:
				// Coalesced into the pending resync.
			case <-timer.C:
				break drain
			}
		}

		c.resync(ctx, gen, scope)
	}
}

// resync performs the Synced → Resyncing → Synced round trip: one
// cache-bypassing fetch and one store replace.
func (c *Controller) resync(ctx context.Context, gen uint64, scope model.Scope) {
	c.mu.Lock()
	if gen != c.generation || c.st != StateSynced {
		c.mu.Unlock()
		return
	}
	c.st = StateResyncing
	c.mu.Unlock()

	items, err := c.fetcher.Fetch(ctx, scope, fetch.Options{Bypass: true})

	c.mu.Lock()
	if gen != c.generation {
		// Scope changed while the fetch was in flight; the result no
		// longer belongs to this session view.
		c.mu.Unlock()
		return
	}
	c.st = StateSynced
	c.mu.Unlock()

	if err != nil {
		c.emit(Result{Scope: scope, Err: err})
		return
	}
	c.apply(ctx, scope, items)
}

// apply replaces the store contents for the scope, persists the snapshot,
// and emits a result.
func (c *Controller) apply(ctx context.Context, scope model.Scope, items []model.Notification) {
	c.notes.Replace(scope, items)

	if c.state != nil {
		if err := c.state.SaveSnapshot(ctx, scope.Key(), items); err != nil {
			c.logger.Warn("caching snapshot failed",
				zap.String("scope", scope.Key()), zap.Error(err))
		}
	}

	c.emit(Result{Scope: scope, Notifications: items})
}

// current reports whether gen is still the live subscription generation.
func (c *Controller) current(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return gen == c.generation && c.st != StateTornDown
}

// emit sends a Result without blocking, dropping when the consumer lags.
func (c *Controller) emit(r Result) {
	select {
	case c.resultCh <- r:
	default:
	}
}
