package fetch

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nhle/portal-notify/internal/model"
	"github.com/nhle/portal-notify/internal/route"
)

// DefaultStaleness is how long a cached snapshot is served in place of a
// fresh round trip.
const DefaultStaleness = 5 * time.Minute

// Options controls a single Fetch call.
type Options struct {
	// Bypass forces a round trip even when a fresh cached snapshot
	// exists. Push-triggered resyncs always bypass: correctness after a
	// signal matters more than saving the request.
	Bypass bool
}

// cacheEntry is one scope's last successful snapshot.
type cacheEntry struct {
	fetchedAt time.Time
	items     []model.Notification
}

// Fetcher pulls notification snapshots for a scope with per-scope caching.
type Fetcher struct {
	client    *Client
	staleness time.Duration
	logger    *zap.Logger
	now       func() time.Time

	mu    sync.Mutex
	cache map[string]cacheEntry
}

// NewFetcher creates a Fetcher on top of the given API client. A
// non-positive staleness falls back to DefaultStaleness.
func NewFetcher(client *Client, staleness time.Duration, logger *zap.Logger) *Fetcher {
	if staleness <= 0 {
		staleness = DefaultStaleness
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		client:    client,
		staleness: staleness,
		logger:    logger,
		now:       time.Now,
		cache:     make(map[string]cacheEntry),
	}
}

// Fetch returns the current notification snapshot for the scope. A scope
// that resolves to the disabled route returns an empty list without any
// network call. Within the staleness window, repeat calls reuse the cached
// snapshot unless opts.Bypass is set. A missing or empty response body is an
// empty list, never an error.
func (f *Fetcher) Fetch(ctx context.Context, scope model.Scope, opts Options) ([]model.Notification, error) {
	r := route.Resolve(scope)
	if !r.Enabled {
		return nil, nil
	}

	key := scope.Key()
	if !opts.Bypass {
		if items, ok := f.cached(key); ok {
			return items, nil
		}
	}

	var items []model.Notification
	if err := f.client.Get(ctx, r.Endpoint, &items); err != nil {
		f.logger.Warn("snapshot fetch failed",
			zap.String("scope", key),
			zap.Error(err),
		)
		return nil, err
	}
	if items == nil {
		items = []model.Notification{}
	}

	f.mu.Lock()
	f.cache[key] = cacheEntry{fetchedAt: f.now(), items: items}
	f.mu.Unlock()

	return items, nil
}

// Invalidate drops the cached snapshot for a scope, forcing the next Fetch
// to hit the network. Used on scope teardown.
func (f *Fetcher) Invalidate(scope model.Scope) {
	f.mu.Lock()
	delete(f.cache, scope.Key())
	f.mu.Unlock()
}

// cached returns the scope's snapshot when it is still within the staleness
// window.
func (f *Fetcher) cached(key string) ([]model.Notification, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	entry, ok := f.cache[key]
	if !ok {
		return nil, false
	}
	if f.now().Sub(entry.fetchedAt) > f.staleness {
		return nil, false
	}
	return entry.items, true
}
