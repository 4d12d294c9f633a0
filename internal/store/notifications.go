// Package store holds the session's notification state: an in-memory,
// ordered, deduplicated notification list plus the durable local state
// (seen flag, snapshot cache) behind sqlite.
package store

import (
	"sort"
	"sync"

	"github.com/nhle/portal-notify/internal/model"
)

// NotificationStore is the single in-memory source of truth for the active
// session's notification list. It is mutated only by the sync controller and
// the seen-state service; UI consumers read it.
//
// The store tracks exactly one scope at a time. Replacing with a different
// scope discards the previous scope's items, so a stale snapshot can never
// bleed across a role change.
type NotificationStore struct {
	mu    sync.RWMutex
	scope model.Scope
	items []model.Notification
}

// NewNotificationStore returns an empty store.
func NewNotificationStore() *NotificationStore {
	return &NotificationStore{}
}

// Replace merges the snapshot into the store for the given scope. Items are
// upserted by ID, last write wins, and the list is re-sorted descending by
// event time with ID as the deterministic tiebreak. When the scope differs
// from the store's current scope the previous contents are dropped first.
func (s *NotificationStore) Replace(scope model.Scope, list []model.Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.scope != scope {
		s.scope = scope
		s.items = nil
	}
	s.merge(list)
}

// Append upserts a single fully-formed notification into the current
// scope's list.
func (s *NotificationStore) Append(item model.Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.merge([]model.Notification{item})
}

// MarkSeen flips seen=true for the matching ids. Unknown ids are no-ops.
func (s *NotificationStore) MarkSeen(ids []string) {
	if len(ids) == 0 {
		return
	}

	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.items {
		if want[s.items[i].ID] {
			s.items[i].Seen = true
		}
	}
}

// Clear empties the list.
func (s *NotificationStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scope = model.Scope{}
	s.items = nil
}

// List returns a copy of the current notification list, newest first.
func (s *NotificationStore) List() []model.Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Notification, len(s.items))
	copy(out, s.items)
	return out
}

// Unseen returns the notifications not yet marked seen, newest first.
func (s *NotificationStore) Unseen() []model.Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Notification
	for _, n := range s.items {
		if !n.Seen {
			out = append(out, n)
		}
	}
	return out
}

// Len returns the number of stored notifications.
func (s *NotificationStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Scope returns the scope the store currently tracks.
func (s *NotificationStore) Scope() model.Scope {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scope
}

// merge upserts by ID and re-sorts. Callers hold the write lock.
func (s *NotificationStore) merge(list []model.Notification) {
	pos := make(map[string]int, len(s.items))
	for i, n := range s.items {
		pos[n.ID] = i
	}

	for _, n := range list {
		if i, ok := pos[n.ID]; ok {
			s.items[i] = n
			continue
		}
		pos[n.ID] = len(s.items)
		s.items = append(s.items, n)
	}

	sort.SliceStable(s.items, func(i, j int) bool {
		ti, tj := s.items[i].EventTime(), s.items[j].EventTime()
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return s.items[i].ID < s.items[j].ID
	})
}
