package testutil

import (
	"testing"

	"github.com/nhle/portal-notify/internal/store"
)

// NewTestState creates an in-memory StateStore with all migrations applied.
// It automatically closes the store when the test completes.
func NewTestState(t *testing.T) *store.StateStore {
	t.Helper()

	s, err := store.NewStateStore(":memory:")
	if err != nil {
		t.Fatalf("creating test state store: %v", err)
	}

	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("closing test state store: %v", err)
		}
	})

	return s
}
