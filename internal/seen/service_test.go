package seen

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync/atomic"
	"testing"

	"github.com/nhle/portal-notify/internal/fetch"
	"github.com/nhle/portal-notify/internal/model"
	"github.com/nhle/portal-notify/internal/store"
	"github.com/nhle/portal-notify/tests/testutil"
)

func newSeenFixture(t *testing.T, handler http.HandlerFunc) (*Service, *store.NotificationStore, *store.StateStore) {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	notes := store.NewNotificationStore()
	state := testutil.NewTestState(t)
	svc := NewService(fetch.NewClient(srv.URL, ""), notes, state, nil)
	return svc, notes, state
}

func TestMarkSeen_EmptyInputMakesNoCall(t *testing.T) {
	var hits atomic.Int64
	svc, _, _ := newSeenFixture(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	})

	if err := svc.MarkSeen(context.Background(), nil); err != nil {
		t.Fatalf("empty input must be a no-op, got %v", err)
	}
	if hits.Load() != 0 {
		t.Errorf("expected zero network calls, got %d", hits.Load())
	}
}

func TestMarkSeen_BatchesOnePatch(t *testing.T) {
	var hits atomic.Int64
	var gotPath string
	var gotIDs []string

	svc, notes, state := newSeenFixture(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		gotPath = r.URL.Path

		var body struct {
			NotificationIDs []string `json:"notificationIds"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decoding body: %v", err)
		}
		gotIDs = body.NotificationIDs
		w.WriteHeader(http.StatusOK)
	})

	scope := model.Scope{Role: model.RoleFaculty, Identity: "f@x"}
	notifs := []model.Notification{
		{ID: "n1", Type: model.TypeLeaveRequest, ApplicationDate: "2026-01-02T00:00:00Z"},
		{ID: "n2", Type: model.TypeGrade, Time: "2026-01-01T00:00:00Z"},
	}
	notes.Replace(scope, notifs)

	if err := svc.MarkSeen(context.Background(), notifs); err != nil {
		t.Fatalf("MarkSeen: %v", err)
	}

	if hits.Load() != 1 {
		t.Errorf("expected exactly one batched call, got %d", hits.Load())
	}
	if gotPath != "/faculty-notifications/mark-seen" {
		t.Errorf("unexpected path %q", gotPath)
	}
	sort.Strings(gotIDs)
	if len(gotIDs) != 2 || gotIDs[0] != "n1" || gotIDs[1] != "n2" {
		t.Errorf("unexpected id batch %v", gotIDs)
	}

	for _, n := range notes.List() {
		if !n.Seen {
			t.Errorf("notification %s should be flagged seen locally", n.ID)
		}
	}

	hasSeen, err := state.HasSeen(context.Background(), scope.Key())
	if err != nil {
		t.Fatalf("HasSeen: %v", err)
	}
	if !hasSeen {
		t.Error("advisory has-seen flag should be persisted on success")
	}
}

func TestMarkSeen_FailureLeavesFlagsUntouched(t *testing.T) {
	svc, notes, state := newSeenFixture(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "denied", http.StatusForbidden)
	})

	scope := model.Scope{Role: model.RoleAdmin}
	notifs := []model.Notification{{ID: "n1", Type: model.TypePayment, Time: "2026-01-01T00:00:00Z"}}
	notes.Replace(scope, notifs)

	if err := svc.MarkSeen(context.Background(), notifs); err == nil {
		t.Fatal("expected the PATCH failure to surface")
	}

	if notes.List()[0].Seen {
		t.Error("seen flag must stay false after a failed batch")
	}
	hasSeen, err := state.HasSeen(context.Background(), scope.Key())
	if err != nil {
		t.Fatalf("HasSeen: %v", err)
	}
	if hasSeen {
		t.Error("advisory flag must stay false after a failed batch")
	}
}
