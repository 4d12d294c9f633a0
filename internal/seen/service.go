// Package seen batches "mark seen" requests to the portal and mirrors a
// best-effort local flag. The authoritative seen state lives server-side;
// the local flag is only a UI hint.
package seen

import (
	"context"

	"go.uber.org/zap"

	"github.com/nhle/portal-notify/internal/fetch"
	"github.com/nhle/portal-notify/internal/model"
	"github.com/nhle/portal-notify/internal/store"
)

// markSeenPath is the batched seen endpoint.
const markSeenPath = "/faculty-notifications/mark-seen"

// markSeenRequest is the PATCH body.
type markSeenRequest struct {
	NotificationIDs []string `json:"notificationIds"`
}

// Service persists seen state for the active session.
type Service struct {
	client *fetch.Client
	notes  *store.NotificationStore
	state  *store.StateStore
	logger *zap.Logger
}

// NewService creates a seen-state service. state may be nil when there is no
// durable local store; the flag write is then skipped.
func NewService(client *fetch.Client, notes *store.NotificationStore, state *store.StateStore, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{client: client, notes: notes, state: state, logger: logger}
}

// MarkSeen sends one batched PATCH for the given notifications and, on
// success, flips their local seen flags and records the advisory has-seen
// flag for the scope. An empty input performs no network call. On failure
// every flag, local and remote, is left unchanged; callers may retry on the
// next user interaction.
func (s *Service) MarkSeen(ctx context.Context, notifs []model.Notification) error {
	if len(notifs) == 0 {
		return nil
	}

	ids := make([]string, 0, len(notifs))
	for _, n := range notifs {
		ids = append(ids, n.ID)
	}

	err := s.client.Patch(ctx, markSeenPath, markSeenRequest{NotificationIDs: ids}, nil)
	if err != nil {
		s.logger.Warn("mark seen failed", zap.Int("count", len(ids)), zap.Error(err))
		return err
	}

	s.notes.MarkSeen(ids)

	if s.state != nil {
		scopeKey := s.notes.Scope().Key()
		if err := s.state.SetHasSeen(ctx, scopeKey, true); err != nil {
			// Advisory only; the server accepted the batch.
			s.logger.Warn("persisting has-seen flag failed",
				zap.String("scope", scopeKey), zap.Error(err))
		}
	}

	return nil
}
