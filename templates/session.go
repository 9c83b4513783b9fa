package templates

import (
	"context"

	"github.com/hazyhaar/templio/kit"
	"github.com/hazyhaar/templio/observability"
	"github.com/hazyhaar/templio/session"
)

// Attach subscribes the service to hub and returns the unsubscribe func.
// Sign-in and session restore warm the first list page; sign-out drops the
// user's cached pages.
func (s *Service) Attach(hub *session.Hub) func() {
	return hub.Subscribe(s.onSession)
}

func (s *Service) onSession(ctx context.Context, ev session.Event) {
	if ev.UserID == "" {
		return
	}
	switch ev.Type {
	case session.SignedIn, session.InitialSessionRestored:
		if ev.Type == session.SignedIn {
			s.events.LogEvent(ctx, observability.BusinessEvent{
				EventType: observability.EventUserSignedIn,
				UserID:    ev.UserID,
				Success:   true,
			})
		}
		if _, err := s.List(kit.WithUserID(ctx, ev.UserID), SortNewest, 1); err != nil {
			s.logger.WarnContext(ctx, "templates: cache warmup failed", "user_id", ev.UserID, "error", err)
		}
	case session.SignedOut:
		s.cache.invalidate(ev.UserID)
		s.events.LogEvent(ctx, observability.BusinessEvent{
			EventType: observability.EventUserSignedOut,
			UserID:    ev.UserID,
			Success:   true,
		})
	}
}
