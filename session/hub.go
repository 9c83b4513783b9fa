// CLAUDE:SUMMARY Process-wide session event feed: auth publishes signed-in/out, token-refreshed, user-updated and initial-session-restored; services subscribe.
// Package session is the process-wide session event feed. The auth layer
// publishes what happens to a user's session; services such as the
// template cache subscribe and react. Delivery is synchronous, in
// subscription order.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// EventType names a session transition.
type EventType string

const (
	InitialSessionRestored EventType = "initial-session-restored"
	SignedIn               EventType = "signed-in"
	SignedOut              EventType = "signed-out"
	TokenRefreshed         EventType = "token-refreshed"
	UserUpdated            EventType = "user-updated"
)

// Event is one session transition for one user.
type Event struct {
	Type   EventType `json:"type"`
	UserID string    `json:"user_id"`
	At     time.Time `json:"at"`
}

// Handler receives events.
type Handler func(ctx context.Context, ev Event)

type subscriber struct {
	id int
	fn Handler
}

// Hub fans events out to subscribers. The zero value is not usable; call
// NewHub.
type Hub struct {
	logger *slog.Logger

	mu     sync.RWMutex
	subs   []subscriber
	nextID int
	seen   map[string]bool
}

// NewHub creates a Hub. A nil logger uses slog.Default().
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{logger: logger, seen: make(map[string]bool)}
}

// Subscribe registers fn and returns the function that removes it.
func (h *Hub) Subscribe(fn Handler) (unsubscribe func()) {
	h.mu.Lock()
	h.nextID++
	id := h.nextID
	h.subs = append(h.subs, subscriber{id: id, fn: fn})
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			for i, s := range h.subs {
				if s.id == id {
					h.subs = append(h.subs[:i:i], h.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// Publish delivers ev to every subscriber. A panicking subscriber is
// logged and does not stop delivery to the others.
func (h *Hub) Publish(ctx context.Context, ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	h.mu.Lock()
	switch ev.Type {
	case SignedOut:
		delete(h.seen, ev.UserID)
	case SignedIn, InitialSessionRestored, TokenRefreshed:
		h.seen[ev.UserID] = true
	}
	subs := append([]subscriber(nil), h.subs...)
	h.mu.Unlock()

	h.logger.DebugContext(ctx, "session: event", "type", string(ev.Type), "user_id", ev.UserID)
	for _, s := range subs {
		h.deliver(ctx, s.fn, ev)
	}
}

// Restore publishes InitialSessionRestored the first time userID presents
// a valid session in this process, and reports whether it did.
func (h *Hub) Restore(ctx context.Context, userID string) bool {
	h.mu.Lock()
	known := h.seen[userID]
	h.seen[userID] = true
	h.mu.Unlock()
	if known {
		return false
	}
	h.Publish(ctx, Event{Type: InitialSessionRestored, UserID: userID})
	return true
}

func (h *Hub) deliver(ctx context.Context, fn Handler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.ErrorContext(ctx, "session: subscriber panicked", "type", string(ev.Type), "panic", r)
		}
	}()
	fn(ctx, ev)
}
