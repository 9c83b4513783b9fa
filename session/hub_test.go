package session

import (
	"context"
	"strings"
	"testing"
)

func TestHub_DeliversInOrder(t *testing.T) {
	h := NewHub(nil)
	var got []string
	h.Subscribe(func(_ context.Context, ev Event) { got = append(got, "a:"+string(ev.Type)) })
	h.Subscribe(func(_ context.Context, ev Event) { got = append(got, "b:"+string(ev.Type)) })

	h.Publish(context.Background(), Event{Type: SignedIn, UserID: "u1"})
	if s := strings.Join(got, ","); s != "a:signed-in,b:signed-in" {
		t.Fatalf("delivery = %s", s)
	}
}

func TestHub_Unsubscribe(t *testing.T) {
	h := NewHub(nil)
	n := 0
	unsub := h.Subscribe(func(context.Context, Event) { n++ })
	h.Publish(context.Background(), Event{Type: UserUpdated, UserID: "u1"})
	unsub()
	unsub()
	h.Publish(context.Background(), Event{Type: UserUpdated, UserID: "u1"})
	if n != 1 {
		t.Fatalf("calls = %d, want 1", n)
	}
}

func TestHub_PanickingSubscriberIsolated(t *testing.T) {
	h := NewHub(nil)
	reached := false
	h.Subscribe(func(context.Context, Event) { panic("boom") })
	h.Subscribe(func(context.Context, Event) { reached = true })
	h.Publish(context.Background(), Event{Type: SignedOut, UserID: "u1"})
	if !reached {
		t.Fatal("second subscriber not called")
	}
}

func TestHub_RestoreOncePerSession(t *testing.T) {
	h := NewHub(nil)
	var types []EventType
	h.Subscribe(func(_ context.Context, ev Event) { types = append(types, ev.Type) })
	ctx := context.Background()

	if !h.Restore(ctx, "u1") {
		t.Fatal("first restore should publish")
	}
	if h.Restore(ctx, "u1") {
		t.Fatal("second restore should be silent")
	}
	// WHAT: signing out forgets the user, so the next visit restores again.
	h.Publish(ctx, Event{Type: SignedOut, UserID: "u1"})
	if !h.Restore(ctx, "u1") {
		t.Fatal("restore after sign-out should publish")
	}
	// A user who just signed in is not restored.
	h.Publish(ctx, Event{Type: SignedIn, UserID: "u2"})
	if h.Restore(ctx, "u2") {
		t.Fatal("signed-in user should not be restored")
	}

	want := []EventType{InitialSessionRestored, SignedOut, InitialSessionRestored, SignedIn}
	if len(types) != len(want) {
		t.Fatalf("events = %v", types)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("events = %v, want %v", types, want)
		}
	}
}
