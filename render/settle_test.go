package render

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastSettler() *Settler {
	return NewSettler(SettleConfig{
		EmptyGrace:   20 * time.Millisecond,
		Grace:        10 * time.Millisecond,
		Ceiling:      200 * time.Millisecond,
		PollInterval: 5 * time.Millisecond,
	})
}

func constProgress(done, total int) Progress {
	return func(context.Context) (int, int, error) { return done, total, nil }
}

func TestSettler_NoResourcesWaitsEmptyGrace(t *testing.T) {
	start := time.Now()
	st, err := fastSettler().Wait(context.Background(), constProgress(0, 0))
	if err != nil {
		t.Fatal(err)
	}
	if st.Forced || st.Total != 0 {
		t.Fatalf("settlement = %+v", st)
	}
	if time.Since(start) < 20*time.Millisecond {
		t.Fatal("returned before the empty grace elapsed")
	}
}

func TestSettler_AllLoaded(t *testing.T) {
	calls := 0
	progress := func(context.Context) (int, int, error) {
		calls++
		if calls < 3 {
			return 1, 3, nil
		}
		return 3, 3, nil
	}
	st, err := fastSettler().Wait(context.Background(), progress)
	if err != nil {
		t.Fatal(err)
	}
	if st.Forced || st.Loaded != 3 || st.Total != 3 {
		t.Fatalf("settlement = %+v", st)
	}
}

func TestSettler_CeilingForcesSettlement(t *testing.T) {
	start := time.Now()
	st, err := fastSettler().Wait(context.Background(), constProgress(1, 2))
	if err != nil {
		t.Fatalf("forced settlement must not be an error: %v", err)
	}
	if !st.Forced || st.Loaded != 1 || st.Total != 2 {
		t.Fatalf("settlement = %+v", st)
	}
	if elapsed := time.Since(start); elapsed < 200*time.Millisecond || elapsed > 2*time.Second {
		t.Fatalf("elapsed = %v, want about the ceiling", elapsed)
	}
}

func TestSettler_ProgressError(t *testing.T) {
	boom := errors.New("target closed")
	_, err := fastSettler().Wait(context.Background(), func(context.Context) (int, int, error) {
		return 0, 0, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
}

func TestSettler_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	s := NewSettler(SettleConfig{Ceiling: time.Minute, PollInterval: 5 * time.Millisecond})
	_, err := s.Wait(ctx, constProgress(0, 1))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v", err)
	}
}

func TestRequestFilter(t *testing.T) {
	f := newRequestFilter([]string{"fonts", "Media"}, false)
	f.validate = func(u string) error {
		if u == "http://10.0.0.1/x.png" {
			return errors.New("private")
		}
		return nil
	}

	tests := []struct {
		url, typ string
		blocked  bool
	}{
		{"https://cdn.example/a.png", "Image", false},
		{"https://cdn.example/a.woff2", "Font", true},
		{"https://cdn.example/a.mp4", "Media", true},
		{"http://10.0.0.1/x.png", "Image", true},
		{"data:image/png;base64,AAAA", "Image", false},
		{"file:///etc/passwd", "Document", true},
	}
	for _, tt := range tests {
		if got := f.blocked(tt.url, tt.typ) != ""; got != tt.blocked {
			t.Errorf("blocked(%s, %s) = %v, want %v", tt.url, tt.typ, got, tt.blocked)
		}
	}

	open := newRequestFilter(nil, true)
	if open.blocked("http://127.0.0.1/a.css", "Stylesheet") != "" {
		t.Error("private network allowed but request blocked")
	}
}
