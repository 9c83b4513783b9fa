package render

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
)

func TestManager_LaunchRunsOutsideLock(t *testing.T) {
	m := NewManager(Config{})
	entered := make(chan struct{})
	unblock := make(chan struct{})
	var launches atomic.Int32
	browser := &rod.Browser{}
	m.launchFn = func(context.Context) (*rod.Browser, *launcher.Launcher, error) {
		if launches.Add(1) == 1 {
			close(entered)
		}
		<-unblock
		return browser, nil, nil
	}

	var wg sync.WaitGroup
	got := make([]*rod.Browser, 3)
	for i := range got {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			b, err := m.acquire(context.Background())
			if err != nil {
				t.Errorf("acquire %d: %v", i, err)
			}
			got[i] = b
		}(i)
	}
	<-entered

	// WHAT: the manager stays usable while Chrome starts.
	// WHY: a first launch may download a browser; holding the lock for it
	// would stall every other caller.
	done := make(chan struct{})
	go func() {
		m.markBroken(&rod.Browser{}, errors.New("unrelated"))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("manager blocked during launch")
	}

	close(unblock)
	wg.Wait()
	if n := launches.Load(); n != 1 {
		t.Fatalf("launches = %d, want 1", n)
	}
	for i, b := range got {
		if b != browser {
			t.Fatalf("acquire %d got a different browser", i)
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.inflight != 3 {
		t.Fatalf("inflight = %d, want 3", m.inflight)
	}
}

func TestManager_WaitersRespectContext(t *testing.T) {
	m := NewManager(Config{})
	entered := make(chan struct{})
	unblock := make(chan struct{})
	m.launchFn = func(context.Context) (*rod.Browser, *launcher.Launcher, error) {
		close(entered)
		<-unblock
		return nil, nil, errors.New("no chrome")
	}
	defer close(unblock)

	go m.acquire(context.Background())
	<-entered

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := m.acquire(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("waiter: got %v, want deadline exceeded", err)
	}
}

func TestManager_ClosedRefuses(t *testing.T) {
	m := NewManager(Config{})
	m.launchFn = func(context.Context) (*rod.Browser, *launcher.Launcher, error) {
		t.Fatal("launched after Close")
		return nil, nil, nil
	}
	m.Close()
	if _, err := m.acquire(context.Background()); !errors.Is(err, errClosed) {
		t.Fatalf("acquire after Close: %v", err)
	}
}
