// CLAUDE:SUMMARY Chrome lifecycle: lazy launch or remote connect, time-based recycling while idle, relaunch after a crash.
package render

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
)

// Manager owns the Chrome process shared by all renders. It is safe for
// concurrent use.
type Manager struct {
	cfg Config

	mu       sync.Mutex
	browser  *rod.Browser
	lnch     *launcher.Launcher
	startAt  time.Time
	inflight int
	closed   bool

	// launching is non-nil while a launch runs outside mu; it is closed
	// when that launch ends.
	launching chan struct{}

	launchFn func(context.Context) (*rod.Browser, *launcher.Launcher, error)
}

// NewManager creates a Manager. Chrome starts on first use.
func NewManager(cfg Config) *Manager {
	cfg.defaults()
	m := &Manager{cfg: cfg}
	m.launchFn = m.launch
	return m
}

// Start launches Chrome now and runs the recycle monitor until ctx ends.
func (m *Manager) Start(ctx context.Context) error {
	if _, err := m.acquire(ctx); err != nil {
		return err
	}
	m.release()
	go m.monitorLoop(ctx)
	return nil
}

var errClosed = errors.New("render: manager is closed")

// acquire returns the live browser, launching or recycling it when needed,
// and counts the caller as in flight until release. One caller launches
// while the others wait for it without holding mu.
func (m *Manager) acquire(ctx context.Context) (*rod.Browser, error) {
	for {
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return nil, errClosed
		}
		if m.browser != nil && m.inflight == 0 && time.Since(m.startAt) > m.cfg.RecycleInterval {
			m.cfg.Logger.Info("render: recycling chrome", "uptime", time.Since(m.startAt).Round(time.Second))
			m.cleanup()
		}
		if m.browser != nil {
			m.inflight++
			b := m.browser
			m.mu.Unlock()
			return b, nil
		}
		if wait := m.launching; wait != nil {
			m.mu.Unlock()
			select {
			case <-wait:
				continue
			case <-ctx.Done():
				return nil, fmt.Errorf("render: waiting for chrome: %w", ctx.Err())
			}
		}
		done := make(chan struct{})
		m.launching = done
		m.mu.Unlock()

		b, l, err := m.launchFn(ctx)

		m.mu.Lock()
		m.launching = nil
		close(done)
		if err != nil {
			m.mu.Unlock()
			return nil, err
		}
		if m.closed {
			m.mu.Unlock()
			b.Close()
			if l != nil {
				l.Kill()
				l.Cleanup()
			}
			return nil, errClosed
		}
		m.browser, m.lnch, m.startAt = b, l, time.Now()
		m.inflight++
		m.mu.Unlock()
		return b, nil
	}
}

func (m *Manager) release() {
	m.mu.Lock()
	m.inflight--
	m.mu.Unlock()
}

// markBroken drops b so the next acquire relaunches. Renders still using
// b fail on their own.
func (m *Manager) markBroken(b *rod.Browser, cause error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.browser != b {
		return
	}
	m.cfg.Logger.Warn("render: chrome unusable, will relaunch", "error", cause)
	m.cleanup()
}

// Close shuts Chrome down. Later renders fail.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.cleanup()
	return nil
}

// launch starts or connects to Chrome. It runs without mu held.
func (m *Manager) launch(ctx context.Context) (*rod.Browser, *launcher.Launcher, error) {
	log := m.cfg.Logger
	wsURL := m.cfg.RemoteURL
	var lnch *launcher.Launcher

	if wsURL != "" {
		log.InfoContext(ctx, "render: connecting to remote chrome", "url", wsURL)
	} else {
		l := launcher.New().Headless(true)
		if m.cfg.Bin != "" {
			l = l.Bin(m.cfg.Bin)
		}
		if m.cfg.NoSandbox {
			l = l.NoSandbox(true)
		}
		l = l.Set("disable-blink-features", "AutomationControlled").
			Set("hide-scrollbars")

		u, err := l.Launch()
		if err != nil {
			return nil, nil, fmt.Errorf("render: launch: %w", err)
		}
		wsURL = u
		lnch = l
		log.InfoContext(ctx, "render: launched local chrome", "url", wsURL)
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		if lnch != nil {
			lnch.Kill()
			lnch.Cleanup()
		}
		return nil, nil, fmt.Errorf("render: connect: %w", err)
	}
	return b, lnch, nil
}

func (m *Manager) cleanup() {
	if m.browser != nil {
		m.browser.Close()
		m.browser = nil
	}
	if m.lnch != nil {
		m.lnch.Kill()
		m.lnch.Cleanup()
		m.lnch = nil
	}
}

func (m *Manager) monitorLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.mu.Lock()
			if m.closed {
				m.mu.Unlock()
				return
			}
			if m.browser != nil && m.inflight == 0 && time.Since(m.startAt) > m.cfg.RecycleInterval {
				m.cfg.Logger.Info("render: recycle interval reached")
				m.cleanup()
			}
			m.mu.Unlock()
		}
	}
}
