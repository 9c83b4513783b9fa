// CLAUDE:SUMMARY Isolated renderer contract (Renderer/Surface/Settlement) and its config; the Chrome implementation lives in chrome.go.
// Package render loads an HTML document into a disposable, isolated
// rendering surface and reports when it has settled. The Chrome
// implementation gives every render its own incognito browser context and
// page; nothing is shared between renders.
package render

import (
	"context"
	"image"
	"log/slog"
	"time"
)

// Default surface geometry in CSS pixels.
const (
	DefaultWidth  = 1200
	DefaultHeight = 800
)

// Renderer produces settled surfaces.
type Renderer interface {
	// Render loads doc, a complete HTML document, and returns once the
	// surface has settled. The caller must Close the surface.
	Render(ctx context.Context, doc string) (Surface, error)
}

// Surface is one rendered document.
type Surface interface {
	// Snapshot captures the viewport as an image.
	Snapshot(ctx context.Context) (image.Image, error)
	Settlement() Settlement
	// Close releases the surface. It is safe to call more than once.
	Close() error
}

// Config tunes the Chrome renderer. Zero values take defaults.
type Config struct {
	// RemoteURL is the DevTools WebSocket URL of an existing Chrome.
	// Empty launches a local one.
	RemoteURL string `yaml:"remote_url"`
	// Bin is the Chrome binary for local launches. Empty lets the
	// launcher find or download one.
	Bin       string `yaml:"bin"`
	NoSandbox bool   `yaml:"no_sandbox"`
	// Stealth creates pages through go-rod/stealth.
	Stealth bool `yaml:"stealth"`
	// RecycleInterval is the longest a Chrome process is kept. Default 4h.
	RecycleInterval time.Duration `yaml:"recycle_interval"`

	Width  int `yaml:"width"`
	Height int `yaml:"height"`

	// ResourceBlocking lists resource types the page may not load
	// (images, fonts, media, stylesheets, or raw CDP types).
	ResourceBlocking []string `yaml:"resource_blocking"`
	// AllowPrivateNetwork lets pages reach loopback and private addresses.
	AllowPrivateNetwork bool `yaml:"allow_private_network"`

	Settle SettleConfig `yaml:"settle"`

	Logger *slog.Logger `yaml:"-"`
}

func (c *Config) defaults() {
	if c.RecycleInterval <= 0 {
		c.RecycleInterval = 4 * time.Hour
	}
	if c.Width <= 0 {
		c.Width = DefaultWidth
	}
	if c.Height <= 0 {
		c.Height = DefaultHeight
	}
	c.Settle.defaults()
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}
