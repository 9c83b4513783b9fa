// CLAUDE:SUMMARY Chrome Renderer: per-render incognito context + page, request filter, setDocumentContent, in-page resource counter polled by the Settler.
package render

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// trackJS counts images and stylesheets and attaches load/error listeners
// to the ones still pending. It runs after the content is set, so a
// stylesheet without a sheet may already have failed and will never fire
// again; it is replaced by a fresh copy that loads with the listeners in
// place. Broken images report complete and need no such care.
const trackJS = `() => {
	const s = window.__templioSettle = { done: 0, total: 0 };
	const track = (el, ready) => {
		s.total++;
		if (ready) { s.done++; return; }
		const fin = () => {
			s.done++;
			el.removeEventListener('load', fin);
			el.removeEventListener('error', fin);
		};
		el.addEventListener('load', fin);
		el.addEventListener('error', fin);
	};
	document.querySelectorAll('img').forEach(img => track(img, img.complete));
	document.querySelectorAll('link[rel~="stylesheet"]').forEach(l => {
		if (l.sheet) { track(l, true); return; }
		const fresh = l.cloneNode(true);
		track(fresh, false);
		l.replaceWith(fresh);
	});
	return s.total;
}`

const progressJS = `() => {
	const s = window.__templioSettle;
	return s ? { done: s.done, total: s.total } : { done: 0, total: 0 };
}`

// Chrome renders documents in headless Chrome.
type Chrome struct {
	mgr     *Manager
	filter  *requestFilter
	settler *Settler
}

// NewChrome creates a Chrome renderer on mgr.
func NewChrome(mgr *Manager) *Chrome {
	cfg := mgr.cfg
	return &Chrome{
		mgr:     mgr,
		filter:  newRequestFilter(cfg.ResourceBlocking, cfg.AllowPrivateNetwork),
		settler: NewSettler(cfg.Settle),
	}
}

// Render implements Renderer.
func (c *Chrome) Render(ctx context.Context, doc string) (Surface, error) {
	b, err := c.mgr.acquire(ctx)
	if err != nil {
		return nil, err
	}
	s := &chromeSurface{mgr: c.mgr, width: c.mgr.cfg.Width, height: c.mgr.cfg.Height}

	if err := c.open(ctx, b, s); err != nil {
		s.Close()
		return nil, err
	}

	page := s.page.Context(ctx)
	if err := page.SetDocumentContent(doc); err != nil {
		s.Close()
		return nil, fmt.Errorf("render: set content: %w", err)
	}
	if _, err := page.Eval(trackJS); err != nil {
		s.Close()
		return nil, fmt.Errorf("render: install tracker: %w", err)
	}

	st, err := c.settler.Wait(ctx, s.progress)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("render: settle: %w", err)
	}
	s.settled = st
	if st.Forced {
		c.mgr.cfg.Logger.DebugContext(ctx, "render: settlement forced", "loaded", st.Loaded, "total", st.Total)
	}
	return s, nil
}

// open creates the incognito context, page, viewport and request filter.
func (c *Chrome) open(ctx context.Context, b *rod.Browser, s *chromeSurface) error {
	incog, err := b.Incognito()
	if err != nil {
		c.mgr.markBroken(b, err)
		return fmt.Errorf("render: incognito: %w", err)
	}
	s.incog = incog

	var page *rod.Page
	if c.mgr.cfg.Stealth {
		page, err = stealth.Page(incog)
	} else {
		page, err = incog.Page(proto.TargetCreateTarget{})
	}
	if err != nil {
		return fmt.Errorf("render: create page: %w", err)
	}
	s.page = page

	if err := page.Context(ctx).SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             s.width,
		Height:            s.height,
		DeviceScaleFactor: 1,
	}); err != nil {
		return fmt.Errorf("render: viewport: %w", err)
	}
	s.router = hijack(page, c.filter, c.mgr.cfg.Logger)
	return nil
}

type chromeSurface struct {
	mgr           *Manager
	incog         *rod.Browser
	page          *rod.Page
	router        *rod.HijackRouter
	width, height int
	settled       Settlement
	once          sync.Once
}

func (s *chromeSurface) progress(ctx context.Context) (int, int, error) {
	res, err := s.page.Context(ctx).Eval(progressJS)
	if err != nil {
		return 0, 0, err
	}
	return res.Value.Get("done").Int(), res.Value.Get("total").Int(), nil
}

func (s *chromeSurface) Settlement() Settlement { return s.settled }

// Snapshot captures the viewport as PNG and decodes it.
func (s *chromeSurface) Snapshot(ctx context.Context) (image.Image, error) {
	data, err := s.page.Context(ctx).Screenshot(false, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
		Clip: &proto.PageViewport{
			X:      0,
			Y:      0,
			Width:  float64(s.width),
			Height: float64(s.height),
			Scale:  1,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("render: screenshot: %w", err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("render: decode screenshot: %w", err)
	}
	return img, nil
}

// Close disposes the router, page and incognito context, once.
func (s *chromeSurface) Close() error {
	var err error
	s.once.Do(func() {
		if s.router != nil {
			_ = s.router.Stop()
		}
		if s.page != nil {
			_ = s.page.Close()
		}
		if s.incog != nil {
			err = s.incog.Close()
		}
		s.mgr.release()
	})
	return err
}
