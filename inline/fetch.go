package inline

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hazyhaar/templio/horosafe"
)

// fetched is a retrieved image body with its declared media type.
type fetched struct {
	contentType string
	body        []byte
}

// fetchFunc retrieves one image URL.
type fetchFunc func(ctx context.Context, src string) (*fetched, error)

type fetchMiddleware func(fetchFunc) fetchFunc

func withTimeout(d time.Duration) fetchMiddleware {
	return func(next fetchFunc) fetchFunc {
		return func(ctx context.Context, src string) (*fetched, error) {
			if d > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, d)
				defer cancel()
			}
			return next(ctx, src)
		}
	}
}

func withBreaker(b *breaker) fetchMiddleware {
	return func(next fetchFunc) fetchFunc {
		return func(ctx context.Context, src string) (*fetched, error) {
			if !b.allow() {
				return nil, ErrCircuitOpen
			}
			f, err := next(ctx, src)
			if ctx.Err() == nil || err == nil {
				b.record(err)
			}
			return f, err
		}
	}
}

// fallback tries primary, then secondary. The secondary error is returned
// when both fail.
func fallback(primary, secondary fetchFunc) fetchFunc {
	return func(ctx context.Context, src string) (*fetched, error) {
		f, err := primary(ctx, src)
		if err == nil {
			return f, nil
		}
		if ctx.Err() != nil {
			return nil, err
		}
		f, err2 := secondary(ctx, src)
		if err2 != nil {
			return nil, fmt.Errorf("direct: %v; relay: %w", err, err2)
		}
		return f, nil
	}
}

// httpGet fetches target and keeps the body when the response is 2xx.
func (in *Inliner) httpGet(ctx context.Context, target string) (*fetched, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "image/*")
	resp, err := in.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("inline: GET %s: status %d", target, resp.StatusCode)
	}
	body, err := horosafe.LimitedReadAll(resp.Body, in.cfg.MaxImageBytes)
	if err != nil {
		return nil, err
	}
	return &fetched{contentType: resp.Header.Get("Content-Type"), body: body}, nil
}

func (in *Inliner) direct(ctx context.Context, src string) (*fetched, error) {
	if err := in.cfg.URLValidator(src); err != nil {
		return nil, err
	}
	return in.httpGet(ctx, src)
}

func (in *Inliner) relay(ctx context.Context, src string) (*fetched, error) {
	if in.cfg.ProxyURL == "" {
		return nil, fmt.Errorf("inline: no relay configured")
	}
	return in.httpGet(ctx, relayURL(in.cfg.ProxyURL, src))
}

// relayURL substitutes the escaped source into tmpl at %s, or appends it.
func relayURL(tmpl, src string) string {
	esc := url.QueryEscape(src)
	if strings.Contains(tmpl, "%s") {
		return strings.Replace(tmpl, "%s", esc, 1)
	}
	return tmpl + esc
}

// imageType returns the normalized media type when ct declares an image.
func imageType(ct string) (string, bool) {
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return "", false
	}
	mt = strings.ToLower(mt)
	return mt, strings.HasPrefix(mt, "image/")
}
