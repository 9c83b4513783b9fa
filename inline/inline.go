// CLAUDE:SUMMARY Rewrites cross-origin <img src> to base64 data URIs (direct fetch, relay fallback behind a breaker) so offline rendering has no network dependency.
// Package inline embeds the external images of an HTML document as data:
// URIs. Each unique image is fetched once, directly first and through a
// relay proxy when that fails. Images that cannot be retrieved, or that are
// not served as image/*, keep their original src. Inline never fails.
package inline

import (
	"context"
	"encoding/base64"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/hazyhaar/templio/horosafe"
	"github.com/hazyhaar/templio/htmldoc"
)

// DefaultProxyURL is the public relay used when direct fetches fail.
const DefaultProxyURL = "https://api.allorigins.win/raw?url=%s"

// Config tunes an Inliner. Zero values take defaults.
type Config struct {
	// Origin is the scheme://host the document is considered served from.
	// URLs on it are same-origin and left alone.
	Origin        string        `yaml:"origin"`
	DirectTimeout time.Duration `yaml:"direct_timeout"`
	// ProxyURL is the relay template; %s receives the escaped image URL.
	// "off" disables the relay.
	ProxyURL     string        `yaml:"proxy_url"`
	ProxyTimeout time.Duration `yaml:"proxy_timeout"`
	// MaxImageBytes caps each response body.
	MaxImageBytes int64 `yaml:"max_image_bytes"`

	// URLValidator screens direct targets. Default horosafe.ValidateURL.
	URLValidator func(string) error `yaml:"-"`
	HTTPClient   *http.Client       `yaml:"-"`
	Logger       *slog.Logger       `yaml:"-"`
}

func (c *Config) defaults() {
	if c.DirectTimeout <= 0 {
		c.DirectTimeout = 10 * time.Second
	}
	switch c.ProxyURL {
	case "":
		c.ProxyURL = DefaultProxyURL
	case "off":
		c.ProxyURL = ""
	}
	if c.ProxyTimeout <= 0 {
		c.ProxyTimeout = 10 * time.Second
	}
	if c.MaxImageBytes <= 0 {
		c.MaxImageBytes = 5 << 20
	}
	if c.URLValidator == nil {
		c.URLValidator = horosafe.ValidateURL
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Report counts what happened to the <img> elements of one document.
type Report struct {
	Total   int `json:"total"`
	Inlined int `json:"inlined"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

// Inliner rewrites images. It is safe for concurrent use.
type Inliner struct {
	cfg    Config
	origin *url.URL
	client *http.Client
	fetch  fetchFunc
}

// New creates an Inliner.
func New(cfg Config) *Inliner {
	cfg.defaults()
	in := &Inliner{cfg: cfg, client: cfg.HTTPClient}
	if in.client == nil {
		in.client = &http.Client{
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return http.ErrUseLastResponse
				}
				return cfg.URLValidator(req.URL.String())
			},
		}
	}
	if cfg.Origin != "" {
		if u, err := url.Parse(cfg.Origin); err == nil && u.Host != "" {
			in.origin = u
		}
	}

	direct := withTimeout(cfg.DirectTimeout)(in.direct)
	relay := withBreaker(newBreaker(5, 30*time.Second))(withTimeout(cfg.ProxyTimeout)(in.relay))
	in.fetch = fallback(direct, relay)
	return in
}

// Inline returns doc with external images embedded and a report. Full
// documents are re-rendered whole; fragments are parsed in a <body>
// context and rendered back as a fragment. If doc cannot be parsed it is
// returned unchanged.
func (in *Inliner) Inline(ctx context.Context, doc string) (string, Report) {
	var rep Report
	full := htmldoc.IsFullDocument(doc)

	var roots []*html.Node
	if full {
		root, err := html.Parse(strings.NewReader(doc))
		if err != nil {
			in.cfg.Logger.WarnContext(ctx, "inline: parse document", "error", err)
			return doc, rep
		}
		roots = []*html.Node{root}
	} else {
		body := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
		nodes, err := html.ParseFragment(strings.NewReader(doc), body)
		if err != nil {
			in.cfg.Logger.WarnContext(ctx, "inline: parse fragment", "error", err)
			return doc, rep
		}
		roots = nodes
	}

	// src -> img nodes using it.
	targets := make(map[string][]*html.Node)
	for _, r := range roots {
		walkImages(r, func(n *html.Node) {
			rep.Total++
			src, ok := attr(n, "src")
			if !ok || !in.needsInlining(src) {
				rep.Skipped++
				return
			}
			targets[src] = append(targets[src], n)
		})
	}
	if len(targets) == 0 {
		return doc, rep
	}

	type outcome struct {
		src     string
		dataURI string
	}
	results := make(chan outcome, len(targets))
	var wg sync.WaitGroup
	for src := range targets {
		wg.Add(1)
		go func(src string) {
			defer wg.Done()
			results <- outcome{src: src, dataURI: in.retrieve(ctx, src)}
		}(src)
	}
	wg.Wait()
	close(results)

	for o := range results {
		nodes := targets[o.src]
		if o.dataURI == "" {
			rep.Failed += len(nodes)
			continue
		}
		for _, n := range nodes {
			setAttr(n, "src", o.dataURI)
		}
		rep.Inlined += len(nodes)
	}

	var b strings.Builder
	for _, r := range roots {
		if err := html.Render(&b, r); err != nil {
			in.cfg.Logger.WarnContext(ctx, "inline: render", "error", err)
			return doc, rep
		}
	}
	in.cfg.Logger.DebugContext(ctx, "inline: done",
		"total", rep.Total, "inlined", rep.Inlined, "failed", rep.Failed, "skipped", rep.Skipped)
	return b.String(), rep
}

// retrieve returns the data URI for src, or "" when it cannot be inlined.
func (in *Inliner) retrieve(ctx context.Context, src string) string {
	f, err := in.fetch(ctx, src)
	if err != nil {
		in.cfg.Logger.WarnContext(ctx, "inline: image unavailable", "src", src, "error", err)
		return ""
	}
	mt, ok := imageType(f.contentType)
	if !ok {
		in.cfg.Logger.WarnContext(ctx, "inline: not an image", "src", src, "content_type", f.contentType)
		return ""
	}
	return "data:" + mt + ";base64," + base64.StdEncoding.EncodeToString(f.body)
}

// needsInlining reports whether src is an absolute http(s) URL on another
// origin. data: URIs, relative URLs and other schemes stay as they are.
func (in *Inliner) needsInlining(src string) bool {
	src = strings.TrimSpace(src)
	if src == "" {
		return false
	}
	u, err := url.Parse(src)
	if err != nil || u.Host == "" {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return false
	}
	if in.origin != nil && strings.EqualFold(in.origin.Scheme, scheme) && strings.EqualFold(in.origin.Host, u.Host) {
		return false
	}
	return true
}

func walkImages(n *html.Node, fn func(*html.Node)) {
	if n.Type == html.ElementNode && n.DataAtom == atom.Img {
		fn(n)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walkImages(c, fn)
	}
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func setAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}
