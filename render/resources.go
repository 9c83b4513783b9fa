// CLAUDE:SUMMARY Hijacks page requests: blocks private-network targets and configured resource types.
package render

import (
	"log/slog"
	"net/url"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/templio/horosafe"
)

// requestFilter decides which page requests may leave the browser.
type requestFilter struct {
	blockTypes   map[string]bool
	allowPrivate bool
	validate     func(string) error
}

func newRequestFilter(types []string, allowPrivate bool) *requestFilter {
	f := &requestFilter{
		blockTypes:   make(map[string]bool, len(types)),
		allowPrivate: allowPrivate,
		validate:     horosafe.ValidateURL,
	}
	for _, t := range types {
		f.blockTypes[strings.ToLower(t)] = true
	}
	return f
}

// blocked returns a non-empty reason when the request must fail.
func (f *requestFilter) blocked(rawURL, resourceType string) string {
	if f.blockedType(resourceType) {
		return "resource type " + resourceType
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "unparseable url"
	}
	switch strings.ToLower(u.Scheme) {
	case "data", "blob", "about":
		return ""
	case "http", "https":
		if f.allowPrivate {
			return ""
		}
		if err := f.validate(rawURL); err != nil {
			return err.Error()
		}
		return ""
	default:
		return "scheme " + u.Scheme
	}
}

func (f *requestFilter) blockedType(resType string) bool {
	lower := strings.ToLower(resType)
	switch lower {
	case "image":
		return f.blockTypes["images"] || f.blockTypes[lower]
	case "font":
		return f.blockTypes["fonts"] || f.blockTypes[lower]
	case "stylesheet":
		return f.blockTypes["stylesheets"] || f.blockTypes[lower]
	}
	return f.blockTypes[lower]
}

// hijack routes every request of page through f. The returned router must
// be stopped when the page goes away.
func hijack(page *rod.Page, f *requestFilter, log *slog.Logger) *rod.HijackRouter {
	router := page.HijackRequests()
	router.MustAdd("*", func(h *rod.Hijack) {
		target := h.Request.URL().String()
		if reason := f.blocked(target, string(h.Request.Type())); reason != "" {
			log.Debug("render: request blocked", "url", target, "reason", reason)
			h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		h.ContinueRequest(&proto.FetchContinueRequest{})
	})
	go router.Run()
	return router
}
