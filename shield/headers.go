package shield

import "net/http"

// HeaderConfig defines the security headers applied to every response.
type HeaderConfig struct {
	CSP                 string
	XFrameOptions       string
	XContentTypeOptions string
	ReferrerPolicy      string
	PermissionsPolicy   string
}

// DefaultHeaders returns the header set for the application pages and API.
// Previews are framed by the app itself, so frames are limited to 'self'.
func DefaultHeaders() HeaderConfig {
	return HeaderConfig{
		CSP:                 "default-src 'self'; script-src 'self'; style-src 'self' 'unsafe-inline'; img-src 'self' data: https:; frame-src 'self'; frame-ancestors 'self'",
		XFrameOptions:       "SAMEORIGIN",
		XContentTypeOptions: "nosniff",
		ReferrerPolicy:      "strict-origin-when-cross-origin",
		PermissionsPolicy:   "camera=(), microphone=(), geolocation=()",
	}
}

// PreviewCSP confines a rendered template: a unique opaque origin, no
// scripts, no forms, no network except inline images and fonts.
const PreviewCSP = "sandbox allow-popups; default-src 'none'; script-src 'none'; style-src 'unsafe-inline' https:; img-src data: https:; font-src data: https:; form-action 'none'; frame-ancestors 'self'"

// PreviewHeaders returns the header set for template preview documents.
func PreviewHeaders() HeaderConfig {
	h := DefaultHeaders()
	h.CSP = PreviewCSP
	h.ReferrerPolicy = "no-referrer"
	return h
}

// SecurityHeaders returns middleware that sets the configured security headers
// on every response. A later SecurityHeaders in the chain overrides an
// earlier one.
func SecurityHeaders(cfg HeaderConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			setHeaders(w.Header(), cfg)
			next.ServeHTTP(w, r)
		})
	}
}

func setHeaders(h http.Header, cfg HeaderConfig) {
	if cfg.XContentTypeOptions != "" {
		h.Set("X-Content-Type-Options", cfg.XContentTypeOptions)
	}
	if cfg.XFrameOptions != "" {
		h.Set("X-Frame-Options", cfg.XFrameOptions)
	}
	if cfg.ReferrerPolicy != "" {
		h.Set("Referrer-Policy", cfg.ReferrerPolicy)
	}
	if cfg.CSP != "" {
		h.Set("Content-Security-Policy", cfg.CSP)
	}
	if cfg.PermissionsPolicy != "" {
		h.Set("Permissions-Policy", cfg.PermissionsPolicy)
	}
}
