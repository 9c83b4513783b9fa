// Package shield provides the HTTP middleware shared by templio endpoints:
// security headers, body limits, request tracing, HEAD handling and rate
// limiting of expensive routes.
//
// Usage:
//
//	r := chi.NewRouter()
//	for _, mw := range shield.DefaultStack(16 << 20) {
//	    r.Use(mw)
//	}
//	rl := shield.NewRateLimiter(map[string]shield.RateLimitConfig{
//	    "thumbnail": {MaxRequests: 20, WindowSeconds: 60, Enabled: true},
//	})
//	r.With(rl.Limit("thumbnail")).Post("/api/templates", create)
package shield

import "net/http"

type contextKey string

// LoggerKey is the context key for the per-request structured logger.
const LoggerKey contextKey = "shield_logger"

// DefaultStack returns the middleware every templio route goes through,
// outermost first: HeadToGet, SecurityHeaders, MaxBody, TraceID.
func DefaultStack(maxBody int64) []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{
		HeadToGet,
		SecurityHeaders(DefaultHeaders()),
		MaxBody(maxBody),
		TraceID,
	}
}
