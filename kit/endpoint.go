// Package kit holds the transport-neutral plumbing shared by the HTTP and
// MCP surfaces: the Endpoint shape, its logging middleware and request
// context keys.
package kit

import (
	"context"
	"log/slog"
	"time"
)

// Endpoint is one operation, decoded from any transport.
type Endpoint func(ctx context.Context, req any) (any, error)

// Middleware wraps an Endpoint.
type Middleware func(Endpoint) Endpoint

// Logging logs each call with its duration, transport and outcome.
func Logging(logger *slog.Logger, name string) Middleware {
	return func(next Endpoint) Endpoint {
		return func(ctx context.Context, req any) (any, error) {
			start := time.Now()
			resp, err := next(ctx, req)
			attrs := []any{
				"op", name,
				"transport", GetTransport(ctx),
				"duration_ms", time.Since(start).Milliseconds(),
			}
			if err != nil {
				logger.WarnContext(ctx, "kit: endpoint failed", append(attrs, "error", err)...)
			} else {
				logger.DebugContext(ctx, "kit: endpoint", attrs...)
			}
			return resp, err
		}
	}
}
