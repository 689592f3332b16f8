// CLAUDE:SUMMARY Transport-agnostic endpoint type with composable middleware chain.
// Package kit carries the small cross-transport plumbing shared by the
// HTTP API and the MCP tool surface: a generic endpoint signature,
// middleware composition, request-scoped context values, and the MCP
// tool registration helper.
package kit

import (
	"context"
	"log/slog"
	"runtime/debug"
	"time"
)

// Endpoint is one operation exposed over a transport. Both chi handlers
// and MCP tools decode into a typed request and call an Endpoint.
type Endpoint func(ctx context.Context, req any) (any, error)

// Middleware wraps an Endpoint, adding cross-cutting behaviour without
// changing the signature.
type Middleware func(next Endpoint) Endpoint

// Chain composes middlewares left-to-right: the first middleware in the
// slice is the outermost wrapper (executed first on the request path).
//
//	chain := Chain(logging, recovery)
//	wrapped := chain(base)
func Chain(mws ...Middleware) Middleware {
	return func(next Endpoint) Endpoint {
		for i := len(mws) - 1; i >= 0; i-- {
			next = mws[i](next)
		}
		return next
	}
}

// Logging returns a middleware that logs every call with its duration.
func Logging(logger *slog.Logger, op string) Middleware {
	return func(next Endpoint) Endpoint {
		return func(ctx context.Context, req any) (any, error) {
			start := time.Now()
			resp, err := next(ctx, req)
			dur := time.Since(start)

			if err != nil {
				logger.ErrorContext(ctx, "call failed",
					"op", op,
					"transport", GetTransport(ctx),
					"duration_ms", dur.Milliseconds(),
					"error", err)
			} else {
				logger.DebugContext(ctx, "call ok",
					"op", op,
					"transport", GetTransport(ctx),
					"duration_ms", dur.Milliseconds())
			}
			return resp, err
		}
	}
}

// Recovery returns a middleware that catches panics in downstream
// endpoints and converts them into errors instead of crashing the
// process. A panic during a dispatch batch must not take the scheduler
// down with it.
func Recovery(logger *slog.Logger) Middleware {
	return func(next Endpoint) Endpoint {
		return func(ctx context.Context, req any) (resp any, err error) {
			defer func() {
				if r := recover(); r != nil {
					logger.ErrorContext(ctx, "endpoint panic recovered",
						"panic", r,
						"stack", string(debug.Stack()))
					err = &ErrPanic{Value: r}
				}
			}()
			return next(ctx, req)
		}
	}
}

// ErrPanic wraps a recovered panic value as an error.
type ErrPanic struct {
	Value any
}

func (e *ErrPanic) Error() string {
	return "kit: endpoint panicked"
}
