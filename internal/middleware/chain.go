package middleware

import "github.com/sentinelcore/sentinelcore/internal/httpserver"

// Stage wraps a handler with cross-cutting behavior.
type Stage func(httpserver.HandlerFunc) httpserver.HandlerFunc

// Chain composes stages around a terminal handler in the fixed pipeline
// order named in the core specification: proxy-header normalization,
// then authentication, then the route handler (itself possibly guarded
// by a CEL route predicate), then response compression. Stages are
// applied outermost-first, so the first Stage in the slice is the
// outermost wrapper and runs first on the way in, last on the way out.
func Chain(handler httpserver.HandlerFunc, stages ...Stage) httpserver.HandlerFunc {
	for i := len(stages) - 1; i >= 0; i-- {
		handler = stages[i](handler)
	}
	return handler
}
