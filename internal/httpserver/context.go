package httpserver

import (
	"context"
	"log/slog"
)

// Context is the per-request object threaded through the middleware chain,
// router, and handler. It is a typed request/response context shared
// across an ordered pipeline of functions.
type Context struct {
	Ctx     context.Context
	Request *Request
	Logger  *slog.Logger
}

// NewContext wraps a parsed Request for one middleware/handler pass.
func NewContext(ctx context.Context, req *Request, logger *slog.Logger) *Context {
	if logger == nil {
		logger = slog.Default()
	}
	return &Context{Ctx: ctx, Request: req, Logger: logger}
}
