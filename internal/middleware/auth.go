package middleware

import (
	"errors"

	"github.com/sentinelcore/sentinelcore/internal/auth"
	"github.com/sentinelcore/sentinelcore/internal/httpserver"
)

// Authenticate builds a middleware stage that runs strategies in order
// and, for routes marked Protected, requires one to succeed. Unprotected
// routes still get a Principal attached when a credential is present and
// valid, but a missing or rejected credential does not block the
// request; Protected is the per-route opt-in the router/CEL stage uses
// to gate access (see RouteGuard).
func Authenticate(chain *auth.Chain, protected func(path, method string) bool) func(httpserver.HandlerFunc) httpserver.HandlerFunc {
	return func(next httpserver.HandlerFunc) httpserver.HandlerFunc {
		return func(ctx *httpserver.Context) *httpserver.Response {
			req := ctx.Request
			principal, ok, err := chain.Authenticate(ctx.Ctx, req)

			isProtected := protected != nil && protected(req.Path, req.Method)

			if err == nil && ok {
				req.Principal = principal
			} else if isProtected {
				if err == nil {
					err = errors.New("no credential")
				}
				return unauthorized(chain, err)
			}

			return next(ctx)
		}
	}
}

func unauthorized(chain *auth.Chain, _ error) *httpserver.Response {
	resp := httpserver.NewResponse(401, []byte("unauthorized"))
	resp.Headers.Set("Content-Type", "text/plain; charset=utf-8")
	resp.Headers.Set("WWW-Authenticate", wwwAuthenticateValue(chain))
	return resp
}

func wwwAuthenticateValue(chain *auth.Chain) string {
	for _, s := range chain.Strategies {
		switch s.Name() {
		case "bearer":
			return `Bearer realm="sentinelcore"`
		case "basic":
			return `Basic realm="sentinelcore"`
		}
	}
	return `Bearer realm="sentinelcore"`
}
