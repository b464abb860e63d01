package middleware

import (
	"strconv"

	"go.opentelemetry.io/otel/attribute"

	"github.com/sentinelcore/sentinelcore/internal/httpserver"
	"github.com/sentinelcore/sentinelcore/internal/telemetry"
)

// Trace wraps the handler chain in a span per request, named
// "http.request" and tagged with the method, path and final response
// status. Pass a no-op
// Provider (telemetry.New with Enabled: false) to make this a cheap
// passthrough when tracing is off.
func Trace(provider *telemetry.Provider) Stage {
	return func(next httpserver.HandlerFunc) httpserver.HandlerFunc {
		return func(ctx *httpserver.Context) *httpserver.Response {
			spanCtx, span := provider.StartSpan(ctx.Ctx, "http.request",
				attribute.String("http.method", ctx.Request.Method),
				attribute.String("http.path", ctx.Request.Path),
			)
			ctx.Ctx = spanCtx

			resp := next(ctx)

			if resp != nil {
				span.SetAttributes(attribute.Int("http.status_code", resp.Status))
				if resp.Status >= 500 {
					telemetry.EndSpan(span, statusError(resp.Status))
					return resp
				}
			}
			telemetry.EndSpan(span, nil)
			return resp
		}
	}
}

type httpStatusError int

func (e httpStatusError) Error() string {
	return "http status " + strconv.Itoa(int(e))
}

func statusError(status int) error {
	return httpStatusError(status)
}
