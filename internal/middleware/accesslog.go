package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/sentinelcore/sentinelcore/internal/ctxkey"
	"github.com/sentinelcore/sentinelcore/internal/httpserver"
)

// RequestIDHeader is the header used to correlate a request across
// proxies and logs.
const RequestIDHeader = "X-Request-ID"

// RequestIDKey is the context key for the generated/propagated request ID.
type requestIDKey struct{}

var RequestIDKey = requestIDKey{}

// AccessLog assigns (or propagates) a request ID, enriches the logger
// carried on Context with it, and emits one structured log line per
// completed request, generalized from net/http to
// httpserver.HandlerFunc.
func AccessLog(logger *slog.Logger) Stage {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next httpserver.HandlerFunc) httpserver.HandlerFunc {
		return func(ctx *httpserver.Context) *httpserver.Response {
			start := time.Now()

			requestID, ok := ctx.Request.Headers.Get(RequestIDHeader)
			if !ok || requestID == "" {
				requestID = uuid.New().String()
			}

			enriched := logger.With("request_id", requestID)
			ctx.Logger = enriched
			ctx.Ctx = context.WithValue(ctx.Ctx, ctxkey.LoggerKey{}, enriched)
			ctx.Ctx = context.WithValue(ctx.Ctx, RequestIDKey, requestID)

			resp := next(ctx)

			status := 0
			bodyLen := 0
			if resp != nil {
				status = resp.Status
				resp.Headers.Set(RequestIDHeader, requestID)
				bodyLen = len(resp.Body)
			}
			enriched.Info("request",
				"method", ctx.Request.Method,
				"path", ctx.Request.Path,
				"status", status,
				"bytes", bodyLen,
				"duration", time.Since(start),
				"remote_ip", ctx.Request.EffectiveIP,
			)
			return resp
		}
	}
}

// LoggerFromContext retrieves the request-enriched logger, falling back
// to slog.Default() when AccessLog was not applied.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(ctxkey.LoggerKey{}).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}
