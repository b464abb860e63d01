// Package admin provides the reactor introspection endpoint: a read-only
// JSON snapshot of live connection counts, state histogram, and the
// worker pool's rejected-task count, following a StatsResponse / respondJSON
// pattern adapted to httpserver.HandlerFunc instead of net/http.
package admin

import (
	"encoding/json"

	"github.com/sentinelcore/sentinelcore/internal/httpserver"
)

// ReactorStatter reports a point-in-time snapshot of the reactor's
// connection registry. Implemented by *httpserver.Server.
type ReactorStatter interface {
	Stats() httpserver.Stats
}

// PoolStatter reports worker-pool backpressure counters. Implemented by
// *workerpool.Pool.
type PoolStatter interface {
	Rejected() int64
}

// ReactorStatsResponse is the JSON body for GET /debug/reactor.
type ReactorStatsResponse struct {
	Connections         int            `json:"connections"`
	RejectedConnections int64          `json:"rejected_connections"`
	OversizeRejections  int64          `json:"oversize_rejections"`
	StateHistogram      map[string]int `json:"state_histogram"`
	WorkerPoolRejected  int64          `json:"worker_pool_rejected,omitempty"`
}

// NewDebugReactorHandler returns a handler serving the snapshot above.
// pool may be nil when no worker pool is configured.
func NewDebugReactorHandler(server ReactorStatter, pool PoolStatter) httpserver.HandlerFunc {
	return func(ctx *httpserver.Context) *httpserver.Response {
		stats := server.Stats()
		resp := ReactorStatsResponse{
			Connections:         stats.Connections,
			RejectedConnections: stats.RejectedConnections,
			OversizeRejections:  stats.OversizeRejections,
			StateHistogram:      stats.StateHistogram,
		}
		if pool != nil {
			resp.WorkerPoolRejected = pool.Rejected()
		}

		body, err := json.Marshal(resp)
		if err != nil {
			out := httpserver.NewResponse(500, []byte("failed to encode stats"))
			out.Headers.Set("Content-Type", "text/plain; charset=utf-8")
			return out
		}
		out := httpserver.NewResponse(200, body)
		out.Headers.Set("Content-Type", "application/json")
		return out
	}
}
