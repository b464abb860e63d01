package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sentinelcore/sentinelcore/internal/httpserver"
)

type fakeReactorStatter struct {
	stats httpserver.Stats
}

func (f fakeReactorStatter) Stats() httpserver.Stats { return f.stats }

type fakePoolStatter struct {
	rejected int64
}

func (f fakePoolStatter) Rejected() int64 { return f.rejected }

func TestCollector_CollectsReactorAndPoolGauges(t *testing.T) {
	server := fakeReactorStatter{stats: httpserver.Stats{
		Connections:         7,
		RejectedConnections: 2,
		OversizeRejections:  1,
		StateHistogram:      map[string]int{"reading": 4, "writing": 3},
	}}
	pool := fakePoolStatter{rejected: 9}
	collector := NewCollector(server, pool)

	handler := Handler(collector)
	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	require.Contains(t, body, "sentinelcore_connections 7")
	require.Contains(t, body, "sentinelcore_rejected_connections_total 2")
	require.Contains(t, body, "sentinelcore_oversize_rejections_total 1")
	require.Contains(t, body, "sentinelcore_worker_pool_rejected_total 9")
	require.True(t, strings.Contains(body, `sentinelcore_connection_state{state="reading"} 4`))
}

func TestCollector_NilPoolOmitsWorkerGauge(t *testing.T) {
	server := fakeReactorStatter{stats: httpserver.Stats{StateHistogram: map[string]int{}}}
	collector := NewCollector(server, nil)

	handler := Handler(collector)
	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.NotContains(t, rec.Body.String(), "sentinelcore_worker_pool_rejected_total")
}
