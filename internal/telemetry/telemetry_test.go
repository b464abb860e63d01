package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNew_NoopWhenDisabled(t *testing.T) {
	p, err := New(Config{Enabled: false})
	require.NoError(t, err)
	require.NotNil(t, p.Tracer)
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestNew_StdoutExporter(t *testing.T) {
	p, err := New(Config{Enabled: true, Exporter: "stdout", ServiceName: "test"})
	require.NoError(t, err)
	defer p.Shutdown(context.Background())

	ctx, span := p.StartSpan(context.Background(), "unit-test")
	require.NotNil(t, ctx)
	EndSpan(span, nil)
}

func TestNew_UnsupportedExporter(t *testing.T) {
	_, err := New(Config{Enabled: true, Exporter: "jaeger"})
	require.Error(t, err)
}

func TestEndSpan_RecordsError(t *testing.T) {
	p, err := New(Config{})
	require.NoError(t, err)
	_, span := p.StartSpan(context.Background(), "errspan")
	EndSpan(span, errors.New("boom"))
}
