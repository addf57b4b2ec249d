package telemetry

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsAreIndependent(t *testing.T) {
	a := NewMetrics()
	b := NewMetrics()

	a.SalesCommitted.Inc()
	a.SaleFailures.WithLabelValues("insufficient_stock").Inc()

	assert.Equal(t, 1.0, testutil.ToFloat64(a.SalesCommitted))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.SalesCommitted))
	assert.Equal(t, 1.0, testutil.ToFloat64(a.SaleFailures.WithLabelValues("insufficient_stock")))
}

func TestInitTracerWithoutExporter(t *testing.T) {
	tp, err := InitTracer(context.Background(), "pharmapos-test", "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	_, span := tp.Tracer("test").Start(context.Background(), "noop")
	assert.True(t, span.SpanContext().IsValid())
	span.End()
}
