package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics are registered on their own registry so tests can build as many
// as they like.
type Metrics struct {
	Registry *prometheus.Registry

	SalesCommitted    prometheus.Counter
	SaleFailures      *prometheus.CounterVec
	DuplicateSales    prometheus.Counter
	PurchasesReceived prometheus.Counter
	HTTPDuration      *prometheus.HistogramVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		SalesCommitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pharmapos",
			Name:      "sales_committed_total",
			Help:      "Sales committed successfully.",
		}),
		SaleFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pharmapos",
			Name:      "sale_failures_total",
			Help:      "Sale commits rejected, by reason.",
		}, []string{"reason"}),
		DuplicateSales: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pharmapos",
			Name:      "sales_duplicate_total",
			Help:      "Sale submissions answered from an earlier commit with the same idempotency key.",
		}),
		PurchasesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pharmapos",
			Name:      "purchases_received_total",
			Help:      "Purchases received into stock.",
		}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pharmapos",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route pattern, method and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method", "status"}),
	}

	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.SalesCommitted,
		m.SaleFailures,
		m.DuplicateSales,
		m.PurchasesReceived,
		m.HTTPDuration,
	)
	return m
}
