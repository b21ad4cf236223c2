package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// RedemptionsTotal counts redemption attempts by outcome
	// (dispatched, key_expired, key_exhausted, ...).
	RedemptionsTotal *prometheus.CounterVec

	// OrdersTotal counts order status transitions by provider and the
	// status entered.
	OrdersTotal *prometheus.CounterVec

	// ProviderRequestDuration observes outbound provider call latency
	// per provider and action.
	ProviderRequestDuration *prometheus.HistogramVec

	// HTTPRequestsTotal counts handled HTTP requests by path and status.
	HTTPRequestsTotal *prometheus.CounterVec
)

var once sync.Once

// Init registers the engine's Prometheus metrics. Safe to call more
// than once; registration happens on the first call.
func Init() {
	once.Do(initMetrics)
}

func initMetrics() {
	RedemptionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "keyflow",
			Name:      "redemptions_total",
			Help:      "Total number of redemption attempts by outcome.",
		},
		[]string{"result"},
	)
	OrdersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "keyflow",
			Name:      "orders_total",
			Help:      "Total number of order status transitions.",
		},
		[]string{"provider", "status"},
	)
	ProviderRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "keyflow",
			Name:      "provider_request_duration_seconds",
			Help:      "Histogram of outbound provider request durations in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"provider", "action"},
	)
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "keyflow",
			Name:      "http_requests_total",
			Help:      "Total number of handled HTTP requests.",
		},
		[]string{"path", "method", "status"},
	)
	prometheus.MustRegister(RedemptionsTotal, OrdersTotal, ProviderRequestDuration, HTTPRequestsTotal)
}
