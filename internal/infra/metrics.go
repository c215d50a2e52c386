package infra

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Latency время обработки HTTP-запроса
	RequestDuration *prometheus.HistogramVec

	// Traffic: кол-во запросов по маршруту и статусу
	TotalRequests *prometheus.CounterVec

	// Store латентность агрегирующих запросов к PostgreSQL
	QueryDuration *prometheus.HistogramVec

	// Cache: попадания/промахи кэша discovery
	DiscoveryCache *prometheus.CounterVec

	// Seeder исход обращений к CRM API
	UpstreamCalls *prometheus.CounterVec

	// Saturation: состояние Circuit Breaker (0 - ок, 1 - выбило)
	CircuitBreakerState *prometheus.GaugeVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	// Null Object Pattern - Если рег не передан, используем локальный, который никуда не подключен
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		RequestDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dashboard_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"route", "status"}),

		TotalRequests: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "dashboard_requests_total",
			Help: "Total number of processed HTTP requests.",
		}, []string{"route", "status"}),

		QueryDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dashboard_store_query_duration_seconds",
			Help:    "Histogram of store query latencies.",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"query", "outcome"}),

		DiscoveryCache: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "dashboard_discovery_cache_total",
			Help: "Discovery cache lookups by result.",
		}, []string{"result"}), // hit, miss, error

		UpstreamCalls: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "seed_upstream_calls_total",
			Help: "CRM API calls made by the seeder by outcome.",
		}, []string{"endpoint", "outcome"}),

		CircuitBreakerState: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "seed_circuit_breaker_state",
			Help: "Current state of the circuit breaker (0=closed, 1=open).",
		}, []string{"connector_id"}),
	}
}
