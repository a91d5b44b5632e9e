package web

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics holds the dashboard's Prometheus collectors
type Metrics struct {
	Registry *prometheus.Registry

	RequestDuration *prometheus.HistogramVec
	Requests        *prometheus.CounterVec
	CacheHits       *prometheus.CounterVec
	CacheMisses     *prometheus.CounterVec
	UpstreamErrors  *prometheus.CounterVec
	DroppedRecords  *prometheus.CounterVec
	HeatBuild       prometheus.Histogram
}

// NewMetrics creates and registers every collector on a fresh registry
func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),

		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gexmap_http_request_duration_seconds",
				Help:    "Duration of API requests in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"route"},
		),

		Requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gexmap_http_requests_total",
				Help: "Total API requests by route and status code",
			},
			[]string{"route", "code"},
		),

		CacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gexmap_cache_hits_total",
				Help: "Total response cache hits by cache type",
			},
			[]string{"cache_type"},
		),

		CacheMisses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gexmap_cache_misses_total",
				Help: "Total response cache misses by cache type",
			},
			[]string{"cache_type"},
		),

		UpstreamErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gexmap_upstream_errors_total",
				Help: "Total failed vendor fetches by provider",
			},
			[]string{"provider"},
		),

		DroppedRecords: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gexmap_chain_records_dropped_total",
				Help: "Option chain records dropped during normalization",
			},
			[]string{"ticker"},
		),

		HeatBuild: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "gexmap_heat_build_seconds",
				Help:    "Time spent building heat fields",
				Buckets: prometheus.DefBuckets,
			},
		),
	}

	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.RequestDuration,
		m.Requests,
		m.CacheHits,
		m.CacheMisses,
		m.UpstreamErrors,
		m.DroppedRecords,
		m.HeatBuild,
	)
	return m
}
