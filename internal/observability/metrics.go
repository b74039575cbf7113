package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "valuemap"

// Metrics holds the Prometheus counters, histograms, and gauges for the grid
// service, the snapshot warm pipeline and the map client.
type Metrics struct {
	// Snapshot cache metrics.
	SnapshotLoads        *prometheus.CounterVec   // labels: kind={cells,deltas,outcodes}, outcome={success,not_found,decode_error,error}
	SnapshotLoadDuration *prometheus.HistogramVec // labels: kind
	SnapshotCache        *prometheus.CounterVec   // labels: kind, result={hit,miss}
	SnapshotRows         *prometheus.GaugeVec     // labels: kind, grid

	// HTTP API metrics.
	HTTPRequests *prometheus.CounterVec   // labels: route, status
	HTTPDuration *prometheus.HistogramVec // labels: route

	// Warm pipeline metrics.
	MessagesConsumed        prometheus.Counter
	MessagesProduced        prometheus.Counter
	WarmOutcomes            *prometheus.CounterVec // labels: outcome={warmed,already_resident,duplicate,invalid,failed}
	PipelineRunning         prometheus.Gauge
	BatchSize               prometheus.Histogram
	BatchProcessingDuration prometheus.Histogram

	// Client metrics.
	APIRequests      *prometheus.CounterVec   // labels: endpoint={cells,deltas}, outcome={success,error}
	APIDuration      *prometheus.HistogramVec // labels: endpoint
	LayerCache       *prometheus.CounterVec   // labels: result={hit,miss}
	LayerResolutions *prometheus.CounterVec   // labels: outcome={published,failed,overlay_degraded,superseded}
}

func newMetrics() *Metrics {
	return &Metrics{
		SnapshotLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshot_loads_total",
			Help:      "Snapshot object loads by kind and outcome.",
		}, []string{"kind", "outcome"}),
		SnapshotLoadDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "snapshot_load_duration_seconds",
			Help:      "Time to fetch, decompress and decode a snapshot object.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"kind"}),
		SnapshotCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshot_cache_total",
			Help:      "Snapshot cache lookups by kind and result.",
		}, []string{"kind", "result"}),
		SnapshotRows: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "snapshot_rows",
			Help:      "Rows held in memory per resident snapshot.",
		}, []string{"kind", "grid"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "API requests by route and status code.",
		}, []string{"route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "API request duration by route.",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"route"}),
		MessagesConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_consumed_total",
			Help:      "Total snapshot announcements read from the source topic.",
		}),
		MessagesProduced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_produced_total",
			Help:      "Total warm reports written to the sink topic.",
		}),
		WarmOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "warm_outcomes_total",
			Help:      "Snapshot announcements by warm outcome.",
		}, []string{"outcome"}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 when the warm pipeline is active, 0 when shut down.",
		}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_size",
			Help:      "Number of announcements per batch extracted from Kafka.",
			Buckets:   []float64{1, 2, 5, 10, 20, 50},
		}),
		BatchProcessingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_processing_duration_seconds",
			Help:      "Duration of a complete extract-warm-report cycle.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		}),
		APIRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "client_api_requests_total",
			Help:      "Client requests to the grid API by endpoint and outcome.",
		}, []string{"endpoint", "outcome"}),
		APIDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "client_api_duration_seconds",
			Help:      "Client request duration to the grid API.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"endpoint"}),
		LayerCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "client_layer_cache_total",
			Help:      "Client feature-collection cache lookups by result.",
		}, []string{"result"}),
		LayerResolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "client_layer_resolutions_total",
			Help:      "Map layer resolutions by outcome.",
		}, []string{"outcome"}),
	}
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.SnapshotLoads,
		m.SnapshotLoadDuration,
		m.SnapshotCache,
		m.SnapshotRows,
		m.HTTPRequests,
		m.HTTPDuration,
		m.MessagesConsumed,
		m.MessagesProduced,
		m.WarmOutcomes,
		m.PipelineRunning,
		m.BatchSize,
		m.BatchProcessingDuration,
		m.APIRequests,
		m.APIDuration,
		m.LayerCache,
		m.LayerResolutions,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}
