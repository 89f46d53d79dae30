package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "metarvis"

// Metrics holds the Prometheus counters, histograms, and gauges for ingestion.
type Metrics struct {
	ReportsFetched   prometheus.Counter
	StationsSkipped  *prometheus.CounterVec // labels: reason={forbidden,not-found,timeout,error}
	ReportsDiscarded *prometheus.CounterVec // labels: reason={no-timestamp,empty,invalid-station}
	FormatViolations *prometheus.CounterVec // labels: field
	RecordsStored    prometheus.Counter
	RecordsDuplicate prometheus.Counter
	StoreErrors      prometheus.Counter
	PublishErrors    prometheus.Counter
	PipelineRunning  prometheus.Gauge

	// Run metrics.
	RunDuration prometheus.Histogram
	RunStations prometheus.Histogram

	// Fetch metrics.
	FetchRequests *prometheus.CounterVec // labels: outcome={success,forbidden,not-found,timeout,error}
	FetchDuration prometheus.Histogram
}

func newMetrics() *Metrics {
	return &Metrics{
		ReportsFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_fetched_total",
			Help:      "Total raw reports retrieved from the feed.",
		}),
		StationsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stations_skipped_total",
			Help:      "Stations skipped during a run by reason.",
		}, []string{"reason"}),
		ReportsDiscarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_discarded_total",
			Help:      "Reports that could not be turned into a record, by reason.",
		}, []string{"reason"}),
		FormatViolations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "format_violations_total",
			Help:      "Malformed report fields by field name.",
		}, []string{"field"}),
		RecordsStored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_stored_total",
			Help:      "Records inserted into the store.",
		}),
		RecordsDuplicate: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_duplicate_total",
			Help:      "Records ignored because the (station, time) key already existed.",
		}),
		StoreErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_errors_total",
			Help:      "Failed store inserts.",
		}),
		PublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_errors_total",
			Help:      "Failed exports of newly stored records.",
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 when the ingestion loop is active, 0 when shut down.",
		}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of a complete ingestion run.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		RunStations: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_stations",
			Help:      "Number of stations requested per run.",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500},
		}),
		FetchRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_requests_total",
			Help:      "Feed requests by outcome.",
		}, []string{"outcome"}),
		FetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Feed request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
	}
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()

	prometheus.MustRegister(
		m.ReportsFetched,
		m.StationsSkipped,
		m.ReportsDiscarded,
		m.FormatViolations,
		m.RecordsStored,
		m.RecordsDuplicate,
		m.StoreErrors,
		m.PublishErrors,
		m.PipelineRunning,
		m.RunDuration,
		m.RunStations,
		m.FetchRequests,
		m.FetchDuration,
	)

	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}
