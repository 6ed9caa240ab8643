package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the converter.
type Metrics struct {
	Invocations     *prometheus.CounterVec   // labels: outcome={converted,skipped,failed}
	Failures        *prometheus.CounterVec   // labels: reason={envelope,not_found,ambiguous,index_format,transfer,decode,encode,other}
	StageDuration   *prometheus.HistogramVec // labels: stage={locate,download,decode,flatten,encode,publish}
	BytesDownloaded prometheus.Counter
	RowsWritten     prometheus.Counter
	Uploads         *prometheus.CounterVec // labels: result={uploaded,skipped}

	// Consumer metrics.
	MessagesConsumed prometheus.Counter
	PipelineRunning  prometheus.Gauge
}

// NewMetrics creates and registers all converter metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith creates all converter metrics and registers them with reg.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Invocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gfs_etl",
			Name:      "invocations_total",
			Help:      "Object notifications handled, by outcome.",
		}, []string{"outcome"}),
		Failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gfs_etl",
			Name:      "failures_total",
			Help:      "Failed conversions by error kind.",
		}, []string{"reason"}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "gfs_etl",
			Name:      "stage_duration_seconds",
			Help:      "Duration of each conversion stage.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"stage"}),
		BytesDownloaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gfs_etl",
			Name:      "bytes_downloaded_total",
			Help:      "Bytes fetched from source objects by range reads.",
		}),
		RowsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gfs_etl",
			Name:      "rows_written_total",
			Help:      "Table rows encoded to Parquet.",
		}),
		Uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gfs_etl",
			Name:      "uploads_total",
			Help:      "Table uploads by result; skipped when no destination is configured.",
		}, []string{"result"}),
		MessagesConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gfs_etl",
			Name:      "messages_consumed_total",
			Help:      "Notification messages read from the source topic.",
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "gfs_etl",
			Name:      "pipeline_running",
			Help:      "1 when the consumer loop is active, 0 when shut down.",
		}),
	}

	reg.MustRegister(
		m.Invocations,
		m.Failures,
		m.StageDuration,
		m.BytesDownloaded,
		m.RowsWritten,
		m.Uploads,
		m.MessagesConsumed,
		m.PipelineRunning,
	)

	return m
}

// NewMetricsForTesting creates Metrics with a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return &Metrics{
		Invocations:      prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "gfs_etl", Name: "invocations_total"}, []string{"outcome"}),
		Failures:         prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "gfs_etl", Name: "failures_total"}, []string{"reason"}),
		StageDuration:    prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: "gfs_etl", Name: "stage_duration_seconds"}, []string{"stage"}),
		BytesDownloaded:  prometheus.NewCounter(prometheus.CounterOpts{Namespace: "gfs_etl", Name: "bytes_downloaded_total"}),
		RowsWritten:      prometheus.NewCounter(prometheus.CounterOpts{Namespace: "gfs_etl", Name: "rows_written_total"}),
		Uploads:          prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "gfs_etl", Name: "uploads_total"}, []string{"result"}),
		MessagesConsumed: prometheus.NewCounter(prometheus.CounterOpts{Namespace: "gfs_etl", Name: "messages_consumed_total"}),
		PipelineRunning:  prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "gfs_etl", Name: "pipeline_running"}),
	}
}
