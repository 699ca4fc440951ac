// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Ingestion metrics
	RecordsRead        *prometheus.CounterVec
	RecordsUpserted    *prometheus.CounterVec
	ValidationFailures *prometheus.CounterVec
	RevisionsAppended  *prometheus.CounterVec
	RevisionSinkErrors prometheus.Counter

	// Run-ledger metrics
	RunsTotal   *prometheus.CounterVec
	RunDuration *prometheus.HistogramVec
	StaleRuns   prometheus.Gauge

	// Feature metrics
	BarFeaturesComputed    prometheus.Counter
	EventSurprisesComputed prometheus.Counter

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastSuccessfulRun prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "market_data_warehouse"
	}

	return &Metrics{
		RecordsRead: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "records_read_total",
			Help:      "Total number of records presented for ingestion by family",
		}, []string{"family"}),
		RecordsUpserted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "records_upserted_total",
			Help:      "Total number of records accepted and written by family",
		}, []string{"family"}),
		ValidationFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "validation_failures_total",
			Help:      "Total number of records rejected by validation by family",
		}, []string{"family"}),
		RevisionsAppended: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "revisions_appended_total",
			Help:      "Total number of revisions recorded in the revision log by family",
		}, []string{"family"}),
		RevisionSinkErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "revision_sink_errors_total",
			Help:      "Total number of revision log writes that failed",
		}),

		RunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "runs",
			Name:      "total",
			Help:      "Total number of pipeline runs by pipeline and terminal status",
		}, []string{"pipeline", "status"}),
		RunDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "runs",
			Name:      "duration_seconds",
			Help:      "Pipeline run duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}, []string{"pipeline"}),
		StaleRuns: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "runs",
			Name:      "stale",
			Help:      "Number of runs stuck in running status past the stale window",
		}),

		BarFeaturesComputed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "features",
			Name:      "bar_features_computed_total",
			Help:      "Total number of bar feature rows computed",
		}),
		EventSurprisesComputed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "features",
			Name:      "event_surprises_computed_total",
			Help:      "Total number of event surprise rows computed",
		}),

		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		LastSuccessfulRun: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_run_timestamp",
			Help:      "Unix timestamp of the last run that closed success",
		}),
	}
}

// ObserveDBQuery records one database query's duration and outcome.
func (m *Metrics) ObserveDBQuery(database, operation string, start time.Time, err error) {
	m.DBQueryDuration.WithLabelValues(database, operation).Observe(time.Since(start).Seconds())
	if err != nil {
		m.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
