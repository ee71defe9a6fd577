package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// DatastoreMetrics contains Prometheus metrics for datastore operations
type DatastoreMetrics struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	errorsTotal       *prometheus.CounterVec
	canonicalRewrites prometheus.Counter
	rewriteConflicts  prometheus.Counter
	cleanupDeleted    *prometheus.CounterVec

	collectors []prometheus.Collector
}

// NewDatastoreMetrics creates and registers new datastore metrics
func NewDatastoreMetrics(registry *prometheus.Registry) (*DatastoreMetrics, error) {
	m := &DatastoreMetrics{}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *DatastoreMetrics) initMetrics() {
	m.operationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "platewatch_datastore_operations_total",
			Help: "Total number of datastore operations",
		},
		[]string{"operation", "status"},
	)

	m.operationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "platewatch_datastore_operation_duration_seconds",
			Help:    "Time taken for datastore operations",
			Buckets: prometheus.ExponentialBuckets(BucketStart1ms, BucketFactor2, BucketCount15), // 1ms to ~16s
		},
		[]string{"operation"},
	)

	m.errorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "platewatch_datastore_errors_total",
			Help: "Total number of datastore errors",
		},
		[]string{"operation", "error_type"},
	)

	m.canonicalRewrites = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "platewatch_datastore_canonical_rewrites_total",
		Help: "Identities whose canonical text moved to a higher confidence variant",
	})

	m.rewriteConflicts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "platewatch_datastore_canonical_rewrite_conflicts_total",
		Help: "Canonical rewrites skipped because the target text already names another identity",
	})

	m.cleanupDeleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "platewatch_datastore_cleanup_deleted_total",
			Help: "Rows removed by the retention sweep",
		},
		[]string{"table"},
	)

	m.collectors = []prometheus.Collector{
		m.operationsTotal,
		m.operationDuration,
		m.errorsTotal,
		m.canonicalRewrites,
		m.rewriteConflicts,
		m.cleanupDeleted,
	}
}

// Describe implements the Collector interface
func (m *DatastoreMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, collector := range m.collectors {
		collector.Describe(ch)
	}
}

// Collect implements the Collector interface
func (m *DatastoreMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, collector := range m.collectors {
		collector.Collect(ch)
	}
}

// RecordOperation implements Recorder.
func (m *DatastoreMetrics) RecordOperation(operation, status string) {
	m.operationsTotal.WithLabelValues(operation, status).Inc()
}

// RecordDuration implements Recorder.
func (m *DatastoreMetrics) RecordDuration(operation string, seconds float64) {
	m.operationDuration.WithLabelValues(operation).Observe(seconds)
}

// RecordError implements Recorder.
func (m *DatastoreMetrics) RecordError(operation, errorType string) {
	m.errorsTotal.WithLabelValues(operation, errorType).Inc()
}

// RecordCanonicalRewrite counts a completed canonical text rewrite.
func (m *DatastoreMetrics) RecordCanonicalRewrite() {
	m.canonicalRewrites.Inc()
}

// RecordRewriteConflict counts a rewrite skipped because of a key collision.
func (m *DatastoreMetrics) RecordRewriteConflict() {
	m.rewriteConflicts.Inc()
}

// RecordCleanup adds the number of rows deleted from table.
func (m *DatastoreMetrics) RecordCleanup(table string, rows int64) {
	m.cleanupDeleted.WithLabelValues(table).Add(float64(rows))
}
