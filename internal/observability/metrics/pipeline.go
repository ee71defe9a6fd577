package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PipelineMetrics tracks the detection pipeline: queue depth, throughput,
// drops and the outcomes of identity resolution and alert evaluation.
type PipelineMetrics struct {
	queueDepth        *prometheus.GaugeVec
	queueCapacity     *prometheus.GaugeVec
	itemsProcessed    *prometheus.CounterVec
	itemsDropped      *prometheus.CounterVec
	workerErrors      *prometheus.CounterVec
	workerPanics      *prometheus.CounterVec
	processDuration   *prometheus.HistogramVec
	resolutions       *prometheus.CounterVec
	groupedDetections prometheus.Counter
	alertsRaised      *prometheus.CounterVec
	alertsThrottled   prometheus.Counter

	collectors []prometheus.Collector
}

// NewPipelineMetrics creates and registers pipeline metrics.
func NewPipelineMetrics(registry *prometheus.Registry) (*PipelineMetrics, error) {
	m := &PipelineMetrics{}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *PipelineMetrics) initMetrics() {
	m.queueDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "platewatch_pipeline_queue_depth",
		Help: "Current number of items waiting in each pipeline queue",
	}, []string{"queue"})

	m.queueCapacity = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "platewatch_pipeline_queue_capacity",
		Help: "Configured capacity of each pipeline queue",
	}, []string{"queue"})

	m.itemsProcessed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "platewatch_pipeline_items_processed_total",
		Help: "Items handled by each worker",
	}, []string{"worker"})

	m.itemsDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "platewatch_pipeline_items_dropped_total",
		Help: "Items dropped because a queue was full",
	}, []string{"queue"})

	m.workerErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "platewatch_pipeline_worker_errors_total",
		Help: "Errors returned while processing queue items",
	}, []string{"worker"})

	m.workerPanics = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "platewatch_pipeline_worker_panics_total",
		Help: "Panics recovered while processing queue items",
	}, []string{"worker"})

	m.processDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "platewatch_pipeline_process_duration_seconds",
		Help:    "Time spent processing a single queue item",
		Buckets: prometheus.ExponentialBuckets(BucketStart1ms, BucketFactor2, BucketCount12),
	}, []string{"worker"})

	m.resolutions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "platewatch_identity_resolutions_total",
		Help: "Identity resolutions by outcome (matched, created)",
	}, []string{"outcome"})

	m.groupedDetections = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "platewatch_identity_grouped_detections_total",
		Help: "Detections attached to an ongoing visit",
	})

	m.alertsRaised = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "platewatch_alerts_raised_total",
		Help: "Alerts raised by kind (blacklist, suspicious)",
	}, []string{"kind"})

	m.alertsThrottled = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "platewatch_alerts_throttled_total",
		Help: "Suspicious dwell alerts suppressed by the cooldown",
	})

	m.collectors = []prometheus.Collector{
		m.queueDepth, m.queueCapacity, m.itemsProcessed, m.itemsDropped,
		m.workerErrors, m.workerPanics, m.processDuration, m.resolutions,
		m.groupedDetections, m.alertsRaised, m.alertsThrottled,
	}
}

// Describe implements the Collector interface
func (m *PipelineMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, collector := range m.collectors {
		collector.Describe(ch)
	}
}

// Collect implements the Collector interface
func (m *PipelineMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, collector := range m.collectors {
		collector.Collect(ch)
	}
}

// The recording methods below are no-ops on a nil receiver.

// SetQueueDepth records current length and capacity of a queue.
func (m *PipelineMetrics) SetQueueDepth(queue string, length, capacity int) {
	if m == nil {
		return
	}
	m.queueDepth.WithLabelValues(queue).Set(float64(length))
	m.queueCapacity.WithLabelValues(queue).Set(float64(capacity))
}

// RecordProcessed counts one processed item and its duration.
func (m *PipelineMetrics) RecordProcessed(worker string, seconds float64) {
	if m == nil {
		return
	}
	m.itemsProcessed.WithLabelValues(worker).Inc()
	m.processDuration.WithLabelValues(worker).Observe(seconds)
}

// RecordDropped counts an item rejected by a full queue.
func (m *PipelineMetrics) RecordDropped(queue string) {
	if m == nil {
		return
	}
	m.itemsDropped.WithLabelValues(queue).Inc()
}

// RecordWorkerError counts a failed item.
func (m *PipelineMetrics) RecordWorkerError(worker string) {
	if m == nil {
		return
	}
	m.workerErrors.WithLabelValues(worker).Inc()
}

// RecordWorkerPanic counts a recovered panic.
func (m *PipelineMetrics) RecordWorkerPanic(worker string) {
	if m == nil {
		return
	}
	m.workerPanics.WithLabelValues(worker).Inc()
}

// RecordResolution counts a resolution outcome.
func (m *PipelineMetrics) RecordResolution(created, grouped bool) {
	if m == nil {
		return
	}
	if created {
		m.resolutions.WithLabelValues("created").Inc()
	} else {
		m.resolutions.WithLabelValues("matched").Inc()
	}
	if grouped {
		m.groupedDetections.Inc()
	}
}

// RecordAlert counts a raised alert.
func (m *PipelineMetrics) RecordAlert(kind string) {
	if m == nil {
		return
	}
	m.alertsRaised.WithLabelValues(kind).Inc()
}

// RecordThrottled counts a suppressed dwell alert.
func (m *PipelineMetrics) RecordThrottled() {
	if m == nil {
		return
	}
	m.alertsThrottled.Inc()
}
