// Package metrics provides Prometheus metrics for the facegate attendance service.
package metrics

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Default metrics configuration constants.
const (
	defaultRefreshInterval = 10 * time.Second
)

// Latency buckets in milliseconds, sized for detector round trips.
var defaultLatencyBuckets = []float64{5, 10, 25, 50, 100, 200, 400, 800, 1600, 3200} //nolint:gochecknoglobals // shared default

// Manager manages all Prometheus metrics for the facegate service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          atomic.Bool
	refreshInterval  time.Duration
	customLabels     map[string]string
	metricPrefix     string
	registry         prometheus.Registerer

	// Recognition pipeline, labelled by channel.
	framesRead          *prometheus.CounterVec
	frameReadFailures   *prometheus.CounterVec
	framesProcessed     *prometheus.CounterVec
	detectionLatency    *prometheus.HistogramVec
	detectionFailures   *prometheus.CounterVec
	matchOutcomes       *prometheus.CounterVec
	matchConfidence     *prometheus.HistogramVec
	pacingSleep         *prometheus.HistogramVec
	channelRunning      *prometheus.GaugeVec
	channelStateChanges *prometheus.CounterVec

	// Ledger
	attendanceEvents    *prometheus.CounterVec
	debounceSuppressed  *prometheus.CounterVec
	ledgerRecords       prometheus.Gauge
	ledgerPersistTime   *prometheus.HistogramVec
	ledgerPersistErrors *prometheus.CounterVec
	ledgerDirty         prometheus.Gauge

	// Gallery
	galleryIdentities prometheus.Gauge
	galleryEmbeddings prometheus.Gauge
	galleryReloads    *prometheus.CounterVec

	// Notification queue and publishers
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueEnqueued      prometheus.Counter
	queueDropped       *prometheus.CounterVec
	publishTotal       *prometheus.CounterVec
	publishLatency     prometheus.Histogram
	publisherWorkers   prometheus.Gauge
	scheduledJobErrors *prometheus.CounterVec

	// HTTP Performance Metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Error tracking
	errorRateByComponent *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec

	// System Performance Metrics
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

// Initialize global metrics.
func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "facegate",
		subsystem:        "attendance",
		histogramBuckets: defaultLatencyBuckets,
		refreshInterval:  defaultRefreshInterval,
		customLabels:     make(map[string]string),
		metricPrefix:     "",
		registry:         prometheus.DefaultRegisterer,
	}

	m.enabled.Store(true)
	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) name(n string) string {
	return m.metricPrefix + n
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		ConstLabels: m.customLabels,
	}, labels)
}

func (m *Manager) gaugeVec(name, help string, labels ...string) *prometheus.GaugeVec {
	return promauto.With(m.registry).NewGaugeVec(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		ConstLabels: m.customLabels,
	}, labels)
}

func (m *Manager) histogramVec(name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		Buckets:     buckets,
		ConstLabels: m.customLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		ConstLabels: m.customLabels,
	})
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	auto := promauto.With(m.registry)

	m.framesRead = m.counterVec("frames_read_total", "Frames read from the channel source", "channel")
	m.frameReadFailures = m.counterVec("frame_read_failures_total", "Failed or empty frame reads", "channel")
	m.framesProcessed = m.counterVec("frames_processed_total", "Frames submitted to detection", "channel")
	m.detectionLatency = m.histogramVec("detection_latency_milliseconds",
		"Detection plus matching latency per processed frame", m.histogramBuckets, "channel")
	m.detectionFailures = m.counterVec("detection_failures_total", "Per-frame detection failures", "channel")
	m.matchOutcomes = m.counterVec("match_outcomes_total",
		"Match results by outcome (known, unknown, no_face)", "channel", "outcome")
	m.matchConfidence = m.histogramVec("match_confidence", "Confidence of the subject face per processed frame",
		[]float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1}, "channel")
	m.pacingSleep = m.histogramVec("pacing_sleep_milliseconds", "Adaptive pacing sleep between iterations",
		[]float64{10, 25, 50, 100, 150, 200, 300}, "channel")
	m.channelRunning = m.gaugeVec("channel_running", "1 when the channel worker is running", "channel")
	m.channelStateChanges = m.counterVec("channel_state_changes_total", "Worker state transitions", "channel", "state")

	m.attendanceEvents = m.counterVec("events_total", "Attendance events produced by the ledger", "channel")
	m.debounceSuppressed = m.counterVec("debounce_suppressed_total", "Matches dropped by the debounce policy", "channel")
	m.ledgerRecords = m.gauge("ledger_records", "Day records held by the ledger")
	m.ledgerPersistTime = m.histogramVec("ledger_persist_duration_milliseconds", "Ledger write-through duration",
		m.histogramBuckets, "backend")
	m.ledgerPersistErrors = m.counterVec("ledger_persist_errors_total", "Ledger write-through failures", "backend")
	m.ledgerDirty = m.gauge("ledger_dirty", "1 when in-memory ledger state is not yet persisted")

	m.galleryIdentities = m.gauge("gallery_identities", "Identities in the active gallery snapshot")
	m.galleryEmbeddings = m.gauge("gallery_embeddings", "Reference embeddings in the active gallery snapshot")
	m.galleryReloads = m.counterVec("gallery_reloads_total", "Gallery reload attempts", "result")

	m.queueSize = m.gauge("notify_queue_size", "Attendance events waiting for publication")
	m.queueCapacity = m.gauge("notify_queue_capacity", "Notification queue capacity")
	m.queueEnqueued = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("notify_enqueued_total"),
		Help:        "Attendance events accepted by the notification queue",
		ConstLabels: m.customLabels,
	})
	m.queueDropped = m.counterVec("notify_dropped_total", "Attendance events not queued for publication", "reason")
	m.publishTotal = m.counterVec("publish_total", "Publish attempts by result", "result")
	m.publishLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("publish_latency_milliseconds"),
		Help:        "Latency of a single publish",
		Buckets:     m.histogramBuckets,
		ConstLabels: m.customLabels,
	})
	m.publisherWorkers = m.gauge("publisher_workers", "Running publisher workers")
	m.scheduledJobErrors = m.counterVec("scheduled_job_errors_total", "Scheduled job failures", "job")

	m.httpRequests = m.counterVec("http_requests_total", "Total number of HTTP requests by endpoint and method",
		"endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds", "HTTP request duration in milliseconds",
		m.histogramBuckets, "endpoint", "method", "status_code")

	m.errorRateByComponent = m.counterVec("errors_by_component_total", "Total number of errors by component",
		"component", "error_type")
	m.errorRateByEndpoint = m.counterVec("errors_by_endpoint_total", "Total number of errors by endpoint",
		"endpoint", "method", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "System memory usage in bytes")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
	m.systemGCPauseTime = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("system_gc_pause_time_milliseconds"),
		Help:        "GC pause time in milliseconds",
		Buckets:     []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
		ConstLabels: m.customLabels,
	})
}

// Recognition pipeline.

// RecordFrameRead counts a successful frame read.
func RecordFrameRead(channel string) {
	if off() {
		return
	}
	globalManager.framesRead.WithLabelValues(channel).Inc()
}

// RecordFrameReadFailure counts a failed read or end-of-stream.
func RecordFrameReadFailure(channel string) {
	if off() {
		return
	}
	globalManager.frameReadFailures.WithLabelValues(channel).Inc()
}

// RecordFrameProcessed counts a frame submitted to detection.
func RecordFrameProcessed(channel string) {
	if off() {
		return
	}
	globalManager.framesProcessed.WithLabelValues(channel).Inc()
}

// RecordDetectionLatency observes detection plus matching latency.
func RecordDetectionLatency(channel string, latencyMs float64) {
	if off() {
		return
	}
	globalManager.detectionLatency.WithLabelValues(channel).Observe(latencyMs)
}

// RecordDetectionFailure counts a per-frame detection failure.
func RecordDetectionFailure(channel string) {
	if off() {
		return
	}
	globalManager.detectionFailures.WithLabelValues(channel).Inc()
}

// RecordMatchOutcome counts a processed frame by outcome.
func RecordMatchOutcome(channel, outcome string) {
	if off() {
		return
	}
	globalManager.matchOutcomes.WithLabelValues(channel, outcome).Inc()
}

// RecordMatchConfidence observes the subject face confidence.
func RecordMatchConfidence(channel string, confidence float64) {
	if off() {
		return
	}
	globalManager.matchConfidence.WithLabelValues(channel).Observe(confidence)
}

// RecordPacingSleep observes the pacing delay chosen by a worker.
func RecordPacingSleep(channel string, sleepMs float64) {
	if off() {
		return
	}
	globalManager.pacingSleep.WithLabelValues(channel).Observe(sleepMs)
}

// UpdateChannelRunning flags a channel as running or stopped.
func UpdateChannelRunning(channel string, running bool) {
	if off() {
		return
	}
	v := 0.0
	if running {
		v = 1
	}
	globalManager.channelRunning.WithLabelValues(channel).Set(v)
}

// RecordChannelState counts a worker state transition.
func RecordChannelState(channel, state string) {
	if off() {
		return
	}
	globalManager.channelStateChanges.WithLabelValues(channel, state).Inc()
}

// Ledger.

// RecordAttendanceEvent counts a produced attendance event.
func RecordAttendanceEvent(channel string) {
	if off() {
		return
	}
	globalManager.attendanceEvents.WithLabelValues(channel).Inc()
}

// RecordDebounceSuppressed counts a match dropped by the debounce policy.
func RecordDebounceSuppressed(channel string) {
	if off() {
		return
	}
	globalManager.debounceSuppressed.WithLabelValues(channel).Inc()
}

// UpdateLedgerRecords sets the number of day records.
func UpdateLedgerRecords(count int) {
	if off() {
		return
	}
	globalManager.ledgerRecords.Set(float64(count))
}

// RecordLedgerPersist observes one write-through.
func RecordLedgerPersist(backend string, latencyMs float64) {
	if off() {
		return
	}
	globalManager.ledgerPersistTime.WithLabelValues(backend).Observe(latencyMs)
}

// RecordLedgerPersistError counts a failed write-through.
func RecordLedgerPersistError(backend string) {
	if off() {
		return
	}
	globalManager.ledgerPersistErrors.WithLabelValues(backend).Inc()
}

// UpdateLedgerDirty flags unpersisted ledger state.
func UpdateLedgerDirty(dirty bool) {
	if off() {
		return
	}
	v := 0.0
	if dirty {
		v = 1
	}
	globalManager.ledgerDirty.Set(v)
}

// Gallery.

// UpdateGallerySize sets identity and embedding counts for the active snapshot.
func UpdateGallerySize(identities, embeddings int) {
	if off() {
		return
	}
	globalManager.galleryIdentities.Set(float64(identities))
	globalManager.galleryEmbeddings.Set(float64(embeddings))
}

// RecordGalleryReload counts a reload attempt by result: "ok", "missing" or "error".
func RecordGalleryReload(result string) {
	if off() {
		return
	}
	globalManager.galleryReloads.WithLabelValues(result).Inc()
}

// Notification queue and publishers.

// UpdateQueueSize sets the current queue depth.
func UpdateQueueSize(size int) {
	if off() {
		return
	}
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the queue capacity.
func UpdateQueueCapacity(capacity int) {
	if off() {
		return
	}
	globalManager.queueCapacity.Set(float64(capacity))
}

// RecordQueueEnqueue counts an accepted event.
func RecordQueueEnqueue() {
	if off() {
		return
	}
	globalManager.queueEnqueued.Inc()
}

// RecordQueueDropped counts an event that could not be queued.
func RecordQueueDropped(reason string) {
	if off() {
		return
	}
	globalManager.queueDropped.WithLabelValues(reason).Inc()
}

// RecordPublish counts a publish attempt with result "ok" or "error".
func RecordPublish(result string, latencyMs float64) {
	if off() {
		return
	}
	globalManager.publishTotal.WithLabelValues(result).Inc()
	globalManager.publishLatency.Observe(latencyMs)
}

// UpdatePublisherWorkers sets the number of running publisher workers.
func UpdatePublisherWorkers(count int) {
	if off() {
		return
	}
	globalManager.publisherWorkers.Set(float64(count))
}

// RecordScheduledJobError counts a failed scheduled job run.
func RecordScheduledJobError(job string) {
	if off() {
		return
	}
	globalManager.scheduledJobErrors.WithLabelValues(job).Inc()
}

// HTTP.

// RecordHTTPRequest increments the HTTP requests counter.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	if off() {
		return
	}
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	if off() {
		return
	}
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// Errors.

// RecordErrorByComponent records an error with component and error type labels.
func RecordErrorByComponent(component, errorType string) {
	if off() {
		return
	}
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	if off() {
		return
	}
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// System Performance Metrics Functions.

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	if off() {
		return
	}
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	if off() {
		return
	}
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	if off() {
		return
	}
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// Configure applies options to the global manager after start-up. Only
// WithMetricsEnabled and WithRefreshInterval take effect here; naming
// options apply to NewManager.
func Configure(opts ...Option) {
	for _, opt := range opts {
		opt(globalManager)
	}
}

// Enabled reports whether the Record and Update helpers are live.
func Enabled() bool { return globalManager.enabled.Load() }

// RefreshInterval is how often sampled gauges should be refreshed.
func RefreshInterval() time.Duration { return globalManager.refreshInterval }

func off() bool { return !globalManager.enabled.Load() }

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
