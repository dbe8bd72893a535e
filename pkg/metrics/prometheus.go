// Package metrics provides Prometheus metrics for the oratio scoring service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// scoreBuckets spans the 0-100 score range in steps of ten.
var scoreBuckets = prometheus.LinearBuckets(0, 10, 11) //nolint:gochecknoglobals // constant bucket layout

// Manager owns every Prometheus instrument exposed by the service.
type Manager struct {
	namespace      string
	subsystem      string
	latencyBuckets []float64
	enabled        bool
	constLabels    map[string]string
	registry       prometheus.Registerer

	// Analysis pipeline
	analyses         *prometheus.CounterVec
	analysisDuration prometheus.Histogram
	noSpeech         prometheus.Counter
	metricScores     *prometheus.HistogramVec
	overallScore     prometheus.Histogram

	// Collaborators and configuration
	configResolutions      *prometheus.CounterVec
	speechRateMethods      *prometheus.CounterVec
	transcriptionFallbacks *prometheus.CounterVec

	// Calibration
	calibrationOps      *prometheus.CounterVec
	recalibrationChecks *prometheus.CounterVec
	calibrationProfiles prometheus.Gauge

	// Analysis queue and workers
	queueDepth    prometheus.Gauge
	queueRejected *prometheus.CounterVec
	queueWait     prometheus.Histogram
	workerCount   prometheus.Gauge

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	errorRateByEndpoint *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// customRegistry avoids the default Go collectors.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its instruments.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:      "oratio",
		subsystem:      "scoring",
		latencyBuckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		enabled:        true,
		constLabels:    map[string]string{},
		registry:       prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		Buckets:     buckets,
		ConstLabels: m.constLabels,
	})
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	})
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.analyses = m.counterVec("analyses_total", "Completed analyses by feedback tier", "tier")
	m.analysisDuration = m.histogram("analysis_duration_milliseconds", "Wall time of one analysis", m.latencyBuckets)
	m.noSpeech = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "no_speech_total",
		Help:        "Analyses short-circuited because voice activity reported no speech",
		ConstLabels: m.constLabels,
	})
	m.metricScores = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "metric_score",
		Help:        "Per-metric scores (0-100)",
		Buckets:     scoreBuckets,
		ConstLabels: m.constLabels,
	}, []string{"metric"})
	m.overallScore = m.histogram("overall_score", "Weighted overall score (0-100)", scoreBuckets)

	m.configResolutions = m.counterVec("config_resolutions_total", "Metric config resolutions by source", "source")
	m.speechRateMethods = m.counterVec("speech_rate_method_total", "Speech-rate estimates by method actually used", "method")
	m.transcriptionFallbacks = m.counterVec("transcription_fallbacks_total", "Transcript-based estimates that fell back to onset detection", "reason")

	m.calibrationOps = m.counterVec("calibration_operations_total", "Calibration store operations", "op")
	m.recalibrationChecks = m.counterVec("recalibration_checks_total", "Recalibration status checks by level", "level")
	m.calibrationProfiles = m.gauge("calibration_profiles", "Number of stored calibration profiles")

	m.queueDepth = m.gauge("queue_depth", "Analyses waiting for a worker")
	m.queueRejected = m.counterVec("queue_rejected_total", "Analyses refused by the queue", "reason")
	m.queueWait = m.histogram("queue_wait_milliseconds", "Time an analysis waited for a worker", m.latencyBuckets)
	m.workerCount = m.gauge("workers", "Running analysis workers")

	m.httpRequests = m.counterVec("http_requests_total", "HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "http_request_duration_milliseconds",
		Help:        "HTTP request duration in milliseconds",
		Buckets:     m.latencyBuckets,
		ConstLabels: m.constLabels,
	}, []string{"endpoint", "method", "status_code"})
	m.errorRateByEndpoint = m.counterVec("errors_by_endpoint_total", "HTTP errors by endpoint, method and type", "endpoint", "method", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "Heap bytes allocated")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
}

// RecordAnalysis counts a finished analysis and its overall score.
func (m *Manager) RecordAnalysis(tier string, overall float64, durationMs float64) {
	if !m.enabled {
		return
	}
	m.analyses.WithLabelValues(tier).Inc()
	m.overallScore.Observe(overall)
	m.analysisDuration.Observe(durationMs)
}

// RecordMetricScore observes one per-metric score.
func (m *Manager) RecordMetricScore(metric string, score float64) {
	if !m.enabled {
		return
	}
	m.metricScores.WithLabelValues(metric).Observe(score)
}

// RecordNoSpeech counts a no-speech short-circuit.
func (m *Manager) RecordNoSpeech() {
	if m.enabled {
		m.noSpeech.Inc()
	}
}

// RecordConfigResolution counts where the metric config came from.
func (m *Manager) RecordConfigResolution(source string) {
	if m.enabled {
		m.configResolutions.WithLabelValues(source).Inc()
	}
}

// RecordSpeechRateMethod counts the estimator that produced a speech rate.
func (m *Manager) RecordSpeechRateMethod(method string) {
	if m.enabled {
		m.speechRateMethods.WithLabelValues(method).Inc()
	}
}

// RecordTranscriptionFallback counts a silent fallback from the transcript path.
func (m *Manager) RecordTranscriptionFallback(reason string) {
	if m.enabled {
		m.transcriptionFallbacks.WithLabelValues(reason).Inc()
	}
}

// RecordCalibration counts a calibration store operation.
func (m *Manager) RecordCalibration(op string) {
	if m.enabled {
		m.calibrationOps.WithLabelValues(op).Inc()
	}
}

// RecordRecalibrationCheck counts a recalibration status by level.
func (m *Manager) RecordRecalibrationCheck(level string) {
	if m.enabled {
		m.recalibrationChecks.WithLabelValues(level).Inc()
	}
}

// UpdateCalibrationProfiles sets the stored profile count.
func (m *Manager) UpdateCalibrationProfiles(n int) {
	if m.enabled {
		m.calibrationProfiles.Set(float64(n))
	}
}

// RecordHTTPRequest records one request and its duration.
func (m *Manager) RecordHTTPRequest(endpoint, method, statusCode string, durationMs float64) {
	if !m.enabled {
		return
	}
	m.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
	m.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
}

// UpdateQueueDepth sets the queue depth gauge.
func (m *Manager) UpdateQueueDepth(n int) {
	if m.enabled {
		m.queueDepth.Set(float64(n))
	}
}

// RecordQueueRejected counts an analysis the queue refused.
func (m *Manager) RecordQueueRejected(reason string) {
	if m.enabled {
		m.queueRejected.WithLabelValues(reason).Inc()
	}
}

// RecordQueueWait observes how long a job sat in the queue.
func (m *Manager) RecordQueueWait(ms float64) {
	if m.enabled {
		m.queueWait.Observe(ms)
	}
}

// UpdateWorkerCount sets the running worker gauge.
func (m *Manager) UpdateWorkerCount(n int) {
	if m.enabled {
		m.workerCount.Set(float64(n))
	}
}

// RecordErrorByEndpoint records an HTTP error.
func (m *Manager) RecordErrorByEndpoint(endpoint, method, errorType string) {
	if m.enabled {
		m.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
	}
}

// UpdateSystem sets memory and goroutine gauges.
func (m *Manager) UpdateSystem(heapBytes uint64, goroutines int) {
	if !m.enabled {
		return
	}
	m.systemMemoryUsage.Set(float64(heapBytes))
	m.systemGoroutineCount.Set(float64(goroutines))
}

// Package-level helpers forward to the global manager.

// RecordAnalysis counts a finished analysis on the global manager.
func RecordAnalysis(tier string, overall, durationMs float64) {
	globalManager.RecordAnalysis(tier, overall, durationMs)
}

// RecordMetricScore observes a per-metric score on the global manager.
func RecordMetricScore(metric string, score float64) { globalManager.RecordMetricScore(metric, score) }

// RecordNoSpeech counts a no-speech short-circuit on the global manager.
func RecordNoSpeech() { globalManager.RecordNoSpeech() }

// RecordConfigResolution counts a config resolution on the global manager.
func RecordConfigResolution(source string) { globalManager.RecordConfigResolution(source) }

// RecordSpeechRateMethod counts a speech-rate method on the global manager.
func RecordSpeechRateMethod(method string) { globalManager.RecordSpeechRateMethod(method) }

// RecordTranscriptionFallback counts a transcription fallback on the global manager.
func RecordTranscriptionFallback(reason string) { globalManager.RecordTranscriptionFallback(reason) }

// RecordCalibration counts a calibration operation on the global manager.
func RecordCalibration(op string) { globalManager.RecordCalibration(op) }

// RecordRecalibrationCheck counts a recalibration check on the global manager.
func RecordRecalibrationCheck(level string) { globalManager.RecordRecalibrationCheck(level) }

// UpdateCalibrationProfiles sets the profile gauge on the global manager.
func UpdateCalibrationProfiles(n int) { globalManager.UpdateCalibrationProfiles(n) }

// UpdateQueueDepth sets the queue depth on the global manager.
func UpdateQueueDepth(n int) { globalManager.UpdateQueueDepth(n) }

// RecordQueueRejected counts a refused analysis on the global manager.
func RecordQueueRejected(reason string) { globalManager.RecordQueueRejected(reason) }

// RecordQueueWait observes queue wait time on the global manager.
func RecordQueueWait(ms float64) { globalManager.RecordQueueWait(ms) }

// UpdateWorkerCount sets the worker gauge on the global manager.
func UpdateWorkerCount(n int) { globalManager.UpdateWorkerCount(n) }

// RecordHTTPRequest records an HTTP request on the global manager.
func RecordHTTPRequest(endpoint, method, statusCode string, durationMs float64) {
	globalManager.RecordHTTPRequest(endpoint, method, statusCode, durationMs)
}

// RecordErrorByEndpoint records an HTTP error on the global manager.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.RecordErrorByEndpoint(endpoint, method, errorType)
}

// UpdateSystem sets system gauges on the global manager.
func UpdateSystem(heapBytes uint64, goroutines int) {
	globalManager.UpdateSystem(heapBytes, goroutines)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
