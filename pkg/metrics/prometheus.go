// Package metrics provides Prometheus metrics for the exodetect service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Default metrics configuration constants.
const (
	defaultRefreshInterval = 10 * time.Second
)

// Manager manages all Prometheus metrics for the exodetect service.
type Manager struct {
	namespace       string
	subsystem       string
	latencyBuckets  []float64
	batchBuckets    []float64
	enabled         bool
	refreshInterval time.Duration
	constLabels     map[string]string
	prefix          string
	registry        prometheus.Registerer

	// Prediction metrics
	predictions      *prometheus.CounterVec
	inferenceLatency *prometheus.HistogramVec
	batchSize        prometheus.Histogram
	csvRows          prometheus.Counter

	// Result cache
	cacheHits   prometheus.Counter
	cacheMisses prometheus.Counter

	// Model registry
	artifactLoaded *prometheus.GaugeVec

	// Batch worker pool
	workerActiveCount prometheus.Gauge
	workerTasks       prometheus.Counter

	// HTTP Performance Metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Error Metrics
	errorRateByComponent *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec
	errorLatency         *prometheus.HistogramVec

	// System Performance Metrics
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithRegisterer(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:       "exodetect",
		subsystem:       "api",
		latencyBuckets:  DefaultLatencyBuckets,
		batchBuckets:    DefaultBatchBuckets,
		enabled:         true,
		refreshInterval: defaultRefreshInterval,
		registry:        prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) name(n string) string {
	if m.prefix == "" {
		return n
	}
	return m.prefix + "_" + n
}

func (m *Manager) counterOpts(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		ConstLabels: m.constLabels,
	}
}

func (m *Manager) gaugeOpts(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		ConstLabels: m.constLabels,
	}
}

func (m *Manager) histogramOpts(name, help string, buckets []float64) prometheus.HistogramOpts {
	return prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		ConstLabels: m.constLabels,
		Buckets:     buckets,
	}
}

//nolint:funlen // one place for every metric definition
func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.predictions = auto.NewCounterVec(
		m.counterOpts("predictions_total", "Total number of predictions by model and outcome"),
		[]string{"model", "outcome"},
	)
	m.inferenceLatency = auto.NewHistogramVec(
		m.histogramOpts("inference_latency_milliseconds", "Model inference latency in milliseconds", m.latencyBuckets),
		[]string{"model"},
	)
	m.batchSize = auto.NewHistogram(
		m.histogramOpts("batch_size", "Number of observations per batch request", m.batchBuckets),
	)
	m.csvRows = auto.NewCounter(m.counterOpts("csv_rows_total", "Total number of rows read from CSV uploads"))

	m.cacheHits = auto.NewCounter(m.counterOpts("cache_hits_total", "Total number of prediction cache hits"))
	m.cacheMisses = auto.NewCounter(m.counterOpts("cache_misses_total", "Total number of prediction cache misses"))

	m.artifactLoaded = auto.NewGaugeVec(
		m.gaugeOpts("artifact_loaded", "Whether a model artifact is loaded (1) or not (0)"),
		[]string{"artifact"},
	)

	m.workerActiveCount = auto.NewGauge(m.gaugeOpts("worker_active_count", "Number of batch workers currently running"))
	m.workerTasks = auto.NewCounter(m.counterOpts("worker_tasks_total", "Total number of batch items processed by workers"))

	m.httpRequests = auto.NewCounterVec(
		m.counterOpts("http_requests_total", "Total number of HTTP requests by endpoint and method"),
		[]string{"endpoint", "method", "status_code"},
	)
	m.httpRequestDuration = auto.NewHistogramVec(
		m.histogramOpts("http_request_duration_milliseconds", "HTTP request duration in milliseconds", m.latencyBuckets),
		[]string{"endpoint", "method", "status_code"},
	)

	m.errorRateByComponent = auto.NewCounterVec(
		m.counterOpts("errors_by_component_total", "Total number of errors by component"),
		[]string{"component", "error_type"},
	)
	m.errorRateByEndpoint = auto.NewCounterVec(
		m.counterOpts("errors_by_endpoint_total", "Total number of errors by endpoint"),
		[]string{"endpoint", "method", "error_type"},
	)
	m.errorLatency = auto.NewHistogramVec(
		m.histogramOpts("error_latency_milliseconds", "Latency of operations that resulted in errors", m.latencyBuckets),
		[]string{"component", "error_type"},
	)

	m.systemMemoryUsage = auto.NewGauge(m.gaugeOpts("system_memory_usage_bytes", "System memory usage in bytes"))
	m.systemGoroutineCount = auto.NewGauge(m.gaugeOpts("system_goroutine_count", "Number of goroutines"))
	m.systemGCPauseTime = auto.NewHistogram(
		m.histogramOpts("system_gc_pause_time_milliseconds", "GC pause time in milliseconds",
			[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000}),
	)
}

// RecordPrediction counts one prediction for model with the given outcome
// ("ok" or an error code).
func RecordPrediction(model, outcome string) {
	if !globalManager.enabled {
		return
	}
	globalManager.predictions.WithLabelValues(model, outcome).Inc()
}

// RecordInferenceLatency records model inference latency in milliseconds.
func RecordInferenceLatency(model string, latencyMs float64) {
	if !globalManager.enabled {
		return
	}
	globalManager.inferenceLatency.WithLabelValues(model).Observe(latencyMs)
}

// RecordBatchSize records the size of a batch request.
func RecordBatchSize(n int) {
	if !globalManager.enabled {
		return
	}
	globalManager.batchSize.Observe(float64(n))
}

// RecordCSVRows adds n rows read from an upload.
func RecordCSVRows(n int) {
	if !globalManager.enabled {
		return
	}
	globalManager.csvRows.Add(float64(n))
}

// RecordCacheHit increments the cache hit counter.
func RecordCacheHit() {
	if !globalManager.enabled {
		return
	}
	globalManager.cacheHits.Inc()
}

// RecordCacheMiss increments the cache miss counter.
func RecordCacheMiss() {
	if !globalManager.enabled {
		return
	}
	globalManager.cacheMisses.Inc()
}

// UpdateArtifactLoaded sets the loaded gauge for artifact.
func UpdateArtifactLoaded(artifact string, loaded bool) {
	if !globalManager.enabled {
		return
	}
	v := 0.0
	if loaded {
		v = 1
	}
	globalManager.artifactLoaded.WithLabelValues(artifact).Set(v)
}

// AddWorkerActive adjusts the running worker gauge by delta.
func AddWorkerActive(delta int) {
	if !globalManager.enabled {
		return
	}
	globalManager.workerActiveCount.Add(float64(delta))
}

// RecordWorkerTask increments the processed batch item counter.
func RecordWorkerTask() {
	if !globalManager.enabled {
		return
	}
	globalManager.workerTasks.Inc()
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	if !globalManager.enabled {
		return
	}
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	if !globalManager.enabled {
		return
	}
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	if !globalManager.enabled {
		return
	}
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	if !globalManager.enabled {
		return
	}
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// RecordErrorLatency records the latency of an operation that resulted in an error.
func RecordErrorLatency(component, errorType string, latencyMs float64) {
	if !globalManager.enabled {
		return
	}
	globalManager.errorLatency.WithLabelValues(component, errorType).Observe(latencyMs)
}

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// RefreshInterval returns the global manager's gauge refresh interval.
func RefreshInterval() time.Duration {
	return globalManager.refreshInterval
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
