// Package metrics provides Prometheus metrics for the botpulse dashboard service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// fetchBuckets covers a direct Sheets call (~100ms) up to a fully retried
// request through a slow proxy.
var fetchBuckets = []float64{25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000} //nolint:gochecknoglobals // static bucket layout

// Manager manages all Prometheus metrics for the botpulse service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      map[string]string
	metricPrefix     string
	registry         prometheus.Registerer

	// Upstream (Google Sheets) metrics
	sheetFetches     *prometheus.CounterVec
	sheetRetries     *prometheus.CounterVec
	sheetFetchTimeMs prometheus.Histogram

	// Cache metrics
	cacheLookups *prometheus.CounterVec
	cacheEntries prometheus.Gauge

	// Normalization metrics
	parseFallbacks  *prometheus.CounterVec
	sectionOutcomes *prometheus.CounterVec

	// Refresh pipeline metrics
	refreshRuns      *prometheus.CounterVec
	refreshLatencyMs prometheus.Histogram
	queueSize        prometheus.Gauge
	queueCapacity    prometheus.Gauge
	queueRejected    *prometheus.CounterVec
	workerCount      prometheus.Gauge
	liveClients      prometheus.Gauge
	catalogReloads   *prometheus.CounterVec

	// HTTP metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Error metrics
	errorsByComponent *prometheus.CounterVec

	// System metrics
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
		namespace:        "botpulse",
		subsystem:        "dashboard",
		histogramBuckets: prometheus.DefBuckets,
		constLabels:      make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) name(n string) string {
	return m.metricPrefix + n
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
		Buckets:     buckets,
		ConstLabels: m.constLabels,
	}
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	auto := promauto.With(m.registry)

	m.sheetFetches = auto.NewCounterVec(
		m.counterOpts("sheet_fetches_total", "Google Sheets range fetches by route and outcome"),
		[]string{"route", "outcome"},
	)
	m.sheetRetries = auto.NewCounterVec(
		m.counterOpts("sheet_retries_total", "Retried Google Sheets calls by reason (rate_limit, server_error, network)"),
		[]string{"reason"},
	)
	m.sheetFetchTimeMs = auto.NewHistogram(
		m.histogramOpts("sheet_fetch_duration_milliseconds", "End-to-end fetch time including retries", fetchBuckets),
	)

	m.cacheLookups = auto.NewCounterVec(
		m.counterOpts("cache_lookups_total", "Range cache lookups by result (hit, miss, stale)"),
		[]string{"result"},
	)
	m.cacheEntries = auto.NewGauge(
		m.gaugeOpts("cache_entries", "Number of cached value ranges"),
	)

	m.parseFallbacks = auto.NewCounterVec(
		m.counterOpts("parse_fallbacks_total", "Cells that did not match the expected format and defaulted to zero"),
		[]string{"expected"},
	)
	m.sectionOutcomes = auto.NewCounterVec(
		m.counterOpts("section_outcomes_total", "Dashboard section loads by kind and status"),
		[]string{"kind", "status"},
	)

	m.refreshRuns = auto.NewCounterVec(
		m.counterOpts("refresh_runs_total", "Department refresh runs by outcome"),
		[]string{"outcome"},
	)
	m.refreshLatencyMs = auto.NewHistogram(
		m.histogramOpts("refresh_duration_milliseconds", "Time to refresh one department", fetchBuckets),
	)
	m.queueSize = auto.NewGauge(
		m.gaugeOpts("refresh_queue_size", "Pending refresh jobs"),
	)
	m.queueCapacity = auto.NewGauge(
		m.gaugeOpts("refresh_queue_capacity", "Maximum pending refresh jobs"),
	)
	m.queueRejected = auto.NewCounterVec(
		m.counterOpts("refresh_queue_rejected_total", "Refresh jobs rejected by reason"),
		[]string{"reason"},
	)
	m.workerCount = auto.NewGauge(
		m.gaugeOpts("refresh_worker_count", "Number of refresh workers"),
	)
	m.liveClients = auto.NewGauge(
		m.gaugeOpts("live_clients", "Connected websocket clients"),
	)
	m.catalogReloads = auto.NewCounterVec(
		m.counterOpts("catalog_reloads_total", "Catalog reloads by outcome"),
		[]string{"outcome"},
	)

	m.httpRequests = auto.NewCounterVec(
		m.counterOpts("http_requests_total", "Total number of HTTP requests by endpoint and method"),
		[]string{"endpoint", "method", "status_code"},
	)
	m.httpRequestDuration = auto.NewHistogramVec(
		m.histogramOpts("http_request_duration_milliseconds", "HTTP request duration in milliseconds", m.histogramBuckets),
		[]string{"endpoint", "method", "status_code"},
	)

	m.errorsByComponent = auto.NewCounterVec(
		m.counterOpts("errors_total", "Errors by component and type"),
		[]string{"component", "error_type"},
	)

	m.systemMemoryUsage = auto.NewGauge(
		m.gaugeOpts("system_memory_usage_bytes", "System memory usage in bytes"),
	)
	m.systemGoroutineCount = auto.NewGauge(
		m.gaugeOpts("system_goroutine_count", "Number of goroutines"),
	)
	m.systemGCPauseTime = auto.NewHistogram(
		m.histogramOpts("system_gc_pause_time_milliseconds", "GC pause time in milliseconds",
			[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000}),
	)
}

// Upstream Metrics Functions.

// RecordSheetFetch counts a finished fetch on a route ("direct" or a proxy host).
func RecordSheetFetch(route, outcome string) {
	globalManager.sheetFetches.WithLabelValues(route, outcome).Inc()
}

// RecordSheetRetry counts a retried call.
func RecordSheetRetry(reason string) {
	globalManager.sheetRetries.WithLabelValues(reason).Inc()
}

// RecordSheetFetchDuration records end-to-end fetch time in milliseconds.
func RecordSheetFetchDuration(ms float64) {
	globalManager.sheetFetchTimeMs.Observe(ms)
}

// Cache Metrics Functions.

// RecordCacheLookup counts a cache lookup result.
func RecordCacheLookup(result string) {
	globalManager.cacheLookups.WithLabelValues(result).Inc()
}

// UpdateCacheEntries sets the number of cached ranges.
func UpdateCacheEntries(n int) {
	globalManager.cacheEntries.Set(float64(n))
}

// Normalization Metrics Functions.

// RecordParseFallback counts a cell that defaulted to zero.
func RecordParseFallback(expected string) {
	globalManager.parseFallbacks.WithLabelValues(expected).Inc()
}

// RecordSectionOutcome counts a section load.
func RecordSectionOutcome(kind, status string) {
	globalManager.sectionOutcomes.WithLabelValues(kind, status).Inc()
}

// Refresh Pipeline Metrics Functions.

// RecordRefresh counts a refresh run and its duration.
func RecordRefresh(outcome string, ms float64) {
	globalManager.refreshRuns.WithLabelValues(outcome).Inc()
	globalManager.refreshLatencyMs.Observe(ms)
}

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// RecordQueueRejected counts a job the queue refused.
func RecordQueueRejected(reason string) {
	globalManager.queueRejected.WithLabelValues(reason).Inc()
}

// UpdateWorkerCount sets the current worker count.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// UpdateLiveClients sets the number of websocket clients.
func UpdateLiveClients(count int) {
	globalManager.liveClients.Set(float64(count))
}

// RecordCatalogReload counts a catalog reload.
func RecordCatalogReload(outcome string) {
	globalManager.catalogReloads.WithLabelValues(outcome).Inc()
}

// HTTP Metrics Functions.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// System Performance Metrics Functions.

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

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
