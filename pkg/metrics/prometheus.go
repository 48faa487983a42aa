// Package metrics provides Prometheus metrics for the book lending service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every Prometheus collector of the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	customLabels     map[string]string
	metricPrefix     string
	registry         prometheus.Registerer

	// Lending
	loansBorrowed    prometheus.Counter
	loansReturned    prometheus.Counter
	borrowRejections *prometheus.CounterVec
	lendingLatency   *prometheus.HistogramVec

	// Event pipeline
	eventsPublished       *prometheus.CounterVec
	eventsPublishFailures *prometheus.CounterVec
	eventsIngested        *prometheus.CounterVec
	eventsIngestFailures  *prometheus.CounterVec
	eventsDuplicate       prometheus.Counter
	popularityIncrements  prometheus.Counter
	searchUpserts         prometheus.Counter

	// Queue
	queueSize        prometheus.Gauge
	queueCapacity    prometheus.Gauge
	queueUtilization prometheus.Gauge
	queueEnqueued    prometheus.Counter
	queueDequeued    prometheus.Counter
	queueEnqueueErrs prometheus.Counter

	// Workers
	workerCount             prometheus.Gauge
	workerActiveCount       prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter

	// Repository
	repositoryQueryLatency  *prometheus.HistogramVec
	repositoryUpdateLatency *prometheus.HistogramVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorRateByComponent *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // registry served at /metrics

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "library",
		subsystem:        "lending",
		histogramBuckets: prometheus.DefBuckets,
		customLabels:     make(map[string]string),
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

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		ConstLabels: m.customLabels,
	})
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

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		ConstLabels: m.customLabels,
	})
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		Buckets:     buckets,
		ConstLabels: m.customLabels,
	})
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		Buckets:     m.histogramBuckets,
		ConstLabels: m.customLabels,
	}, labels)
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	m.loansBorrowed = m.counter("loans_borrowed_total", "Total number of successful borrows")
	m.loansReturned = m.counter("loans_returned_total", "Total number of successful returns")
	m.borrowRejections = m.counterVec("borrow_rejections_total", "Borrow attempts rejected by eligibility or inventory rules", "reason")
	m.lendingLatency = m.histogramVec("lending_latency_milliseconds", "Latency of lending transitions in milliseconds", "operation")

	m.eventsPublished = m.counterVec("events_published_total", "Loan events handed to the stream", "type")
	m.eventsPublishFailures = m.counterVec("events_publish_failures_total", "Loan events that failed to publish", "type")
	m.eventsIngested = m.counterVec("events_ingested_total", "Loan events consumed by the ingestor", "type")
	m.eventsIngestFailures = m.counterVec("events_ingest_failures_total", "Loan events dropped or partially applied by the ingestor", "reason")
	m.eventsDuplicate = m.counter("events_duplicate_total", "Redelivered loan events detected by the first-seen guard")
	m.popularityIncrements = m.counter("popularity_increments_total", "Popularity score increments")
	m.searchUpserts = m.counter("search_upserts_total", "Search index upserts")

	m.queueSize = m.gauge("queue_size", "Current number of buffered stream messages")
	m.queueCapacity = m.gauge("queue_capacity", "Total stream buffer capacity")
	m.queueUtilization = m.gauge("queue_utilization_ratio", "Stream buffer utilization (size / capacity)")
	m.queueEnqueued = m.counter("queue_enqueue_total", "Total number of messages enqueued")
	m.queueDequeued = m.counter("queue_dequeue_total", "Total number of messages dequeued")
	m.queueEnqueueErrs = m.counter("queue_enqueue_errors_total", "Total number of enqueue errors")

	m.workerCount = m.gauge("worker_count", "Number of ingest workers")
	m.workerActiveCount = m.gauge("worker_active_count", "Number of ingest workers currently processing")
	m.workerProcessingLatency = m.histogram("worker_processing_latency_milliseconds", "Ingest processing latency in milliseconds", m.histogramBuckets)
	m.workerErrors = m.counter("worker_errors_total", "Total number of ingest worker errors")

	m.repositoryQueryLatency = m.histogramVec("repository_query_latency_milliseconds", "Relational read latency in milliseconds", "operation")
	m.repositoryUpdateLatency = m.histogramVec("repository_update_latency_milliseconds", "Relational write latency in milliseconds", "operation")

	m.httpRequests = m.counterVec("http_requests_total", "Total number of HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds", "HTTP request duration in milliseconds", "endpoint", "method", "status_code")

	m.errorRateByComponent = m.counterVec("errors_by_component_total", "Total number of errors by component", "component", "error_type")
	m.errorRateByEndpoint = m.counterVec("errors_by_endpoint_total", "Total number of errors by endpoint", "endpoint", "method", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "Heap memory in use in bytes")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_time_milliseconds", "GC pause time in milliseconds",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000})
}

// RecordLoanBorrowed increments the borrowed-loans counter.
func RecordLoanBorrowed() { globalManager.loansBorrowed.Inc() }

// RecordLoanReturned increments the returned-loans counter.
func RecordLoanReturned() { globalManager.loansReturned.Inc() }

// RecordBorrowRejection counts a rejected borrow by reason.
func RecordBorrowRejection(reason string) {
	globalManager.borrowRejections.WithLabelValues(reason).Inc()
}

// RecordLendingLatency records the latency of a borrow or return.
func RecordLendingLatency(operation string, latencyMs float64) {
	globalManager.lendingLatency.WithLabelValues(operation).Observe(latencyMs)
}

// RecordEventPublished counts an event handed to the stream.
func RecordEventPublished(eventType string) {
	globalManager.eventsPublished.WithLabelValues(eventType).Inc()
}

// RecordEventPublishFailure counts an event that failed to publish.
func RecordEventPublishFailure(eventType string) {
	globalManager.eventsPublishFailures.WithLabelValues(eventType).Inc()
}

// RecordEventIngested counts a consumed event.
func RecordEventIngested(eventType string) {
	globalManager.eventsIngested.WithLabelValues(eventType).Inc()
}

// RecordEventIngestFailure counts an ingest failure by reason.
func RecordEventIngestFailure(reason string) {
	globalManager.eventsIngestFailures.WithLabelValues(reason).Inc()
}

// RecordEventDuplicate counts a redelivered event.
func RecordEventDuplicate() { globalManager.eventsDuplicate.Inc() }

// RecordPopularityIncrement counts a popularity score increment.
func RecordPopularityIncrement() { globalManager.popularityIncrements.Inc() }

// RecordSearchUpsert counts a search index upsert.
func RecordSearchUpsert() { globalManager.searchUpserts.Inc() }

// UpdateQueueSize sets the current number of buffered messages.
func UpdateQueueSize(size int) { globalManager.queueSize.Set(float64(size)) }

// UpdateQueueCapacity sets the total buffer capacity.
func UpdateQueueCapacity(capacity int) { globalManager.queueCapacity.Set(float64(capacity)) }

// UpdateQueueUtilization sets the buffer utilization ratio.
func UpdateQueueUtilization(utilization float64) { globalManager.queueUtilization.Set(utilization) }

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() { globalManager.queueEnqueued.Inc() }

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() { globalManager.queueDequeued.Inc() }

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() { globalManager.queueEnqueueErrs.Inc() }

// UpdateWorkerCount sets the number of ingest workers.
func UpdateWorkerCount(count int) { globalManager.workerCount.Set(float64(count)) }

// AddWorkerActive adjusts the number of busy workers by delta.
func AddWorkerActive(delta int) { globalManager.workerActiveCount.Add(float64(delta)) }

// RecordWorkerProcessingLatency records ingest processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() { globalManager.workerErrors.Inc() }

// RecordRepositoryQueryLatency records relational read latency.
func RecordRepositoryQueryLatency(operation string, latencyMs float64) {
	globalManager.repositoryQueryLatency.WithLabelValues(operation).Observe(latencyMs)
}

// RecordRepositoryUpdateLatency records relational write latency.
func RecordRepositoryUpdateLatency(operation string, latencyMs float64) {
	globalManager.repositoryUpdateLatency.WithLabelValues(operation).Observe(latencyMs)
}

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
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// UpdateSystemMemoryUsage sets heap memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) { globalManager.systemMemoryUsage.Set(float64(bytes)) }

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) { globalManager.systemGoroutineCount.Set(float64(count)) }

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) { globalManager.systemGCPauseTime.Observe(pauseMs) }

// Since returns the elapsed milliseconds since start, for latency observations.
func Since(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000
}

// GetRegistry returns the Prometheus registry that holds the service metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
