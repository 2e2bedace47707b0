// Package metrics provides Prometheus metrics for the periodrank service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns all Prometheus collectors for the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// Rating period outcomes
	periodsApplied   prometheus.Counter
	periodsDuplicate prometheus.Counter
	periodsFailed    *prometheus.CounterVec
	periodLatency    prometheus.Histogram
	gamesIngested    prometheus.Counter
	gamesMalformed   *prometheus.CounterVec
	playersCreated   prometheus.Counter
	playersTotal     prometheus.Gauge

	// Glicko-2 solver
	solverIterations prometheus.Histogram

	// Store
	storeLatency *prometheus.HistogramVec
	storeErrors  *prometheus.CounterVec

	// Queue and worker
	queueSize       prometheus.Gauge
	queueCapacity   prometheus.Gauge
	queueEnqueued   prometheus.Counter
	queueRejected   *prometheus.CounterVec
	workerLatency   prometheus.Histogram
	workerErrors    prometheus.Counter
	inFlightPeriods prometheus.Gauge

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	errorsByComponent *prometheus.CounterVec
}

var (
	customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // service-wide registry
	globalManager  = NewManager(WithPrometheusRegistry(customRegistry))
)

// NewManager creates a new metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "periodrank",
		subsystem:        "glicko",
		histogramBuckets: prometheus.DefBuckets,
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, Buckets: buckets,
		ConstLabels: m.constLabels,
	})
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, Buckets: m.histogramBuckets,
		ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) initializeMetrics() {
	m.periodsApplied = m.counter("periods_applied_total", "Rating periods committed to the store")
	m.periodsDuplicate = m.counter("periods_duplicate_total", "Rating periods skipped because they were already applied")
	m.periodsFailed = m.counterVec("periods_failed_total", "Rating periods aborted, by reason", "reason")
	m.periodLatency = m.histogram("period_apply_duration_milliseconds", "Snapshot, compute and commit duration of one period", m.histogramBuckets)
	m.gamesIngested = m.counter("games_ingested_total", "Games that produced a result pair")
	m.gamesMalformed = m.counterVec("games_malformed_total", "Games skipped while extracting results, by reason", "reason")
	m.playersCreated = m.counter("players_created_total", "Players created on first appearance")
	m.playersTotal = m.gauge("players", "Players known to the rating store")

	m.solverIterations = m.histogram("volatility_solver_iterations", "Illinois iterations per volatility solve",
		[]float64{1, 2, 3, 4, 5, 6, 8, 10, 15, 20, 30, 50, 100})

	m.storeLatency = m.histogramVec("store_operation_duration_milliseconds", "Rating store operation latency", "backend", "operation")
	m.storeErrors = m.counterVec("store_errors_total", "Rating store failures", "backend", "operation")

	m.queueSize = m.gauge("queue_size", "Periods waiting to be applied")
	m.queueCapacity = m.gauge("queue_capacity", "Maximum queued periods")
	m.queueEnqueued = m.counter("queue_enqueued_total", "Periods accepted into the queue")
	m.queueRejected = m.counterVec("queue_rejected_total", "Periods rejected by the queue", "reason")
	m.workerLatency = m.histogram("worker_job_duration_milliseconds", "Worker time per queued period", m.histogramBuckets)
	m.workerErrors = m.counter("worker_errors_total", "Queued periods that failed to apply")
	m.inFlightPeriods = m.gauge("in_flight_periods", "Periods submitted but not yet applied")

	m.httpRequests = m.counterVec("http_requests_total", "HTTP requests by endpoint, method and status", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds", "HTTP request duration", "endpoint", "method", "status_code")

	m.errorsByComponent = m.counterVec("errors_by_component_total", "Errors by component and type", "component", "error_type")
}

// RecordPeriodApplied counts a committed period and its latency.
func RecordPeriodApplied(latencyMs float64) {
	globalManager.periodsApplied.Inc()
	globalManager.periodLatency.Observe(latencyMs)
}

// RecordPeriodDuplicate counts an already-applied period.
func RecordPeriodDuplicate() {
	globalManager.periodsDuplicate.Inc()
}

// RecordPeriodFailed counts an aborted period.
func RecordPeriodFailed(reason string) {
	globalManager.periodsFailed.WithLabelValues(reason).Inc()
}

// RecordGamesIngested adds n valid games.
func RecordGamesIngested(n int) {
	globalManager.gamesIngested.Add(float64(n))
}

// RecordGameMalformed counts one skipped game.
func RecordGameMalformed(reason string) {
	globalManager.gamesMalformed.WithLabelValues(reason).Inc()
}

// RecordPlayersCreated adds n newly created players.
func RecordPlayersCreated(n int) {
	globalManager.playersCreated.Add(float64(n))
}

// UpdatePlayersTotal sets the number of known players.
func UpdatePlayersTotal(n int) {
	globalManager.playersTotal.Set(float64(n))
}

// RecordSolverIterations observes the iteration count of one volatility solve.
func RecordSolverIterations(n int) {
	globalManager.solverIterations.Observe(float64(n))
}

// RecordStoreLatency observes one store operation.
func RecordStoreLatency(backend, operation string, latencyMs float64) {
	globalManager.storeLatency.WithLabelValues(backend, operation).Observe(latencyMs)
}

// RecordStoreError counts one failed store operation.
func RecordStoreError(backend, operation string) {
	globalManager.storeErrors.WithLabelValues(backend, operation).Inc()
}

// UpdateQueueSize sets the current queue length.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// RecordQueueEnqueue counts an accepted job.
func RecordQueueEnqueue() {
	globalManager.queueEnqueued.Inc()
}

// RecordQueueRejected counts a rejected job.
func RecordQueueRejected(reason string) {
	globalManager.queueRejected.WithLabelValues(reason).Inc()
}

// RecordWorkerLatency observes the time spent on one job.
func RecordWorkerLatency(latencyMs float64) {
	globalManager.workerLatency.Observe(latencyMs)
}

// RecordWorkerError counts a failed job.
func RecordWorkerError() {
	globalManager.workerErrors.Inc()
}

// UpdateInFlightPeriods sets the number of periods between submit and apply.
func UpdateInFlightPeriods(n int64) {
	globalManager.inFlightPeriods.Set(float64(n))
}

// RecordHTTPRequest records an HTTP request and its duration.
func RecordHTTPRequest(endpoint, method, statusCode string, durationMs float64) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// GetRegistry returns the registry holding the service metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
