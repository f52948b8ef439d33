// Package metrics provides Prometheus metrics for the ladder leaderboard service.
package metrics

import (
	"context"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Default metrics configuration constants.
const (
	defaultRefreshInterval = 10 * time.Second
)

// Manager manages all Prometheus metrics for the ladder service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          atomic.Bool
	refreshInterval  time.Duration
	customLabels     map[string]string
	metricPrefix     string
	registry         prometheus.Registerer

	// Leaderboard write/read path
	scoreUpdates       prometheus.Counter
	validationFailures prometheus.Counter
	persistFailures    prometheus.Counter
	rankingErrors      *prometheus.CounterVec
	totalPlayers       prometheus.Gauge
	storeLatency       *prometheus.HistogramVec

	// Recovery and sync
	rebuilds        prometheus.Counter
	rebuiltPlayers  prometheus.Counter
	rebuildDuration prometheus.Histogram
	syncs           prometheus.Counter
	syncedPlayers   prometheus.Counter
	syncFailures    prometheus.Counter
	syncDuration    prometheus.Histogram
	lockContention  *prometheus.CounterVec
	lastSyncUnix    prometheus.Gauge

	// Score change feed
	notifyFailures  prometheus.Counter
	notifyDropped   prometheus.Counter
	notifyPublished prometheus.Counter
	notifyQueueSize prometheus.Gauge

	// HTTP Performance Metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Enhanced Error Metrics - Detailed error tracking
	errorRateByComponent *prometheus.CounterVec
	errorRateByType      *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec

	// System Performance Metrics
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
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
		namespace:        "ladder",
		subsystem:        "leaderboard",
		histogramBuckets: prometheus.DefBuckets,
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
	if m.metricPrefix == "" {
		return n
	}
	return m.metricPrefix + "_" + n
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	auto := promauto.With(m.registry)
	counter := func(name, help string) prometheus.Counter {
		return auto.NewCounter(prometheus.CounterOpts{
			Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help,
			ConstLabels: m.customLabels,
		})
	}
	gauge := func(name, help string) prometheus.Gauge {
		return auto.NewGauge(prometheus.GaugeOpts{
			Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help,
			ConstLabels: m.customLabels,
		})
	}
	histogram := func(name, help string) prometheus.Histogram {
		return auto.NewHistogram(prometheus.HistogramOpts{
			Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help,
			ConstLabels: m.customLabels, Buckets: m.histogramBuckets,
		})
	}
	counterVec := func(name, help string, labels ...string) *prometheus.CounterVec {
		return auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help,
			ConstLabels: m.customLabels,
		}, labels)
	}

	m.scoreUpdates = counter("score_updates_total", "Score updates applied to the ranking store")
	m.validationFailures = counter("validation_failures_total", "Score updates rejected before touching any store")
	m.persistFailures = counter("persist_failures_total", "Write-through persistence failures (ranking update kept)")
	m.rankingErrors = counterVec("ranking_store_errors_total", "Ranking store failures by operation", "operation")
	m.totalPlayers = gauge("total_players", "Participants currently held by the ranking store")
	m.storeLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("store_latency_milliseconds"),
		Help:        "Ranking store and repository call latency in milliseconds",
		ConstLabels: m.customLabels,
		Buckets:     []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
	}, []string{"store", "operation"})

	m.rebuilds = counter("rebuilds_total", "Completed ranking store rebuilds")
	m.rebuiltPlayers = counter("rebuilt_players_total", "Participants loaded by rebuilds")
	m.rebuildDuration = histogram("rebuild_duration_seconds", "Rebuild duration in seconds")
	m.syncs = counter("syncs_total", "Completed ranking store to repository syncs")
	m.syncedPlayers = counter("synced_players_total", "Participants persisted by syncs")
	m.syncFailures = counter("sync_failures_total", "Per-participant sync failures")
	m.syncDuration = histogram("sync_duration_seconds", "Sync duration in seconds")
	m.lockContention = counterVec("lock_contention_total", "Recovery lock acquisitions lost to another holder", "operation")
	m.lastSyncUnix = gauge("last_sync_unix", "Unix time of the last completed sync")
	m.notifyFailures = counter("notify_failures_total", "Score change notifications that could not be published")
	m.notifyDropped = counter("notify_dropped_total", "Score change notifications dropped because the queue was full or closed")
	m.notifyPublished = counter("notify_published_total", "Score change notifications published")
	m.notifyQueueSize = gauge("notify_queue_size", "Score change notifications waiting to be published")

	m.httpRequests = counterVec("http_requests_total", "Total number of HTTP requests by endpoint and method",
		"endpoint", "method", "status_code")
	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("http_request_duration_milliseconds"),
		Help:        "HTTP request duration in milliseconds",
		ConstLabels: m.customLabels,
		Buckets:     m.histogramBuckets,
	}, []string{"endpoint", "method", "status_code"})

	m.errorRateByComponent = counterVec("errors_by_component_total", "Errors by component and type", "component", "error_type")
	m.errorRateByType = counterVec("errors_by_type_total", "Errors by type and severity", "error_type", "severity")
	m.errorRateByEndpoint = counterVec("errors_by_endpoint_total", "Errors by endpoint", "endpoint", "method", "error_type")

	m.systemMemoryUsage = gauge("system_memory_bytes", "Heap bytes allocated")
	m.systemGoroutineCount = gauge("system_goroutines", "Number of goroutines")
}

// RecordScoreUpdate increments the applied score updates counter.
func RecordScoreUpdate() {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.scoreUpdates.Inc()
}

// RecordValidationFailure increments the rejected updates counter.
func RecordValidationFailure() {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.validationFailures.Inc()
}

// RecordPersistFailure increments the write-through soft failure counter.
func RecordPersistFailure() {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.persistFailures.Inc()
}

// RecordRankingStoreError counts a ranking store failure for op.
func RecordRankingStoreError(op string) {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.rankingErrors.WithLabelValues(op).Inc()
}

// UpdateTotalPlayers sets the participant count gauge.
func UpdateTotalPlayers(count int64) {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.totalPlayers.Set(float64(count))
}

// RecordStoreLatency observes the latency of one store call.
func RecordStoreLatency(store, op string, d time.Duration) {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.storeLatency.WithLabelValues(store, op).Observe(float64(d.Microseconds()) / 1000)
}

// RecordRebuild records a completed rebuild.
func RecordRebuild(loaded int, d time.Duration) {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.rebuilds.Inc()
	globalManager.rebuiltPlayers.Add(float64(loaded))
	globalManager.rebuildDuration.Observe(d.Seconds())
}

// RecordSync records a completed sync.
func RecordSync(synced, failed int, d time.Duration) {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.syncs.Inc()
	globalManager.syncedPlayers.Add(float64(synced))
	globalManager.syncFailures.Add(float64(failed))
	globalManager.syncDuration.Observe(d.Seconds())
	globalManager.lastSyncUnix.Set(float64(time.Now().Unix()))
}

// RecordLockContention counts an operation skipped because the lock was held.
func RecordLockContention(op string) {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.lockContention.WithLabelValues(op).Inc()
}

// RecordNotifyFailure counts a notification that failed to publish.
func RecordNotifyFailure() {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.notifyFailures.Inc()
}

// RecordNotifyDropped counts a notification that never reached the queue.
func RecordNotifyDropped() {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.notifyDropped.Inc()
}

// RecordNotifyPublished counts n published notifications.
func RecordNotifyPublished(n int) {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.notifyPublished.Add(float64(n))
}

// UpdateNotifyQueueSize sets the pending notification gauge.
func UpdateNotifyQueueSize(size int) {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.notifyQueueSize.Set(float64(size))
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByType records an error with type and severity labels.
func RecordErrorByType(errorType, severity string) {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.errorRateByType.WithLabelValues(errorType, severity).Inc()
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.systemGoroutineCount.Set(float64(count))
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

// SetEnabled turns the package-level recorders on or off. Disabled
// recorders leave every metric untouched.
func SetEnabled(enabled bool) {
	globalManager.enabled.Store(enabled)
}

// Enabled reports whether the package-level recorders are active.
func Enabled() bool {
	return globalManager.enabled.Load()
}

// RunSystemUpdater samples heap and goroutine gauges every refresh
// interval until ctx is done.
func (m *Manager) RunSystemUpdater(ctx context.Context) {
	ticker := time.NewTicker(m.refreshInterval)
	defer ticker.Stop()

	m.updateSystem()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.updateSystem()
		}
	}
}

func (m *Manager) updateSystem() {
	if !m.enabled.Load() {
		return
	}
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	m.systemMemoryUsage.Set(float64(ms.Alloc))
	m.systemGoroutineCount.Set(float64(runtime.NumGoroutine()))
}

// RunSystemUpdater runs the global manager's system sampler.
func RunSystemUpdater(ctx context.Context) {
	globalManager.RunSystemUpdater(ctx)
}
