package observability

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	poolSessions        prometheus.Gauge
	poolSessionsCreated prometheus.Counter
	poolSessionsEvicted *prometheus.CounterVec
	poolAcquireTotal    *prometheus.CounterVec
	poolSweepDuration   prometheus.Histogram
	poolSweepEvicted    prometheus.Counter

	tasksRunning prometheus.Gauge
	taskTotal    *prometheus.CounterVec
	taskDuration prometheus.Histogram

	toolExecutionTotal    *prometheus.CounterVec
	toolExecutionDuration *prometheus.HistogramVec

	providerRequestTotal    *prometheus.CounterVec
	providerRequestDuration *prometheus.HistogramVec

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			poolSessions: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "pool_sessions",
					Help: "Current pooled session count.",
				},
			),
			poolSessionsCreated: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "pool_sessions_created_total",
					Help: "Total sessions created.",
				},
			),
			poolSessionsEvicted: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "pool_sessions_evicted_total",
					Help: "Total sessions evicted by reason.",
				},
				[]string{"reason"},
			),
			poolAcquireTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "pool_acquire_total",
					Help: "Total acquisitions by outcome.",
				},
				[]string{"outcome"},
			),
			poolSweepDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "pool_sweep_duration_seconds",
					Help:    "Idle sweep duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			poolSweepEvicted: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "pool_sweep_evicted_total",
					Help: "Total sessions reclaimed by idle sweeps.",
				},
			),
			tasksRunning: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "tasks_running",
					Help: "Currently running tasks.",
				},
			),
			taskTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "tasks_total",
					Help: "Total finished tasks by status.",
				},
				[]string{"status"},
			),
			taskDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "task_duration_seconds",
					Help:    "Task execution duration in seconds.",
					Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
				},
			),
			toolExecutionTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "tool_execution_total",
					Help: "Total tool executions by tool and status.",
				},
				[]string{"tool", "status"},
			),
			toolExecutionDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "tool_execution_duration_seconds",
					Help:    "Tool execution duration in seconds by tool.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"tool"},
			),
			providerRequestTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "provider_request_total",
					Help: "Total LLM provider requests by provider and status.",
				},
				[]string{"provider", "status"},
			),
			providerRequestDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "provider_request_duration_seconds",
					Help:    "LLM provider request duration in seconds by provider.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"provider"},
			),
			httpRequestsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "http_requests_total",
					Help: "Total HTTP requests by method, path, and status.",
				},
				[]string{"method", "path", "status"},
			),
			httpRequestDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "http_request_duration_seconds",
					Help:    "HTTP request duration in seconds by method and path.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"method", "path"},
			),
		}

		prometheus.MustRegister(
			m.poolSessions,
			m.poolSessionsCreated,
			m.poolSessionsEvicted,
			m.poolAcquireTotal,
			m.poolSweepDuration,
			m.poolSweepEvicted,
			m.tasksRunning,
			m.taskTotal,
			m.taskDuration,
			m.toolExecutionTotal,
			m.toolExecutionDuration,
			m.providerRequestTotal,
			m.providerRequestDuration,
			m.httpRequestsTotal,
			m.httpRequestDuration,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

// MetricsHandler returns the Prometheus scrape handler.
func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

// SetPoolSessions records the current pooled session count.
func SetPoolSessions(count int) {
	getMetrics().poolSessions.Set(float64(count))
}

// RecordSessionCreated counts one session creation.
func RecordSessionCreated() {
	getMetrics().poolSessionsCreated.Inc()
}

// RecordSessionEvicted counts one eviction with its reason.
func RecordSessionEvicted(reason string) {
	getMetrics().poolSessionsEvicted.WithLabelValues(reason).Inc()
}

// RecordPoolAcquire counts one acquisition outcome
// (reused, created, capacity_rejected, factory_failed).
func RecordPoolAcquire(outcome string) {
	getMetrics().poolAcquireTotal.WithLabelValues(outcome).Inc()
}

// RecordPoolSweep records one idle sweep run.
func RecordPoolSweep(duration time.Duration, evicted int) {
	m := getMetrics()
	m.poolSweepDuration.Observe(duration.Seconds())
	m.poolSweepEvicted.Add(float64(evicted))
}

// SetTasksRunning records the current running task count.
func SetTasksRunning(count int) {
	getMetrics().tasksRunning.Set(float64(count))
}

// RecordTask records one finished task with its terminal status.
func RecordTask(status string, duration time.Duration) {
	m := getMetrics()
	m.taskTotal.WithLabelValues(status).Inc()
	m.taskDuration.Observe(duration.Seconds())
}

// RecordToolExecution records one tool call.
func RecordToolExecution(tool string, duration time.Duration, success bool) {
	m := getMetrics()
	status := "error"
	if success {
		status = "success"
	}
	m.toolExecutionTotal.WithLabelValues(tool, status).Inc()
	m.toolExecutionDuration.WithLabelValues(tool).Observe(duration.Seconds())
}

// RecordProviderRequest records one LLM provider round trip.
func RecordProviderRequest(provider string, duration time.Duration, success bool) {
	m := getMetrics()
	status := "error"
	if success {
		status = "success"
	}
	m.providerRequestTotal.WithLabelValues(provider, status).Inc()
	m.providerRequestDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// RecordHTTPRequest records one served HTTP request.
func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	m := getMetrics()
	m.httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}
