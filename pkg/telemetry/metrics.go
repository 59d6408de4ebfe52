package telemetry

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for the build core.
type Metrics struct {
	config MetricsConfig

	// Cook run metrics
	cookRunsStarted   *prometheus.CounterVec
	cookRunsCompleted *prometheus.CounterVec
	cookRunDuration   *prometheus.HistogramVec

	// Job metrics
	jobsExecuted *prometheus.CounterVec
	jobDuration  *prometheus.HistogramVec

	// Instantiation metrics
	targetsInstantiated *prometheus.GaugeVec
	targetState         *prometheus.GaugeVec

	// Extern provider metrics
	providerCalls    *prometheus.CounterVec
	providerDuration *prometheus.HistogramVec
	providerErrors   *prometheus.CounterVec

	// Error metrics
	errorsByClass *prometheus.CounterVec
	errorsByCode  *prometheus.CounterVec

	// Cache metrics
	cacheHits *prometheus.CounterVec

	// System metrics
	activeCookRuns prometheus.Gauge
	queuedJobs     prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		// Return a no-op metrics instance
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	// Create a new registry
	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		// Cook run metrics
		cookRunsStarted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cook_runs_started_total",
				Help:      "Total number of cook runs started",
			},
			[]string{"workspace"},
		),
		cookRunsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cook_runs_completed_total",
				Help:      "Total number of cook runs completed",
			},
			[]string{"status"},
		),
		cookRunDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "cook_run_duration_seconds",
				Help:      "Duration of a cook run in seconds",
				Buckets:   buckets,
			},
			[]string{"status"},
		),

		// Job metrics
		jobsExecuted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "jobs_executed_total",
				Help:      "Total number of cook jobs executed",
			},
			[]string{"command", "status"},
		),
		jobDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "job_duration_seconds",
				Help:      "Duration of cook job execution in seconds",
				Buckets:   buckets,
			},
			[]string{"command", "target_kind"},
		),

		// Instantiation metrics
		targetsInstantiated: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "targets_instantiated",
				Help:      "Current number of instantiated targets",
			},
			[]string{"kind", "status"},
		),
		targetState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "target_state",
				Help:      "Current state of a target (1=ready, 0=not ready)",
			},
			[]string{"target", "kind"},
		),

		// Extern provider metrics
		providerCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_calls_total",
				Help:      "Total number of extern provider calls",
			},
			[]string{"provider", "operation"},
		),
		providerDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "provider_call_duration_seconds",
				Help:      "Duration of extern provider calls in seconds",
				Buckets:   buckets,
			},
			[]string{"provider", "operation"},
		),
		providerErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_errors_total",
				Help:      "Total number of extern provider errors",
			},
			[]string{"provider", "operation"},
		),

		// Error metrics
		errorsByClass: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_class_total",
				Help:      "Total number of errors by error class",
			},
			[]string{"class"},
		),
		errorsByCode: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_code_total",
				Help:      "Total number of errors by error code",
			},
			[]string{"code"},
		),

		// Cache metrics
		cacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_lookups_total",
				Help:      "Total number of cook cache lookups by outcome",
			},
			[]string{"outcome"},
		),

		// System metrics
		activeCookRuns: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_cook_runs",
				Help:      "Current number of active cook runs",
			},
		),
		queuedJobs: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "queued_jobs",
				Help:      "Current number of queued cook jobs",
			},
		),
	}

	// Register all metrics
	registry.MustRegister(
		m.cookRunsStarted,
		m.cookRunsCompleted,
		m.cookRunDuration,
		m.jobsExecuted,
		m.jobDuration,
		m.targetsInstantiated,
		m.targetState,
		m.providerCalls,
		m.providerDuration,
		m.providerErrors,
		m.errorsByClass,
		m.errorsByCode,
		m.cacheHits,
		m.activeCookRuns,
		m.queuedJobs,
	)

	return m, nil
}

// Cook Run Metrics

// RecordCookRunStarted increments the counter for started cook runs.
func (m *Metrics) RecordCookRunStarted(workspace string) {
	if m.cookRunsStarted == nil {
		return
	}
	m.cookRunsStarted.WithLabelValues(workspace).Inc()
	m.activeCookRuns.Inc()
}

// RecordCookRunCompleted records a completed cook run with its status and duration.
func (m *Metrics) RecordCookRunCompleted(status string, duration time.Duration) {
	if m.cookRunsCompleted == nil {
		return
	}
	m.cookRunsCompleted.WithLabelValues(status).Inc()
	m.cookRunDuration.WithLabelValues(status).Observe(duration.Seconds())
	m.activeCookRuns.Dec()
}

// Job Metrics

// RecordJobExecution records the execution of a single cook job.
func (m *Metrics) RecordJobExecution(command, status string, duration time.Duration, targetKind string) {
	if m.jobsExecuted == nil {
		return
	}
	m.jobsExecuted.WithLabelValues(command, status).Inc()
	m.jobDuration.WithLabelValues(command, targetKind).Observe(duration.Seconds())
}

// Instantiation Metrics

// SetTargetCount sets the current count of instantiated targets.
func (m *Metrics) SetTargetCount(kind, status string, count float64) {
	if m.targetsInstantiated == nil {
		return
	}
	m.targetsInstantiated.WithLabelValues(kind, status).Set(count)
}

// SetTargetState sets the state of a specific target.
func (m *Metrics) SetTargetState(target, kind string, ready bool) {
	if m.targetState == nil {
		return
	}
	value := 0.0
	if ready {
		value = 1.0
	}
	m.targetState.WithLabelValues(target, kind).Set(value)
}

// Provider Metrics

// RecordProviderCall records an extern provider call with its duration.
func (m *Metrics) RecordProviderCall(provider, operation string, duration time.Duration) {
	if m.providerCalls == nil {
		return
	}
	m.providerCalls.WithLabelValues(provider, operation).Inc()
	m.providerDuration.WithLabelValues(provider, operation).Observe(duration.Seconds())
}

// RecordProviderError records an extern provider error.
func (m *Metrics) RecordProviderError(provider, operation string) {
	if m.providerErrors == nil {
		return
	}
	m.providerErrors.WithLabelValues(provider, operation).Inc()
}

// Error Metrics

// RecordError records an error by class and optionally by code.
func (m *Metrics) RecordError(errorClass, errorCode string) {
	if m.errorsByClass == nil {
		return
	}
	m.errorsByClass.WithLabelValues(errorClass).Inc()
	if errorCode != "" && m.errorsByCode != nil {
		m.errorsByCode.WithLabelValues(errorCode).Inc()
	}
}

// Cache Metrics

// RecordCacheLookup records a cook cache lookup outcome ("hit" or "miss").
func (m *Metrics) RecordCacheLookup(outcome string) {
	if m.cacheHits == nil {
		return
	}
	m.cacheHits.WithLabelValues(outcome).Inc()
}

// System Metrics

// SetActiveCookRuns sets the current number of active cook runs.
func (m *Metrics) SetActiveCookRuns(count float64) {
	if m.activeCookRuns == nil {
		return
	}
	m.activeCookRuns.Set(count)
}

// SetQueuedJobs sets the current number of queued cook jobs.
func (m *Metrics) SetQueuedJobs(count float64) {
	if m.queuedJobs == nil {
		return
	}
	m.queuedJobs.Set(count)
}

// Timer provides a convenient way to time operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// ObserveDuration is a helper to time an operation and record it.
func (t *Timer) ObserveDuration(observer prometheus.Observer) {
	observer.Observe(t.Duration().Seconds())
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// StartMetricsServer starts an HTTP server to expose metrics.
func (m *Metrics) StartMetricsServer() error {
	if !m.config.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(m.config.Path, m.Handler())

	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			// Log error but don't fail the application
			fmt.Printf("metrics server error: %v\n", err)
		}
	}()

	return nil
}
