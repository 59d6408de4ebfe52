package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Telemetry bundles the four ambient concerns (logging, tracing,
// metrics, events) behind one handle, installed into a context at the
// top of a run and retrieved by the core packages via
// FromTelemetryContext. A nil Telemetry everywhere means "not
// instrumented" and is always safe.
type Telemetry struct {
	Logger  *Logger
	Tracer  *Tracer
	Metrics *Metrics
	Events  *EventPublisher
	Config  *Config
}

type telemetryContextKey struct{}

// NewTelemetry validates cfg and constructs each component.
func NewTelemetry(cfg *Config) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger, err := NewLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}
	tracer, err := NewTracer(cfg.Tracing, cfg.ServiceName, cfg.ServiceVersion, cfg.Environment)
	if err != nil {
		return nil, err
	}
	metrics, err := NewMetrics(cfg.Metrics)
	if err != nil {
		return nil, err
	}
	events, err := NewEventPublisher(cfg.Events)
	if err != nil {
		return nil, err
	}
	return &Telemetry{Logger: logger, Tracer: tracer, Metrics: metrics, Events: events, Config: cfg}, nil
}

// WithContext installs t (and its logger) into ctx.
func (t *Telemetry) WithContext(ctx context.Context) context.Context {
	ctx = context.WithValue(ctx, telemetryContextKey{}, t)
	return t.Logger.WithContext(ctx)
}

// FromTelemetryContext returns the installed Telemetry, or nil.
func FromTelemetryContext(ctx context.Context) *Telemetry {
	t, _ := ctx.Value(telemetryContextKey{}).(*Telemetry)
	return t
}

// Shutdown drains events and the tracer. The metrics endpoint is left
// running; scrapes may still arrive while the process winds down.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if err := t.Events.Shutdown(ctx); err != nil {
		return err
	}
	return t.Tracer.Shutdown(ctx)
}

// Flush exports any buffered spans without shutting down.
func (t *Telemetry) Flush(ctx context.Context) error {
	return t.Tracer.ForceFlush(ctx)
}

// StartMetricsServer exposes the Prometheus endpoint if enabled.
func (t *Telemetry) StartMetricsServer() error {
	return t.Metrics.StartMetricsServer()
}

// InstrumentedContext is what StartOperation hands back: the derived
// context, its span, a logger pre-tagged with the operation, and a
// running timer.
type InstrumentedContext struct {
	Ctx    context.Context
	Span   trace.Span
	Logger *Logger
	Timer  *Timer
}

// StartOperation opens a span + tagged logger + timer for one named
// operation (e.g. "inheritance.resolve"). Works degraded when ctx has
// no Telemetry: logging still flows, the span is absent.
func StartOperation(ctx context.Context, operation string, attrs ...attribute.KeyValue) *InstrumentedContext {
	tel := FromTelemetryContext(ctx)
	if tel == nil {
		return &InstrumentedContext{Ctx: ctx, Logger: FromContext(ctx), Timer: NewTimer()}
	}

	spanCtx, span := tel.Tracer.StartSpan(ctx, operation, attrs...)
	logger := tel.Logger.WithField("operation", operation)
	if sc := span.SpanContext(); sc.IsValid() {
		logger = logger.WithFields(map[string]interface{}{
			"trace_id": sc.TraceID().String(),
			"span_id":  sc.SpanID().String(),
		})
	}
	return &InstrumentedContext{Ctx: spanCtx, Span: span, Logger: logger, Timer: NewTimer()}
}

// End closes the operation, marking the span failed when err != nil.
func (ic *InstrumentedContext) End(err error) {
	if ic.Span == nil {
		return
	}
	if err != nil {
		RecordError(ic.Span, err)
	} else {
		RecordSuccess(ic.Span)
	}
	ic.Span.End()
}

type cookRunSpanKey struct{}
type cookRunTimerKey struct{}

// WithCookRunContext opens the per-run span and logger a cook pass
// runs under. Pair with EndCookRunContext.
func WithCookRunContext(ctx context.Context, cookRunID, workspace string) context.Context {
	tel := FromTelemetryContext(ctx)
	if tel == nil {
		return ctx
	}
	spanCtx, span := tel.Tracer.StartCookRunSpan(ctx, cookRunID)
	spanCtx = tel.Logger.WithCookRunID(cookRunID).WithField("workspace", workspace).WithContext(spanCtx)

	tel.Metrics.RecordCookRunStarted(workspace)
	_ = tel.Events.PublishCookRunStarted(cookRunID, workspace)

	spanCtx = context.WithValue(spanCtx, cookRunSpanKey{}, span)
	return context.WithValue(spanCtx, cookRunTimerKey{}, NewTimer())
}

// EndCookRunContext closes the run span and records the run's real
// duration from the timer WithCookRunContext started.
func EndCookRunContext(ctx context.Context, cookRunID, status string, err error) {
	tel := FromTelemetryContext(ctx)
	if tel == nil {
		return
	}
	if span, ok := ctx.Value(cookRunSpanKey{}).(trace.Span); ok {
		if err != nil {
			RecordError(span, err)
		} else {
			RecordSuccess(span)
		}
		span.End()
	}
	var duration time.Duration
	if timer, ok := ctx.Value(cookRunTimerKey{}).(*Timer); ok {
		duration = timer.Duration()
	}
	tel.Metrics.RecordCookRunCompleted(status, duration)
	if err != nil {
		_ = tel.Events.PublishCookRunFailed(cookRunID, err.Error())
	} else {
		_ = tel.Events.PublishCookRunCompleted(cookRunID, status, duration)
	}
}

type jobSpanKey struct{}
type jobTimerKey struct{}

// WithJobContext opens the per-job span and logger one cook job runs
// under. Pair with EndJobContext.
func WithJobContext(ctx context.Context, cookRunID, jobID, target, command string) context.Context {
	tel := FromTelemetryContext(ctx)
	if tel == nil {
		return ctx
	}
	spanCtx, span := tel.Tracer.StartJobSpan(ctx, jobID, target, command)
	spanCtx = tel.Logger.
		WithCookRunID(cookRunID).
		WithJobID(jobID).
		WithTarget(target).
		WithField("command", command).
		WithContext(spanCtx)

	_ = tel.Events.PublishJobStarted(cookRunID, jobID, target, command)

	spanCtx = context.WithValue(spanCtx, jobSpanKey{}, span)
	return context.WithValue(spanCtx, jobTimerKey{}, NewTimer())
}

// EndJobContext closes the job span and records execution metrics.
func EndJobContext(ctx context.Context, cookRunID, jobID, target, command, status string, err error) {
	tel := FromTelemetryContext(ctx)
	if tel == nil {
		return
	}
	if span, ok := ctx.Value(jobSpanKey{}).(trace.Span); ok {
		if err != nil {
			RecordError(span, err)
		} else {
			RecordSuccess(span)
		}
		span.End()
	}
	var duration time.Duration
	if timer, ok := ctx.Value(jobTimerKey{}).(*Timer); ok {
		duration = timer.Duration()
	}
	tel.Metrics.RecordJobExecution(command, status, duration, target)
	if err != nil {
		_ = tel.Events.PublishJobFailed(cookRunID, jobID, target, err.Error())
	} else {
		_ = tel.Events.PublishJobCompleted(cookRunID, jobID, target, duration)
	}
}

// WithProviderContext tags the context's logger with the extern
// provider being driven; no span of its own, providers open those per
// operation via RecordProviderOperation.
func WithProviderContext(ctx context.Context, providerName, providerVersion string) context.Context {
	tel := FromTelemetryContext(ctx)
	if tel == nil {
		return ctx
	}
	return tel.Logger.WithProvider(providerName, providerVersion).WithContext(ctx)
}

// RecordProviderOperation wraps one provider call (Status, Install,
// Instantiate) in a span, a timer, and call/error counters.
func RecordProviderOperation(ctx context.Context, providerName, operation string, fn func() error) error {
	tel := FromTelemetryContext(ctx)
	var span trace.Span
	if tel != nil {
		_, span = tel.Tracer.StartProviderSpan(ctx, providerName, operation)
		defer span.End()
	}

	timer := NewTimer()
	err := fn()
	if tel != nil {
		tel.Metrics.RecordProviderCall(providerName, operation, timer.Duration())
		if err != nil {
			tel.Metrics.RecordProviderError(providerName, operation)
			RecordError(span, err)
		} else {
			RecordSuccess(span)
		}
	}
	return err
}
