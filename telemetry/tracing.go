// Package telemetry provides OpenTelemetry tracing around task dispatch.
package telemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	rerrors "github.com/vinayprograms/taskrunner/errors"
)

// Tracer wraps OpenTelemetry tracing with runner-specific helpers.
type Tracer struct {
	tracer trace.Tracer
}

var (
	globalTracer *Tracer
	tracerMu     sync.RWMutex
)

// SetGlobalTracer sets the global tracer instance.
func SetGlobalTracer(t *Tracer) {
	tracerMu.Lock()
	defer tracerMu.Unlock()
	globalTracer = t
}

// GetTracer returns the global tracer, or a no-op tracer if not set.
func GetTracer() *Tracer {
	tracerMu.RLock()
	defer tracerMu.RUnlock()
	if globalTracer == nil {
		return NewTracerFromProvider(noop.NewTracerProvider(), "")
	}
	return globalTracer
}

// NewTracer creates a tracer from the global provider.
func NewTracer(name string) *Tracer {
	return &Tracer{tracer: otel.Tracer(name)}
}

// NewTracerFromProvider creates a tracer from a specific provider.
func NewTracerFromProvider(tp trace.TracerProvider, name string) *Tracer {
	return &Tracer{tracer: tp.Tracer(name)}
}

// StartSpan starts a new span with the given name.
func (t *Tracer) StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, opts...)
}

// --- Task Spans ---

// TaskSpanOptions identifies the task a span covers.
type TaskSpanOptions struct {
	TaskID   string
	TaskType string
	Label    string
	RunnerID string
	Queue    string
}

// StartTask starts a task.dispatch span.
func (t *Tracer) StartTask(ctx context.Context, opts TaskSpanOptions) (context.Context, trace.Span) {
	ctx, span := t.tracer.Start(ctx, "task.dispatch", trace.WithSpanKind(trace.SpanKindConsumer))

	attrs := []attribute.KeyValue{
		attribute.String("task.id", opts.TaskID),
		attribute.String("task.type", opts.TaskType),
		attribute.String("runner.id", opts.RunnerID),
	}
	if opts.Label != "" {
		attrs = append(attrs, attribute.String("task.label", opts.Label))
	}
	if opts.Queue != "" {
		attrs = append(attrs, attribute.String("task.queue", opts.Queue))
	}
	span.SetAttributes(attrs...)
	return ctx, span
}

// EndTask ends a task span, recording the handler duration and outcome.
func (t *Tracer) EndTask(span trace.Span, duration time.Duration, err error) {
	span.SetAttributes(attribute.Int64("task.duration_ms", duration.Milliseconds()))

	if err != nil {
		if code := rerrors.Code(err); code != "" {
			span.SetAttributes(attribute.String("error.code", string(code)))
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}

	span.End()
}

// --- Label Spans ---

// StartAcquire starts a span covering a label acquisition.
func (t *Tracer) StartAcquire(ctx context.Context, label string) (context.Context, trace.Span) {
	ctx, span := t.tracer.Start(ctx, "label.acquire", trace.WithSpanKind(trace.SpanKindInternal))
	span.SetAttributes(attribute.String("task.label", label))
	return ctx, span
}

// EndAcquire ends a label acquisition span.
func (t *Tracer) EndAcquire(span trace.Span, hit bool, err error) {
	span.SetAttributes(attribute.Bool("label.hit", hit))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
