// Package observability wraps a built graph's head step with
// OpenTelemetry spans, metrics, and structured logs, mirroring the
// teacher's ObservedAgent wrapper for its own execution primitive.
package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/flowkit/flowgraph"
)

const scopeName = "github.com/flowkit/flowgraph/observability"

// Instruments holds the OTEL instruments an ObservedStep emits.
type Instruments struct {
	Tracer trace.Tracer
	Logger otellog.Logger

	EventsIn       metric.Int64Counter
	EventsDropped  metric.Int64Counter
	StepDuration   metric.Float64Histogram
	TerminationFolds metric.Int64Counter
}

// NewInstruments builds Instruments from the globally configured OTEL
// providers, whether those were set up by Init or by the caller's own
// OTEL SDK wiring.
func NewInstruments() (*Instruments, error) {
	tracer := otel.Tracer(scopeName)
	meter := otel.Meter(scopeName)
	logger := global.GetLoggerProvider().Logger(scopeName)

	eventsIn, err := meter.Int64Counter("flowgraph.events.in",
		metric.WithDescription("Events submitted to the observed step"),
		metric.WithUnit("{event}"))
	if err != nil {
		return nil, err
	}
	eventsDropped, err := meter.Int64Counter("flowgraph.events.dropped",
		metric.WithDescription("Events dropped by a Choice/join step's user callback"),
		metric.WithUnit("{event}"))
	if err != nil {
		return nil, err
	}
	stepDuration, err := meter.Float64Histogram("flowgraph.step.duration",
		metric.WithDescription("Observed step Do() duration"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}
	terminationFolds, err := meter.Int64Counter("flowgraph.termination.folds",
		metric.WithDescription("Termination sentinel traversals observed"),
		metric.WithUnit("{traversal}"))
	if err != nil {
		return nil, err
	}

	return &Instruments{
		Tracer:           tracer,
		Logger:           logger,
		EventsIn:         eventsIn,
		EventsDropped:    eventsDropped,
		StepDuration:     stepDuration,
		TerminationFolds: terminationFolds,
	}, nil
}

// ObservedStep wraps a graph's head step, emitting a span per event
// traversal (and per termination fold) and recording EventsIn,
// StepDuration, and TerminationFolds. It does not record EventsDropped. It
// implements flowgraph.Step itself, so a Controller can drive it exactly
// as it would the unwrapped head.
type ObservedStep struct {
	inner flowgraph.Step
	inst  *Instruments
}

// Wrap returns an instrumented Step delegating every call to inner.
func Wrap(inner flowgraph.Step, inst *Instruments) *ObservedStep {
	return &ObservedStep{inner: inner, inst: inst}
}

func (o *ObservedStep) Name() string          { return o.inner.Name() }
func (o *ObservedStep) Outlets() []flowgraph.Step { return o.inner.Outlets() }
func (o *ObservedStep) To(outlet flowgraph.Step) flowgraph.Step {
	return o.inner.To(outlet)
}

func (o *ObservedStep) Do(ctx context.Context, ev *flowgraph.Event) (any, error) {
	spanName := "flowgraph.step.do"
	if ev == nil {
		spanName = "flowgraph.step.terminate"
	}
	ctx, span := o.inst.Tracer.Start(ctx, spanName, trace.WithAttributes(
		attribute.String("flowgraph.step.name", o.inner.Name()),
	))
	defer span.End()
	start := time.Now()

	if ev != nil {
		o.inst.EventsIn.Add(ctx, 1, metric.WithAttributes(attribute.String("step", o.inner.Name())))
	}

	result, err := o.inner.Do(ctx, ev)

	durationMs := float64(time.Since(start).Milliseconds())
	o.inst.StepDuration.Record(ctx, durationMs, metric.WithAttributes(attribute.String("step", o.inner.Name())))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else if ev == nil {
		o.inst.TerminationFolds.Add(ctx, 1, metric.WithAttributes(attribute.String("step", o.inner.Name())))
	}

	var rec otellog.Record
	rec.SetSeverity(otellog.SeverityDebug)
	rec.SetBody(otellog.StringValue("step traversal completed"))
	rec.AddAttributes(
		otellog.String("step.name", o.inner.Name()),
		otellog.Float64("duration_ms", durationMs),
	)
	o.inst.Logger.Emit(ctx, rec)

	return result, err
}

var _ flowgraph.Step = (*ObservedStep)(nil)
