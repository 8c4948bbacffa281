package machine

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/amp-labs/tickfsm/topology"
)

// startLifecycleSpan creates a span for Start or Stop. Uses the global
// tracer; a no-op provider makes these spans free.
// The caller is responsible for calling span.End().
//
//nolint:spancheck // Span lifecycle managed by caller (factory pattern)
func startLifecycleSpan(
	ctx context.Context,
	op string,
	machine string,
	state topology.StateID,
) (context.Context, oteltrace.Span) {
	tracer := otel.Tracer("tickfsm")
	ctx, span := tracer.Start(ctx, "machine."+op)
	span.SetAttributes(
		attribute.String("machine", machine),
		attribute.String("state", string(state)),
	)

	return ctx, span
}

// startStepSpan creates a span for one tick.
// The caller is responsible for calling span.End().
//
//nolint:spancheck // Span lifecycle managed by caller (factory pattern)
func startStepSpan(ctx context.Context, machine string, state topology.StateID) (context.Context, oteltrace.Span) {
	tracer := otel.Tracer("tickfsm")
	ctx, span := tracer.Start(ctx, "machine.step")
	span.SetAttributes(
		attribute.String("machine", machine),
		attribute.String("state", string(state)),
	)

	return ctx, span
}

// recordSpanError marks a span failed with the given error.
func recordSpanError(span oteltrace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
