// Package telemetry wraps coordinator and adapter lifecycle calls in
// OpenTelemetry spans, in the style of the teacher's operation-tracing
// helper: callers get a span-scoped context and a terminal error recorded
// onto the span, without threading tracer plumbing through every call
// site.
package telemetry

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	instrumentationName = "xedgesim/coordinator"

	AttrNodeID = "xedgesim.node_id"
	AttrStepUs = "xedgesim.step.target_us"
	AttrRunID  = "xedgesim.run_id"
	AttrSeed   = "xedgesim.scenario_seed"
)

// Tracer returns a tracer from the process-wide TracerProvider installed by
// cmd/xedgesim. Callers that never install one get otel's global no-op
// provider, so tracing is always safe to call.
func Tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

// StepSpan starts a span covering one coordinator lockstep iteration.
func StepSpan(ctx context.Context, tracer trace.Tracer, runID string, seed uint64, targetUs int64) (context.Context, trace.Span) {
	return tracer.Start(ctx, "coordinator.step", trace.WithAttributes(
		attribute.String(AttrRunID, runID),
		attribute.Int64(AttrSeed, int64(seed)),
		attribute.Int64(AttrStepUs, targetUs),
	))
}

// AdapterSpan starts a span covering one adapter lifecycle call (connect,
// send_init, send_advance+wait_done, send_shutdown).
func AdapterSpan(ctx context.Context, tracer trace.Tracer, nodeID, op string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "adapter."+op, trace.WithAttributes(
		attribute.String(AttrNodeID, nodeID),
	))
}

// End records err onto span (if non-nil) before ending it.
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, strings.TrimSpace(err.Error()))
	}
	span.End()
}
