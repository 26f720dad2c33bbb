package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "courseforge"

// StartRunSpan starts a span covering a whole schedule run.
func StartRunSpan(ctx context.Context, runID, strategy string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "schedule.run",
		trace.WithAttributes(
			attribute.String("run.id", runID),
			attribute.String("run.strategy", strategy),
		),
	)
}

// StartTurnSpan starts a span for one agent turn.
func StartTurnSpan(ctx context.Context, agentID string, turn int) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "agent.turn",
		trace.WithAttributes(
			attribute.String("agent.id", agentID),
			attribute.Int("turn.index", turn),
		),
	)
}

// StartToolCallSpan starts a span for a catalog tool call within a turn.
func StartToolCallSpan(ctx context.Context, callID, tool, department string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "toolcall",
		trace.WithAttributes(
			attribute.String("toolcall.id", callID),
			attribute.String("toolcall.tool", tool),
			attribute.String("catalog.department", department),
		),
	)
}
