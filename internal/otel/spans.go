package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Standard attribute keys for daemon spans.
var (
	AttrProjectID  = attribute.Key("maxclaw.project.id")
	AttrSessionID  = attribute.Key("maxclaw.session.id")
	AttrScheduleID = attribute.Key("maxclaw.schedule.id")
	AttrAgentID    = attribute.Key("maxclaw.agent.id")
	AttrTeamTaskID = attribute.Key("maxclaw.team.task.id")
	AttrSkillName  = attribute.Key("maxclaw.skill.name")
	AttrRPCMethod  = attribute.Key("maxclaw.rpc.method")
	AttrSearchRoot = attribute.Key("maxclaw.search.root")
)

// StartSpan is a convenience wrapper that starts an internal span with common attributes.
func StartSpan(ctx context.Context, tracer trace.Tracer, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// StartServerSpan starts a span for an inbound request (the IPC server).
func StartServerSpan(ctx context.Context, tracer trace.Tracer, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindServer),
	)
}

// StartClientSpan starts a span for an outbound call (notifier webhook delivery).
func StartClientSpan(ctx context.Context, tracer trace.Tracer, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}
