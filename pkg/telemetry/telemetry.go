// Package telemetry defines the narrow logging, metrics, and tracing
// capability set used throughout DriftKit. Components depend on these
// interfaces, never on a concrete logging or metrics library, so backends can
// be swapped without touching call sites.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type (
	// Logger records structured log messages. Implementations must be safe for
	// concurrent use; callers pass alternating key/value pairs as variadic
	// arguments (e.g. Info(ctx, "step failed", "stepId", id, "attempt", n)).
	Logger interface {
		Debug(ctx context.Context, msg string, kv ...any)
		Info(ctx context.Context, msg string, kv ...any)
		Warn(ctx context.Context, msg string, kv ...any)
		Error(ctx context.Context, msg string, kv ...any)
	}

	// Metrics records counters, timers, and gauges. Tag arguments are flat
	// key/value string pairs appended after the metric name.
	Metrics interface {
		IncCounter(name string, value float64, tags ...string)
		RecordTimer(name string, d time.Duration, tags ...string)
		RecordGauge(name string, value float64, tags ...string)
	}

	// Tracer creates spans for distributed tracing. Span is a narrow facade
	// over the underlying tracing SDK's span type.
	Tracer interface {
		Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, Span)
	}

	// Span is a single unit of work within a trace.
	Span interface {
		End(opts ...trace.SpanEndOption)
		AddEvent(name string, kv ...any)
		SetStatus(code codes.Code, description string)
		RecordError(err error, opts ...trace.EventOption)
	}
)
