package telemetry

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

type (
	// OtelLogger delegates to the standard library structured logger. It is
	// kept separate from metrics/tracing so callers can mix a plain logger
	// with OTEL-backed metrics and tracing.
	OtelLogger struct {
		base *slog.Logger
	}

	// OtelMetrics delegates counters, timers, and gauges to an OTEL Meter.
	OtelMetrics struct {
		meter metric.Meter
	}

	// OtelTracer delegates span creation to an OTEL Tracer.
	OtelTracer struct {
		tracer trace.Tracer
	}

	otelSpan struct {
		span trace.Span
	}
)

// NewOtelLogger constructs a Logger backed by slog. Pass nil to use
// slog.Default().
func NewOtelLogger(base *slog.Logger) Logger {
	if base == nil {
		base = slog.Default()
	}
	return OtelLogger{base: base}
}

// NewOtelMetrics constructs a Metrics recorder backed by the global OTEL
// MeterProvider, scoped to the given instrumentation name (typically the
// importing package path).
func NewOtelMetrics(instrumentationName string) Metrics {
	return &OtelMetrics{meter: otel.Meter(instrumentationName)}
}

// NewOtelTracer constructs a Tracer backed by the global OTEL TracerProvider,
// scoped to the given instrumentation name.
func NewOtelTracer(instrumentationName string) Tracer {
	return &OtelTracer{tracer: otel.Tracer(instrumentationName)}
}

func (l OtelLogger) Debug(ctx context.Context, msg string, kv ...any) { l.base.DebugContext(ctx, msg, kv...) }
func (l OtelLogger) Info(ctx context.Context, msg string, kv ...any)  { l.base.InfoContext(ctx, msg, kv...) }
func (l OtelLogger) Warn(ctx context.Context, msg string, kv ...any)  { l.base.WarnContext(ctx, msg, kv...) }
func (l OtelLogger) Error(ctx context.Context, msg string, kv ...any) { l.base.ErrorContext(ctx, msg, kv...) }

func (m *OtelMetrics) IncCounter(name string, value float64, tags ...string) {
	counter, err := m.meter.Float64Counter(name)
	if err != nil {
		return
	}
	counter.Add(context.Background(), value, metric.WithAttributes(tagsToAttrs(tags)...))
}

func (m *OtelMetrics) RecordTimer(name string, d time.Duration, tags ...string) {
	hist, err := m.meter.Float64Histogram(name)
	if err != nil {
		return
	}
	hist.Record(context.Background(), d.Seconds(), metric.WithAttributes(tagsToAttrs(tags)...))
}

func (m *OtelMetrics) RecordGauge(name string, value float64, tags ...string) {
	// OTEL has no synchronous gauge instrument; a histogram is the closest
	// push-based approximation and keeps the recording path synchronous.
	hist, err := m.meter.Float64Histogram(name + "_gauge")
	if err != nil {
		return
	}
	hist.Record(context.Background(), value, metric.WithAttributes(tagsToAttrs(tags)...))
}

func (t *OtelTracer) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, Span) {
	newCtx, span := t.tracer.Start(ctx, name, opts...)
	return newCtx, &otelSpan{span: span}
}

func (s *otelSpan) End(opts ...trace.SpanEndOption) { s.span.End(opts...) }

func (s *otelSpan) AddEvent(name string, kv ...any) {
	s.span.AddEvent(name, trace.WithAttributes(kvToAttrs(kv)...))
}

func (s *otelSpan) SetStatus(code codes.Code, description string) { s.span.SetStatus(code, description) }

func (s *otelSpan) RecordError(err error, opts ...trace.EventOption) { s.span.RecordError(err, opts...) }

func tagsToAttrs(tags []string) []attribute.KeyValue {
	var attrs []attribute.KeyValue
	for i := 0; i < len(tags); i += 2 {
		v := ""
		if i+1 < len(tags) {
			v = tags[i+1]
		}
		attrs = append(attrs, attribute.String(tags[i], v))
	}
	return attrs
}

func kvToAttrs(kv []any) []attribute.KeyValue {
	var attrs []attribute.KeyValue
	for i := 0; i < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		var val any
		if i+1 < len(kv) {
			val = kv[i+1]
		}
		switch v := val.(type) {
		case string:
			attrs = append(attrs, attribute.String(key, v))
		case int:
			attrs = append(attrs, attribute.Int(key, v))
		case int64:
			attrs = append(attrs, attribute.Int64(key, v))
		case float64:
			attrs = append(attrs, attribute.Float64(key, v))
		case bool:
			attrs = append(attrs, attribute.Bool(key, v))
		default:
			attrs = append(attrs, attribute.String(key, ""))
		}
	}
	return attrs
}
