package telemetry

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/contexttype/contexttype/internal/config"
	"github.com/contexttype/contexttype/internal/redact"
)

const instrumentationName = "contexttype"

// Provider wires tracer/meter providers and the instruments the service
// records. A disabled Provider is a no-op.
type Provider struct {
	Enabled bool
	tracer  trace.Tracer
	meter   metric.Meter

	evaluations        metric.Int64Counter
	switches           metric.Int64Counter
	evaluationDuration metric.Float64Histogram
	suggestions        metric.Int64Counter
	suggestionDuration metric.Float64Histogram
	deliveries         metric.Int64Counter

	shutdownTraceProvider func(context.Context) error
	shutdownMeterProvider func(context.Context) error
}

// NewProvider configures OTLP exporters for cfg. When telemetry is disabled it
// returns no-op instruments.
func NewProvider(ctx context.Context, cfg config.TelemetryConfig, version string) (*Provider, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if !cfg.Enabled {
		return newProvider(false, tracenoop.NewTracerProvider().Tracer(""), noop.NewMeterProvider().Meter("")), nil
	}

	protocol := strings.ToLower(strings.TrimSpace(cfg.Protocol))
	redact.Logf("telemetry enabled (OpenTelemetry OTLP %s) endpoint=%s", protocol, cfg.Endpoint)

	res, err := resource.New(ctx,
		resource.WithFromEnv(),
		resource.WithTelemetrySDK(),
		resource.WithAttributes(
			attribute.String("service.name", cfg.ServiceName),
			attribute.String("service.version", version),
		),
	)
	if err != nil {
		return nil, err
	}

	var (
		traceExp  sdktrace.SpanExporter
		metricExp sdkmetric.Exporter
	)
	switch protocol {
	case "", "grpc":
		if traceExp, err = otlptracegrpc.New(ctx, otlptracegrpc.WithEndpoint(cfg.Endpoint), otlptracegrpc.WithInsecure()); err != nil {
			return nil, err
		}
		if metricExp, err = otlpmetricgrpc.New(ctx, otlpmetricgrpc.WithEndpoint(cfg.Endpoint), otlpmetricgrpc.WithInsecure()); err != nil {
			return nil, err
		}
	case "http":
		if traceExp, err = otlptracehttp.New(ctx, otlptracehttp.WithEndpoint(cfg.Endpoint), otlptracehttp.WithInsecure()); err != nil {
			return nil, err
		}
		if metricExp, err = otlpmetrichttp.New(ctx, otlpmetrichttp.WithEndpoint(cfg.Endpoint), otlpmetrichttp.WithInsecure()); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported telemetry protocol %q", cfg.Protocol)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithBatcher(traceExp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp)),
	)
	otel.SetMeterProvider(mp)

	p := newProvider(true, tp.Tracer(instrumentationName), mp.Meter(instrumentationName))
	p.shutdownTraceProvider = tp.Shutdown
	p.shutdownMeterProvider = mp.Shutdown
	return p, nil
}

func newProvider(enabled bool, tracer trace.Tracer, meter metric.Meter) *Provider {
	p := &Provider{Enabled: enabled, tracer: tracer, meter: meter}
	// Instrument errors leave a nil instrument; record helpers tolerate that.
	p.evaluations, _ = meter.Int64Counter("contexttype_evaluations_total")
	p.switches, _ = meter.Int64Counter("contexttype_switches_total")
	p.evaluationDuration, _ = meter.Float64Histogram("contexttype_evaluation_duration_ms")
	p.suggestions, _ = meter.Int64Counter("contexttype_suggestions_total")
	p.suggestionDuration, _ = meter.Float64Histogram("contexttype_suggestion_duration_ms")
	p.deliveries, _ = meter.Int64Counter("contexttype_activation_deliveries_total")
	return p
}

func (p *Provider) Tracer() trace.Tracer {
	if p == nil {
		return tracenoop.NewTracerProvider().Tracer("")
	}
	return p.tracer
}

func (p *Provider) Meter() metric.Meter {
	if p == nil {
		return noop.NewMeterProvider().Meter("")
	}
	return p.meter
}

// Shutdown flushes providers.
func (p *Provider) Shutdown(ctx context.Context) {
	if p == nil {
		return
	}
	if p.shutdownTraceProvider != nil {
		if err := p.shutdownTraceProvider(ctx); err != nil {
			redact.Logf("telemetry: trace shutdown: %v", err)
		}
	}
	if p.shutdownMeterProvider != nil {
		if err := p.shutdownMeterProvider(ctx); err != nil {
			redact.Logf("telemetry: metric shutdown: %v", err)
		}
	}
}

// Evaluation describes one controller evaluation for metrics.
type Evaluation struct {
	Context  string
	Previous string
	Decision string
	Method   string
	Switched bool
	Duration time.Duration
}

// RecordEvaluation counts an evaluation and, when it switched, the transition.
func (p *Provider) RecordEvaluation(ctx context.Context, ev Evaluation) {
	if p == nil || p.evaluations == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("contexttype.context", ev.Context),
		attribute.String("contexttype.decision", ev.Decision),
		attribute.String("contexttype.method", ev.Method),
	)
	p.evaluations.Add(ctx, 1, attrs)
	if p.evaluationDuration != nil {
		p.evaluationDuration.Record(ctx, durationMillis(ev.Duration), attrs)
	}
	if ev.Switched && p.switches != nil {
		p.switches.Add(ctx, 1, metric.WithAttributes(
			attribute.String("contexttype.from", ev.Previous),
			attribute.String("contexttype.to", ev.Context),
		))
	}
}

// RecordSuggestion counts a suggestion request by answering source.
func (p *Provider) RecordSuggestion(ctx context.Context, contextName, source string, err error, d time.Duration) {
	if p == nil || p.suggestions == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	attrs := metric.WithAttributes(
		attribute.String("contexttype.context", contextName),
		attribute.String("contexttype.source", source),
		attribute.String("contexttype.outcome", outcome),
	)
	p.suggestions.Add(ctx, 1, attrs)
	if p.suggestionDuration != nil {
		p.suggestionDuration.Record(ctx, durationMillis(d), attrs)
	}
}

// RecordDelivery counts an activation sink delivery.
func (p *Provider) RecordDelivery(sink string, err error) {
	if p == nil || p.deliveries == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	p.deliveries.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("contexttype.sink", sinkKind(sink)),
		attribute.String("contexttype.outcome", outcome),
	))
}

// sinkKind drops the target from a sink name so URLs and paths never become
// metric labels.
func sinkKind(name string) string {
	if i := strings.IndexByte(name, ':'); i >= 0 {
		return name[:i]
	}
	return name
}

func durationMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
