package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/contexttype/contexttype/internal/config"
)

func TestDisabledProviderIsNoop(t *testing.T) {
	p, err := NewProvider(context.Background(), config.TelemetryConfig{Enabled: false}, "test")
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	if p.Enabled {
		t.Fatalf("expected disabled provider")
	}
	p.RecordEvaluation(context.Background(), Evaluation{Context: "code", Switched: true})
	p.RecordSuggestion(context.Background(), "code", "static", nil, time.Millisecond)
	p.RecordDelivery("stdout", nil)
	p.Shutdown(context.Background())

	var nilProvider *Provider
	nilProvider.RecordEvaluation(context.Background(), Evaluation{})
	nilProvider.Shutdown(context.Background())
	if nilProvider.Tracer() == nil || nilProvider.Meter() == nil {
		t.Fatalf("expected noop tracer and meter from nil provider")
	}
}

func TestUnsupportedProtocol(t *testing.T) {
	_, err := NewProvider(context.Background(), config.TelemetryConfig{Enabled: true, Protocol: "udp", ServiceName: "x"}, "test")
	if err == nil {
		t.Fatalf("expected error for unsupported protocol")
	}
}

func TestRecordsCounters(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	p := newProvider(true, tracenoop.NewTracerProvider().Tracer(""), mp.Meter("test"))

	ctx := context.Background()
	p.RecordEvaluation(ctx, Evaluation{Context: "email", Previous: "code", Decision: "accepted", Method: "rules", Switched: true, Duration: time.Millisecond})
	p.RecordEvaluation(ctx, Evaluation{Context: "email", Previous: "email", Decision: "unchanged", Method: "rules"})
	p.RecordSuggestion(ctx, "email", "static", nil, time.Millisecond)
	p.RecordDelivery("webhook:http://127.0.0.1/hook", errors.New("boom"))

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}

	totals := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				totals[m.Name] += dp.Value
				if m.Name == "contexttype_activation_deliveries_total" {
					if v, _ := dp.Attributes.Value("contexttype.sink"); v.AsString() != "webhook" {
						t.Fatalf("expected sink label without target, got %q", v.AsString())
					}
				}
			}
		}
	}

	want := map[string]int64{
		"contexttype_evaluations_total":           2,
		"contexttype_switches_total":              1,
		"contexttype_suggestions_total":           1,
		"contexttype_activation_deliveries_total": 1,
	}
	for name, n := range want {
		if totals[name] != n {
			t.Fatalf("%s: expected %d, got %d", name, n, totals[name])
		}
	}
}
