package telemetry

import (
	"context"
	"reflect"
	"strings"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestSafeAttributesFiltersSensitiveFields(t *testing.T) {
	fields := map[string]any{
		"text_preview":  "should drop",
		"details":       "drop",
		"filenames":     []string{"invoice.pdf"},
		"base_url":      "http://user:pw@host",
		"api_key":       "sk-123",
		"authorization": "secret",
		"endpoint":      "/api/analyze-file",
		"long_string":   strings.Repeat("x", 600),
		"empty":         "",
		"attachments":   3,
		"elapsed":       1500 * time.Millisecond,
		"mime_types":    []string{"image/png", "application/pdf"},
		"channel":       make(chan int),
	}

	got := map[string]string{}
	var keys []string
	for _, a := range SafeAttributes(fields) {
		got[string(a.Key)] = a.Value.Emit()
		keys = append(keys, string(a.Key))
	}

	want := []string{"guard.attachments", "guard.elapsed_ms", "guard.endpoint", "guard.mime_types"}
	if !reflect.DeepEqual(keys, want) {
		t.Fatalf("expected keys %v, got %v", want, keys)
	}
	if got["guard.elapsed_ms"] != "1500" {
		t.Fatalf("expected duration in ms, got %q", got["guard.elapsed_ms"])
	}
	if got["guard.attachments"] != "3" {
		t.Fatalf("expected attachments=3, got %q", got["guard.attachments"])
	}
}

func TestSafeAttributesCapsLists(t *testing.T) {
	types := make([]string, 40)
	for i := range types {
		types[i] = "image/png"
	}
	attrs := SafeAttributes(map[string]any{"mime_types": types})
	if len(attrs) != 1 || len(attrs[0].Value.AsStringSlice()) != maxListLen {
		t.Fatalf("expected list capped at %d, got %v", maxListLen, attrs)
	}
	if SafeAttributes(nil) != nil {
		t.Fatalf("expected nil for no fields")
	}
}

func TestRecordAnalysisEmitsMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(tracetest.NewInMemoryExporter()))
	p := NewWithProviders(tp, mp)

	p.RecordAnalysis(context.Background(), "remote", "settled", "danger", 2, 12.5)
	p.RecordAnalysis(context.Background(), "remote", "failed", "", 0, 3)

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}

	var total int64
	found := false
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "guard_analyses_total" {
				continue
			}
			found = true
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("unexpected data type %T", m.Data)
			}
			for _, dp := range sum.DataPoints {
				total += dp.Value
				outcome, _ := dp.Attributes.Value("guard.outcome")
				_, hasLevel := dp.Attributes.Value("guard.threat_level")
				if outcome.AsString() == "failed" && hasLevel {
					t.Fatalf("failed analyses must not carry a threat level")
				}
				if outcome.AsString() == "settled" && !hasLevel {
					t.Fatalf("settled analyses must carry a threat level")
				}
			}
		}
	}
	if !found || total != 2 {
		t.Fatalf("expected 2 recorded analyses, found=%v total=%d", found, total)
	}
}

func TestNilAndNoopProvidersAreSafe(t *testing.T) {
	var p *Provider
	p.RecordAnalysis(context.Background(), "remote", "settled", "safe", 0, 1)
	p.Shutdown(context.Background())
	if p.Tracer() == nil || p.Meter() == nil {
		t.Fatalf("nil provider must return usable tracer/meter")
	}

	np, err := NewProvider(context.Background(), Config{Enabled: false}, nil)
	if err != nil {
		t.Fatalf("disabled provider: %v", err)
	}
	if np.Enabled {
		t.Fatalf("expected disabled provider")
	}
	np.RecordAnalysis(context.Background(), "heuristic", "settled", "safe", 1, 1)
}
