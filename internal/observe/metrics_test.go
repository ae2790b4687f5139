package observe

import (
	"context"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) (metricdata.Metrics, bool) {
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == name {
				return m, true
			}
		}
	}
	return metricdata.Metrics{}, false
}

func TestNewMetrics_AllInstrumentsCreated(t *testing.T) {
	t.Parallel()

	m, _ := newTestMetrics(t)
	if m.STTDuration == nil || m.LLMDuration == nil || m.TTSDuration == nil ||
		m.InteractionDuration == nil || m.Interactions == nil ||
		m.PipelineErrors == nil || m.ProtocolErrors == nil ||
		m.STTRejections == nil || m.BargeIns == nil ||
		m.AudioMismatchWarnings == nil || m.ActiveSessions == nil {
		t.Fatal("NewMetrics left an instrument nil")
	}
}

func TestRecordInteraction(t *testing.T) {
	t.Parallel()

	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordInteraction(ctx, "ok", 1.2)
	m.RecordInteraction(ctx, "error", 0.4)

	rm := collect(t, reader)

	counter, ok := findMetric(rm, "skald.interactions")
	if !ok {
		t.Fatal("skald.interactions not collected")
	}
	sum := counter.Data.(metricdata.Sum[int64])
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	if total != 2 {
		t.Errorf("interactions total = %d, want 2", total)
	}

	hist, ok := findMetric(rm, "skald.interaction.duration")
	if !ok {
		t.Fatal("skald.interaction.duration not collected")
	}
	h := hist.Data.(metricdata.Histogram[float64])
	if h.DataPoints[0].Count != 2 {
		t.Errorf("duration count = %d, want 2", h.DataPoints[0].Count)
	}
}

func TestRecordPipelineError_StageAttribute(t *testing.T) {
	t.Parallel()

	m, reader := newTestMetrics(t)
	m.RecordPipelineError(context.Background(), "stt")

	rm := collect(t, reader)
	counter, ok := findMetric(rm, "skald.pipeline.errors")
	if !ok {
		t.Fatal("skald.pipeline.errors not collected")
	}
	sum := counter.Data.(metricdata.Sum[int64])
	if len(sum.DataPoints) != 1 {
		t.Fatalf("got %d data points, want 1", len(sum.DataPoints))
	}
	if v, ok := sum.DataPoints[0].Attributes.Value("stage"); !ok || v.AsString() != "stt" {
		t.Errorf("stage attribute = %v, want stt", v)
	}
}

func TestDefaultMetrics_Singleton(t *testing.T) {
	t.Parallel()

	if DefaultMetrics() != DefaultMetrics() {
		t.Error("DefaultMetrics returned different instances")
	}
}
