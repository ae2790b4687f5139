// Package observe provides application-wide observability primitives:
// OpenTelemetry metrics with a Prometheus exporter bridge and an HTTP
// scrape endpoint.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A package-level
// default [Metrics] instance ([DefaultMetrics]) is provided for convenience;
// tests should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all metrics.
const meterName = "github.com/skald-ai/skald"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// STTDuration tracks speech-to-text transcription latency.
	STTDuration metric.Float64Histogram

	// LLMDuration tracks LLM inference latency.
	LLMDuration metric.Float64Histogram

	// TTSDuration tracks text-to-speech synthesis latency.
	TTSDuration metric.Float64Histogram

	// InteractionDuration tracks end-to-end utterance-to-speech latency.
	InteractionDuration metric.Float64Histogram

	// --- Counters ---

	// Interactions counts completed interactions. Use with attribute:
	//   attribute.String("status", "ok"|"cancelled"|"rejected"|"error")
	Interactions metric.Int64Counter

	// PipelineErrors counts pipeline failures. Use with attribute:
	//   attribute.String("stage", "stt"|"llm"|"tts"|"internal")
	PipelineErrors metric.Int64Counter

	// ProtocolErrors counts rejected client frames. Use with attribute:
	//   attribute.String("code", ...)
	ProtocolErrors metric.Int64Counter

	// STTRejections counts transcripts dropped by the hallucination filter.
	STTRejections metric.Int64Counter

	// BargeIns counts playback interruptions by the user.
	BargeIns metric.Int64Counter

	// AudioMismatchWarnings counts accepted utterances whose declared and
	// actual sample counts differed within tolerance.
	AudioMismatchWarnings metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live client connections.
	ActiveSessions metric.Int64UpDownCounter
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for voice-pipeline latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.STTDuration, err = m.Float64Histogram("skald.stt.duration",
		metric.WithDescription("Latency of speech-to-text transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.LLMDuration, err = m.Float64Histogram("skald.llm.duration",
		metric.WithDescription("Latency of LLM inference."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TTSDuration, err = m.Float64Histogram("skald.tts.duration",
		metric.WithDescription("Latency of text-to-speech synthesis."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.InteractionDuration, err = m.Float64Histogram("skald.interaction.duration",
		metric.WithDescription("End-to-end utterance-to-speech latency."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.Interactions, err = m.Int64Counter("skald.interactions",
		metric.WithDescription("Completed interactions by status."),
	); err != nil {
		return nil, err
	}
	if met.PipelineErrors, err = m.Int64Counter("skald.pipeline.errors",
		metric.WithDescription("Pipeline failures by stage."),
	); err != nil {
		return nil, err
	}
	if met.ProtocolErrors, err = m.Int64Counter("skald.protocol.errors",
		metric.WithDescription("Rejected client frames by code."),
	); err != nil {
		return nil, err
	}
	if met.STTRejections, err = m.Int64Counter("skald.stt.rejections",
		metric.WithDescription("Transcripts dropped by the hallucination filter."),
	); err != nil {
		return nil, err
	}
	if met.BargeIns, err = m.Int64Counter("skald.barge_ins",
		metric.WithDescription("Playback interruptions by the user."),
	); err != nil {
		return nil, err
	}
	if met.AudioMismatchWarnings, err = m.Int64Counter("skald.audio.mismatch_warnings",
		metric.WithDescription("Accepted utterances with a small declared/actual sample count mismatch."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("skald.active_sessions",
		metric.WithDescription("Number of live client connections."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordInteraction records a completed interaction with its status and
// end-to-end latency.
func (m *Metrics) RecordInteraction(ctx context.Context, status string, elapsedS float64) {
	m.Interactions.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
	m.InteractionDuration.Record(ctx, elapsedS)
}

// RecordPipelineError records a pipeline failure by stage.
func (m *Metrics) RecordPipelineError(ctx context.Context, stage string) {
	m.PipelineErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", stage)))
}

// RecordProtocolError records a rejected client frame by error code.
func (m *Metrics) RecordProtocolError(ctx context.Context, code string) {
	m.ProtocolErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("code", code)))
}
