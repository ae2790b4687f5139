package server

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/skald-ai/skald/internal/metrics"
	"github.com/skald-ai/skald/internal/observe"
	"github.com/skald-ai/skald/internal/session"
	"github.com/skald-ai/skald/internal/sttfilter"
	"github.com/skald-ai/skald/pkg/provider/llm"
	"github.com/skald-ai/skald/pkg/provider/stt"
	"github.com/skald-ai/skald/pkg/provider/tts"
	"github.com/skald-ai/skald/pkg/wire"
)

// Protocol error codes sent to the client.
const (
	codeInvalidAudioMeta    = "protocol_invalid_audio_meta"
	codeExpectedAudioBinary = "protocol_expected_audio_binary"
	codeAudioSizeMismatch   = "protocol_audio_size_mismatch"
)

// closeDrainTimeout bounds how long a closing connection waits for its
// in-flight pipeline.
const closeDrainTimeout = 30 * time.Second

// HandlerConfig tunes one connection handler.
type HandlerConfig struct {
	// MismatchRejectRatio rejects utterances whose declared and actual
	// sample counts diverge by more than this fraction. Clamped to [0, 1].
	MismatchRejectRatio float64

	// STTLanguage forces the transcription language. Empty auto-detects.
	STTLanguage string

	// DefaultLanguage is the response language when detection is
	// inconclusive.
	DefaultLanguage string

	// MaxTurns and MaxTokensBudget bound the conversation history.
	MaxTurns        int
	MaxTokensBudget int

	// WarmupEnabled primes the LLM backend on wake.
	WarmupEnabled bool

	// LogTranscripts and LogLLMText opt raw text into the telemetry log.
	LogTranscripts bool
	LogLLMText     bool
}

// Providers bundles the pipeline backends for one handler.
type Providers struct {
	STT stt.Transcriber
	LLM llm.Client
	TTS tts.Engine
}

// Handler serves one client connection: it validates inbound frames, owns
// the conversation session, and runs at most one response pipeline at a
// time. A new utterance or a barge-in cancels the pipeline in flight.
type Handler struct {
	cfg   HandlerConfig
	prov  Providers
	filt  *sttfilter.Filter
	sess  *session.Session
	mlog  *metrics.Logger
	obs   *observe.Metrics
	clock func() time.Time

	mu           sync.Mutex
	cancelActive context.CancelFunc
	activeDone   chan struct{}
}

// NewHandler creates a handler with a fresh conversation session.
func NewHandler(cfg HandlerConfig, prov Providers, filt *sttfilter.Filter, mlog *metrics.Logger, obs *observe.Metrics) *Handler {
	return &Handler{
		cfg:   cfg,
		prov:  prov,
		filt:  filt,
		sess:  session.New(cfg.MaxTurns, cfg.MaxTokensBudget),
		mlog:  mlog,
		obs:   obs,
		clock: time.Now,
	}
}

// Serve reads frames until the connection breaks or ctx is cancelled. On
// exit it cancels any in-flight pipeline, waits briefly for it to drain, and
// flushes buffered telemetry.
func (h *Handler) Serve(ctx context.Context, t transport) error {
	defer h.mlog.Flush()
	defer h.shutdownPipeline()

	for {
		data, binary, err := t.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}

		if binary {
			slog.Warn("dropping binary frame with no preceding utterance_audio meta",
				"bytes", len(data))
			continue
		}

		msg, err := wire.Decode(data)
		if err != nil {
			slog.Warn("dropping undecodable client message", "error", err)
			continue
		}
		if err := h.dispatch(ctx, t, msg); err != nil {
			return err
		}
	}
}

func (h *Handler) dispatch(ctx context.Context, t transport, msg any) error {
	switch v := msg.(type) {
	case *wire.Wake:
		return h.handleWake(ctx, t, v)

	case *wire.UtteranceAudio:
		return h.handleUtterance(ctx, t, v)

	case *wire.BargeIn:
		slog.Info("barge-in received, cancelling response")
		h.obs.BargeIns.Add(ctx, 1)
		h.signalCancel()
		return nil

	case *wire.FollowUpTimeout:
		slog.Debug("follow-up window closed, clearing session")
		h.sess.Clear()
		return sendMsg(ctx, t, wire.NewSessionCleared())

	default:
		slog.Warn("ignoring unexpected client message", "type", fmt.Sprintf("%T", msg))
		return nil
	}
}

func (h *Handler) handleWake(ctx context.Context, t transport, w *wire.Wake) error {
	slog.Info("wake received", "score", w.Score)
	if h.cfg.WarmupEnabled {
		h.prov.LLM.Warmup()
	}
	return sendMsg(ctx, t, wire.NewWarmupAck())
}

// handleUtterance validates the meta frame, reads the paired binary frame,
// and starts the response pipeline, replacing any pipeline in flight.
func (h *Handler) handleUtterance(ctx context.Context, t transport, meta *wire.UtteranceAudio) error {
	if meta.SampleRate <= 0 || meta.Samples < 0 {
		return h.protocolError(ctx, t, codeInvalidAudioMeta,
			fmt.Sprintf("invalid audio meta: sample_rate=%d samples=%d", meta.SampleRate, meta.Samples))
	}

	data, binary, err := t.Read(ctx)
	if err != nil {
		return err
	}
	if !binary {
		if perr := h.protocolError(ctx, t, codeExpectedAudioBinary,
			"expected binary audio frame after utterance_audio"); perr != nil {
			return perr
		}
		// The text frame that arrived instead is still a valid message.
		msg, derr := wire.Decode(data)
		if derr != nil {
			slog.Warn("dropping undecodable client message", "error", derr)
			return nil
		}
		return h.dispatch(ctx, t, msg)
	}

	samples, err := wire.DecodePCM(data)
	if err != nil {
		return h.protocolError(ctx, t, codeInvalidAudioMeta,
			"audio payload is not int16 PCM")
	}

	if reject := h.checkSampleMismatch(ctx, meta.Samples, len(samples)); reject != "" {
		return h.protocolError(ctx, t, codeAudioSizeMismatch, reject)
	}

	h.startPipeline(ctx, t, samples, meta.SampleRate)
	return nil
}

// checkSampleMismatch compares declared and actual sample counts. It returns
// a non-empty rejection message when the divergence exceeds the configured
// ratio; small mismatches are accepted with a warning metric.
func (h *Handler) checkSampleMismatch(ctx context.Context, declared, actual int) string {
	if declared == actual {
		return ""
	}
	larger := max(declared, actual)
	if larger == 0 {
		return ""
	}
	diff := declared - actual
	if diff < 0 {
		diff = -diff
	}
	ratio := float64(diff) / float64(larger)

	limit := h.cfg.MismatchRejectRatio
	if limit < 0 {
		limit = 0
	} else if limit > 1 {
		limit = 1
	}

	if ratio > limit {
		return fmt.Sprintf("audio size mismatch: declared %d samples, received %d", declared, actual)
	}
	slog.Warn("accepting utterance with small sample count mismatch",
		"declared", declared, "actual", actual, "ratio", ratio)
	h.obs.AudioMismatchWarnings.Add(ctx, 1)
	return ""
}

func (h *Handler) protocolError(ctx context.Context, t transport, code, message string) error {
	slog.Warn("protocol error", "code", code, "detail", message)
	h.obs.RecordProtocolError(ctx, code)
	h.mlog.Log("protocol_error", map[string]any{"code": code})
	return sendMsg(ctx, t, wire.NewError(message, wire.StageProtocol, code))
}

// startPipeline cancels and awaits the active pipeline, then launches a new
// one for the given utterance.
func (h *Handler) startPipeline(ctx context.Context, t transport, samples []int16, sampleRate int) {
	h.awaitCancel()

	pctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	h.mu.Lock()
	h.cancelActive = cancel
	h.activeDone = done
	h.mu.Unlock()

	go func() {
		defer close(done)
		defer cancel()
		h.runPipeline(pctx, t, samples, sampleRate)
	}()
}

// signalCancel cancels the active pipeline without waiting for it.
func (h *Handler) signalCancel() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancelActive != nil {
		h.cancelActive()
	}
}

// awaitCancel cancels the active pipeline and blocks until it drains.
func (h *Handler) awaitCancel() {
	h.mu.Lock()
	cancel, done := h.cancelActive, h.activeDone
	h.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	if done != nil {
		<-done
	}
}

// shutdownPipeline cancels the active pipeline and waits up to
// closeDrainTimeout on connection close.
func (h *Handler) shutdownPipeline() {
	h.mu.Lock()
	cancel, done := h.cancelActive, h.activeDone
	h.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	if done == nil {
		return
	}
	select {
	case <-done:
	case <-time.After(closeDrainTimeout):
		slog.Warn("pipeline did not drain before connection close")
	}
}
