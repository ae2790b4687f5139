package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/skald-ai/skald/internal/language"
	"github.com/skald-ai/skald/internal/metrics"
	"github.com/skald-ai/skald/internal/prompt"
	"github.com/skald-ai/skald/pkg/wire"
)

// Pipeline error codes sent to the client.
const (
	codeSTTFailed     = "pipeline_stt_failed"
	codeLLMFailed     = "pipeline_llm_failed"
	codeTTSFailed     = "pipeline_tts_failed"
	codeInternalError = "pipeline_internal_error"
)

// apologies is the spoken fallback per language when the pipeline fails.
var apologies = map[string]string{
	"en": "Sorry, something went wrong.",
	"de": "Entschuldigung, da ist etwas schiefgelaufen.",
}

func apologyText(lang string) string {
	if text, ok := apologies[lang]; ok {
		return text
	}
	return apologies["en"]
}

// runPipeline executes one utterance through STT, the LLM, and TTS,
// streaming progress and audio to the client. Cancellation at any point
// ends with tts_done(cancelled=true); failures apologize out loud and end
// with tts_done(cancelled=false).
func (h *Handler) runPipeline(ctx context.Context, t transport, samples []int16, sampleRate int) {
	// A panicking provider must not take the whole process down; the client
	// gets the same apology as any other failure.
	defer func() {
		if r := recover(); r != nil {
			h.fail(ctx, t, wire.StageProtocol, codeInternalError, fmt.Errorf("panic: %v", r))
		}
	}()

	start := h.clock()

	transcript, ok := h.transcribe(ctx, t, samples, sampleRate)
	if !ok {
		return
	}

	promptLang := language.Detect(transcript.Text, transcript.Language)

	reply, ok := h.complete(ctx, t, transcript.Text, promptLang)
	if !ok {
		return
	}

	spoken := prompt.CleanForTTS(reply)
	if spoken != reply {
		h.mlog.Log("llm_response_sanitized", map[string]any{
			"removed_chars": len(reply) - len(spoken),
		})
	}
	if spoken == "" {
		slog.Info("response sanitized to nothing, skipping synthesis")
		h.finish(ctx, t, start, "empty")
		return
	}
	h.sess.AddAssistantMessage(spoken)

	// The voice follows the reply: the model may answer in a different
	// language than the question was asked in.
	ttsLang := language.Detect(spoken, promptLang)

	if !h.speak(ctx, t, spoken, ttsLang) {
		return
	}
	h.finish(ctx, t, start, "ok")
}

// transcribe runs STT and the hallucination filter. ok is false when the
// pipeline should stop, whether by rejection, cancellation, or failure.
func (h *Handler) transcribe(ctx context.Context, t transport, samples []int16, sampleRate int) (text *transcriptResult, ok bool) {
	h.sendStatus(ctx, t, wire.StageSTTStart)

	sttStart := h.clock()
	tr, err := h.prov.STT.Transcribe(ctx, samples, sampleRate, h.cfg.STTLanguage)
	if err != nil {
		h.fail(ctx, t, wire.StageSTT, codeSTTFailed, err)
		return nil, false
	}
	elapsed := h.clock().Sub(sttStart).Seconds()
	h.obs.STTDuration.Record(ctx, elapsed)
	h.mlog.Log("stt_complete", metrics.STTPayload(tr, h.cfg.LogTranscripts))
	h.sendStatus(ctx, t, wire.StageSTTComplete)

	reason := ""
	if tr.Text == "" {
		reason = "empty_transcript"
	} else if rejected, why := h.filt.Check(tr.Text, tr.NoSpeechProb, tr.AvgLogprob); rejected {
		reason = why
	}
	if reason != "" {
		slog.Info("transcript rejected", "reason", reason)
		h.obs.STTRejections.Add(ctx, 1)
		h.mlog.Log("stt_rejected", map[string]any{"reason": reason})
		if err := sendMsg(ctx, t, wire.NewSTTRejected(reason)); err != nil {
			slog.Warn("failed to send stt_rejected", "error", err)
		}
		return nil, false
	}
	return &transcriptResult{Text: tr.Text, Language: tr.Language}, true
}

// transcriptResult is the part of the transcript the rest of the pipeline
// needs.
type transcriptResult struct {
	Text     string
	Language string
}

// complete runs the LLM over the session history plus the new utterance.
// The user turn is committed before the call so it survives a failure; the
// assistant turn is the caller's to store once sanitized.
func (h *Handler) complete(ctx context.Context, t transport, userText, lang string) (reply string, ok bool) {
	h.sendStatus(ctx, t, wire.StageLLMStart)

	history := h.sess.Messages()
	h.sess.AddUserMessage(userText)

	llmStart := h.clock()
	result, err := h.prov.LLM.Chat(ctx, prompt.BuildMessages(
		prompt.SystemPrompt(lang), history, userText))
	if err != nil {
		h.fail(ctx, t, wire.StageLLM, codeLLMFailed, err)
		return "", false
	}
	h.obs.LLMDuration.Record(ctx, h.clock().Sub(llmStart).Seconds())
	h.mlog.Log("llm_complete", metrics.LLMPayload(result, h.cfg.LogLLMText))
	h.sendStatus(ctx, t, wire.StageLLMComplete)

	return result.Text, true
}

// speak synthesizes the response sentence by sentence and streams the
// chunks. It reports false when the pipeline ended early.
func (h *Handler) speak(ctx context.Context, t transport, text, lang string) bool {
	h.sendStatus(ctx, t, wire.StageTTSStart)

	ttsStart := h.clock()
	stream, err := h.prov.TTS.SynthesizeChunks(ctx, text, lang)
	if err != nil {
		h.fail(ctx, t, wire.StageTTS, codeTTSFailed, err)
		return false
	}
	defer stream.Close()

	chunkIndex := 0
	for {
		chunk, err := stream.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			h.fail(ctx, t, wire.StageTTS, codeTTSFailed, err)
			return false
		}
		if ctx.Err() != nil {
			h.sendCancelled(t)
			return false
		}
		// Empty chunks carry no audio; only a final empty one is worth
		// sending, as the is_last marker.
		if len(chunk.Samples) == 0 && !chunk.IsLast {
			continue
		}

		meta := wire.NewTTSAudio(chunk.SampleRate, len(chunk.Samples), chunkIndex, chunk.IsLast)
		if err := sendAudio(ctx, t, meta, chunk.Samples); err != nil {
			if ctx.Err() != nil {
				h.sendCancelled(t)
			} else {
				slog.Warn("failed to stream response chunk", "error", err)
			}
			return false
		}
		chunkIndex++
	}

	h.obs.TTSDuration.Record(ctx, h.clock().Sub(ttsStart).Seconds())
	h.mlog.Log("tts_complete", map[string]any{
		"chunks":    chunkIndex,
		"elapsed_s": h.clock().Sub(ttsStart).Seconds(),
	})
	return true
}

// finish closes a successful (or empty) interaction.
func (h *Handler) finish(ctx context.Context, t transport, start time.Time, status string) {
	if err := sendMsg(ctx, t, wire.NewTTSDone(false)); err != nil {
		slog.Warn("failed to send tts_done", "error", err)
	}
	elapsed := h.clock().Sub(start).Seconds()
	h.obs.RecordInteraction(ctx, status, elapsed)
	h.mlog.Log("interaction_complete", map[string]any{"total_elapsed_s": elapsed})
}

// fail reports a pipeline failure: unless the pipeline was cancelled, it
// sends a safe error message, speaks a localized apology, and terminates
// the stream.
func (h *Handler) fail(ctx context.Context, t transport, stage wire.Stage, code string, err error) {
	if ctx.Err() != nil {
		h.sendCancelled(t)
		return
	}

	slog.Error("pipeline stage failed", "stage", stage, "code", code, "error", err)
	h.obs.RecordPipelineError(ctx, string(stage))
	h.mlog.Log("pipeline_error", map[string]any{"stage": string(stage), "code": code})

	apology := apologyText(h.cfg.DefaultLanguage)
	if serr := sendMsg(ctx, t, wire.NewError(apology, stage, code)); serr != nil {
		slog.Warn("failed to send error message", "error", serr)
		return
	}
	h.speakApology(ctx, t, apology)

	if serr := sendMsg(ctx, t, wire.NewTTSDone(false)); serr != nil {
		slog.Warn("failed to send tts_done", "error", serr)
	}
}

// speakApology synthesizes the apology on a best-effort basis; a TTS outage
// leaves the client with the error message alone.
func (h *Handler) speakApology(ctx context.Context, t transport, apology string) {
	stream, err := h.prov.TTS.SynthesizeChunks(ctx, apology, h.cfg.DefaultLanguage)
	if err != nil {
		slog.Warn("apology synthesis failed", "error", err)
		return
	}
	defer stream.Close()

	chunkIndex := 0
	for {
		chunk, err := stream.Next()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				slog.Warn("apology synthesis failed", "error", err)
			}
			return
		}
		meta := wire.NewTTSAudio(chunk.SampleRate, len(chunk.Samples), chunkIndex, chunk.IsLast)
		if err := sendAudio(ctx, t, meta, chunk.Samples); err != nil {
			return
		}
		chunkIndex++
	}
}

// sendCancelled terminates a cancelled stream. The write uses a fresh
// context: the pipeline context is already dead.
func (h *Handler) sendCancelled(t transport) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sendMsg(ctx, t, wire.NewTTSDone(true)); err != nil {
		slog.Warn("failed to send cancelled tts_done", "error", err)
	}
	h.mlog.Log("pipeline_cancelled", nil)
}

func (h *Handler) sendStatus(ctx context.Context, t transport, stage wire.Stage) {
	if err := sendMsg(ctx, t, wire.NewStatus(stage)); err != nil {
		slog.Warn("failed to send status", "stage", stage, "error", err)
	}
}
