package metrics

import (
	"github.com/skald-ai/skald/pkg/provider/llm"
	"github.com/skald-ai/skald/pkg/provider/stt"
)

// STTPayload builds the stt_complete event fields. The transcript itself is
// included only when includeText is set; the character count always is.
func STTPayload(t *stt.Transcript, includeText bool) map[string]any {
	payload := map[string]any{
		"language":             t.Language,
		"duration_s":           t.DurationS,
		"transcription_time_s": t.TranscriptionTimeS,
		"avg_logprob":          t.AvgLogprob,
		"no_speech_prob":       t.NoSpeechProb,
		"text_chars":           len(t.Text),
	}
	if includeText {
		payload["text"] = t.Text
	}
	return payload
}

// LLMPayload builds the llm_complete event fields. The response text is
// included only when includeText is set.
func LLMPayload(r *llm.Result, includeText bool) map[string]any {
	payload := map[string]any{
		"model":      r.Model,
		"elapsed_s":  r.ElapsedS,
		"ttft_s":     r.TTFTS,
		"text_chars": len(r.Text),
	}
	if includeText {
		payload["text"] = r.Text
	}
	return payload
}
