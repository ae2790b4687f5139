// Package whisper provides an stt.Transcriber backed by the whisper.cpp CGO
// bindings. The whisper.cpp static library (libwhisper.a) and headers
// (whisper.h) must be available at link time via LIBRARY_PATH and
// C_INCLUDE_PATH environment variables.
//
// The model is loaded once at construction and shared; each Transcribe call
// creates its own whisper context, so concurrent calls do not interfere.
package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strings"
	"time"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/skald-ai/skald/pkg/provider/stt"
)

// Compile-time interface assertion.
var _ stt.Transcriber = (*Transcriber)(nil)

// Transcriber implements stt.Transcriber using the whisper.cpp Go bindings.
type Transcriber struct {
	model whisperlib.Model
}

// New creates a Transcriber that loads the whisper.cpp model from the given
// file path. The caller must call Close when the transcriber is no longer
// needed.
func New(modelPath string) (*Transcriber, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}
	return &Transcriber{model: model}, nil
}

// Close releases the whisper model.
func (t *Transcriber) Close() error {
	if t.model != nil {
		return t.model.Close()
	}
	return nil
}

// Transcribe implements stt.Transcriber. The confidence signals come from
// the per-token probabilities; whisper.cpp does not expose a no-speech
// probability through the bindings, so NoSpeechProb is 1 for empty output
// and 0 otherwise.
func (t *Transcriber) Transcribe(ctx context.Context, samples []int16, sampleRate int, language string) (*stt.Transcript, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("whisper: context already cancelled: %w", err)
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("whisper: invalid sample rate %d", sampleRate)
	}

	pcm := make([]float32, len(samples))
	for i, s := range samples {
		pcm[i] = float32(s) / 32768
	}

	wctx, err := t.model.NewContext()
	if err != nil {
		return nil, fmt.Errorf("whisper: create context: %w", err)
	}
	if language != "" {
		if err := wctx.SetLanguage(language); err != nil {
			slog.Warn("whisper: failed to set language, auto-detecting", "language", language, "error", err)
		}
	}

	start := time.Now()
	if err := wctx.Process(pcm, nil, nil, nil); err != nil {
		return nil, fmt.Errorf("whisper: process audio: %w", err)
	}

	var (
		parts      []string
		logprobSum float64
		tokenCount int
	)
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("whisper: read segment: %w", err)
		}
		if text := strings.TrimSpace(segment.Text); text != "" {
			parts = append(parts, text)
		}
		for _, tok := range segment.Tokens {
			p := float64(tok.P)
			if p <= 0 {
				p = math.SmallestNonzeroFloat64
			}
			logprobSum += math.Log(p)
			tokenCount++
		}
	}

	out := &stt.Transcript{
		Text:               strings.Join(parts, " "),
		Language:           wctx.DetectedLanguage(),
		DurationS:          float64(len(samples)) / float64(sampleRate),
		TranscriptionTimeS: time.Since(start).Seconds(),
	}
	if language != "" {
		out.Language = language
	}
	if tokenCount > 0 {
		out.AvgLogprob = logprobSum / float64(tokenCount)
	}
	if out.Text == "" {
		out.NoSpeechProb = 1
	}
	return out, nil
}
