// Package piper provides a tts.Engine backed by a Piper HTTP server.
//
// Each sentence is synthesized with one POST / request carrying a JSON body
// {"text": ..., "voice": ...} and answered with a WAV file. The voice is
// selected from a per-language map, falling back to the default language's
// voice when the requested language has none.
package piper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/skald-ai/skald/pkg/provider/tts"
)

// Compile-time interface assertion.
var _ tts.Engine = (*Engine)(nil)

const (
	defaultLanguage        = "en"
	defaultTimeout         = 30 * time.Second
	defaultSentenceSilence = 0.2

	// fallbackSampleRate is only used for empty terminal marker chunks when
	// the server never reported a rate. Piper medium voices run at 22050 Hz.
	fallbackSampleRate = 22050
)

// Option is a functional option for configuring an Engine.
type Option func(*Engine)

// WithVoices sets the language to voice-name map.
func WithVoices(voices map[string]string) Option {
	return func(e *Engine) { e.voices = voices }
}

// WithDefaultLanguage sets the fallback language. Defaults to "en".
func WithDefaultLanguage(lang string) Option {
	return func(e *Engine) { e.defaultLanguage = strings.ToLower(lang) }
}

// WithSentenceSilence sets the trailing silence in seconds appended to each
// non-terminal sentence chunk. Defaults to 0.2 s.
func WithSentenceSilence(seconds float64) Option {
	return func(e *Engine) { e.sentenceSilence = seconds }
}

// WithTimeout sets the per-sentence HTTP timeout. Defaults to 30 s.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) { e.httpClient.Timeout = d }
}

// Engine implements tts.Engine against a Piper HTTP server.
type Engine struct {
	baseURL         string
	voices          map[string]string
	defaultLanguage string
	sentenceSilence float64
	httpClient      *http.Client
}

// New creates an Engine targeting the Piper server at baseURL.
func New(baseURL string, opts ...Option) (*Engine, error) {
	if baseURL == "" {
		return nil, errors.New("piper: baseURL must not be empty")
	}
	e := &Engine{
		baseURL:         strings.TrimRight(baseURL, "/"),
		defaultLanguage: defaultLanguage,
		sentenceSilence: defaultSentenceSilence,
		httpClient:      &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

// resolveVoice returns the voice for language, falling back to the default
// language's voice. An empty result lets the server pick its default voice.
func (e *Engine) resolveVoice(language string) string {
	if v, ok := e.voices[strings.ToLower(language)]; ok {
		return v
	}
	return e.voices[e.defaultLanguage]
}

// synthesizeRequest is the JSON body of POST /.
type synthesizeRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice,omitempty"`
}

// SynthesizeChunks implements tts.Engine.
func (e *Engine) SynthesizeChunks(ctx context.Context, text, language string) (tts.ChunkStream, error) {
	voice := e.resolveVoice(language)
	synth := func(ctx context.Context, sentence string) ([]int16, int, error) {
		return e.synthesizeSentence(ctx, sentence, voice)
	}
	return tts.NewSentenceStream(ctx, tts.SplitSentences(text), synth, e.sentenceSilence, fallbackSampleRate), nil
}

// synthesizeSentence performs one HTTP synthesis round trip.
func (e *Engine) synthesizeSentence(ctx context.Context, sentence, voice string) ([]int16, int, error) {
	body, err := json.Marshal(synthesizeRequest{Text: sentence, Voice: voice})
	if err != nil {
		return nil, 0, fmt.Errorf("piper: marshal synthesis request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/", bytes.NewReader(body))
	if err != nil {
		return nil, 0, fmt.Errorf("piper: create synthesis request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/wav")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("piper: POST /: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, 0, fmt.Errorf("piper: POST / returned status %d", resp.StatusCode)
	}

	wav, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("piper: read WAV response: %w", err)
	}
	samples, rate, err := tts.DecodeWAV(wav)
	if err != nil {
		return nil, 0, fmt.Errorf("piper: %w", err)
	}
	return samples, rate, nil
}
