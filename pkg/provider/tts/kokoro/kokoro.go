// Package kokoro provides a tts.Engine backed by a Kokoro FastAPI server
// speaking the OpenAI audio dialect (POST /v1/audio/speech, WAV response).
//
// Kokoro covers English and a handful of other languages but not German.
// Requests for an unsupported language delegate to a chained fallback engine
// when one is configured; without a fallback the engine deterministically
// reroutes to a supported language rather than failing the utterance.
package kokoro

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
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
	defaultSpeed           = 1.0

	speechEndpoint = "/v1/audio/speech"

	// fallbackSampleRate covers empty terminal marker chunks. Kokoro always
	// renders at 24 kHz.
	fallbackSampleRate = 24000
)

// langCodes maps language tags to Kokoro pipeline codes. Languages absent
// here cannot be rendered by Kokoro at all.
var langCodes = map[string]string{
	"en": "a", "en-us": "a", "en-gb": "b",
	"fr": "f", "es": "e", "it": "i",
	"hi": "h", "ja": "j", "zh": "z", "pt": "p",
}

// unsupportedLangs are languages the rest of the system speaks but Kokoro
// does not.
var unsupportedLangs = map[string]bool{"de": true}

// Option is a functional option for configuring an Engine.
type Option func(*Engine)

// WithVoices sets the language to Kokoro voice-name map.
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

// WithSpeed sets the synthesis speed multiplier. Defaults to 1.0.
func WithSpeed(speed float64) Option {
	return func(e *Engine) { e.speed = speed }
}

// WithFallback chains another engine for languages Kokoro cannot render.
func WithFallback(engine tts.Engine) Option {
	return func(e *Engine) { e.fallback = engine }
}

// WithTimeout sets the per-sentence HTTP timeout. Defaults to 30 s.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) { e.httpClient.Timeout = d }
}

// Engine implements tts.Engine against a Kokoro server.
type Engine struct {
	baseURL         string
	voices          map[string]string
	defaultLanguage string
	sentenceSilence float64
	speed           float64
	fallback        tts.Engine
	httpClient      *http.Client
}

// New creates an Engine targeting the Kokoro server at baseURL.
func New(baseURL string, opts ...Option) (*Engine, error) {
	if baseURL == "" {
		return nil, errors.New("kokoro: baseURL must not be empty")
	}
	e := &Engine{
		baseURL:         strings.TrimRight(baseURL, "/"),
		defaultLanguage: defaultLanguage,
		sentenceSilence: defaultSentenceSilence,
		speed:           defaultSpeed,
		httpClient:      &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

// supportedLanguages returns the configured languages Kokoro can actually
// render, sorted for deterministic rerouting.
func (e *Engine) supportedLanguages() []string {
	var langs []string
	for lang := range e.voices {
		if _, ok := langCodes[lang]; ok && !unsupportedLangs[lang] {
			langs = append(langs, lang)
		}
	}
	sort.Strings(langs)
	return langs
}

// resolveVoice returns the voice for language, falling back to the default
// language's voice and then any configured voice.
func (e *Engine) resolveVoice(language string) string {
	if v, ok := e.voices[language]; ok {
		return v
	}
	if v, ok := e.voices[e.defaultLanguage]; ok {
		return v
	}
	for _, lang := range e.supportedLanguages() {
		return e.voices[lang]
	}
	return ""
}

// SynthesizeChunks implements tts.Engine.
func (e *Engine) SynthesizeChunks(ctx context.Context, text, language string) (tts.ChunkStream, error) {
	lang := strings.ToLower(language)
	if lang == "" {
		lang = e.defaultLanguage
	}

	if unsupportedLangs[lang] {
		if e.fallback != nil {
			return e.fallback.SynthesizeChunks(ctx, text, lang)
		}
		// Reroute to a supported language directly. Going through the
		// default language instead would loop forever when the default is
		// itself unsupported.
		supported := e.supportedLanguages()
		if len(supported) == 0 {
			return nil, fmt.Errorf("kokoro: language %q not supported and no fallback engine configured", lang)
		}
		slog.Warn("language not supported by kokoro, rerouting",
			"language", lang, "substitute", supported[0])
		lang = supported[0]
	}

	voice := e.resolveVoice(lang)
	synth := func(ctx context.Context, sentence string) ([]int16, int, error) {
		return e.synthesizeSentence(ctx, sentence, voice)
	}
	return tts.NewSentenceStream(ctx, tts.SplitSentences(text), synth, e.sentenceSilence, fallbackSampleRate), nil
}

// speechRequest is the JSON body of POST /v1/audio/speech.
type speechRequest struct {
	Model          string  `json:"model"`
	Input          string  `json:"input"`
	Voice          string  `json:"voice"`
	Speed          float64 `json:"speed"`
	ResponseFormat string  `json:"response_format"`
}

// synthesizeSentence performs one HTTP synthesis round trip.
func (e *Engine) synthesizeSentence(ctx context.Context, sentence, voice string) ([]int16, int, error) {
	body, err := json.Marshal(speechRequest{
		Model:          "kokoro",
		Input:          sentence,
		Voice:          voice,
		Speed:          e.speed,
		ResponseFormat: "wav",
	})
	if err != nil {
		return nil, 0, fmt.Errorf("kokoro: marshal speech request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+speechEndpoint, bytes.NewReader(body))
	if err != nil {
		return nil, 0, fmt.Errorf("kokoro: create speech request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/wav")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("kokoro: POST %s: %w", speechEndpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, 0, fmt.Errorf("kokoro: POST %s returned status %d", speechEndpoint, resp.StatusCode)
	}

	wav, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("kokoro: read WAV response: %w", err)
	}
	samples, rate, err := tts.DecodeWAV(wav)
	if err != nil {
		return nil, 0, fmt.Errorf("kokoro: %w", err)
	}
	return samples, rate, nil
}
