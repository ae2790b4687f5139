// Package whisperhttp provides an stt.Transcriber backed by a
// faster-whisper HTTP server. It posts raw PCM and receives the full
// transcript record, including the confidence signals whisper.cpp cannot
// provide natively.
//
// Request: POST /transcribe with a raw little-endian int16 PCM body and
// query parameters sample_rate (required) and language (optional).
// Response: JSON with text, language, duration_s, transcription_time_s,
// avg_logprob, and no_speech_prob.
package whisperhttp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/skald-ai/skald/pkg/provider/stt"
	"github.com/skald-ai/skald/pkg/wire"
)

// Compile-time interface assertion.
var _ stt.Transcriber = (*Transcriber)(nil)

const (
	defaultTimeout     = 60 * time.Second
	transcribeEndpoint = "/transcribe"
)

// Option is a functional option for configuring a Transcriber.
type Option func(*Transcriber)

// WithTimeout sets the per-request HTTP timeout. Defaults to 60 s; large
// models on CPU can be slow.
func WithTimeout(d time.Duration) Option {
	return func(t *Transcriber) { t.httpClient.Timeout = d }
}

// Transcriber implements stt.Transcriber against a faster-whisper server.
type Transcriber struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a Transcriber targeting the server at baseURL.
func New(baseURL string, opts ...Option) (*Transcriber, error) {
	if baseURL == "" {
		return nil, errors.New("whisperhttp: baseURL must not be empty")
	}
	t := &Transcriber{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(t)
	}
	return t, nil
}

// transcribeResponse is the JSON body returned by POST /transcribe.
type transcribeResponse struct {
	Text               string  `json:"text"`
	Language           string  `json:"language"`
	DurationS          float64 `json:"duration_s"`
	TranscriptionTimeS float64 `json:"transcription_time_s"`
	AvgLogprob         float64 `json:"avg_logprob"`
	NoSpeechProb       float64 `json:"no_speech_prob"`
}

// Transcribe implements stt.Transcriber.
func (t *Transcriber) Transcribe(ctx context.Context, samples []int16, sampleRate int, language string) (*stt.Transcript, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("whisperhttp: invalid sample rate %d", sampleRate)
	}

	params := url.Values{}
	params.Set("sample_rate", strconv.Itoa(sampleRate))
	if language != "" {
		params.Set("language", language)
	}
	reqURL := t.baseURL + transcribeEndpoint + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(wire.EncodePCM(samples)))
	if err != nil {
		return nil, fmt.Errorf("whisperhttp: create transcribe request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("Accept", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("whisperhttp: POST %s: %w", transcribeEndpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("whisperhttp: POST %s returned status %d", transcribeEndpoint, resp.StatusCode)
	}

	var tr transcribeResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, fmt.Errorf("whisperhttp: decode transcribe response: %w", err)
	}
	return &stt.Transcript{
		Text:               strings.TrimSpace(tr.Text),
		Language:           tr.Language,
		DurationS:          tr.DurationS,
		TranscriptionTimeS: tr.TranscriptionTimeS,
		AvgLogprob:         tr.AvgLogprob,
		NoSpeechProb:       tr.NoSpeechProb,
	}, nil
}
