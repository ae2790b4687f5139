// Package mock provides a scripted test double for the stt package.
package mock

import (
	"context"
	"sync"

	"github.com/skald-ai/skald/pkg/provider/stt"
)

// Compile-time interface assertion.
var _ stt.Transcriber = (*Transcriber)(nil)

// TranscribeCall records a single invocation of Transcribe.
type TranscribeCall struct {
	// Samples is the PCM passed to Transcribe.
	Samples []int16
	// SampleRate is the sample rate passed to Transcribe.
	SampleRate int
	// Language is the forced language passed to Transcribe.
	Language string
}

// Transcriber is a scripted stt.Transcriber.
type Transcriber struct {
	mu sync.Mutex

	// Result is returned by Transcribe when Err is nil.
	Result *stt.Transcript

	// Err, if non-nil, is returned by every Transcribe call.
	Err error

	// Delay, if non-nil, is waited on before returning; close it to
	// release blocked calls. Useful for cancellation tests.
	Delay chan struct{}

	// Calls records every invocation.
	Calls []TranscribeCall
}

// Transcribe records the call and returns Result, Err.
func (t *Transcriber) Transcribe(ctx context.Context, samples []int16, sampleRate int, language string) (*stt.Transcript, error) {
	t.mu.Lock()
	t.Calls = append(t.Calls, TranscribeCall{Samples: samples, SampleRate: sampleRate, Language: language})
	delay := t.Delay
	t.mu.Unlock()

	if delay != nil {
		select {
		case <-delay:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.Err != nil {
		return nil, t.Err
	}
	if t.Result != nil {
		r := *t.Result
		return &r, nil
	}
	return &stt.Transcript{}, nil
}
