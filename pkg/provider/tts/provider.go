// Package tts defines the chunk-streaming interface for speech synthesis
// backends.
//
// Engines synthesize one sentence at a time so the first audio chunk reaches
// the listener while later sentences are still being rendered. A ChunkStream
// is a lazy pull iterator: each Next call may perform synthesis work.
package tts

import (
	"context"
	"strings"
)

// Chunk is one sentence worth of synthesized audio.
type Chunk struct {
	// Samples is int16 PCM. May be empty on a terminal marker chunk.
	Samples []int16

	// SampleRate is the PCM sample rate in Hz.
	SampleRate int

	// IsLast marks the final chunk of the utterance.
	IsLast bool
}

// ChunkStream yields synthesized chunks in order. Next returns io.EOF after
// the last chunk. Close releases any pending synthesis work; it is safe to
// call Close without draining the stream.
type ChunkStream interface {
	Next() (Chunk, error)
	Close() error
}

// Engine is the abstraction over any speech synthesis backend.
type Engine interface {
	// SynthesizeChunks renders text in the given language as a stream of
	// per-sentence chunks. An empty language selects the engine default.
	SynthesizeChunks(ctx context.Context, text, language string) (ChunkStream, error)
}

// SplitSentences splits text on whitespace that follows sentence-ending
// punctuation, keeping the punctuation with the preceding sentence. Empty
// fragments are dropped.
func SplitSentences(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var (
		sentences []string
		start     int
		prevEnd   bool
	)
	runes := []rune(text)
	for i, r := range runes {
		switch {
		case r == '.' || r == '!' || r == '?':
			prevEnd = true
		case prevEnd && (r == ' ' || r == '\t' || r == '\n' || r == '\r'):
			if s := strings.TrimSpace(string(runes[start:i])); s != "" {
				sentences = append(sentences, s)
			}
			start = i + 1
			prevEnd = false
		case r != ' ' && r != '\t' && r != '\n' && r != '\r':
			prevEnd = false
		}
	}
	if s := strings.TrimSpace(string(runes[start:])); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}
