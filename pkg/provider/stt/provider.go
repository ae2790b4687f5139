// Package stt defines the Transcriber interface for Speech-to-Text backends.
//
// Utterances arrive as complete, VAD-segmented PCM buffers, so the interface
// is batch rather than streaming: one call per utterance, one Transcript per
// call. The Transcript carries the confidence signals the hallucination
// filter needs alongside the text.
//
// Implementations must be safe for concurrent use; the server may transcribe
// utterances from several connections at once.
package stt

import "context"

// Transcript is the result of transcribing one utterance.
type Transcript struct {
	// Text is the recognized text, whitespace-trimmed. Empty when the
	// engine heard nothing.
	Text string

	// Language is the detected (or forced) language code, e.g. "en".
	Language string

	// DurationS is the duration of the input audio in seconds.
	DurationS float64

	// TranscriptionTimeS is the wall-clock time the engine spent.
	TranscriptionTimeS float64

	// AvgLogprob is the mean token log-probability. Engines that do not
	// expose it report 0.
	AvgLogprob float64

	// NoSpeechProb is the probability that the audio contains no speech.
	// Engines that do not expose it report 0.
	NoSpeechProb float64
}

// Transcriber is the abstraction over any STT backend.
type Transcriber interface {
	// Transcribe converts one utterance of mono int16 PCM into a
	// Transcript. language forces the recognition language when non-empty;
	// empty lets the engine detect it.
	Transcribe(ctx context.Context, samples []int16, sampleRate int, language string) (*Transcript, error)
}
