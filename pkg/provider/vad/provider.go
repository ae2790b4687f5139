// Package vad defines the Classifier interface for frame-level voice
// activity detection backends.
//
// A Classifier answers one question: does this chunk of mono int16 PCM
// contain speech? Segmentation (utterance onset, trailing silence, pre-roll)
// is layered on top by pkg/audio and is backend-independent.
//
// Implementations must be safe for use from a single goroutine; callers that
// share a Classifier across goroutines must serialize access.
package vad

// Classifier is the abstraction over any frame-level VAD backend.
type Classifier interface {
	// IsSpeech reports whether the given mono int16 PCM chunk contains
	// speech. The chunk length requirement depends on WindowSize.
	IsSpeech(frame []int16) (bool, error)

	// WindowSize returns the sub-frame length (in samples) the backend
	// expects, or 0 if the backend accepts chunks of any length. Callers
	// split capture frames into WindowSize pieces before calling IsSpeech.
	WindowSize() int

	// Close releases backend resources. Calling IsSpeech after Close is
	// undefined.
	Close() error
}
