// Package silero provides a voice activity classifier backed by the Silero
// VAD ONNX model via github.com/streamer45/silero-vad-go. The ONNX runtime
// shared library must be available at load time.
package silero

import (
	"errors"
	"fmt"

	"github.com/streamer45/silero-vad-go/speech"

	"github.com/skald-ai/skald/pkg/provider/vad"
)

// Compile-time interface assertion.
var _ vad.Classifier = (*Classifier)(nil)

const defaultThreshold = 0.5

// Classifier classifies chunks with the Silero VAD model. It accepts chunks
// of any length at or above the model's internal window; capture-sized frames
// (~80 ms) are passed through whole.
type Classifier struct {
	detector  *speech.Detector
	threshold float32
}

// Option is a functional option for configuring a Classifier.
type Option func(*config)

type config struct {
	threshold float32
}

// WithThreshold sets the model's speech probability threshold in (0, 1).
// Defaults to 0.5.
func WithThreshold(threshold float32) Option {
	return func(c *config) { c.threshold = threshold }
}

// New creates a silero Classifier from the ONNX model at modelPath.
// The caller must call Close when the classifier is no longer needed.
func New(modelPath string, sampleRate int, opts ...Option) (*Classifier, error) {
	if modelPath == "" {
		return nil, errors.New("silero: modelPath must not be empty")
	}
	cfg := config{threshold: defaultThreshold}
	for _, o := range opts {
		o(&cfg)
	}

	detector, err := speech.NewDetector(speech.DetectorConfig{
		ModelPath:  modelPath,
		SampleRate: sampleRate,
		Threshold:  cfg.threshold,
	})
	if err != nil {
		return nil, fmt.Errorf("silero: create detector: %w", err)
	}
	return &Classifier{detector: detector, threshold: cfg.threshold}, nil
}

// IsSpeech implements vad.Classifier. The chunk is converted to float32 and
// run through the model; any detected speech segment counts as speech.
func (c *Classifier) IsSpeech(frame []int16) (bool, error) {
	if len(frame) == 0 {
		return false, nil
	}
	samples := make([]float32, len(frame))
	for i, s := range frame {
		samples[i] = float32(s) / 32768
	}

	if err := c.detector.Reset(); err != nil {
		return false, fmt.Errorf("silero: reset detector: %w", err)
	}
	segments, err := c.detector.Detect(samples)
	if err != nil {
		return false, fmt.Errorf("silero: detect: %w", err)
	}
	return len(segments) > 0, nil
}

// WindowSize implements vad.Classifier. Silero handles its own windowing, so
// whole capture frames are accepted.
func (c *Classifier) WindowSize() int { return 0 }

// Close implements vad.Classifier.
func (c *Classifier) Close() error {
	if c.detector == nil {
		return nil
	}
	return c.detector.Destroy()
}
