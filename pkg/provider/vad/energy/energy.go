// Package energy provides an RMS-energy voice activity classifier. It needs
// no model files and is the fallback when no silero model is configured.
package energy

import (
	"errors"
	"math"

	"github.com/skald-ai/skald/pkg/provider/vad"
)

// Compile-time interface assertion.
var _ vad.Classifier = (*Classifier)(nil)

const defaultThreshold = 300

// Classifier classifies a sub-frame as speech when its RMS energy meets a
// threshold expressed in int16 sample units.
type Classifier struct {
	threshold  float64
	windowSize int
}

// Option is a functional option for configuring a Classifier.
type Option func(*Classifier)

// WithThreshold sets the RMS speech threshold in int16 sample units.
// Defaults to 300.
func WithThreshold(threshold float64) Option {
	return func(c *Classifier) { c.threshold = threshold }
}

// New creates an energy Classifier operating on sub-frames of
// frameDurationMs milliseconds at the given sample rate.
func New(sampleRate, frameDurationMs int, opts ...Option) (*Classifier, error) {
	if sampleRate <= 0 {
		return nil, errors.New("energy: sampleRate must be positive")
	}
	if frameDurationMs <= 0 {
		return nil, errors.New("energy: frameDurationMs must be positive")
	}
	c := &Classifier{
		threshold:  defaultThreshold,
		windowSize: sampleRate * frameDurationMs / 1000,
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// IsSpeech implements vad.Classifier.
func (c *Classifier) IsSpeech(frame []int16) (bool, error) {
	if len(frame) == 0 {
		return false, nil
	}
	var sum float64
	for _, s := range frame {
		f := float64(s)
		sum += f * f
	}
	return math.Sqrt(sum/float64(len(frame))) >= c.threshold, nil
}

// WindowSize implements vad.Classifier.
func (c *Classifier) WindowSize() int { return c.windowSize }

// Close implements vad.Classifier. It is a no-op.
func (c *Classifier) Close() error { return nil }
