// Package mock provides a scripted test double for the vad package.
package mock

import (
	"sync"

	"github.com/skald-ai/skald/pkg/provider/vad"
)

// Compile-time interface assertion.
var _ vad.Classifier = (*Classifier)(nil)

// Classifier is a scripted vad.Classifier. Results are consumed in order;
// when the script is exhausted, Default is returned.
type Classifier struct {
	mu sync.Mutex

	// Results is the scripted sequence of IsSpeech outcomes.
	Results []bool

	// Default is returned once Results is exhausted.
	Default bool

	// Err, if non-nil, is returned by every IsSpeech call.
	Err error

	// Window is the value returned by WindowSize.
	Window int

	// Calls counts IsSpeech invocations.
	Calls int

	next int
}

// IsSpeech returns the next scripted result.
func (c *Classifier) IsSpeech(frame []int16) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Calls++
	if c.Err != nil {
		return false, c.Err
	}
	if c.next < len(c.Results) {
		r := c.Results[c.next]
		c.next++
		return r, nil
	}
	return c.Default, nil
}

// WindowSize returns Window.
func (c *Classifier) WindowSize() int { return c.Window }

// Close is a no-op.
func (c *Classifier) Close() error { return nil }
