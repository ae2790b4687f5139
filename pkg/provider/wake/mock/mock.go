// Package mock provides a scripted test double for the wake package.
package mock

import (
	"sync"

	"github.com/skald-ai/skald/pkg/provider/wake"
)

// Compile-time interface assertion.
var _ wake.Detector = (*Detector)(nil)

// Detector is a scripted wake.Detector. Scores are consumed in order; once
// exhausted, Process reports 0 and no detection.
type Detector struct {
	mu sync.Mutex

	// Scores is the scripted score sequence.
	Scores []float64

	// Threshold is the detection threshold applied to scripted scores.
	Threshold float64

	// Err, if non-nil, is returned by every Process call.
	Err error

	// ProcessCalls counts Process invocations.
	ProcessCalls int

	// ResetCalls counts Reset invocations.
	ResetCalls int

	next int
}

// Process returns the next scripted score.
func (d *Detector) Process(frame []int16) (bool, float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ProcessCalls++
	if d.Err != nil {
		return false, 0, d.Err
	}
	if d.next >= len(d.Scores) {
		return false, 0, nil
	}
	score := d.Scores[d.next]
	d.next++
	return score >= d.Threshold, score, nil
}

// Reset records the call.
func (d *Detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ResetCalls++
}
