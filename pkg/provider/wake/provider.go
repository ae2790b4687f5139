// Package wake defines the Detector interface for wake-word scoring
// backends.
//
// A Detector consumes the continuous capture frame stream and scores each
// frame for the wake phrase. Detection is score >= threshold; the threshold
// lives in the implementation so callers only see the decision and the raw
// score. Detectors are stateful (they accumulate audio context across
// frames) and must be Reset after a detection to avoid immediate
// re-triggering.
//
// Implementations are not required to be safe for concurrent use; the client
// state machine is the single caller.
package wake

// Detector is the abstraction over any wake-word scoring backend.
type Detector interface {
	// Process scores one capture frame. detected is true when the score
	// meets the configured threshold.
	Process(frame []int16) (detected bool, score float64, err error)

	// Reset clears accumulated audio context.
	Reset()
}
