package audio

import (
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/skald-ai/skald/pkg/provider/vad"
)

// RMS returns the root-mean-square energy of a frame in int16 sample units.
func RMS(frame []int16) float64 {
	if len(frame) == 0 {
		return 0
	}
	var sum float64
	for _, s := range frame {
		f := float64(s)
		sum += f * f
	}
	return math.Sqrt(sum / float64(len(frame)))
}

// SpeechDetector decides whether a capture frame contains speech. Frames
// below the energy threshold are non-speech without consulting the
// classifier; the rest are split into the classifier's window size and count
// as speech when any window does.
type SpeechDetector struct {
	classifier      vad.Classifier
	energyThreshold float64

	warnOnce sync.Once
}

// NewSpeechDetector creates a detector gating the classifier behind an RMS
// energy threshold in int16 sample units.
func NewSpeechDetector(classifier vad.Classifier, energyThreshold float64) *SpeechDetector {
	return &SpeechDetector{classifier: classifier, energyThreshold: energyThreshold}
}

// IsSpeech reports whether the frame contains speech. Classifier errors are
// treated as non-speech and logged once.
func (d *SpeechDetector) IsSpeech(frame []int16) bool {
	if RMS(frame) < d.energyThreshold {
		return false
	}

	window := d.classifier.WindowSize()
	if window <= 0 || window >= len(frame) {
		speech, err := d.classifier.IsSpeech(frame)
		if err != nil {
			d.warnClassifier(err)
			return false
		}
		return speech
	}

	for off := 0; off+window <= len(frame); off += window {
		speech, err := d.classifier.IsSpeech(frame[off : off+window])
		if err != nil {
			d.warnClassifier(err)
			return false
		}
		if speech {
			return true
		}
	}
	return false
}

func (d *SpeechDetector) warnClassifier(err error) {
	d.warnOnce.Do(func() {
		slog.Warn("vad classifier failed, treating frames as silence", "error", err)
	})
}

// UtteranceState tags the segmentation phase.
type UtteranceState int

const (
	// UtteranceWaiting accumulates pre-roll until speech onset.
	UtteranceWaiting UtteranceState = iota
	// UtteranceCollecting appends every frame until trailing silence.
	UtteranceCollecting
	// UtteranceComplete is terminal until Reset.
	UtteranceComplete
)

// String returns the lowercase state name.
func (s UtteranceState) String() string {
	switch s {
	case UtteranceWaiting:
		return "waiting"
	case UtteranceCollecting:
		return "collecting"
	case UtteranceComplete:
		return "complete"
	}
	return "unknown"
}

// preRollSlack is how many frames beyond the onset requirement the pre-roll
// ring retains, so the utterance starts slightly before detected speech.
const preRollSlack = 4

// UtteranceDetector segments a frame stream into one utterance: it waits for
// onsetFrames consecutive speech frames, collects until the silence timeout
// after the last speech frame, then holds the result until Reset.
// Not safe for concurrent use; the state machine owns it.
type UtteranceDetector struct {
	detector       *SpeechDetector
	onsetFrames    int
	silenceTimeout time.Duration

	state       UtteranceState
	preRoll     [][]int16
	collected   [][]int16
	consecutive int
	lastSpeech  time.Time

	now func() time.Time
}

// NewUtteranceDetector creates a detector requiring onsetFrames consecutive
// speech frames to start collecting and silenceTimeout of trailing silence
// to finish.
func NewUtteranceDetector(detector *SpeechDetector, onsetFrames int, silenceTimeout time.Duration) *UtteranceDetector {
	if onsetFrames < 1 {
		onsetFrames = 1
	}
	return &UtteranceDetector{
		detector:       detector,
		onsetFrames:    onsetFrames,
		silenceTimeout: silenceTimeout,
		now:            time.Now,
	}
}

// State returns the current segmentation phase.
func (u *UtteranceDetector) State() UtteranceState { return u.state }

// Process feeds one capture frame and returns the resulting state. Frames
// arriving after completion are ignored.
func (u *UtteranceDetector) Process(frame []int16) UtteranceState {
	switch u.state {
	case UtteranceComplete:
		return u.state

	case UtteranceWaiting:
		u.preRoll = append(u.preRoll, frame)
		if max := u.onsetFrames + preRollSlack; len(u.preRoll) > max {
			u.preRoll = u.preRoll[len(u.preRoll)-max:]
		}
		if u.detector.IsSpeech(frame) {
			u.consecutive++
			if u.consecutive >= u.onsetFrames {
				u.state = UtteranceCollecting
				u.collected = append(u.collected, u.preRoll...)
				u.preRoll = nil
				u.lastSpeech = u.now()
			}
		} else {
			u.consecutive = 0
		}

	case UtteranceCollecting:
		u.collected = append(u.collected, frame)
		if u.detector.IsSpeech(frame) {
			u.lastSpeech = u.now()
		} else if u.now().Sub(u.lastSpeech) > u.silenceTimeout {
			u.state = UtteranceComplete
		}
	}
	return u.state
}

// Seed replays buffered frames through the detector, used to carry barge-in
// and follow-up pre-roll audio across a state change.
func (u *UtteranceDetector) Seed(frames [][]int16) {
	for _, f := range frames {
		u.Process(f)
	}
}

// Audio concatenates all collected frames.
func (u *UtteranceDetector) Audio() []int16 {
	var n int
	for _, f := range u.collected {
		n += len(f)
	}
	out := make([]int16, 0, n)
	for _, f := range u.collected {
		out = append(out, f...)
	}
	return out
}

// Reset discards all audio and returns to the waiting state.
func (u *UtteranceDetector) Reset() {
	u.state = UtteranceWaiting
	u.preRoll = nil
	u.collected = nil
	u.consecutive = 0
	u.lastSpeech = time.Time{}
}
