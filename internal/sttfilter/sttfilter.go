// Package sttfilter rejects speech-to-text output that is probably a
// hallucination rather than real speech.
//
// Whisper-family models are known to emit stock phrases ("thank you for
// watching", subtitle credits) on silence or noise. Three checks run in
// order: the model's own no-speech probability, the average token log
// probability, and an exact-match blocklist of the common offenders.
package sttfilter

import (
	"fmt"
	"strings"
)

// Default thresholds, matching the whisper defaults.
const (
	DefaultNoSpeechThreshold = 0.6
	DefaultLogprobThreshold  = -1.0
)

// blocklist holds lowercased phrases that whisper hallucinates on silence.
var blocklist = map[string]bool{
	// English
	"thank you for watching":    true,
	"thanks for watching":       true,
	"subscribe to my channel":   true,
	"please subscribe":          true,
	"like and subscribe":        true,
	"see you in the next video": true,
	"see you next time":         true,
	"bye bye":                   true,
	"thank you":                 true,
	"thanks for listening":      true,
	"the end":                   true,
	"you":                       true,
	"i'm sorry":                 true,
	// German
	"danke fürs zuschauen":                   true,
	"danke für's zuschauen":                  true,
	"vielen dank fürs zuschauen":             true,
	"bis zum nächsten mal":                   true,
	"tschüss":                                true,
	"untertitel von stephanie geiges":        true,
	"untertitel der amara.org-community":     true,
	"untertitel im auftrag des zdf für funk": true,
}

// Filter holds the rejection thresholds.
type Filter struct {
	NoSpeechThreshold float64
	LogprobThreshold  float64
}

// New creates a Filter with the given thresholds.
func New(noSpeechThreshold, logprobThreshold float64) *Filter {
	return &Filter{
		NoSpeechThreshold: noSpeechThreshold,
		LogprobThreshold:  logprobThreshold,
	}
}

// Check reports whether the transcript should be rejected, and why. The
// reason string is wire-safe: it names the failed signal, never the text.
func (f *Filter) Check(text string, noSpeechProb, avgLogprob float64) (rejected bool, reason string) {
	if noSpeechProb >= f.NoSpeechThreshold {
		return true, fmt.Sprintf("no_speech_prob=%.2f", noSpeechProb)
	}
	if avgLogprob < f.LogprobThreshold {
		return true, fmt.Sprintf("avg_logprob=%.2f", avgLogprob)
	}

	normalized := strings.TrimRight(strings.ToLower(strings.TrimSpace(text)), ".!?,")
	if blocklist[normalized] {
		return true, "hallucination_blocklist"
	}
	return false, ""
}
