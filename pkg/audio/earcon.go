package audio

import (
	"fmt"
	"math"
	"time"
)

// fadeDuration is the linear fade applied to both ends of every tone to
// avoid clicks.
const fadeDuration = 20 * time.Millisecond

// DefaultEarconVolume is the amplitude used when no volume is configured.
const DefaultEarconVolume = 0.3

// Tone synthesizes a sine tone as float32 PCM with linear fade-in/out.
// volume is the peak amplitude in [0, 1].
func Tone(freq float64, dur time.Duration, volume float64, sampleRate int) []float32 {
	n := int(dur.Seconds() * float64(sampleRate))
	if n <= 0 {
		return nil
	}
	out := make([]float32, n)
	for i := range out {
		t := float64(i) / float64(sampleRate)
		out[i] = float32(volume * math.Sin(2*math.Pi*freq*t))
	}
	applyFades(out, sampleRate)
	return out
}

// glide synthesizes a tone sweeping linearly from startFreq to endFreq,
// accumulating phase so the sweep stays continuous.
func glide(startFreq, endFreq float64, dur time.Duration, volume float64, sampleRate int) []float32 {
	n := int(dur.Seconds() * float64(sampleRate))
	if n <= 0 {
		return nil
	}
	out := make([]float32, n)
	var phase float64
	for i := range out {
		frac := float64(i) / float64(n)
		freq := startFreq + (endFreq-startFreq)*frac
		phase += 2 * math.Pi * freq / float64(sampleRate)
		out[i] = float32(volume * math.Sin(phase))
	}
	applyFades(out, sampleRate)
	return out
}

// silence returns dur of zero samples.
func silence(dur time.Duration, sampleRate int) []float32 {
	n := int(dur.Seconds() * float64(sampleRate))
	if n <= 0 {
		return nil
	}
	return make([]float32, n)
}

// applyFades ramps the first and last fadeDuration of samples linearly.
func applyFades(samples []float32, sampleRate int) {
	fade := int(fadeDuration.Seconds() * float64(sampleRate))
	if fade*2 > len(samples) {
		fade = len(samples) / 2
	}
	for i := 0; i < fade; i++ {
		gain := float32(i) / float32(fade)
		samples[i] *= gain
		samples[len(samples)-1-i] *= gain
	}
}

// Earcon synthesizes one of the named UI cues at the given volume:
//
//	wake     880 Hz, 150 ms
//	heard    440 Hz, 100 ms
//	ready    660 Hz and 880 Hz pips (80 ms each, 40 ms gap)
//	goodbye  880 Hz → 440 Hz glide, 200 ms
//	error    two 220 Hz bursts (80 ms each, 60 ms gap)
//
// Unknown names return an error.
func Earcon(name string, volume float64, sampleRate int) ([]float32, error) {
	switch name {
	case "wake":
		return Tone(880, 150*time.Millisecond, volume, sampleRate), nil
	case "heard":
		return Tone(440, 100*time.Millisecond, volume, sampleRate), nil
	case "ready":
		var out []float32
		out = append(out, Tone(660, 80*time.Millisecond, volume, sampleRate)...)
		out = append(out, silence(40*time.Millisecond, sampleRate)...)
		out = append(out, Tone(880, 80*time.Millisecond, volume, sampleRate)...)
		return out, nil
	case "goodbye":
		return glide(880, 440, 200*time.Millisecond, volume, sampleRate), nil
	case "error":
		var out []float32
		out = append(out, Tone(220, 80*time.Millisecond, volume, sampleRate)...)
		out = append(out, silence(60*time.Millisecond, sampleRate)...)
		out = append(out, Tone(220, 80*time.Millisecond, volume, sampleRate)...)
		return out, nil
	}
	return nil, fmt.Errorf("audio: unknown earcon %q", name)
}
