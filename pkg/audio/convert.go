// Package audio provides the edge node's audio primitives: a rolling PCM
// ring buffer, microphone capture and speaker playback (via malgo), earcon
// synthesis, and VAD-driven utterance segmentation.
//
// All PCM in this package is mono. Capture and the wire protocol use int16
// samples; playback uses float32 in [-1, 1].
package audio

// Float32ToInt16 converts float32 samples in [-1, 1] to int16, clipping
// out-of-range values first.
func Float32ToInt16(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		out[i] = int16(s * 32767)
	}
	return out
}

// Int16ToFloat32 converts int16 samples to float32 in [-1, 1].
func Int16ToFloat32(samples []int16) []float32 {
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = float32(s) / 32767
	}
	return out
}
