package audio

import (
	"math"
	"testing"
	"time"
)

const testRate = 16000

func TestTone_LengthAndAmplitude(t *testing.T) {
	t.Parallel()

	samples := Tone(880, 150*time.Millisecond, 0.3, testRate)
	wantLen := int(0.150 * testRate)
	if len(samples) != wantLen {
		t.Fatalf("len = %d, want %d", len(samples), wantLen)
	}
	var peak float64
	for _, s := range samples {
		if a := math.Abs(float64(s)); a > peak {
			peak = a
		}
	}
	if peak > 0.3+1e-6 {
		t.Errorf("peak amplitude %f exceeds volume 0.3", peak)
	}
	if peak < 0.2 {
		t.Errorf("peak amplitude %f unexpectedly low", peak)
	}
}

func TestTone_FadesToSilenceAtEdges(t *testing.T) {
	t.Parallel()

	samples := Tone(440, 100*time.Millisecond, 0.5, testRate)
	if first := math.Abs(float64(samples[0])); first > 1e-6 {
		t.Errorf("first sample %f, want ~0 after fade-in", first)
	}
	if last := math.Abs(float64(samples[len(samples)-1])); last > 0.01 {
		t.Errorf("last sample %f, want ~0 after fade-out", last)
	}
}

func TestEarcon_KnownNames(t *testing.T) {
	t.Parallel()

	durations := map[string]float64{
		"wake":    0.150,
		"heard":   0.100,
		"ready":   0.080 + 0.040 + 0.080,
		"goodbye": 0.200,
		"error":   0.080 + 0.060 + 0.080,
	}
	for name, wantSec := range durations {
		samples, err := Earcon(name, DefaultEarconVolume, testRate)
		if err != nil {
			t.Fatalf("Earcon(%q): %v", name, err)
		}
		want := int(wantSec * testRate)
		if len(samples) != want {
			t.Errorf("Earcon(%q) length = %d, want %d", name, len(samples), want)
		}
	}
}

func TestEarcon_ReadyHasGapBetweenPips(t *testing.T) {
	t.Parallel()

	samples, err := Earcon("ready", DefaultEarconVolume, testRate)
	if err != nil {
		t.Fatal(err)
	}
	// The middle of the 40 ms gap must be silent.
	gapMid := int(0.080*testRate) + int(0.020*testRate)
	if s := samples[gapMid]; s != 0 {
		t.Errorf("gap sample = %f, want 0", s)
	}
}

func TestEarcon_UnknownName(t *testing.T) {
	t.Parallel()

	if _, err := Earcon("chime", DefaultEarconVolume, testRate); err == nil {
		t.Error("expected error for unknown earcon name")
	}
}
