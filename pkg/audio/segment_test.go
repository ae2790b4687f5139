package audio

import (
	"testing"
	"time"

	vadmock "github.com/skald-ai/skald/pkg/provider/vad/mock"
)

// loudFrame returns a frame whose RMS clears any reasonable energy gate.
func loudFrame(n int) []int16 {
	out := make([]int16, n)
	for i := range out {
		out[i] = 5000
	}
	return out
}

func TestSpeechDetector_EnergyGate(t *testing.T) {
	t.Parallel()

	classifier := &vadmock.Classifier{Default: true}
	d := NewSpeechDetector(classifier, 300)

	if d.IsSpeech(make([]int16, 160)) {
		t.Error("silent frame classified as speech")
	}
	if classifier.Calls != 0 {
		t.Errorf("classifier consulted %d times below the energy gate", classifier.Calls)
	}
	if !d.IsSpeech(loudFrame(160)) {
		t.Error("loud frame not classified as speech")
	}
}

func TestSpeechDetector_SubFrameSplit(t *testing.T) {
	t.Parallel()

	// 480-sample windows over a 1280-sample frame: two full windows.
	classifier := &vadmock.Classifier{Window: 480, Results: []bool{false, true}}
	d := NewSpeechDetector(classifier, 300)

	if !d.IsSpeech(loudFrame(1280)) {
		t.Error("frame with one speech sub-frame not classified as speech")
	}
	if classifier.Calls != 2 {
		t.Errorf("classifier calls = %d, want 2", classifier.Calls)
	}
}

func TestSpeechDetector_AllSubFramesSilent(t *testing.T) {
	t.Parallel()

	classifier := &vadmock.Classifier{Window: 480, Default: false}
	d := NewSpeechDetector(classifier, 300)
	if d.IsSpeech(loudFrame(1280)) {
		t.Error("frame with no speech sub-frames classified as speech")
	}
}

// newTestDetector builds an utterance detector whose clock is driven by the
// returned advance func and whose speech decisions follow the script.
func newTestDetector(t *testing.T, onsetFrames int, silenceTimeout time.Duration, script []bool) (*UtteranceDetector, func(time.Duration)) {
	t.Helper()
	classifier := &vadmock.Classifier{Results: script}
	u := NewUtteranceDetector(NewSpeechDetector(classifier, 300), onsetFrames, silenceTimeout)
	now := time.Unix(1000, 0)
	u.now = func() time.Time { return now }
	return u, func(d time.Duration) { now = now.Add(d) }
}

func TestUtteranceDetector_OnsetRequiresConsecutiveSpeech(t *testing.T) {
	t.Parallel()

	u, _ := newTestDetector(t, 3, time.Second, []bool{true, true, false, true, true, true})
	frame := loudFrame(160)

	// speech, speech, silence resets the run.
	for i := 0; i < 3; i++ {
		if st := u.Process(frame); st != UtteranceWaiting {
			t.Fatalf("frame %d: state = %v, want waiting", i, st)
		}
	}
	// Three consecutive speech frames trigger collection.
	u.Process(frame)
	u.Process(frame)
	if st := u.Process(frame); st != UtteranceCollecting {
		t.Fatalf("state = %v, want collecting", st)
	}
}

func TestUtteranceDetector_PreRollFlushedIntoUtterance(t *testing.T) {
	t.Parallel()

	filled := func(v int16, n int) []int16 {
		out := make([]int16, n)
		for i := range out {
			out[i] = v
		}
		return out
	}

	// All frames clear the energy gate; the classifier script marks the
	// first one non-speech so it lands in the pre-roll only.
	u, _ := newTestDetector(t, 2, time.Second, []bool{false, true, true})
	u.Process(filled(1001, 4))
	u.Process(filled(1002, 4))
	u.Process(filled(1003, 4))

	if u.State() != UtteranceCollecting {
		t.Fatalf("state = %v, want collecting", u.State())
	}
	got := u.Audio()
	var want []int16
	for _, v := range []int16{1001, 1002, 1003} {
		want = append(want, filled(v, 4)...)
	}
	if len(got) != len(want) {
		t.Fatalf("audio length = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestUtteranceDetector_PreRollBounded(t *testing.T) {
	t.Parallel()

	onset := 2
	script := make([]bool, 20)
	script[18] = true
	script[19] = true
	u, _ := newTestDetector(t, onset, time.Second, script)

	for i := 0; i < 20; i++ {
		u.Process(loudFrame(4))
	}
	if u.State() != UtteranceCollecting {
		t.Fatalf("state = %v, want collecting", u.State())
	}
	// Pre-roll is bounded at onset+4 frames of 4 samples each.
	if got, max := len(u.Audio()), (onset+preRollSlack)*4; got > max {
		t.Errorf("utterance after onset has %d samples, want <= %d", got, max)
	}
}

func TestUtteranceDetector_SilenceTimeoutCompletes(t *testing.T) {
	t.Parallel()

	u, advance := newTestDetector(t, 1, 500*time.Millisecond,
		[]bool{true, true, false, false})
	frame := loudFrame(160)

	u.Process(frame) // onset
	u.Process(frame) // speech while collecting
	advance(300 * time.Millisecond)
	if st := u.Process(frame); st != UtteranceCollecting {
		t.Fatalf("state = %v, want collecting before timeout", st)
	}
	advance(300 * time.Millisecond)
	if st := u.Process(frame); st != UtteranceComplete {
		t.Fatalf("state = %v, want complete after timeout", st)
	}
}

func TestUtteranceDetector_CollectingAppendsSilentFrames(t *testing.T) {
	t.Parallel()

	u, _ := newTestDetector(t, 1, time.Hour, []bool{true, false, false})
	u.Process(loudFrame(4))
	u.Process(seq(1, 4))
	u.Process(seq(5, 4))
	if got := len(u.Audio()); got != 12 {
		t.Errorf("audio length = %d, want 12 (silent frames kept)", got)
	}
}

func TestUtteranceDetector_StateNeverRegresses(t *testing.T) {
	t.Parallel()

	u, advance := newTestDetector(t, 1, 100*time.Millisecond,
		[]bool{true, false, true, true})
	frame := loudFrame(160)

	states := []UtteranceState{u.State()}
	u.Process(frame)
	states = append(states, u.State())
	advance(200 * time.Millisecond)
	u.Process(frame)
	states = append(states, u.State())
	// Further frames, including speech, stay in complete.
	u.Process(frame)
	states = append(states, u.State())
	u.Process(frame)
	states = append(states, u.State())

	for i := 1; i < len(states); i++ {
		if states[i] < states[i-1] {
			t.Fatalf("state regressed: %v -> %v", states[i-1], states[i])
		}
	}
	if states[len(states)-1] != UtteranceComplete {
		t.Errorf("final state = %v, want complete", states[len(states)-1])
	}
}

func TestUtteranceDetector_CompleteIgnoresFrames(t *testing.T) {
	t.Parallel()

	u, advance := newTestDetector(t, 1, 100*time.Millisecond, []bool{true, false})
	u.Process(loudFrame(4))
	advance(200 * time.Millisecond)
	u.Process(seq(1, 4))
	audioLen := len(u.Audio())

	u.Process(seq(5, 4))
	if got := len(u.Audio()); got != audioLen {
		t.Errorf("audio grew after completion: %d -> %d", audioLen, got)
	}
}

func TestUtteranceDetector_ResetReturnsToWaiting(t *testing.T) {
	t.Parallel()

	u, advance := newTestDetector(t, 1, 100*time.Millisecond, []bool{true, false})
	u.Process(loudFrame(4))
	advance(200 * time.Millisecond)
	u.Process(loudFrame(4))
	if u.State() != UtteranceComplete {
		t.Fatalf("state = %v, want complete", u.State())
	}

	u.Reset()
	if u.State() != UtteranceWaiting {
		t.Errorf("state after Reset = %v, want waiting", u.State())
	}
	if len(u.Audio()) != 0 {
		t.Errorf("audio after Reset has %d samples", len(u.Audio()))
	}
}

func TestUtteranceDetector_SeedTriggersOnset(t *testing.T) {
	t.Parallel()

	u, _ := newTestDetector(t, 2, time.Second, []bool{true, true})
	u.Seed([][]int16{loudFrame(4), loudFrame(4)})
	if u.State() != UtteranceCollecting {
		t.Errorf("state after Seed = %v, want collecting", u.State())
	}
}
