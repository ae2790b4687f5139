package tts

import (
	"context"
	"errors"
	"io"
	"testing"
)

// scriptedSynth returns canned PCM per sentence.
func scriptedSynth(t *testing.T, rate int, bySentence map[string][]int16) SynthFunc {
	t.Helper()
	return func(_ context.Context, sentence string) ([]int16, int, error) {
		samples, ok := bySentence[sentence]
		if !ok {
			t.Fatalf("unexpected sentence %q", sentence)
		}
		return samples, rate, nil
	}
}

func drain(t *testing.T, s ChunkStream) []Chunk {
	t.Helper()
	var chunks []Chunk
	for {
		c, err := s.Next()
		if errors.Is(err, io.EOF) {
			return chunks
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		chunks = append(chunks, c)
	}
}

func TestSentenceStream_SilenceOnNonTerminalChunks(t *testing.T) {
	t.Parallel()

	synth := scriptedSynth(t, 1000, map[string][]int16{
		"One.": {1, 2},
		"Two.": {3, 4},
	})
	s := NewSentenceStream(context.Background(), []string{"One.", "Two."}, synth, 0.5, 1000)

	chunks := drain(t, s)
	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want 2", len(chunks))
	}
	// 0.5 s at 1000 Hz is 500 silence samples after the first sentence.
	if got := len(chunks[0].Samples); got != 2+500 {
		t.Errorf("first chunk length = %d, want 502", got)
	}
	for _, v := range chunks[0].Samples[2:] {
		if v != 0 {
			t.Fatal("trailing silence contains non-zero samples")
		}
	}
	if chunks[0].IsLast {
		t.Error("first chunk marked last")
	}
	if got := len(chunks[1].Samples); got != 2 {
		t.Errorf("last chunk length = %d, want 2 (no silence)", got)
	}
	if !chunks[1].IsLast {
		t.Error("last chunk not marked last")
	}
}

func TestSentenceStream_EmptyMiddleSentenceSkipped(t *testing.T) {
	t.Parallel()

	synth := scriptedSynth(t, 1000, map[string][]int16{
		"One.":   {1},
		"Hmm.":   {},
		"Three.": {2},
	})
	s := NewSentenceStream(context.Background(), []string{"One.", "Hmm.", "Three."}, synth, 0, 1000)

	chunks := drain(t, s)
	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want 2 (empty middle skipped)", len(chunks))
	}
	if !chunks[1].IsLast {
		t.Error("final chunk not marked last")
	}
}

func TestSentenceStream_EmptyLastSentenceYieldsMarker(t *testing.T) {
	t.Parallel()

	synth := scriptedSynth(t, 1000, map[string][]int16{
		"One.": {1},
		"Two.": {},
	})
	s := NewSentenceStream(context.Background(), []string{"One.", "Two."}, synth, 0, 1000)

	chunks := drain(t, s)
	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want 2", len(chunks))
	}
	last := chunks[1]
	if len(last.Samples) != 0 || !last.IsLast {
		t.Errorf("terminal marker = %+v, want empty IsLast chunk", last)
	}
	if last.SampleRate != 1000 {
		t.Errorf("terminal marker rate = %d, want 1000", last.SampleRate)
	}
}

func TestSentenceStream_NoSentences(t *testing.T) {
	t.Parallel()

	s := NewSentenceStream(context.Background(), nil, scriptedSynth(t, 1000, nil), 0, 1000)
	if _, err := s.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("Next on empty stream = %v, want io.EOF", err)
	}
}

func TestSentenceStream_SynthErrorStopsStream(t *testing.T) {
	t.Parallel()

	wantErr := errors.New("backend down")
	synth := func(context.Context, string) ([]int16, int, error) { return nil, 0, wantErr }
	s := NewSentenceStream(context.Background(), []string{"One."}, synth, 0, 1000)

	if _, err := s.Next(); !errors.Is(err, wantErr) {
		t.Errorf("Next = %v, want %v", err, wantErr)
	}
	if _, err := s.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("Next after error = %v, want io.EOF", err)
	}
}

func TestSentenceStream_CloseStopsIteration(t *testing.T) {
	t.Parallel()

	synth := scriptedSynth(t, 1000, map[string][]int16{"One.": {1}, "Two.": {2}})
	s := NewSentenceStream(context.Background(), []string{"One.", "Two."}, synth, 0, 1000)

	if _, err := s.Next(); err != nil {
		t.Fatalf("Next: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := s.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("Next after Close = %v, want io.EOF", err)
	}
}

func TestSentenceStream_CancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	synth := scriptedSynth(t, 1000, map[string][]int16{"One.": {1}})
	s := NewSentenceStream(ctx, []string{"One."}, synth, 0, 1000)

	if _, err := s.Next(); !errors.Is(err, context.Canceled) {
		t.Errorf("Next = %v, want context.Canceled", err)
	}
}
