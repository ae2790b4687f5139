package client

import (
	"sync"
	"testing"
	"time"
)

// fakeRawPlayer records Play calls and completes each chunk instantly.
type fakeRawPlayer struct {
	mu      sync.Mutex
	played  []int
	rates   []int
	stopped int
}

func (f *fakeRawPlayer) Play(samples []float32, sampleRate int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.played = append(f.played, len(samples))
	f.rates = append(f.rates, sampleRate)
	return nil
}

func (f *fakeRawPlayer) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped++
}

func (f *fakeRawPlayer) IsPlaying() bool { return false }

func (f *fakeRawPlayer) WaitUntilDone(time.Duration) bool { return true }

func (f *fakeRawPlayer) playCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.played)
}

func waitNotPlaying(t *testing.T, p *chunkPlayer) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if !p.IsPlaying() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("chunk player still playing")
}

func TestChunkPlayer_PlaysChunksInOrder(t *testing.T) {
	t.Parallel()

	raw := &fakeRawPlayer{}
	p := newChunkPlayer(raw)

	p.StartStream()
	p.Enqueue(make([]int16, 100), 22050)
	p.Enqueue(make([]int16, 200), 22050)
	p.FinishStream()
	waitNotPlaying(t, p)

	raw.mu.Lock()
	defer raw.mu.Unlock()
	if len(raw.played) != 2 || raw.played[0] != 100 || raw.played[1] != 200 {
		t.Errorf("played chunk sizes = %v, want [100 200]", raw.played)
	}
	if raw.rates[0] != 22050 {
		t.Errorf("sample rate = %d, want 22050", raw.rates[0])
	}
}

func TestChunkPlayer_SkipsEmptyChunks(t *testing.T) {
	t.Parallel()

	raw := &fakeRawPlayer{}
	p := newChunkPlayer(raw)

	p.StartStream()
	p.Enqueue(nil, 22050)
	p.Enqueue(make([]int16, 50), 22050)
	p.FinishStream()
	waitNotPlaying(t, p)

	if got := raw.playCount(); got != 1 {
		t.Errorf("play calls = %d, want 1 (empty chunk skipped)", got)
	}
}

func TestChunkPlayer_CancelStopsAndDrains(t *testing.T) {
	t.Parallel()

	raw := &fakeRawPlayer{}
	p := newChunkPlayer(raw)

	p.StartStream()
	p.Cancel()
	waitNotPlaying(t, p)

	raw.mu.Lock()
	stopped := raw.stopped
	raw.mu.Unlock()
	if stopped == 0 {
		t.Error("Cancel did not stop the underlying player")
	}

	// Chunks arriving after cancel are dropped.
	p.Enqueue(make([]int16, 100), 22050)
	if got := raw.playCount(); got != 0 {
		t.Errorf("play calls after cancel = %d, want 0", got)
	}
}

func TestChunkPlayer_StartStreamClearsCancel(t *testing.T) {
	t.Parallel()

	raw := &fakeRawPlayer{}
	p := newChunkPlayer(raw)

	p.StartStream()
	p.Cancel()
	waitNotPlaying(t, p)

	p.StartStream()
	p.Enqueue(make([]int16, 100), 24000)
	p.FinishStream()
	waitNotPlaying(t, p)

	if got := raw.playCount(); got != 1 {
		t.Errorf("play calls = %d, want 1 after restart", got)
	}
}

func TestChunkPlayer_RestartJoinsPreviousStream(t *testing.T) {
	t.Parallel()

	raw := &fakeRawPlayer{}
	p := newChunkPlayer(raw)

	// Restart immediately, without finishing the first stream. The old
	// goroutine must be joined before the new one starts, so its exit
	// cannot flip the new stream's playing flag back to false.
	p.StartStream()
	p.StartStream()

	if !p.IsPlaying() {
		t.Fatal("not playing right after restart")
	}
	time.Sleep(20 * time.Millisecond)
	if !p.IsPlaying() {
		t.Error("old stream's exit clobbered the new stream's playing flag")
	}

	p.Enqueue(make([]int16, 100), 22050)
	p.FinishStream()
	waitNotPlaying(t, p)

	if got := raw.playCount(); got != 1 {
		t.Errorf("play calls = %d, want 1", got)
	}
}

func TestChunkPlayer_IdleTimeoutExits(t *testing.T) {
	t.Parallel()

	raw := &fakeRawPlayer{}
	p := newChunkPlayer(raw)
	p.idleTimeout = 30 * time.Millisecond

	p.StartStream()
	// No chunks, no sentinel: the loop must give up on its own.
	waitNotPlaying(t, p)
}

func TestChunkPlayer_QueueOverflowDropsChunk(t *testing.T) {
	t.Parallel()

	raw := &fakeRawPlayer{}
	p := newChunkPlayer(raw)

	// No StartStream: nothing consumes the queue.
	for i := 0; i < chunkQueueSize+5; i++ {
		p.Enqueue(make([]int16, 10), 22050)
	}
	if len(p.queue) != chunkQueueSize {
		t.Errorf("queue length = %d, want capped at %d", len(p.queue), chunkQueueSize)
	}
}

func TestChunkPlayer_Int16Conversion(t *testing.T) {
	t.Parallel()

	raw := &fakeRawPlayer{}
	p := newChunkPlayer(raw)

	p.Enqueue([]int16{32767, -32767, 0}, 22050)
	chunk := <-p.queue
	if len(chunk.samples) != 3 {
		t.Fatalf("converted %d samples, want 3", len(chunk.samples))
	}
	if chunk.samples[0] < 0.99 || chunk.samples[1] > -0.99 || chunk.samples[2] != 0 {
		t.Errorf("conversion off: %v", chunk.samples)
	}
}
