package client

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/skald-ai/skald/pkg/audio"
)

const (
	chunkQueueSize       = 100
	chunkIdleTimeout     = 10 * time.Second
	chunkPlaybackTimeout = 30 * time.Second
)

// rawPlayer is the blocking audio sink behind the chunk player.
// *audio.Player satisfies it.
type rawPlayer interface {
	Play(samples []float32, sampleRate int) error
	Stop()
	IsPlaying() bool
	WaitUntilDone(timeout time.Duration) bool
}

// playChunk is one queued response chunk. A nil *playChunk in the queue is
// the end-of-stream sentinel.
type playChunk struct {
	samples    []float32
	sampleRate int
}

// chunkPlayer plays a streamed TTS response chunk by chunk, in order, on a
// dedicated goroutine. Chunks arrive as int16 PCM and are converted before
// queueing. Cancel cuts the current chunk and drains the rest.
type chunkPlayer struct {
	player rawPlayer

	mu        sync.Mutex
	queue     chan *playChunk
	loopDone  chan struct{}
	cancelled atomic.Bool
	playing   atomic.Bool

	idleTimeout     time.Duration
	playbackTimeout time.Duration
}

func newChunkPlayer(player rawPlayer) *chunkPlayer {
	return &chunkPlayer{
		player:          player,
		queue:           make(chan *playChunk, chunkQueueSize),
		idleTimeout:     chunkIdleTimeout,
		playbackTimeout: chunkPlaybackTimeout,
	}
}

// StartStream prepares for a new response: stops and joins any previous
// playback goroutine, clears the cancel flag, discards stale queued chunks,
// and starts a fresh one. Joining first keeps the old goroutine's exit from
// clobbering the new stream's playing flag.
func (p *chunkPlayer) StartStream() {
	p.mu.Lock()
	prev := p.loopDone
	if prev != nil {
		p.cancelled.Store(true)
		p.player.Stop()
		p.drainQueueLocked()
		select {
		case p.queue <- nil:
		default:
		}
	}
	p.mu.Unlock()
	if prev != nil {
		<-prev
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancelled.Store(false)
	p.drainQueueLocked()
	done := make(chan struct{})
	p.loopDone = done
	p.playing.Store(true)
	go p.playLoop(done)
}

// Enqueue queues one chunk for playback. Chunks arriving after Cancel are
// dropped; a full queue drops the chunk with a warning.
func (p *chunkPlayer) Enqueue(samples []int16, sampleRate int) {
	if p.cancelled.Load() {
		return
	}
	chunk := &playChunk{samples: audio.Int16ToFloat32(samples), sampleRate: sampleRate}
	select {
	case p.queue <- chunk:
	default:
		slog.Warn("playback queue full, dropping response chunk", "samples", len(samples))
	}
}

// FinishStream marks the end of the response stream. The playback goroutine
// exits after playing everything queued before the sentinel.
func (p *chunkPlayer) FinishStream() {
	select {
	case p.queue <- nil:
	default:
		slog.Warn("playback queue full, response stream may stall on idle timeout")
	}
}

// Cancel stops playback immediately: the current chunk is cut, queued chunks
// are discarded, and the playback goroutine is released.
func (p *chunkPlayer) Cancel() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.cancelled.Store(true)
	p.player.Stop()
	p.drainQueueLocked()
	select {
	case p.queue <- nil:
	default:
	}
}

// IsPlaying reports whether the playback goroutine is still running. It stays
// true between chunks so gaps in the stream do not look like completion.
func (p *chunkPlayer) IsPlaying() bool {
	return p.playing.Load()
}

func (p *chunkPlayer) drainQueueLocked() {
	for {
		select {
		case <-p.queue:
		default:
			return
		}
	}
}

// playLoop consumes the queue until the sentinel, cancellation, or an idle
// timeout. Runs on its own goroutine per stream; done is closed on exit.
func (p *chunkPlayer) playLoop(done chan struct{}) {
	defer func() {
		p.playing.Store(false)
		close(done)
	}()

	for {
		var chunk *playChunk
		select {
		case chunk = <-p.queue:
		case <-time.After(p.idleTimeout):
			slog.Warn("playback queue idle, abandoning response stream",
				"timeout", p.idleTimeout)
			return
		}

		if chunk == nil {
			return
		}
		if p.cancelled.Load() || len(chunk.samples) == 0 {
			continue
		}

		if err := p.player.Play(chunk.samples, chunk.sampleRate); err != nil {
			slog.Error("chunk playback failed", "error", err)
			continue
		}
		if !p.player.WaitUntilDone(p.playbackTimeout) {
			slog.Warn("chunk playback did not finish in time",
				"timeout", p.playbackTimeout)
		}
	}
}
