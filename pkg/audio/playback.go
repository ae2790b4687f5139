package audio

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/gen2brain/malgo"
)

// playbackPollInterval is the cadence at which WaitUntilDone re-checks the
// playing flag.
const playbackPollInterval = 20 * time.Millisecond

// Player plays mono float32 PCM on the default output device. Play is
// non-blocking; Stop cuts playback immediately (barge-in). One buffer plays
// at a time; a new Play replaces the current one.
type Player struct {
	mctx *malgo.AllocatedContext

	mu         sync.Mutex
	device     *malgo.Device
	deviceRate int
	buf        []float32
	pos        int
	playing    bool
	closed     bool
}

// NewPlayer creates a player. The output device is opened lazily on first
// Play so the sample rate can follow the audio. The caller must call Close.
func NewPlayer() (*Player, error) {
	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("audio: init context: %w", err)
	}
	return &Player{mctx: mctx}, nil
}

// Play starts non-blocking playback of samples at sampleRate, replacing any
// buffer still playing.
func (p *Player) Play(samples []float32, sampleRate int) error {
	if sampleRate <= 0 {
		return fmt.Errorf("audio: invalid sample rate %d", sampleRate)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return fmt.Errorf("audio: player is closed")
	}

	if p.device == nil || p.deviceRate != sampleRate {
		if err := p.reopenDeviceLocked(sampleRate); err != nil {
			return err
		}
	}

	p.buf = samples
	p.pos = 0
	p.playing = len(samples) > 0
	return nil
}

// reopenDeviceLocked replaces the output device with one at the given rate.
func (p *Player) reopenDeviceLocked(sampleRate int) error {
	if p.device != nil {
		p.device.Uninit()
		p.device = nil
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgo.FormatF32
	deviceConfig.Playback.Channels = 1
	deviceConfig.SampleRate = uint32(sampleRate)

	callbacks := malgo.DeviceCallbacks{Data: p.onFrames}
	device, err := malgo.InitDevice(p.mctx.Context, deviceConfig, callbacks)
	if err != nil {
		return fmt.Errorf("audio: init playback device: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return fmt.Errorf("audio: start playback device: %w", err)
	}
	p.device = device
	p.deviceRate = sampleRate
	return nil
}

// onFrames runs on the audio thread, copying from the current buffer and
// padding with silence once it is exhausted.
func (p *Player) onFrames(output, _ []byte, frameCount uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := int(frameCount)
	for i := 0; i < n; i++ {
		var s float32
		if p.pos < len(p.buf) {
			s = p.buf[p.pos]
			p.pos++
		}
		binary.LittleEndian.PutUint32(output[i*4:], math.Float32bits(s))
	}
	if p.pos >= len(p.buf) {
		p.playing = false
	}
}

// Stop halts playback immediately.
func (p *Player) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.buf = nil
	p.pos = 0
	p.playing = false
}

// IsPlaying reports whether a buffer is still being played.
func (p *Player) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

// WaitUntilDone polls until playback finishes or timeout elapses, returning
// false on timeout.
func (p *Player) WaitUntilDone(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if !p.IsPlaying() {
			return true
		}
		time.Sleep(playbackPollInterval)
	}
	return !p.IsPlaying()
}

// Close stops playback and releases the device and context.
func (p *Player) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	p.playing = false
	p.buf = nil
	if p.device != nil {
		p.device.Uninit()
		p.device = nil
	}
	err := p.mctx.Uninit()
	p.mctx.Free()
	return err
}
