package audio

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gen2brain/malgo"
)

// frameQueueSize bounds the capture frame queue. Overflow drops frames and
// counts them instead of blocking the audio callback.
const frameQueueSize = 200

// CaptureConfig configures the microphone capture stream.
type CaptureConfig struct {
	// SampleRate in Hz. Default 16000.
	SampleRate int
	// Channels requested from the device; only channel 0 is kept. Default 1.
	Channels int
	// Blocksize is the emitted frame length in samples. Default 1280 (~80 ms
	// at 16 kHz).
	Blocksize int
	// Ring receives every captured frame for diagnostics. Optional.
	Ring *Ring
}

func (c *CaptureConfig) applyDefaults() {
	if c.SampleRate <= 0 {
		c.SampleRate = 16000
	}
	if c.Channels <= 0 {
		c.Channels = 1
	}
	if c.Blocksize <= 0 {
		c.Blocksize = 1280
	}
}

// Capture owns the default input device and turns its float32 callback
// stream into fixed-size mono int16 frames. The callback never blocks: full
// queues drop the frame and bump a counter.
type Capture struct {
	cfg CaptureConfig

	mctx   *malgo.AllocatedContext
	device *malgo.Device

	mu      sync.Mutex // guards device swaps in Restart/Close
	pending []int16    // callback-local accumulator up to Blocksize

	frames  chan []int16
	dropped atomic.Int64
	healthy atomic.Bool
	closed  atomic.Bool
}

// NewCapture opens the default input device and starts capturing.
// The caller must call Close.
func NewCapture(cfg CaptureConfig) (*Capture, error) {
	cfg.applyDefaults()

	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("audio: init context: %w", err)
	}

	c := &Capture{
		cfg:    cfg,
		mctx:   mctx,
		frames: make(chan []int16, frameQueueSize),
	}
	if err := c.openDevice(); err != nil {
		_ = mctx.Uninit()
		mctx.Free()
		return nil, err
	}
	return c, nil
}

// openDevice initializes and starts the capture device. Callers hold no lock
// during NewCapture; Restart serializes via c.mu.
func (c *Capture) openDevice() error {
	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = uint32(c.cfg.Channels)
	deviceConfig.SampleRate = uint32(c.cfg.SampleRate)
	deviceConfig.PeriodSizeInFrames = uint32(c.cfg.Blocksize)

	callbacks := malgo.DeviceCallbacks{
		Data: c.onFrames,
		Stop: func() { c.healthy.Store(false) },
	}
	device, err := malgo.InitDevice(c.mctx.Context, deviceConfig, callbacks)
	if err != nil {
		return fmt.Errorf("audio: init capture device: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return fmt.Errorf("audio: start capture device: %w", err)
	}
	c.device = device
	c.healthy.Store(true)
	return nil
}

// onFrames runs on the audio thread. It downmixes to channel 0, clips to
// [-1, 1], converts to int16, feeds the ring, and emits Blocksize frames.
func (c *Capture) onFrames(_, input []byte, frameCount uint32) {
	channels := c.cfg.Channels
	for i := 0; i < int(frameCount); i++ {
		off := i * channels * 4
		if off+4 > len(input) {
			break
		}
		f := math.Float32frombits(binary.LittleEndian.Uint32(input[off : off+4]))
		if f > 1 {
			f = 1
		} else if f < -1 {
			f = -1
		}
		c.pending = append(c.pending, int16(f*32767))

		if len(c.pending) >= c.cfg.Blocksize {
			frame := make([]int16, c.cfg.Blocksize)
			copy(frame, c.pending[:c.cfg.Blocksize])
			c.pending = c.pending[:0]

			if c.cfg.Ring != nil {
				c.cfg.Ring.Write(frame)
			}
			select {
			case c.frames <- frame:
			default:
				c.dropped.Add(1)
			}
		}
	}
}

// Frame blocks up to timeout for the next capture frame, returning nil when
// none arrives.
func (c *Capture) Frame(timeout time.Duration) []int16 {
	select {
	case frame := <-c.frames:
		return frame
	case <-time.After(timeout):
		return nil
	}
}

// ConsumeDropped returns the number of frames dropped since the last call
// and resets the counter.
func (c *Capture) ConsumeDropped() int64 {
	return c.dropped.Swap(0)
}

// Healthy reports whether the device is delivering audio.
func (c *Capture) Healthy() bool { return c.healthy.Load() }

// Restart tears down and re-opens the input device after device loss.
func (c *Capture) Restart() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed.Load() {
		return fmt.Errorf("audio: capture is closed")
	}
	if c.device != nil {
		c.device.Uninit()
		c.device = nil
	}
	return c.openDevice()
}

// Close stops the device and releases the audio context.
func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.healthy.Store(false)
	if c.device != nil {
		c.device.Uninit()
		c.device = nil
	}
	err := c.mctx.Uninit()
	c.mctx.Free()
	return err
}
