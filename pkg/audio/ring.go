package audio

import "sync"

// Ring is a fixed-capacity circular store of int16 PCM samples. The capture
// callback writes; diagnostics read the most recent tail. A single mutex
// serializes both.
type Ring struct {
	mu    sync.Mutex
	buf   []int16
	pos   int   // next write index
	total int64 // samples written since creation or Clear
}

// NewRing creates a ring holding maxSeconds of audio at sampleRate.
// The capacity is at least one sample.
func NewRing(maxSeconds float64, sampleRate int) *Ring {
	capacity := int(maxSeconds * float64(sampleRate))
	if capacity < 1 {
		capacity = 1
	}
	return &Ring{buf: make([]int16, capacity)}
}

// Capacity returns the ring size in samples.
func (r *Ring) Capacity() int { return len(r.buf) }

// Write appends samples, overwriting the oldest data on wrap-around. A write
// larger than the capacity keeps only the trailing samples.
func (r *Ring) Write(samples []int16) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(samples)
	if n == 0 {
		return
	}
	r.total += int64(n)

	if n >= len(r.buf) {
		copy(r.buf, samples[n-len(r.buf):])
		r.pos = 0
		return
	}

	first := copy(r.buf[r.pos:], samples)
	copy(r.buf, samples[first:])
	r.pos = (r.pos + n) % len(r.buf)
}

// ReadLast returns the last min(n, written, capacity) samples in
// chronological order.
func (r *Ring) ReadLast(n int) []int16 {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n <= 0 {
		return nil
	}
	avail := int(r.total)
	if int64(avail) != r.total || avail > len(r.buf) {
		avail = len(r.buf)
	}
	if n > avail {
		n = avail
	}
	if n == 0 {
		return nil
	}

	out := make([]int16, n)
	start := r.pos - n
	if start >= 0 {
		copy(out, r.buf[start:r.pos])
		return out
	}
	start += len(r.buf)
	first := copy(out, r.buf[start:])
	copy(out[first:], r.buf[:r.pos])
	return out
}

// Clear discards all stored samples.
func (r *Ring) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pos = 0
	r.total = 0
	for i := range r.buf {
		r.buf[i] = 0
	}
}
