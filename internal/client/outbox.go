// Package client implements the capture-side assistant: the WebSocket link
// to the processing server, TTS chunk playback, and the state machine that
// drives wake word detection, utterance capture, and barge-in.
package client

import (
	"log/slog"
	"sync"
	"time"
)

const (
	defaultOutboxSize = 200
	defaultOutboxTTL  = 5 * time.Second
	minOutboxTTL      = 100 * time.Millisecond
)

// outboxItem is one control message waiting for the link to come back.
// Binary is non-nil only for utterance audio, which must stay paired with
// its meta frame.
type outboxItem struct {
	enqueued time.Time
	text     []byte
	binary   []byte
}

// outbox buffers outbound messages while the server link is down. Expired
// entries are dropped from the head on every mutation; overflow drops the
// oldest entry. Drain returns survivors in FIFO order.
type outbox struct {
	mu    sync.Mutex
	size  int
	ttl   time.Duration
	items []outboxItem

	now func() time.Time
}

// newOutbox creates an outbox. size is coerced to at least 1 and ttl to at
// least 100 ms so a misconfigured buffer still behaves.
func newOutbox(size int, ttl time.Duration) *outbox {
	if size < 1 {
		size = defaultOutboxSize
	}
	if ttl < minOutboxTTL {
		ttl = minOutboxTTL
	}
	return &outbox{size: size, ttl: ttl, now: time.Now}
}

// push buffers an item, evicting expired and overflowing entries first.
func (o *outbox) push(item outboxItem) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.dropExpiredLocked()
	if len(o.items) >= o.size {
		o.items = o.items[1:]
		slog.Warn("offline send buffer full, dropping oldest outbound message")
	}
	item.enqueued = o.now()
	o.items = append(o.items, item)
}

// drain removes and returns all live items in FIFO order.
func (o *outbox) drain() []outboxItem {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.dropExpiredLocked()
	items := o.items
	o.items = nil
	return items
}

// len reports the number of live buffered items.
func (o *outbox) len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.dropExpiredLocked()
	return len(o.items)
}

func (o *outbox) dropExpiredLocked() {
	now := o.now()
	dropped := 0
	for len(o.items) > 0 && now.Sub(o.items[0].enqueued) > o.ttl {
		o.items = o.items[1:]
		dropped++
	}
	if dropped > 0 {
		slog.Warn("dropped expired outbound buffered messages", "count", dropped)
	}
}
