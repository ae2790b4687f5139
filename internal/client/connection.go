package client

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/skald-ai/skald/pkg/wire"
)

const (
	inboundQueueSize = 500
	writeTimeout     = 10 * time.Second
	maxInboundFrame  = 16 << 20
)

// TTSChunk is a paired tts_audio meta frame and its decoded PCM payload,
// delivered to the state machine as one message.
type TTSChunk struct {
	Meta    wire.TTSAudio
	Samples []int16
}

// ConnectionConfig tunes the server link.
type ConnectionConfig struct {
	// URL is the WebSocket endpoint, e.g. ws://localhost:8765/ws.
	URL string

	// ReconnectMin and ReconnectMax bound the exponential backoff between
	// dial attempts.
	ReconnectMin time.Duration
	ReconnectMax time.Duration

	// OutboxSize and OutboxTTL bound the offline send buffer.
	OutboxSize int
	OutboxTTL  time.Duration
}

func (c *ConnectionConfig) applyDefaults() {
	if c.ReconnectMin <= 0 {
		c.ReconnectMin = time.Second
	}
	if c.ReconnectMax < c.ReconnectMin {
		c.ReconnectMax = 30 * time.Second
	}
}

// Connection maintains the WebSocket link to the processing server. It
// reconnects with exponential backoff, buffers outbound messages while
// disconnected, and pairs inbound tts_audio meta frames with their binary
// payloads before delivery.
type Connection struct {
	cfg    ConnectionConfig
	outbox *outbox

	inbound chan any

	mu        sync.Mutex // guards conn and the meta/binary write pairing
	conn      *websocket.Conn
	connected bool
}

// NewConnection creates a connection. Run must be called to establish and
// maintain the link.
func NewConnection(cfg ConnectionConfig) *Connection {
	cfg.applyDefaults()
	return &Connection{
		cfg:     cfg,
		outbox:  newOutbox(cfg.OutboxSize, cfg.OutboxTTL),
		inbound: make(chan any, inboundQueueSize),
	}
}

// Messages returns the inbound message channel. Values are wire message
// pointers, except TTS audio which arrives as *TTSChunk with meta and
// samples already paired.
func (c *Connection) Messages() <-chan any { return c.inbound }

// Connected reports whether the link is currently up.
func (c *Connection) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Run dials the server and reads messages until ctx is cancelled,
// reconnecting with exponential backoff on any failure. It always returns
// ctx.Err().
func (c *Connection) Run(ctx context.Context) error {
	backoff := c.cfg.ReconnectMin
	for {
		conn, _, err := websocket.Dial(ctx, c.cfg.URL, nil)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			slog.Warn("server connection failed, retrying",
				"url", c.cfg.URL, "backoff", backoff, "error", err)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			if backoff *= 2; backoff > c.cfg.ReconnectMax {
				backoff = c.cfg.ReconnectMax
			}
			continue
		}
		backoff = c.cfg.ReconnectMin
		conn.SetReadLimit(maxInboundFrame)

		c.mu.Lock()
		c.conn = conn
		c.connected = true
		c.mu.Unlock()
		slog.Info("connected to server", "url", c.cfg.URL)
		c.drainOutbox(ctx)

		err = c.readLoop(ctx, conn)

		c.mu.Lock()
		c.conn = nil
		c.connected = false
		c.mu.Unlock()
		conn.Close(websocket.StatusNormalClosure, "")

		if ctx.Err() != nil {
			return ctx.Err()
		}
		slog.Warn("server connection lost", "error", err)
	}
}

// readLoop reads frames until the connection breaks, pairing each tts_audio
// meta with the binary frame that follows it.
func (c *Connection) readLoop(ctx context.Context, conn *websocket.Conn) error {
	var pendingMeta *wire.TTSAudio
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}

		switch typ {
		case websocket.MessageText:
			msg, err := wire.Decode(data)
			if err != nil {
				slog.Warn("dropping undecodable server message", "error", err)
				continue
			}
			if meta, ok := msg.(*wire.TTSAudio); ok {
				if pendingMeta != nil {
					slog.Warn("tts_audio meta arrived before previous payload, dropping older meta",
						"chunk_index", pendingMeta.ChunkIndex)
				}
				pendingMeta = meta
				continue
			}
			c.deliver(msg)

		case websocket.MessageBinary:
			if pendingMeta == nil {
				slog.Warn("dropping binary frame with no preceding tts_audio meta",
					"bytes", len(data))
				continue
			}
			samples, err := wire.DecodePCM(data)
			if err != nil {
				slog.Warn("dropping malformed PCM payload", "error", err)
				pendingMeta = nil
				continue
			}
			c.deliver(&TTSChunk{Meta: *pendingMeta, Samples: samples})
			pendingMeta = nil
		}
	}
}

// deliver pushes a message to the inbound queue, dropping it when the state
// machine has fallen behind.
func (c *Connection) deliver(msg any) {
	select {
	case c.inbound <- msg:
	default:
		slog.Warn("inbound queue full, dropping server message",
			"message", fmt.Sprintf("%T", msg))
	}
}

// SendWake reports a wake-word detection.
func (c *Connection) SendWake(score float64) {
	c.send(wire.NewWake(score), nil)
}

// SendUtterance sends captured utterance audio as a meta frame immediately
// followed by its binary payload.
func (c *Connection) SendUtterance(samples []int16, sampleRate int) {
	c.send(wire.NewUtteranceAudio(sampleRate, len(samples)), wire.EncodePCM(samples))
}

// SendBargeIn asks the server to cancel the in-flight response.
func (c *Connection) SendBargeIn() {
	c.send(wire.NewBargeIn(), nil)
}

// SendFollowUpTimeout tells the server the follow-up window closed.
func (c *Connection) SendFollowUpTimeout() {
	c.send(wire.NewFollowUpTimeout(), nil)
}

// send writes a control message, with an optional paired binary payload,
// buffering it in the outbox when the link is down or the write fails.
func (c *Connection) send(msg any, binary []byte) {
	text, err := wire.Encode(msg)
	if err != nil {
		slog.Error("dropping unencodable outbound message", "error", err)
		return
	}
	item := outboxItem{text: text, binary: binary}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected || c.conn == nil {
		c.outbox.push(item)
		return
	}
	if err := c.writeItemLocked(item); err != nil {
		slog.Warn("send failed, buffering message", "error", err)
		c.connected = false
		c.outbox.push(item)
	}
}

// writeItemLocked writes the text frame and, when present, its binary pair.
// Callers hold c.mu so the pair is never interleaved with another writer.
func (c *Connection) writeItemLocked(item outboxItem) error {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if err := c.conn.Write(ctx, websocket.MessageText, item.text); err != nil {
		return err
	}
	if item.binary != nil {
		if err := c.conn.Write(ctx, websocket.MessageBinary, item.binary); err != nil {
			return err
		}
	}
	return nil
}

// drainOutbox flushes buffered messages in FIFO order after a reconnect.
// Remaining items are re-buffered if a write fails mid-drain.
func (c *Connection) drainOutbox(ctx context.Context) {
	items := c.outbox.drain()
	if len(items) == 0 {
		return
	}
	slog.Info("flushing buffered messages after reconnect", "count", len(items))

	c.mu.Lock()
	defer c.mu.Unlock()
	for i, item := range items {
		if ctx.Err() != nil {
			return
		}
		if c.conn == nil {
			c.requeueLocked(items[i:])
			return
		}
		if err := c.writeItemLocked(item); err != nil {
			slog.Warn("flush failed, re-buffering remaining messages",
				"remaining", len(items)-i, "error", err)
			c.connected = false
			c.requeueLocked(items[i:])
			return
		}
	}
}

func (c *Connection) requeueLocked(items []outboxItem) {
	for _, item := range items {
		c.outbox.push(item)
	}
}
