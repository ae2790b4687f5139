// Package server implements the processing side of the assistant: a
// WebSocket endpoint that receives wake and utterance messages and streams
// back synthesized responses through the STT, LLM, TTS pipeline.
package server

import (
	"context"
	"fmt"
	"sync"

	"github.com/coder/websocket"

	"github.com/skald-ai/skald/pkg/wire"
)

// maxInboundFrame bounds a single frame; thirty seconds of 16 kHz int16
// audio is under one megabyte, so this leaves generous headroom.
const maxInboundFrame = 16 << 20

// transport is one client connection as the handler sees it. Writers must
// keep a tts_audio meta frame and its binary payload adjacent, which is what
// WritePair guarantees.
type transport interface {
	// Read returns the next frame. binary reports the frame kind.
	Read(ctx context.Context) (data []byte, binary bool, err error)

	// WriteText sends one JSON control frame.
	WriteText(ctx context.Context, data []byte) error

	// WritePair sends a meta frame immediately followed by its binary
	// payload, with no interleaved writes from other goroutines.
	WritePair(ctx context.Context, meta, payload []byte) error
}

// wsTransport adapts a websocket connection. A single mutex serializes all
// writes; reads are only ever issued by the handler loop.
type wsTransport struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func newWSTransport(conn *websocket.Conn) *wsTransport {
	conn.SetReadLimit(maxInboundFrame)
	return &wsTransport{conn: conn}
}

func (t *wsTransport) Read(ctx context.Context) ([]byte, bool, error) {
	typ, data, err := t.conn.Read(ctx)
	if err != nil {
		return nil, false, err
	}
	return data, typ == websocket.MessageBinary, nil
}

func (t *wsTransport) WriteText(ctx context.Context, data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn.Write(ctx, websocket.MessageText, data)
}

func (t *wsTransport) WritePair(ctx context.Context, meta, payload []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.conn.Write(ctx, websocket.MessageText, meta); err != nil {
		return err
	}
	return t.conn.Write(ctx, websocket.MessageBinary, payload)
}

// sendMsg encodes and writes one control message.
func sendMsg(ctx context.Context, t transport, msg any) error {
	data, err := wire.Encode(msg)
	if err != nil {
		return fmt.Errorf("server: encode %T: %w", msg, err)
	}
	return t.WriteText(ctx, data)
}

// sendAudio encodes and writes one tts_audio meta frame with its payload.
func sendAudio(ctx context.Context, t transport, meta wire.TTSAudio, samples []int16) error {
	data, err := wire.Encode(meta)
	if err != nil {
		return fmt.Errorf("server: encode tts_audio: %w", err)
	}
	return t.WritePair(ctx, data, wire.EncodePCM(samples))
}
