// Package mock provides a scripted test double for the tts package.
package mock

import (
	"context"
	"io"
	"sync"

	"github.com/skald-ai/skald/pkg/provider/tts"
)

// Compile-time interface assertions.
var (
	_ tts.Engine      = (*Engine)(nil)
	_ tts.ChunkStream = (*Stream)(nil)
)

// SynthesizeCall records a single invocation of SynthesizeChunks.
type SynthesizeCall struct {
	Text     string
	Language string
}

// Engine is a scripted tts.Engine. Every SynthesizeChunks call returns a
// fresh stream over Chunks.
type Engine struct {
	mu sync.Mutex

	// Chunks are yielded in order by each returned stream.
	Chunks []tts.Chunk

	// Err, if non-nil, is returned by SynthesizeChunks itself.
	Err error

	// StreamErr, if non-nil, is returned by the stream's first Next call.
	StreamErr error

	// Calls records every invocation.
	Calls []SynthesizeCall
}

// SynthesizeChunks records the call and returns a stream over Chunks.
func (e *Engine) SynthesizeChunks(ctx context.Context, text, language string) (tts.ChunkStream, error) {
	e.mu.Lock()
	e.Calls = append(e.Calls, SynthesizeCall{Text: text, Language: language})
	e.mu.Unlock()

	if e.Err != nil {
		return nil, e.Err
	}
	return &Stream{chunks: e.Chunks, err: e.StreamErr}, nil
}

// Stream yields scripted chunks.
type Stream struct {
	mu     sync.Mutex
	chunks []tts.Chunk
	err    error
	next   int
	Closed bool
}

// Next implements tts.ChunkStream.
func (s *Stream) Next() (tts.Chunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return tts.Chunk{}, s.err
	}
	if s.Closed || s.next >= len(s.chunks) {
		return tts.Chunk{}, io.EOF
	}
	c := s.chunks[s.next]
	s.next++
	return c, nil
}

// Close implements tts.ChunkStream.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Closed = true
	return nil
}
