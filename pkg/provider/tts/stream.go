package tts

import (
	"context"
	"io"
	"strings"
)

// SynthFunc renders one sentence and returns its PCM and sample rate. An
// empty sample slice with a nil error means the backend produced no audio
// for the sentence.
type SynthFunc func(ctx context.Context, sentence string) ([]int16, int, error)

// NewSentenceStream builds a ChunkStream that lazily synthesizes one
// sentence per Next call using synth. Non-terminal chunks get silenceS
// seconds of trailing silence; the final sentence's chunk carries IsLast.
// A final sentence that produces no audio still yields an empty IsLast
// marker so consumers always observe stream end. fallbackRate is used for
// that marker when the backend reported no rate.
func NewSentenceStream(ctx context.Context, sentences []string, synth SynthFunc, silenceS float64, fallbackRate int) ChunkStream {
	return &sentenceStream{
		ctx:          ctx,
		sentences:    sentences,
		synth:        synth,
		silenceS:     silenceS,
		fallbackRate: fallbackRate,
	}
}

type sentenceStream struct {
	ctx          context.Context
	sentences    []string
	synth        SynthFunc
	silenceS     float64
	fallbackRate int

	next   int
	closed bool
}

// Next implements ChunkStream.
func (s *sentenceStream) Next() (Chunk, error) {
	for {
		if s.closed || s.next >= len(s.sentences) {
			return Chunk{}, io.EOF
		}
		if err := s.ctx.Err(); err != nil {
			s.closed = true
			return Chunk{}, err
		}

		sentence := strings.TrimSpace(s.sentences[s.next])
		isLast := s.next == len(s.sentences)-1
		s.next++

		samples, rate, err := s.synth(s.ctx, sentence)
		if err != nil {
			s.closed = true
			return Chunk{}, err
		}
		if rate <= 0 {
			rate = s.fallbackRate
		}
		if len(samples) == 0 {
			if isLast {
				return Chunk{SampleRate: rate, IsLast: true}, nil
			}
			continue
		}
		if !isLast {
			samples = append(samples, make([]int16, int(s.silenceS*float64(rate)))...)
		}
		return Chunk{Samples: samples, SampleRate: rate, IsLast: isLast}, nil
	}
}

// Close implements ChunkStream.
func (s *sentenceStream) Close() error {
	s.closed = true
	return nil
}
