// Package wire implements the message codec shared by the edge client and the
// processing server. A connection carries two frame kinds: UTF-8 JSON text
// frames holding one control message each, and binary frames holding raw
// little-endian int16 PCM with no header.
//
// Two message types are paired: an utterance_audio or tts_audio meta frame is
// immediately followed by exactly one binary frame carrying the samples the
// meta declares. The codec itself is stateless; pairing is enforced by the
// transports.
package wire

import (
	"encoding/json"
	"fmt"
	"math"
)

// Type tags a control message.
type Type string

// Client → server message types.
const (
	TypeWake            Type = "wake"
	TypeUtteranceAudio  Type = "utterance_audio"
	TypeBargeIn         Type = "barge_in"
	TypeFollowUpTimeout Type = "follow_up_timeout"
)

// Server → client message types.
const (
	TypeWarmupAck      Type = "warmup_ack"
	TypeStatus         Type = "status"
	TypeSTTRejected    Type = "stt_rejected"
	TypeTTSAudio       Type = "tts_audio"
	TypeTTSDone        Type = "tts_done"
	TypeSessionCleared Type = "session_cleared"
	TypeError          Type = "error"
)

// Stage identifies a pipeline phase in status and error messages.
type Stage string

const (
	StageSTTStart    Stage = "stt_start"
	StageSTTComplete Stage = "stt_complete"
	StageLLMStart    Stage = "llm_start"
	StageLLMComplete Stage = "llm_complete"
	StageTTSStart    Stage = "tts_start"

	// Error stages are coarser than status stages.
	StageSTT      Stage = "stt"
	StageLLM      Stage = "llm"
	StageTTS      Stage = "tts"
	StageProtocol Stage = "protocol"
)

// Wake announces a wake-word detection. Score is rounded to three decimals
// by NewWake.
type Wake struct {
	Type  Type    `json:"type"`
	Score float64 `json:"score"`
}

// UtteranceAudio declares an inbound audio payload: the next binary frame
// carries Samples little-endian int16 values at SampleRate.
type UtteranceAudio struct {
	Type       Type `json:"type"`
	SampleRate int  `json:"sample_rate"`
	Samples    int  `json:"samples"`
}

// BargeIn asks the server to cancel the in-flight response.
type BargeIn struct {
	Type Type `json:"type"`
}

// FollowUpTimeout tells the server the follow-up window elapsed without
// speech; the server clears the session in response.
type FollowUpTimeout struct {
	Type Type `json:"type"`
}

// WarmupAck confirms receipt of a wake message.
type WarmupAck struct {
	Type Type `json:"type"`
}

// Status reports pipeline progress.
type Status struct {
	Type  Type  `json:"type"`
	Stage Stage `json:"stage"`
}

// STTRejected reports that the transcript was discarded before the LLM ran.
type STTRejected struct {
	Type   Type   `json:"type"`
	Reason string `json:"reason"`
}

// TTSAudio declares an outbound audio chunk: the next binary frame carries
// Samples little-endian int16 values at SampleRate. ChunkIndex is strictly
// increasing within one pipeline invocation; IsLast marks the final chunk.
type TTSAudio struct {
	Type       Type `json:"type"`
	SampleRate int  `json:"sample_rate"`
	Samples    int  `json:"samples"`
	ChunkIndex int  `json:"chunk_index"`
	IsLast     bool `json:"is_last"`
}

// TTSDone terminates a response stream. Cancelled reports whether the stream
// was cut short by a barge-in.
type TTSDone struct {
	Type      Type `json:"type"`
	Cancelled bool `json:"cancelled"`
}

// SessionCleared confirms that the conversation history was dropped.
type SessionCleared struct {
	Type Type `json:"type"`
}

// Error reports a failure. Message is safe for display and never carries raw
// upstream error text. Stage and Code are optional.
type Error struct {
	Type    Type   `json:"type"`
	Message string `json:"message"`
	Stage   Stage  `json:"stage,omitempty"`
	Code    string `json:"code,omitempty"`
}

// NewWake builds a wake message with the score rounded to three decimals.
func NewWake(score float64) Wake {
	return Wake{Type: TypeWake, Score: math.Round(score*1000) / 1000}
}

// NewUtteranceAudio builds the meta frame preceding an utterance binary frame.
func NewUtteranceAudio(sampleRate, samples int) UtteranceAudio {
	return UtteranceAudio{Type: TypeUtteranceAudio, SampleRate: sampleRate, Samples: samples}
}

// NewBargeIn builds a barge_in message.
func NewBargeIn() BargeIn { return BargeIn{Type: TypeBargeIn} }

// NewFollowUpTimeout builds a follow_up_timeout message.
func NewFollowUpTimeout() FollowUpTimeout { return FollowUpTimeout{Type: TypeFollowUpTimeout} }

// NewWarmupAck builds a warmup_ack message.
func NewWarmupAck() WarmupAck { return WarmupAck{Type: TypeWarmupAck} }

// NewStatus builds a status message for the given pipeline stage.
func NewStatus(stage Stage) Status { return Status{Type: TypeStatus, Stage: stage} }

// NewSTTRejected builds an stt_rejected message.
func NewSTTRejected(reason string) STTRejected {
	return STTRejected{Type: TypeSTTRejected, Reason: reason}
}

// NewTTSAudio builds the meta frame preceding a TTS chunk binary frame.
func NewTTSAudio(sampleRate, samples, chunkIndex int, isLast bool) TTSAudio {
	return TTSAudio{
		Type:       TypeTTSAudio,
		SampleRate: sampleRate,
		Samples:    samples,
		ChunkIndex: chunkIndex,
		IsLast:     isLast,
	}
}

// NewTTSDone builds a tts_done message.
func NewTTSDone(cancelled bool) TTSDone { return TTSDone{Type: TypeTTSDone, Cancelled: cancelled} }

// NewSessionCleared builds a session_cleared message.
func NewSessionCleared() SessionCleared { return SessionCleared{Type: TypeSessionCleared} }

// NewError builds an error message. stage and code may be empty.
func NewError(message string, stage Stage, code string) Error {
	return Error{Type: TypeError, Message: message, Stage: stage, Code: code}
}

// Encode serializes a control message to compact JSON.
func Encode(msg any) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("wire: encode: %w", err)
	}
	return data, nil
}

// envelope peeks at the type tag before full decoding.
type envelope struct {
	Type Type `json:"type"`
}

// Decode parses a JSON text frame into its concrete message struct. The
// returned value is a pointer to one of the message types in this package;
// callers dispatch with a type switch. Unknown type tags and malformed JSON
// return an error.
func Decode(data []byte) (any, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("wire: decode: %w", err)
	}

	unmarshal := func(v any) (any, error) {
		if err := json.Unmarshal(data, v); err != nil {
			return nil, fmt.Errorf("wire: decode %s: %w", env.Type, err)
		}
		return v, nil
	}

	var out any
	var err error
	switch env.Type {
	case TypeWake:
		out, err = unmarshal(&Wake{})
	case TypeUtteranceAudio:
		out, err = unmarshal(&UtteranceAudio{})
	case TypeBargeIn:
		out, err = unmarshal(&BargeIn{})
	case TypeFollowUpTimeout:
		out, err = unmarshal(&FollowUpTimeout{})
	case TypeWarmupAck:
		out, err = unmarshal(&WarmupAck{})
	case TypeStatus:
		out, err = unmarshal(&Status{})
	case TypeSTTRejected:
		out, err = unmarshal(&STTRejected{})
	case TypeTTSAudio:
		out, err = unmarshal(&TTSAudio{})
	case TypeTTSDone:
		out, err = unmarshal(&TTSDone{})
	case TypeSessionCleared:
		out, err = unmarshal(&SessionCleared{})
	case TypeError:
		out, err = unmarshal(&Error{})
	default:
		return nil, fmt.Errorf("wire: unknown message type %q", env.Type)
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}
