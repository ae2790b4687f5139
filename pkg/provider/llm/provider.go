// Package llm defines the Client interface for chat completion backends.
//
// The conversation pipeline makes exactly one chat call per utterance, so
// the interface is a single blocking Chat plus a fire-and-forget Warmup that
// primes upstream caches before the first real request.
//
// Implementations must be safe for concurrent use.
package llm

import "context"

// Role values for chat messages.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one chat turn sent to the model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Result is the outcome of a chat call.
type Result struct {
	// Text is the complete assistant response.
	Text string

	// Model is the model identifier the backend reported.
	Model string

	// ElapsedS is the total wall-clock time of the successful attempt.
	ElapsedS float64

	// TTFTS is the time to first token. Backends without streaming report
	// the full elapsed time.
	TTFTS float64
}

// Client is the abstraction over any chat completion backend.
type Client interface {
	// Warmup fires a minimal request in the background to prime upstream
	// caches and connections. Errors are swallowed; Warmup never blocks.
	Warmup()

	// Chat sends the messages and returns the assistant response.
	Chat(ctx context.Context, messages []Message) (*Result, error)
}
