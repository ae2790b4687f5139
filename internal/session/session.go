// Package session maintains per-connection conversation history with
// automatic trimming.
package session

import (
	"sync"

	"github.com/skald-ai/skald/pkg/provider/llm"
)

// charsPerToken is the rough character-to-token ratio used for the budget
// estimate. Exact counting would need a per-model tokenizer.
const charsPerToken = 4

// Session holds the rolling conversation history for one client. All
// methods are safe for concurrent use.
type Session struct {
	mu              sync.Mutex
	maxTurns        int
	maxTokensBudget int
	history         []llm.Message
}

// New creates a Session bounded by maxTurns user/assistant exchanges and an
// estimated maxTokensBudget.
func New(maxTurns, maxTokensBudget int) *Session {
	return &Session{
		maxTurns:        maxTurns,
		maxTokensBudget: maxTokensBudget,
	}
}

// AddUserMessage appends a user turn and trims.
func (s *Session) AddUserMessage(text string) {
	s.add(llm.Message{Role: llm.RoleUser, Content: text})
}

// AddAssistantMessage appends an assistant turn and trims.
func (s *Session) AddAssistantMessage(text string) {
	s.add(llm.Message{Role: llm.RoleAssistant, Content: text})
}

func (s *Session) add(m llm.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, m)
	s.trim()
}

// Messages returns a copy of the conversation history, oldest first,
// without the system prompt.
func (s *Session) Messages() []llm.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]llm.Message, len(s.history))
	copy(out, s.history)
	return out
}

// Len returns the number of stored messages.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.history)
}

// Clear drops the entire history.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = nil
}

// trim enforces the turn cap, then drops oldest exchanges until the
// estimated token usage fits the budget. The most recent exchange always
// survives. Callers hold s.mu.
func (s *Session) trim() {
	maxMessages := s.maxTurns * 2
	if len(s.history) > maxMessages {
		s.history = s.history[len(s.history)-maxMessages:]
	}

	for len(s.history) > 2 {
		totalChars := 0
		for _, m := range s.history {
			totalChars += len(m.Content)
		}
		if totalChars/charsPerToken <= s.maxTokensBudget {
			break
		}
		s.history = s.history[2:]
	}
}
