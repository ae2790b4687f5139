// Package prompt builds the chat messages sent to the language model and
// sanitizes responses for speech synthesis.
package prompt

import (
	"fmt"

	"github.com/skald-ai/skald/pkg/provider/llm"
)

const baseSystemPrompt = "You are Jarvis, a helpful and concise voice assistant. " +
	"Your responses will be spoken aloud by a text-to-speech engine. " +
	"Be concise and to the point. " +
	"NEVER include citations, reference numbers, URLs, links, footnotes, " +
	"source attributions, or any markup in your responses. " +
	"Do not use markdown, bullet points, numbered lists, or code blocks. " +
	"Just answer naturally as a human would in a spoken conversation. " +
	"If you don't know something, say so honestly. " +
	"Even when web search is used, never mention sources or citations."

var languageNames = map[string]string{
	"en": "English",
	"de": "German",
}

// SystemPrompt returns the system prompt, tailored to language when it is
// neither empty nor English.
func SystemPrompt(language string) string {
	if language == "" || language == "en" {
		return baseSystemPrompt
	}
	name, ok := languageNames[language]
	if !ok {
		name = language
	}
	return fmt.Sprintf("%s The user is speaking in %s. "+
		"Always respond in %s unless the user explicitly asks "+
		"for a different language (for example, when requesting a translation).",
		baseSystemPrompt, name, name)
}

// BuildMessages assembles the chat call: system prompt, prior history, then
// the new user text.
func BuildMessages(systemPrompt string, history []llm.Message, userText string) []llm.Message {
	messages := make([]llm.Message, 0, len(history)+2)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: systemPrompt})
	messages = append(messages, history...)
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: userText})
	return messages
}
