package rag

import (
	"strings"
)

// defaultSystemPrompt is used when a chatbot has no system prompt of its own.
const defaultSystemPrompt = "You are a helpful assistant that answers questions about the user's documents."

// groundingInstruction is always appended so the model stays within the
// retrieved context instead of fabricating answers.
const groundingInstruction = "Answer using only the context provided below. " +
	"If the context does not contain the information needed, say that you do not know. " +
	"Do not make up facts."

// Turn is one prior conversation turn passed as history.
type Turn struct {
	// Role is "user", "assistant", or "system".
	Role string
	// Content is the turn's text.
	Content string
}

// renderPrompt assembles the single-shot prompt: system instructions, the
// retrieved context joined by blank lines, the prior turns as "role: content"
// lines, then the question. An empty context section is rendered as-is; the
// model still answers (and the grounding instruction makes it say so).
func renderPrompt(systemPrompt string, contexts []string, history []Turn, question string) string {
	if systemPrompt == "" {
		systemPrompt = defaultSystemPrompt
	}

	var b strings.Builder
	b.WriteString(systemPrompt)
	b.WriteString("\n\n")
	b.WriteString(groundingInstruction)
	b.WriteString("\n\nContext:\n")
	b.WriteString(strings.Join(contexts, "\n\n"))

	if len(history) > 0 {
		b.WriteString("\n\nConversation so far:\n")
		for _, t := range history {
			b.WriteString(t.Role)
			b.WriteString(": ")
			b.WriteString(t.Content)
			b.WriteString("\n")
		}
	}

	b.WriteString("\nQuestion: ")
	b.WriteString(question)
	return b.String()
}
