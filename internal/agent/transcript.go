// Package agent implements the tool-calling conversation loop: the
// session transcript, the context window manager, the tool result
// sanitizer, and the loop itself.
package agent

import "github.com/mailpilot-ai/mailpilot/internal/llm"

// Transcript is the append-only conversation log. The first message is
// the pinned system prompt; nothing here ever deletes a message.
// Trimming for outbound calls works on a copy (see fitToBudget).
type Transcript struct {
	messages []llm.Message
}

// NewTranscript creates a transcript seeded with the system prompt.
func NewTranscript(systemPrompt string) *Transcript {
	return &Transcript{
		messages: []llm.Message{{Role: "system", Content: systemPrompt}},
	}
}

// Append adds a message to the end of the transcript.
func (t *Transcript) Append(msg llm.Message) {
	t.messages = append(t.messages, msg)
}

// Snapshot returns a copy of the message sequence. Callers may trim or
// reorder the copy freely without affecting the canonical transcript.
func (t *Transcript) Snapshot() []llm.Message {
	out := make([]llm.Message, len(t.messages))
	copy(out, t.messages)
	return out
}

// Len reports the number of messages, including the system prompt.
func (t *Transcript) Len() int {
	return len(t.messages)
}
