package agent

import "github.com/mailpilot-ai/mailpilot/internal/llm"

// charsPerTokenEstimate is a conservative fixed ratio used instead of a
// real tokenizer. The estimate only has to keep requests under the
// provider's hard limit, so approximate-but-never-over is enough, and
// it avoids vendoring a model-specific tokenizer.
const charsPerTokenEstimate = 4

// estimateTokens gives a rough token count for text, never zero.
func estimateTokens(text string) int {
	n := len(text) / charsPerTokenEstimate
	if n < 1 {
		return 1
	}
	return n
}

// messagesTokenEstimate sums the estimate across a message list,
// counting roles, content, tool calls, and tool result bindings.
func messagesTokenEstimate(messages []llm.Message) int {
	total := 0
	for _, m := range messages {
		total += estimateTokens(m.Role)
		if m.Content != "" {
			total += estimateTokens(m.Content)
		}
		for _, tc := range m.ToolCalls {
			total += estimateTokens(tc.ID)
			total += estimateTokens(tc.Function.Name + tc.Function.Arguments)
		}
		if m.ToolCallID != "" {
			total += estimateTokens(m.ToolCallID)
			total += estimateTokens(m.Content)
		}
	}
	return total
}

// fitToBudget returns a view of the conversation whose estimated token
// count fits maxTokens. It keeps the pinned system message and a suffix
// of the rest, dropping oldest first; after each drop it also drops the
// following run of tool messages so the API never sees an orphaned tool
// result. The input is never mutated and the function is idempotent: an
// already-fitting list comes back equal.
func fitToBudget(messages []llm.Message, maxTokens int) []llm.Message {
	if len(messages) == 0 {
		return messages
	}

	var pinned []llm.Message
	rest := messages
	if messages[0].Role == "system" {
		pinned = messages[:1:1]
		rest = messages[1:]
	}
	if len(rest) == 0 {
		return messages
	}

	pinnedTokens := messagesTokenEstimate(pinned)
	for len(rest) > 0 && pinnedTokens+messagesTokenEstimate(rest) > maxTokens {
		rest = rest[1:]
		for len(rest) > 0 && rest[0].Role == "tool" {
			rest = rest[1:]
		}
	}

	out := make([]llm.Message, 0, len(pinned)+len(rest))
	out = append(out, pinned...)
	out = append(out, rest...)
	return out
}
