// Package llm provides the OpenAI-compatible completion client.
package llm

import "log/slog"

// LevelTrace is below Debug, used for wire-level payload logging.
const LevelTrace = slog.Level(-8)

// Message is a chat message in the OpenAI Chat Completions wire format.
// The transcript stores these verbatim, so what the model said and what
// gets sent back are the same bytes.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"` // set on tool-role results
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"` // always "function"
	Function FunctionCall `json:"function"`
}

// FunctionCall carries the tool name and its arguments as raw JSON.
// Arguments stay unparsed until execution so malformed payloads can be
// reported back to the model instead of failing the request.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolDef advertises a callable tool to the model.
type ToolDef struct {
	Type     string       `json:"type"` // always "function"
	Function ToolFunction `json:"function"`
}

// ToolFunction describes one tool: name, prose description, and a
// JSON-Schema parameter object.
type ToolFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// ChatResponse is the assistant turn returned by Chat, plus token usage.
type ChatResponse struct {
	Model   string
	Message Message

	PromptTokens     int
	CompletionTokens int
}
