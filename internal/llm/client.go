package llm

import "context"

// Client is the completion gateway used by the agent loop and the
// reply tools.
type Client interface {
	// Chat sends the trimmed conversation plus tool definitions and
	// returns the assistant message, which may request tool calls.
	Chat(ctx context.Context, messages []Message, tools []ToolDef, maxTokens int) (*ChatResponse, error)

	// Complete runs a single system+user exchange with no tools.
	// Used by the reply writer.
	Complete(ctx context.Context, system, user string, maxTokens int) (string, error)

	// Ping verifies the API is reachable and the key works.
	Ping(ctx context.Context) error
}
