package agent

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mailpilot-ai/mailpilot/internal/llm"
	"github.com/mailpilot-ai/mailpilot/internal/prompts"
	"github.com/mailpilot-ai/mailpilot/internal/tools"
	"github.com/mailpilot-ai/mailpilot/internal/usage"
)

const (
	// completionMaxTokens caps each assistant completion. Together
	// with maxMessageTokens and the tool schemas this keeps the full
	// request under an 8192-token model limit.
	completionMaxTokens = 512

	// maxMessageTokens is the transcript budget per completion call.
	maxMessageTokens = 7000

	// maxIterations bounds the tool-calling loop within one turn.
	maxIterations = 20

	// stepLimitMessage is the terminal response when the iteration
	// cap is reached. Hitting the cap is a normal outcome, not an
	// error.
	stepLimitMessage = "I reached the step limit. Please try a shorter flow or rephrase."
)

// UsageRecorder persists per-completion token usage. *usage.Store
// satisfies it; the agent works without one.
type UsageRecorder interface {
	Record(ctx context.Context, rec usage.Record) error
}

// Options configures a new Agent. Client and Registry are required.
type Options struct {
	Client   llm.Client
	Registry *tools.Registry
	Usage    UsageRecorder
	Logger   *slog.Logger
}

// Agent owns one conversation: the transcript, the open-email slot,
// and the loop that alternates between the completion gateway and the
// tool registry. Not safe for concurrent use; a session is strictly
// sequential.
type Agent struct {
	logger     *slog.Logger
	client     llm.Client
	registry   *tools.Registry
	usage      UsageRecorder
	transcript *Transcript
	state      tools.State
	sessionID  string
}

// New creates an agent with a fresh transcript seeded with the system
// prompt.
func New(opts Options) *Agent {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	sessionID := uuid.NewString()
	return &Agent{
		logger:     logger.With("sessionId", sessionID),
		client:     opts.Client,
		registry:   opts.Registry,
		usage:      opts.Usage,
		transcript: NewTranscript(prompts.AgentSystem),
		sessionID:  sessionID,
	}
}

// SessionID returns the identifier usage records are keyed by.
func (a *Agent) SessionID() string {
	return a.sessionID
}

// AddUserMessage appends a user message to the conversation.
func (a *Agent) AddUserMessage(content string) {
	a.transcript.Append(llm.Message{Role: "user", Content: content})
}

// RunTurn runs the loop until the model produces a final response with
// no tool calls, or the iteration cap is reached. Tool failures are fed
// back to the model as tool results; completion gateway errors
// propagate to the caller.
func (a *Agent) RunTurn(ctx context.Context) (string, error) {
	turnStart := time.Now()
	completionCalls := 0

	// A new user turn invalidates the previous email selection.
	a.state.OpenEmail = nil

	defs := a.registry.Definitions()

	for i := 0; i < maxIterations; i++ {
		trimmed := fitToBudget(a.transcript.Snapshot(), maxMessageTokens)

		resp, err := a.client.Chat(ctx, trimmed, defs, completionMaxTokens)
		if err != nil {
			return "", err
		}
		completionCalls++
		a.recordUsage(ctx, resp)

		// The assistant message goes into the canonical transcript
		// verbatim; trimming above was a per-call view only.
		a.transcript.Append(resp.Message)

		if len(resp.Message.ToolCalls) == 0 {
			a.logger.Debug("turn complete",
				"completionCalls", completionCalls,
				"elapsed", time.Since(turnStart),
			)
			return strings.TrimSpace(resp.Message.Content), nil
		}

		// Tool calls run one at a time in the order received: later
		// calls may depend on state set by earlier ones, like the
		// open-email slot.
		for _, tc := range resp.Message.ToolCalls {
			result := a.executeToolCall(ctx, tc)
			a.transcript.Append(llm.Message{
				Role:       "tool",
				ToolCallID: tc.ID,
				Content:    capResult(result, maxToolResultChars),
			})
		}
	}

	a.logger.Debug("turn hit step limit",
		"completionCalls", completionCalls,
		"elapsed", time.Since(turnStart),
	)
	return stepLimitMessage, nil
}

// executeToolCall runs one tool call and always returns a result
// string. Argument parse failures, unknown tools, and handler errors
// all become model-readable error text so the conversation survives.
func (a *Agent) executeToolCall(ctx context.Context, tc llm.ToolCall) string {
	name := tc.Function.Name
	raw := tc.Function.Arguments
	if raw == "" {
		raw = "{}"
	}

	var probe map[string]any
	if err := json.Unmarshal([]byte(raw), &probe); err != nil {
		a.logger.Warn("malformed tool arguments", "tool", name, "error", err)
		return "Error parsing arguments: " + err.Error()
	}

	start := time.Now()
	result, err := a.registry.Execute(ctx, &a.state, name, json.RawMessage(raw))
	if err != nil {
		a.logger.Error("tool failed", "tool", name, "error", err)
		return "Error: " + err.Error()
	}

	a.logger.Debug("tool executed", "tool", name, "elapsed", time.Since(start))
	return result
}

func (a *Agent) recordUsage(ctx context.Context, resp *llm.ChatResponse) {
	if a.usage == nil {
		return
	}
	err := a.usage.Record(ctx, usage.Record{
		SessionID:        a.sessionID,
		Model:            resp.Model,
		PromptTokens:     resp.PromptTokens,
		CompletionTokens: resp.CompletionTokens,
	})
	if err != nil {
		a.logger.Warn("usage record failed", "error", err)
	}
}
