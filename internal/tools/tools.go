// Package tools defines the closed set of tools available to the agent.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	gmailv1 "google.golang.org/api/gmail/v1"

	"github.com/mailpilot-ai/mailpilot/internal/gmail"
	"github.com/mailpilot-ai/mailpilot/internal/llm"
)

// ErrUnknownTool is returned when the model requests a tool name that
// is not in the registry.
var ErrUnknownTool = errors.New("unknown tool")

// NoOpenEmailGuidance is the fixed result for reply tools called while
// no email is open. It goes back to the model as a tool result so it
// can correct course.
const NoOpenEmailGuidance = "Error: no email is open. Open the email first by " +
	"calling get_email(message_id) or parse_email(message_id), then try again."

// State is the per-turn agent state shared with tool handlers.
type State struct {
	// OpenEmail is the single-slot selected email. get_email and
	// parse_email set it; the agent clears it at the start of every
	// user turn. Reply tools require it and take their recipient
	// from it, never from model arguments.
	OpenEmail *gmail.ParsedEmail
}

// Handler executes one tool call. args is the raw JSON argument
// payload; each handler decodes it into its own typed struct.
type Handler func(ctx context.Context, st *State, args json.RawMessage) (string, error)

// Tool is a single callable tool.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]any

	// NeedsOpenEmail marks tools that must not run without an open
	// email (the reply-sending subset).
	NeedsOpenEmail bool

	Handler Handler
}

// Mailer is the slice of the Gmail gateway the tools use.
type Mailer interface {
	Search(ctx context.Context, query string, maxResults int64) ([]gmail.MessageRef, error)
	Get(ctx context.Context, messageID string) (*gmailv1.Message, error)
	SendReply(ctx context.Context, opts gmail.ReplyOptions) (*gmailv1.Message, error)
	CreateDraft(ctx context.Context, opts gmail.DraftOptions) (*gmailv1.Draft, error)
}

// Registry holds the tool table. It is built once per session and
// never mutated afterwards.
type Registry struct {
	tools  map[string]*Tool
	order  []string
	mail   Mailer
	llm    llm.Client
	logger *slog.Logger
}

// NewRegistry creates the registry with the full tool set wired to the
// given gateways.
func NewRegistry(mail Mailer, client llm.Client, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		tools:  make(map[string]*Tool),
		mail:   mail,
		llm:    client,
		logger: logger,
	}
	r.registerBuiltins()
	return r
}

func (r *Registry) register(t *Tool) {
	r.tools[t.Name] = t
	r.order = append(r.order, t.Name)
}

// Get returns a tool by name, or nil.
func (r *Registry) Get(name string) *Tool {
	return r.tools[name]
}

// Definitions returns the tool schemas in registration order, in the
// shape the completion gateway expects.
func (r *Registry) Definitions() []llm.ToolDef {
	defs := make([]llm.ToolDef, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		defs = append(defs, llm.ToolDef{
			Type: "function",
			Function: llm.ToolFunction{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	return defs
}

// Execute runs a tool by name. Unknown names fail with ErrUnknownTool.
// Reply tools called without an open email return the fixed guidance
// string without touching the handler. Handler errors are returned to
// the caller, which feeds them back to the model as tool results.
func (r *Registry) Execute(ctx context.Context, st *State, name string, args json.RawMessage) (string, error) {
	t := r.tools[name]
	if t == nil {
		return "", fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}

	if t.NeedsOpenEmail && (st == nil || st.OpenEmail == nil) {
		r.logger.Debug("reply tool blocked, no open email", "tool", name)
		return NoOpenEmailGuidance, nil
	}

	return t.Handler(ctx, st, args)
}
