package agent

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	gmailv1 "google.golang.org/api/gmail/v1"

	"github.com/mailpilot-ai/mailpilot/internal/gmail"
	"github.com/mailpilot-ai/mailpilot/internal/llm"
	"github.com/mailpilot-ai/mailpilot/internal/tools"
	"github.com/mailpilot-ai/mailpilot/internal/usage"
)

// scriptedClient plays back a fixed sequence of chat responses and
// records every message list it was called with.
type scriptedClient struct {
	script []llm.ChatResponse
	repeat bool // repeat the last response once the script runs out
	err    error

	calls        [][]llm.Message
	completeFunc func(system, user string) (string, error)
}

func (c *scriptedClient) Chat(ctx context.Context, messages []llm.Message, toolDefs []llm.ToolDef, maxTokens int) (*llm.ChatResponse, error) {
	c.calls = append(c.calls, messages)
	if c.err != nil {
		return nil, c.err
	}
	i := len(c.calls) - 1
	if i >= len(c.script) {
		if !c.repeat {
			return nil, fmt.Errorf("unexpected chat call %d", i+1)
		}
		i = len(c.script) - 1
	}
	resp := c.script[i]
	return &resp, nil
}

func (c *scriptedClient) Complete(ctx context.Context, system, user string, maxTokens int) (string, error) {
	if c.completeFunc != nil {
		return c.completeFunc(system, user)
	}
	return "Generated reply text.", nil
}

func (c *scriptedClient) Ping(ctx context.Context) error { return nil }

type fakeMailer struct {
	searchFunc func(ctx context.Context, query string, maxResults int64) ([]gmail.MessageRef, error)
	getFunc    func(ctx context.Context, messageID string) (*gmailv1.Message, error)
	sendFunc   func(ctx context.Context, opts gmail.ReplyOptions) (*gmailv1.Message, error)
	draftFunc  func(ctx context.Context, opts gmail.DraftOptions) (*gmailv1.Draft, error)
}

func (f *fakeMailer) Search(ctx context.Context, query string, maxResults int64) ([]gmail.MessageRef, error) {
	if f.searchFunc == nil {
		return nil, errors.New("unexpected Search call")
	}
	return f.searchFunc(ctx, query, maxResults)
}

func (f *fakeMailer) Get(ctx context.Context, messageID string) (*gmailv1.Message, error) {
	if f.getFunc == nil {
		return nil, errors.New("unexpected Get call")
	}
	return f.getFunc(ctx, messageID)
}

func (f *fakeMailer) SendReply(ctx context.Context, opts gmail.ReplyOptions) (*gmailv1.Message, error) {
	if f.sendFunc == nil {
		return nil, errors.New("unexpected SendReply call")
	}
	return f.sendFunc(ctx, opts)
}

func (f *fakeMailer) CreateDraft(ctx context.Context, opts gmail.DraftOptions) (*gmailv1.Draft, error) {
	if f.draftFunc == nil {
		return nil, errors.New("unexpected CreateDraft call")
	}
	return f.draftFunc(ctx, opts)
}

func newTestAgent(client *scriptedClient, mailer *fakeMailer) *Agent {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(Options{
		Client:   client,
		Registry: tools.NewRegistry(mailer, client, logger),
		Logger:   logger,
	})
}

func finalResp(content string) llm.ChatResponse {
	return llm.ChatResponse{
		Model:   "gpt-4",
		Message: llm.Message{Role: "assistant", Content: content},
	}
}

func toolResp(calls ...llm.ToolCall) llm.ChatResponse {
	return llm.ChatResponse{
		Model:   "gpt-4",
		Message: llm.Message{Role: "assistant", ToolCalls: calls},
	}
}

func call(id, name, args string) llm.ToolCall {
	return llm.ToolCall{
		ID:       id,
		Type:     "function",
		Function: llm.FunctionCall{Name: name, Arguments: args},
	}
}

// fullMessage is a minimal Gmail API message that parses cleanly.
func fullMessage() *gmailv1.Message {
	return &gmailv1.Message{
		Id:       "m1",
		ThreadId: "t1",
		Payload: &gmailv1.MessagePart{
			MimeType: "text/plain",
			Headers: []*gmailv1.MessagePartHeader{
				{Name: "From", Value: "Alice Smith <alice@example.com>"},
				{Name: "To", Value: "me@example.com"},
				{Name: "Subject", Value: "Quarterly report"},
				{Name: "Date", Value: "Mon, 2 Mar 2026 10:00:00 +0000"},
				{Name: "Message-ID", Value: "<orig-1@example.com>"},
			},
			Body: &gmailv1.MessagePartBody{
				Data: base64.URLEncoding.EncodeToString([]byte("Please review the attached report.")),
			},
		},
	}
}

// lastToolMessage returns the last tool-role message in a call's view.
func lastToolMessage(t *testing.T, messages []llm.Message) llm.Message {
	t.Helper()
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "tool" {
			return messages[i]
		}
	}
	t.Fatal("no tool message found")
	return llm.Message{}
}

func TestRunTurn_PlainResponse(t *testing.T) {
	client := &scriptedClient{script: []llm.ChatResponse{finalResp("  Hello there. \n")}}
	a := newTestAgent(client, &fakeMailer{})

	a.AddUserMessage("hi")
	got, err := a.RunTurn(context.Background())
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	if got != "Hello there." {
		t.Errorf("response = %q, want trimmed %q", got, "Hello there.")
	}
	if len(client.calls) != 1 {
		t.Errorf("expected 1 completion call, got %d", len(client.calls))
	}
	if client.calls[0][0].Role != "system" {
		t.Error("first outbound message should be the system prompt")
	}
}

func TestRunTurn_ReplyBeforeOpenBlocked(t *testing.T) {
	mailer := &fakeMailer{
		sendFunc: func(ctx context.Context, opts gmail.ReplyOptions) (*gmailv1.Message, error) {
			t.Fatal("SendReply must not be called without an open email")
			return nil, nil
		},
	}
	client := &scriptedClient{script: []llm.ChatResponse{
		toolResp(call("c1", "send_reply", `{"thread_id":"t1","subject":"Re: x","body":"hi"}`)),
		finalResp("I need to open the email first."),
	}}
	a := newTestAgent(client, mailer)

	a.AddUserMessage("reply to the report email")
	if _, err := a.RunTurn(context.Background()); err != nil {
		t.Fatalf("RunTurn: %v", err)
	}

	toolMsg := lastToolMessage(t, client.calls[1])
	if toolMsg.Content != tools.NoOpenEmailGuidance {
		t.Errorf("tool result = %q, want guidance message", toolMsg.Content)
	}
	if toolMsg.ToolCallID != "c1" {
		t.Errorf("tool result bound to %q, want c1", toolMsg.ToolCallID)
	}
}

func TestRunTurn_RecipientFromOpenEmail(t *testing.T) {
	var sent gmail.ReplyOptions
	mailer := &fakeMailer{
		getFunc: func(ctx context.Context, id string) (*gmailv1.Message, error) {
			return fullMessage(), nil
		},
		sendFunc: func(ctx context.Context, opts gmail.ReplyOptions) (*gmailv1.Message, error) {
			sent = opts
			return &gmailv1.Message{Id: "sent-1", ThreadId: opts.ThreadID}, nil
		},
	}
	client := &scriptedClient{script: []llm.ChatResponse{
		toolResp(call("c1", "get_email", `{"message_id":"m1"}`)),
		toolResp(call("c2", "send_reply", `{"thread_id":"t1","to":"attacker@evil.com","subject":"Re: Quarterly report","body":"Will do."}`)),
		finalResp("Reply sent."),
	}}
	a := newTestAgent(client, mailer)

	a.AddUserMessage("reply to alice")
	if _, err := a.RunTurn(context.Background()); err != nil {
		t.Fatalf("RunTurn: %v", err)
	}

	if sent.ReplyTo == nil {
		t.Fatal("SendReply called without the open email")
	}
	if sent.ReplyTo.From != "Alice Smith <alice@example.com>" {
		t.Errorf("recipient source = %q, want the opened email's From", sent.ReplyTo.From)
	}
}

func TestRunTurn_StepLimit(t *testing.T) {
	mailer := &fakeMailer{
		searchFunc: func(ctx context.Context, query string, maxResults int64) ([]gmail.MessageRef, error) {
			return nil, nil
		},
	}
	client := &scriptedClient{
		script: []llm.ChatResponse{toolResp(call("c1", "search_emails", `{"query":"report"}`))},
		repeat: true,
	}
	a := newTestAgent(client, mailer)

	a.AddUserMessage("find everything")
	got, err := a.RunTurn(context.Background())
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	if got != stepLimitMessage {
		t.Errorf("response = %q, want step limit message", got)
	}
	if len(client.calls) != maxIterations {
		t.Errorf("expected exactly %d completion calls, got %d", maxIterations, len(client.calls))
	}
}

func TestRunTurn_MalformedArguments(t *testing.T) {
	client := &scriptedClient{script: []llm.ChatResponse{
		toolResp(call("c1", "search_emails", `{not valid json`)),
		finalResp("Let me try that again."),
	}}
	a := newTestAgent(client, &fakeMailer{})

	a.AddUserMessage("search")
	got, err := a.RunTurn(context.Background())
	if err != nil {
		t.Fatalf("malformed arguments must not fail the turn: %v", err)
	}
	if got != "Let me try that again." {
		t.Errorf("response = %q", got)
	}

	toolMsg := lastToolMessage(t, client.calls[1])
	if !strings.HasPrefix(toolMsg.Content, "Error parsing arguments:") {
		t.Errorf("tool result = %q, want parse error text", toolMsg.Content)
	}
}

func TestRunTurn_UnknownTool(t *testing.T) {
	client := &scriptedClient{script: []llm.ChatResponse{
		toolResp(call("c1", "frobnicate", `{}`)),
		finalResp("That tool does not exist."),
	}}
	a := newTestAgent(client, &fakeMailer{})

	a.AddUserMessage("do the thing")
	if _, err := a.RunTurn(context.Background()); err != nil {
		t.Fatalf("RunTurn: %v", err)
	}

	toolMsg := lastToolMessage(t, client.calls[1])
	if toolMsg.Content != "Error: unknown tool: frobnicate" {
		t.Errorf("tool result = %q", toolMsg.Content)
	}
}

func TestRunTurn_CompletionErrorPropagates(t *testing.T) {
	wantErr := errors.New("rate limit exceeded")
	client := &scriptedClient{err: wantErr}
	a := newTestAgent(client, &fakeMailer{})

	a.AddUserMessage("hi")
	_, err := a.RunTurn(context.Background())
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected completion error to propagate, got %v", err)
	}
}

func TestRunTurn_DraftReadyFlow(t *testing.T) {
	mailer := &fakeMailer{
		searchFunc: func(ctx context.Context, query string, maxResults int64) ([]gmail.MessageRef, error) {
			if query != `subject:"quarterly report"` {
				t.Errorf("search query = %q", query)
			}
			return []gmail.MessageRef{{ID: "m1", ThreadID: "t1"}}, nil
		},
		getFunc: func(ctx context.Context, id string) (*gmailv1.Message, error) {
			return fullMessage(), nil
		},
	}
	client := &scriptedClient{
		script: []llm.ChatResponse{
			toolResp(call("c1", "search_emails", `{"query":"quarterly report"}`)),
			toolResp(call("c2", "get_email", `{"message_id":"m1"}`)),
			toolResp(call("c3", "generate_reply", `{"original_email":{"from":"Alice Smith <alice@example.com>","subject":"Quarterly report","body":"Please review the attached report."},"tone":"professional"}`)),
			finalResp("Draft ready: Thanks, I will review the report today."),
		},
		completeFunc: func(system, user string) (string, error) {
			return "Thanks, I will review the report today.", nil
		},
	}
	a := newTestAgent(client, mailer)

	a.AddUserMessage("draft a reply to the quarterly report email")
	got, err := a.RunTurn(context.Background())
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}

	if !strings.HasPrefix(got, "Draft ready:") {
		t.Errorf("response = %q, want draft announcement", got)
	}
	if len(client.calls) != 4 {
		t.Errorf("expected exactly 4 completion calls, got %d", len(client.calls))
	}
	replyResult := lastToolMessage(t, client.calls[3])
	if replyResult.Content != "Thanks, I will review the report today." {
		t.Errorf("generate_reply result = %q", replyResult.Content)
	}
}

func TestRunTurn_OpenEmailClearedBetweenTurns(t *testing.T) {
	mailer := &fakeMailer{
		getFunc: func(ctx context.Context, id string) (*gmailv1.Message, error) {
			return fullMessage(), nil
		},
		sendFunc: func(ctx context.Context, opts gmail.ReplyOptions) (*gmailv1.Message, error) {
			t.Fatal("SendReply must not run, the open email is from a previous turn")
			return nil, nil
		},
	}
	client := &scriptedClient{script: []llm.ChatResponse{
		toolResp(call("c1", "get_email", `{"message_id":"m1"}`)),
		finalResp("Opened the email from Alice."),
		toolResp(call("c2", "send_reply", `{"thread_id":"t1","subject":"Re: Quarterly report","body":"ok"}`)),
		finalResp("I need to open the email again first."),
	}}
	a := newTestAgent(client, mailer)

	a.AddUserMessage("open the report email")
	if _, err := a.RunTurn(context.Background()); err != nil {
		t.Fatalf("first turn: %v", err)
	}

	a.AddUserMessage("send that reply")
	if _, err := a.RunTurn(context.Background()); err != nil {
		t.Fatalf("second turn: %v", err)
	}

	toolMsg := lastToolMessage(t, client.calls[3])
	if toolMsg.Content != tools.NoOpenEmailGuidance {
		t.Errorf("tool result = %q, want guidance message", toolMsg.Content)
	}
}

func TestRunTurn_ToolResultsCapped(t *testing.T) {
	refs := make([]gmail.MessageRef, 200)
	for i := range refs {
		refs[i] = gmail.MessageRef{ID: strings.Repeat("x", 40), ThreadID: strings.Repeat("y", 40)}
	}
	mailer := &fakeMailer{
		searchFunc: func(ctx context.Context, query string, maxResults int64) ([]gmail.MessageRef, error) {
			return refs, nil
		},
	}
	client := &scriptedClient{script: []llm.ChatResponse{
		toolResp(call("c1", "search_emails", `{"query":"everything"}`)),
		finalResp("Found a lot."),
	}}
	a := newTestAgent(client, mailer)

	a.AddUserMessage("search everything")
	if _, err := a.RunTurn(context.Background()); err != nil {
		t.Fatalf("RunTurn: %v", err)
	}

	toolMsg := lastToolMessage(t, client.calls[1])
	if len(toolMsg.Content) > maxToolResultChars {
		t.Errorf("tool result length %d exceeds cap %d", len(toolMsg.Content), maxToolResultChars)
	}
	if !strings.HasSuffix(toolMsg.Content, truncateSuffix) {
		t.Error("oversized tool result missing truncation marker")
	}
}

type recordingUsage struct {
	records []usage.Record
}

func (r *recordingUsage) Record(ctx context.Context, rec usage.Record) error {
	r.records = append(r.records, rec)
	return nil
}

func TestRunTurn_RecordsUsage(t *testing.T) {
	client := &scriptedClient{script: []llm.ChatResponse{{
		Model:            "gpt-4",
		Message:          llm.Message{Role: "assistant", Content: "done"},
		PromptTokens:     120,
		CompletionTokens: 8,
	}}}
	rec := &recordingUsage{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	a := New(Options{
		Client:   client,
		Registry: tools.NewRegistry(&fakeMailer{}, client, logger),
		Usage:    rec,
		Logger:   logger,
	})

	a.AddUserMessage("hi")
	if _, err := a.RunTurn(context.Background()); err != nil {
		t.Fatalf("RunTurn: %v", err)
	}

	if len(rec.records) != 1 {
		t.Fatalf("expected 1 usage record, got %d", len(rec.records))
	}
	got := rec.records[0]
	if got.SessionID != a.SessionID() {
		t.Errorf("record session %q, want %q", got.SessionID, a.SessionID())
	}
	if got.Model != "gpt-4" || got.PromptTokens != 120 || got.CompletionTokens != 8 {
		t.Errorf("record = %+v", got)
	}
}
