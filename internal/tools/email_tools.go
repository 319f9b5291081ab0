package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	gmailv1 "google.golang.org/api/gmail/v1"

	"github.com/mailpilot-ai/mailpilot/internal/gmail"
	"github.com/mailpilot-ai/mailpilot/internal/llm"
	"github.com/mailpilot-ai/mailpilot/internal/prompts"
)

const (
	defaultSearchResults = 10
	defaultListEntries   = 10
)

func (r *Registry) registerBuiltins() {
	r.register(&Tool{
		Name:        "search_emails",
		Description: "Search Gmail by subject or query. Returns message summaries with id and threadId.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "Search query (subject or keywords)",
				},
				"max_results": map[string]any{
					"type":        "integer",
					"description": "Max results (default 10)",
					"default":     defaultSearchResults,
				},
			},
			"required": []string{"query"},
		},
		Handler: r.handleSearchEmails,
	})

	r.register(&Tool{
		Name: "list_emails_summary",
		Description: "Given message refs from search_emails (id, threadId), return a numbered summary: " +
			"index, subject, sender, date, id. Use that line's id for get_email(id) when user picks.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"messages": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "object"},
					"description": "List of message refs from search_emails (id, threadId)",
				},
				"max_entries": map[string]any{
					"type":        "integer",
					"description": "Max entries to include (default 10)",
					"default":     defaultListEntries,
				},
			},
			"required": []string{"messages"},
		},
		Handler: r.handleListEmailsSummary,
	})

	r.register(&Tool{
		Name:        "get_email",
		Description: "Fetch the full raw email message by its Gmail message ID.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"message_id": map[string]any{
					"type":        "string",
					"description": "Gmail message ID",
				},
			},
			"required": []string{"message_id"},
		},
		Handler: r.handleGetEmail,
	})

	r.register(&Tool{
		Name:        "parse_email",
		Description: "Parse a Gmail message. Pass full message from get_email or a message_id string.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"message": map[string]any{
					"type":        "object",
					"description": "Full message from get_email",
				},
				"message_id": map[string]any{
					"type":        "string",
					"description": "Gmail message ID (alternative to message)",
				},
			},
			"required": []string{},
		},
		Handler: r.handleParseEmail,
	})

	r.register(&Tool{
		Name:        "generate_reply",
		Description: "Generate an AI reply for a parsed email. Returns reply body text only.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"original_email": map[string]any{
					"type":        "object",
					"description": "Parsed email (from, to, subject, body)",
				},
				"context": map[string]any{
					"type":        "string",
					"description": "Optional extra context for the reply",
				},
				"tone": map[string]any{
					"type":        "string",
					"description": "Tone: professional, friendly, casual",
					"default":     "professional",
				},
				"language": map[string]any{
					"type":        "string",
					"description": "en or he",
					"default":     "en",
				},
			},
			"required": []string{"original_email"},
		},
		Handler: r.handleGenerateReply,
	})

	r.register(&Tool{
		Name:        "improve_reply",
		Description: "Improve an existing reply from user feedback. Returns improved reply body.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"original_reply": map[string]any{
					"type":        "string",
					"description": "Current reply text",
				},
				"feedback": map[string]any{
					"type":        "string",
					"description": "User feedback on how to improve",
				},
				"language": map[string]any{
					"type":        "string",
					"description": "en or he",
					"default":     "en",
				},
			},
			"required": []string{"original_reply", "feedback"},
		},
		Handler: r.handleImproveReply,
	})

	r.register(&Tool{
		Name:        "send_reply",
		Description: "Send an email reply in a thread. Use thread_id, subject, body from parsed email.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"thread_id": map[string]any{
					"type":        "string",
					"description": "Gmail thread ID",
				},
				"to": map[string]any{
					"type":        "string",
					"description": "Ignored; recipient comes from the open email",
				},
				"subject": map[string]any{
					"type":        "string",
					"description": "Subject (Re: added if missing)",
				},
				"body": map[string]any{
					"type":        "string",
					"description": "Plain text body of the reply",
				},
			},
			"required": []string{"thread_id", "subject", "body"},
		},
		NeedsOpenEmail: true,
		Handler:        r.handleSendReply,
	})

	r.register(&Tool{
		Name:        "create_draft",
		Description: "Create a draft (do not send). Optionally provide thread_id.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"to": map[string]any{
					"type":        "string",
					"description": "Ignored; recipient comes from the open email",
				},
				"subject": map[string]any{
					"type":        "string",
					"description": "Subject line",
				},
				"body": map[string]any{
					"type":        "string",
					"description": "Plain text body",
				},
				"thread_id": map[string]any{
					"type":        "string",
					"description": "Optional Gmail thread ID",
				},
			},
			"required": []string{"subject", "body"},
		},
		NeedsOpenEmail: true,
		Handler:        r.handleCreateDraft,
	})
}

type searchEmailsArgs struct {
	Query      string `json:"query"`
	MaxResults int64  `json:"max_results"`
}

func (r *Registry) handleSearchEmails(ctx context.Context, _ *State, args json.RawMessage) (string, error) {
	var a searchEmailsArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return "", fmt.Errorf("bad arguments: %w", err)
	}
	if a.Query == "" {
		return "", errors.New("query is required")
	}
	if a.MaxResults <= 0 {
		a.MaxResults = defaultSearchResults
	}

	refs, err := r.mail.Search(ctx, subjectQuery(a.Query), a.MaxResults)
	if err != nil {
		return "", err
	}

	out, err := json.Marshal(refs)
	if err != nil {
		return "", fmt.Errorf("encode results: %w", err)
	}
	return string(out), nil
}

// subjectQuery turns a plain query into a Gmail subject search,
// quoting multi-word queries so Gmail treats them as one phrase.
func subjectQuery(query string) string {
	q := strings.TrimSpace(query)
	if strings.ContainsRune(q, ' ') {
		return fmt.Sprintf("subject:%q", q)
	}
	return "subject:" + q
}

type listRef struct {
	ID        string `json:"id"`
	MessageID string `json:"message_id"`
}

func (ref listRef) id() string {
	if ref.ID != "" {
		return ref.ID
	}
	return ref.MessageID
}

// listSummaryArgs accepts the message list under the common alternate
// key names models tend to invent.
type listSummaryArgs struct {
	Messages      []listRef `json:"messages"`
	MessageList   []listRef `json:"message_list"`
	Emails        []listRef `json:"emails"`
	SearchResults []listRef `json:"search_results"`
	MaxEntries    int       `json:"max_entries"`
}

func (a listSummaryArgs) refs() []listRef {
	switch {
	case len(a.Messages) > 0:
		return a.Messages
	case len(a.MessageList) > 0:
		return a.MessageList
	case len(a.Emails) > 0:
		return a.Emails
	default:
		return a.SearchResults
	}
}

func (r *Registry) handleListEmailsSummary(ctx context.Context, _ *State, args json.RawMessage) (string, error) {
	var a listSummaryArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return "Error: messages must be a list of message refs from search_emails.", nil
	}

	refs := a.refs()
	if len(refs) == 0 {
		return "No messages to summarize.", nil
	}
	if a.MaxEntries <= 0 {
		a.MaxEntries = defaultListEntries
	}
	if len(refs) > a.MaxEntries {
		refs = refs[:a.MaxEntries]
	}

	var lines []string
	for i, ref := range refs {
		id := ref.id()
		if id == "" {
			lines = append(lines, fmt.Sprintf("%d. [no id]", i+1))
			continue
		}
		msg, err := r.mail.Get(ctx, id)
		if err != nil {
			r.logger.Debug("summary entry failed", "id", id, "error", err)
			lines = append(lines, fmt.Sprintf("%d. [error loading] (id: %s)", i+1, id))
			continue
		}
		parsed := gmail.Parse(msg)
		lines = append(lines, fmt.Sprintf("%d. %s | %s | %s (id: %s)",
			i+1, clip(parsed.Subject, 60), clip(parsed.From, 40), parsed.Date, id))
	}

	return strings.Join(lines, "\n"), nil
}

// clip shortens s to max characters, counting runes so multibyte
// subjects and sender names never get cut mid-character.
func clip(s string, max int) string {
	r := []rune(s)
	if len(r) > max {
		return string(r[:max])
	}
	return s
}

type getEmailArgs struct {
	MessageID string `json:"message_id"`
}

func (r *Registry) handleGetEmail(ctx context.Context, st *State, args json.RawMessage) (string, error) {
	var a getEmailArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return "", fmt.Errorf("bad arguments: %w", err)
	}
	if a.MessageID == "" {
		return "", errors.New("message_id is required")
	}

	msg, err := r.mail.Get(ctx, a.MessageID)
	if err != nil {
		return "", err
	}

	st.OpenEmail = gmail.Parse(msg)

	out, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("encode message: %w", err)
	}
	return string(out), nil
}

type parseEmailArgs struct {
	Message   json.RawMessage `json:"message"`
	MessageID string          `json:"message_id"`
}

func (r *Registry) handleParseEmail(ctx context.Context, st *State, args json.RawMessage) (string, error) {
	var a parseEmailArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return "", fmt.Errorf("bad arguments: %w", err)
	}

	var msg *gmailv1.Message
	switch {
	case a.MessageID != "":
		m, err := r.mail.Get(ctx, a.MessageID)
		if err != nil {
			return "", err
		}
		msg = m
	case len(a.Message) > 0 && string(a.Message) != "null":
		msg = &gmailv1.Message{}
		if err := json.Unmarshal(a.Message, msg); err != nil {
			return "", fmt.Errorf("message is not a Gmail message object: %w", err)
		}
	default:
		return "", errors.New("parse_email requires a message from get_email or a message_id string")
	}

	parsed := gmail.Parse(msg)
	st.OpenEmail = parsed

	out, err := json.Marshal(parsed)
	if err != nil {
		return "", fmt.Errorf("encode parsed email: %w", err)
	}
	return string(out), nil
}

type replyEmailArg struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
	Date    string `json:"date"`
}

type generateReplyArgs struct {
	OriginalEmail *replyEmailArg `json:"original_email"`
	Context       string         `json:"context"`
	Tone          string         `json:"tone"`
	Language      string         `json:"language"`
}

func (r *Registry) handleGenerateReply(ctx context.Context, st *State, args json.RawMessage) (string, error) {
	var a generateReplyArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return "", fmt.Errorf("bad arguments: %w", err)
	}
	if a.Tone == "" {
		a.Tone = "professional"
	}

	// The model usually echoes the parsed email, but the open email
	// slot is the reliable source when it doesn't.
	email := prompts.ReplyEmail{}
	switch {
	case a.OriginalEmail != nil:
		email = prompts.ReplyEmail{
			From:    a.OriginalEmail.From,
			Subject: a.OriginalEmail.Subject,
			Date:    a.OriginalEmail.Date,
			Body:    a.OriginalEmail.Body,
		}
	case st.OpenEmail != nil:
		email = prompts.ReplyEmail{
			From:    st.OpenEmail.From,
			Subject: st.OpenEmail.Subject,
			Date:    st.OpenEmail.Date,
			Body:    st.OpenEmail.Body,
		}
	}

	return llm.GenerateReply(ctx, r.llm, email, a.Context, a.Tone, a.Language)
}

type improveReplyArgs struct {
	OriginalReply string `json:"original_reply"`
	Feedback      string `json:"feedback"`
	Language      string `json:"language"`
}

func (r *Registry) handleImproveReply(ctx context.Context, _ *State, args json.RawMessage) (string, error) {
	var a improveReplyArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return "", fmt.Errorf("bad arguments: %w", err)
	}
	if a.OriginalReply == "" || a.Feedback == "" {
		return "", errors.New("original_reply and feedback are required")
	}

	return llm.ImproveReply(ctx, r.llm, a.OriginalReply, a.Feedback, a.Language)
}

type sendReplyArgs struct {
	ThreadID string `json:"thread_id"`
	To       string `json:"to"` // ignored, recipient comes from the open email
	Subject  string `json:"subject"`
	Body     string `json:"body"`
}

func (r *Registry) handleSendReply(ctx context.Context, st *State, args json.RawMessage) (string, error) {
	var a sendReplyArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return "", fmt.Errorf("bad arguments: %w", err)
	}
	if a.ThreadID == "" || a.Subject == "" || a.Body == "" {
		return "", errors.New("thread_id, subject and body are required")
	}

	sent, err := r.mail.SendReply(ctx, gmail.ReplyOptions{
		ThreadID: a.ThreadID,
		Subject:  a.Subject,
		Body:     a.Body,
		ReplyTo:  st.OpenEmail,
	})
	if err != nil {
		return "", err
	}

	out, err := json.Marshal(sent)
	if err != nil {
		return "", fmt.Errorf("encode sent message: %w", err)
	}
	return string(out), nil
}

type createDraftArgs struct {
	To       string `json:"to"` // ignored, recipient comes from the open email
	Subject  string `json:"subject"`
	Body     string `json:"body"`
	ThreadID string `json:"thread_id"`
}

func (r *Registry) handleCreateDraft(ctx context.Context, st *State, args json.RawMessage) (string, error) {
	var a createDraftArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return "", fmt.Errorf("bad arguments: %w", err)
	}
	if a.Subject == "" || a.Body == "" {
		return "", errors.New("subject and body are required")
	}

	draft, err := r.mail.CreateDraft(ctx, gmail.DraftOptions{
		ThreadID: a.ThreadID,
		Subject:  a.Subject,
		Body:     a.Body,
		ReplyTo:  st.OpenEmail,
	})
	if err != nil {
		return "", err
	}

	out, err := json.Marshal(draft)
	if err != nil {
		return "", fmt.Errorf("encode draft: %w", err)
	}
	return string(out), nil
}
