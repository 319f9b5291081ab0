package gmail

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	gmailv1 "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const userID = "me"

// Service wraps the Gmail API for the agent's tools. A fresh API
// client is built per call so the oauth2 transport can refresh the
// token transparently.
type Service struct {
	cfg    *oauth2.Config
	tok    *Token
	logger *slog.Logger
}

// NewService creates a Service from the shared oauth2 config and
// token manager.
func NewService(cfg *oauth2.Config, tok *Token, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{cfg: cfg, tok: tok, logger: logger.With("gateway", "gmail")}
}

func (s *Service) svc(ctx context.Context) (*gmailv1.Service, error) {
	t, err := s.tok.OAuthToken()
	if err != nil {
		return nil, fmt.Errorf("oauth token: %w", err)
	}

	clt := s.cfg.Client(ctx, t)

	svc, err := gmailv1.NewService(ctx, option.WithHTTPClient(clt))
	if err != nil {
		return nil, fmt.Errorf("gmail service: %w", err)
	}
	return svc, nil
}

// Search returns message refs matching the Gmail query, newest first.
func (s *Service) Search(ctx context.Context, query string, maxResults int64) ([]MessageRef, error) {
	svc, err := s.svc(ctx)
	if err != nil {
		return nil, err
	}

	result, err := svc.Users.Messages.List(userID).
		Q(query).
		MaxResults(maxResults).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("search emails: %w", err)
	}

	refs := make([]MessageRef, 0, len(result.Messages))
	for _, m := range result.Messages {
		refs = append(refs, MessageRef{ID: m.Id, ThreadID: m.ThreadId})
	}

	s.logger.Debug("search complete", "query", query, "results", len(refs))
	return refs, nil
}

// Get fetches the full message by ID. A missing message yields
// ErrNotFound.
func (s *Service) Get(ctx context.Context, messageID string) (*gmailv1.Message, error) {
	svc, err := s.svc(ctx)
	if err != nil {
		return nil, err
	}

	msg, err := svc.Users.Messages.Get(userID, messageID).
		Format("full").
		Context(ctx).
		Do()
	if err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound {
			return nil, fmt.Errorf("message %s: %w", messageID, ErrNotFound)
		}
		return nil, fmt.Errorf("get email: %w", err)
	}
	return msg, nil
}

// ReplyOptions describes a reply to send. ReplyTo is the parsed email
// being answered; the recipient and threading headers derive from it.
type ReplyOptions struct {
	ThreadID string
	Subject  string
	Body     string
	ReplyTo  *ParsedEmail
}

// SendReply sends a reply in the given thread. The subject gets a
// "Re: " prefix if missing and the recipient always comes from the
// replied-to email's From header.
func (s *Service) SendReply(ctx context.Context, opts ReplyOptions) (*gmailv1.Message, error) {
	if opts.ReplyTo == nil {
		return nil, errors.New("send reply: no email to reply to")
	}

	to, err := ReplyRecipient(opts.ReplyTo.From)
	if err != nil {
		return nil, fmt.Errorf("send reply: %w", err)
	}

	raw, err := composeMessage(composeOptions{
		To:         to,
		Subject:    normalizeReplySubject(opts.Subject),
		Body:       opts.Body,
		InReplyTo:  stripAngles(opts.ReplyTo.MessageIDHeader),
		References: referenceChain(opts.ReplyTo),
	})
	if err != nil {
		return nil, fmt.Errorf("send reply: %w", err)
	}

	svc, err := s.svc(ctx)
	if err != nil {
		return nil, err
	}

	sent, err := svc.Users.Messages.Send(userID, &gmailv1.Message{
		Raw:      base64.RawURLEncoding.EncodeToString(raw),
		ThreadId: opts.ThreadID,
	}).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("send reply: %w", err)
	}

	s.logger.Info("reply sent", "id", sent.Id, "threadId", sent.ThreadId, "to", to)
	return sent, nil
}

// DraftOptions describes a draft to create. ThreadID is optional;
// ReplyTo supplies the recipient and, when threading, the headers.
type DraftOptions struct {
	ThreadID string
	Subject  string
	Body     string
	ReplyTo  *ParsedEmail
}

// CreateDraft creates a draft without sending it.
func (s *Service) CreateDraft(ctx context.Context, opts DraftOptions) (*gmailv1.Draft, error) {
	if opts.ReplyTo == nil {
		return nil, errors.New("create draft: no email to reply to")
	}

	to, err := ReplyRecipient(opts.ReplyTo.From)
	if err != nil {
		return nil, fmt.Errorf("create draft: %w", err)
	}

	co := composeOptions{
		To:      to,
		Subject: opts.Subject,
		Body:    opts.Body,
	}
	if opts.ThreadID != "" {
		co.InReplyTo = stripAngles(opts.ReplyTo.MessageIDHeader)
		co.References = referenceChain(opts.ReplyTo)
	}

	raw, err := composeMessage(co)
	if err != nil {
		return nil, fmt.Errorf("create draft: %w", err)
	}

	svc, err := s.svc(ctx)
	if err != nil {
		return nil, err
	}

	msg := &gmailv1.Message{Raw: base64.RawURLEncoding.EncodeToString(raw)}
	if opts.ThreadID != "" {
		msg.ThreadId = opts.ThreadID
	}

	draft, err := svc.Users.Drafts.Create(userID, &gmailv1.Draft{Message: msg}).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("create draft: %w", err)
	}

	s.logger.Info("draft created", "id", draft.Id, "to", to)
	return draft, nil
}

// ReplyRecipient extracts the reply address from a From header value
// like "Name <addr@host>" or a bare address. It fails when no address
// is present, so a reply can never go to a model-invented recipient.
func ReplyRecipient(from string) (string, error) {
	addr := strings.TrimSpace(from)
	if start := strings.LastIndexByte(addr, '<'); start != -1 {
		if end := strings.LastIndexByte(addr, '>'); end > start {
			addr = addr[start+1 : end]
		}
	}
	addr = strings.TrimSpace(addr)
	if !strings.Contains(addr, "@") {
		return "", fmt.Errorf("no reply address in From header %q", from)
	}
	return addr, nil
}

// normalizeReplySubject ensures the subject carries a reply prefix.
func normalizeReplySubject(subject string) string {
	if strings.HasPrefix(subject, "Re:") || strings.HasPrefix(subject, "RE:") {
		return subject
	}
	return "Re: " + subject
}

// referenceChain builds the References list for a reply: the original
// chain, then the replied-to message's own Message-ID.
func referenceChain(replyTo *ParsedEmail) []string {
	var refs []string
	for _, r := range strings.Fields(replyTo.References) {
		if id := stripAngles(r); id != "" {
			refs = append(refs, id)
		}
	}
	if id := stripAngles(replyTo.MessageIDHeader); id != "" {
		refs = append(refs, id)
	}
	return refs
}

// stripAngles removes the angle brackets of an RFC 5322 message ID;
// the mail writer re-adds them.
func stripAngles(id string) string {
	id = strings.TrimSpace(id)
	id = strings.TrimPrefix(id, "<")
	id = strings.TrimSuffix(id, ">")
	return id
}
