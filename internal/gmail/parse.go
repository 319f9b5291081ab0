package gmail

import (
	"encoding/base64"
	"strings"

	gmailv1 "google.golang.org/api/gmail/v1"
)

// MessageRef is a search result entry: just enough to fetch the full
// message later.
type MessageRef struct {
	ID       string `json:"id"`
	ThreadID string `json:"threadId"`
}

// ParsedEmail is the flat, model-facing view of a Gmail message. The
// JSON keys are what the agent's tools emit and what the reply prompts
// consume.
type ParsedEmail struct {
	From            string `json:"from"`
	To              string `json:"to"`
	Subject         string `json:"subject"`
	Body            string `json:"body"`
	Date            string `json:"date"`
	MessageID       string `json:"message_id"`
	ThreadID        string `json:"thread_id"`
	MessageIDHeader string `json:"message_id_header"`
	References      string `json:"references"`
	InReplyTo       string `json:"in_reply_to"`
}

// Parse flattens a full Gmail API message into a ParsedEmail.
// text/plain bodies are preferred; text/html bodies are stripped to
// readable text.
func Parse(msg *gmailv1.Message) *ParsedEmail {
	p := &ParsedEmail{
		MessageID: msg.Id,
		ThreadID:  msg.ThreadId,
	}
	if msg.Payload == nil {
		return p
	}

	p.From = header(msg.Payload, "From")
	p.To = header(msg.Payload, "To")
	p.Subject = header(msg.Payload, "Subject")
	p.Date = header(msg.Payload, "Date")
	p.MessageIDHeader = header(msg.Payload, "Message-ID")
	p.References = header(msg.Payload, "References")
	p.InReplyTo = header(msg.Payload, "In-Reply-To")
	p.Body = extractBody(msg.Payload)

	return p
}

// header returns the named header value, case-insensitively.
func header(payload *gmailv1.MessagePart, name string) string {
	for _, h := range payload.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// extractBody walks the MIME tree and returns the message text.
// A text/plain part anywhere in the tree wins; otherwise the first
// text/html part is stripped to text.
func extractBody(payload *gmailv1.MessagePart) string {
	if plain := findPart(payload, "text/plain"); plain != "" {
		return strings.TrimSpace(plain)
	}
	if html := findPart(payload, "text/html"); html != "" {
		return strings.TrimSpace(htmlToText(html))
	}
	return ""
}

// findPart returns the decoded body of the first part with the given
// MIME type, searching depth-first through nested multiparts.
func findPart(part *gmailv1.MessagePart, mimeType string) string {
	if part.MimeType == mimeType && part.Body != nil && part.Body.Data != "" {
		return decodeBody(part.Body.Data)
	}
	for _, child := range part.Parts {
		if s := findPart(child, mimeType); s != "" {
			return s
		}
	}
	return ""
}

// decodeBody decodes Gmail's base64url body data. The API documents
// unpadded output but padded data shows up in the wild, so both are
// accepted.
func decodeBody(data string) string {
	b, err := base64.URLEncoding.DecodeString(data)
	if err != nil {
		b, err = base64.RawURLEncoding.DecodeString(data)
		if err != nil {
			return ""
		}
	}
	return string(b)
}
