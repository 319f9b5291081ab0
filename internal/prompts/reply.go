package prompts

import (
	"fmt"
	"strings"
)

// System prompts for the two reply-writer completions.
const (
	GenerateReplySystem = "You are a helpful email assistant that writes clear, concise, and appropriate email replies."
	ImproveReplySystem  = "You are a helpful email assistant that improves email replies based on feedback."
)

// ReplyEmail carries the fields of the email being replied to that the
// reply prompt interpolates. Zero values get placeholder text so the
// template never renders empty sections.
type ReplyEmail struct {
	From    string
	Subject string
	Date    string
	Body    string
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// GenerateReply builds the user prompt asking for a reply to the given
// email in the given tone. context is optional extra guidance from the
// user. language selects the reply language ("en" or "he").
func GenerateReply(email ReplyEmail, context, tone, language string) string {
	var b strings.Builder

	fmt.Fprintf(&b, `Generate a %s email reply to the following email:

From: %s
Subject: %s
Date: %s

Body:
%s
`,
		tone,
		orDefault(email.From, "Unknown"),
		orDefault(email.Subject, "No Subject"),
		orDefault(email.Date, "Unknown"),
		orDefault(email.Body, "No body content"),
	)

	if context != "" {
		fmt.Fprintf(&b, "\nAdditional context: %s\n", context)
	}

	b.WriteString("\nPlease write a clear, concise, and appropriate reply. Do not include the subject line or email headers, just the body text of the reply.")
	b.WriteString(languageSuffix(language))

	return b.String()
}

// ImproveReply builds the user prompt asking for a revision of a reply
// based on feedback.
func ImproveReply(originalReply, feedback, language string) string {
	var b strings.Builder

	fmt.Fprintf(&b, `The following email reply needs to be improved based on this feedback:

Original reply:
%s

Feedback:
%s

Please provide an improved version of the reply.`, originalReply, feedback)

	b.WriteString(languageSuffix(language))

	return b.String()
}

// languageSuffix appends an explicit language instruction for non-English
// replies. English is the model default and needs no instruction.
func languageSuffix(language string) string {
	if language == "he" {
		return "\nWrite the reply in Hebrew."
	}
	return ""
}
