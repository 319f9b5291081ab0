package llm

import (
	"context"

	"github.com/mailpilot-ai/mailpilot/internal/prompts"
)

// replyMaxTokens bounds the single-shot reply completions. Replies are
// short by instruction; this is headroom, not a target.
const replyMaxTokens = 500

// GenerateReply asks the model for a reply to the given email.
// tone defaults to "professional" and language to "en" upstream.
func GenerateReply(ctx context.Context, c Client, email prompts.ReplyEmail, replyContext, tone, language string) (string, error) {
	user := prompts.GenerateReply(email, replyContext, tone, language)
	return c.Complete(ctx, prompts.GenerateReplySystem, user, replyMaxTokens)
}

// ImproveReply asks the model to revise a reply based on user feedback.
func ImproveReply(ctx context.Context, c Client, originalReply, feedback, language string) (string, error) {
	user := prompts.ImproveReply(originalReply, feedback, language)
	return c.Complete(ctx, prompts.ImproveReplySystem, user, replyMaxTokens)
}
