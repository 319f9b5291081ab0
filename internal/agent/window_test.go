package agent

import (
	"strings"
	"testing"

	"github.com/mailpilot-ai/mailpilot/internal/llm"
)

func msg(role, content string) llm.Message {
	return llm.Message{Role: role, Content: content}
}

func toolMsg(id, content string) llm.Message {
	return llm.Message{Role: "tool", ToolCallID: id, Content: content}
}

func TestEstimateTokens(t *testing.T) {
	if got := estimateTokens(""); got != 1 {
		t.Errorf("empty string: got %d, want 1", got)
	}
	if got := estimateTokens("abc"); got != 1 {
		t.Errorf("short string: got %d, want 1", got)
	}
	if got := estimateTokens(strings.Repeat("x", 400)); got != 100 {
		t.Errorf("400 chars: got %d, want 100", got)
	}
}

func TestFitToBudget_AlreadyFitting(t *testing.T) {
	in := []llm.Message{
		msg("system", "sys"),
		msg("user", "hello"),
		msg("assistant", "hi"),
	}

	out := fitToBudget(in, 1000)
	if len(out) != len(in) {
		t.Fatalf("expected %d messages, got %d", len(in), len(out))
	}
	for i := range in {
		if out[i].Role != in[i].Role || out[i].Content != in[i].Content {
			t.Errorf("message %d changed: %+v", i, out[i])
		}
	}
}

func TestFitToBudget_PinsSystemMessage(t *testing.T) {
	in := []llm.Message{msg("system", "sys")}
	for i := 0; i < 50; i++ {
		in = append(in, msg("user", strings.Repeat("a", 400)))
	}

	out := fitToBudget(in, 500)
	if len(out) == 0 {
		t.Fatal("expected non-empty result")
	}
	if out[0].Role != "system" || out[0].Content != "sys" {
		t.Errorf("system message not pinned, got %+v", out[0])
	}
	if messagesTokenEstimate(out) > 500 {
		t.Errorf("result over budget: %d tokens", messagesTokenEstimate(out))
	}
	if len(out) >= len(in) {
		t.Errorf("expected messages dropped, got %d of %d", len(out), len(in))
	}
}

func TestFitToBudget_DropsOldestFirst(t *testing.T) {
	in := []llm.Message{
		msg("system", "sys"),
		msg("user", strings.Repeat("a", 400)),
		msg("assistant", strings.Repeat("b", 400)),
		msg("user", "latest question"),
	}

	out := fitToBudget(in, 110)
	if out[len(out)-1].Content != "latest question" {
		t.Errorf("newest message not kept, tail is %+v", out[len(out)-1])
	}
	for _, m := range out {
		if m.Content == strings.Repeat("a", 400) {
			t.Error("oldest non-system message should have been dropped first")
		}
	}
}

func TestFitToBudget_NoOrphanedToolResults(t *testing.T) {
	in := []llm.Message{
		msg("system", "sys"),
		{Role: "assistant", ToolCalls: []llm.ToolCall{{
			ID:       "call-1",
			Type:     "function",
			Function: llm.FunctionCall{Name: "search_emails", Arguments: strings.Repeat("x", 800)},
		}}},
		toolMsg("call-1", strings.Repeat("y", 800)),
		toolMsg("call-1", strings.Repeat("z", 800)),
		msg("user", "next"),
	}

	out := fitToBudget(in, 60)
	for i, m := range out {
		if m.Role != "tool" {
			continue
		}
		// A tool result must follow its tool-calling assistant message
		// or another tool result from the same batch.
		if i == 0 || (out[i-1].Role != "tool" && len(out[i-1].ToolCalls) == 0) {
			t.Errorf("orphaned tool result at %d: %+v", i, m)
		}
	}
}

func TestFitToBudget_Idempotent(t *testing.T) {
	in := []llm.Message{msg("system", "sys")}
	for i := 0; i < 30; i++ {
		in = append(in, msg("user", strings.Repeat("q", 200)))
		in = append(in, msg("assistant", strings.Repeat("r", 200)))
	}

	once := fitToBudget(in, 800)
	twice := fitToBudget(once, 800)

	if len(once) != len(twice) {
		t.Fatalf("not idempotent: %d then %d messages", len(once), len(twice))
	}
	for i := range once {
		if once[i].Content != twice[i].Content || once[i].Role != twice[i].Role {
			t.Errorf("message %d differs between passes", i)
		}
	}
}

func TestFitToBudget_DoesNotMutateInput(t *testing.T) {
	in := []llm.Message{
		msg("system", "sys"),
		msg("user", strings.Repeat("a", 400)),
		msg("user", "tail"),
	}
	before := make([]llm.Message, len(in))
	copy(before, in)

	fitToBudget(in, 10)

	for i := range in {
		if in[i].Role != before[i].Role || in[i].Content != before[i].Content {
			t.Errorf("input mutated at %d", i)
		}
	}
}

func TestFitToBudget_Empty(t *testing.T) {
	if out := fitToBudget(nil, 100); len(out) != 0 {
		t.Errorf("expected empty result, got %d messages", len(out))
	}
}
