// Package prompts contains all LLM prompt templates used by mailpilot.
//
// Prompt text is Go code rather than config files because it is program
// logic: templates use fmt.Sprintf interpolation, benefit from
// compile-time embedding, and can be validated by tests.
//
// Convention: each prompt category gets its own file (system.go for the
// agent system prompt, reply.go for the reply writer) with an exported
// function or constant that returns the fully interpolated prompt.
package prompts
