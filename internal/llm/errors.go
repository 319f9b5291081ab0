package llm

import "fmt"

// CompletionError wraps any failure talking to the completion API.
// Rate limits, connection failures, and HTTP-level errors all surface
// through this one type; callers that care about the cause can unwrap.
type CompletionError struct {
	Op  string // "chat", "complete", "ping"
	Err error
}

func (e *CompletionError) Error() string {
	return fmt.Sprintf("completion %s: %v", e.Op, e.Err)
}

func (e *CompletionError) Unwrap() error { return e.Err }

func completionErr(op string, err error) error {
	return &CompletionError{Op: op, Err: err}
}
