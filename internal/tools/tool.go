// Package tools implements the canonical local tool set the Agent Runner
// advertises in its system prompt. The Model Backend is an external
// collaborator that actually decides which tool to call and with what
// arguments; these implementations are what it would dispatch into, and
// what pkg/browser's tool wraps for the extra "browser" entry.
package tools

import "context"

// Result is what a Tool.Execute call hands back up to the model turn.
type Result struct {
	ForLLM  string   // text the model sees
	Media   []string // local file paths to deliver as attachments
	IsError bool
	Silent  bool // true when the caller should not surface this to the user
}

// NewResult wraps plain text for the model.
func NewResult(text string) *Result {
	return &Result{ForLLM: text}
}

// ErrorResult wraps an error message, flagged so the model can distinguish
// a failed call from a successful empty one.
func ErrorResult(message string) *Result {
	return &Result{ForLLM: message, IsError: true}
}

// SilentResult wraps text that should not be echoed back to the user
// (e.g. a bare "file written" confirmation the dispatcher would drop).
func SilentResult(text string) *Result {
	return &Result{ForLLM: text, Silent: true}
}

// Tool is the contract every entry in the canonical tool set satisfies.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]interface{}
	Execute(ctx context.Context, args map[string]interface{}) *Result
}
