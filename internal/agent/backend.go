package agent

import "context"

// Backend is the named interface for the Model Backend — the LLM provider
// SDK — treated as an external collaborator. Concrete implementations live
// outside this package; the runner only depends on this contract plus the
// event stream it produces.
type Backend interface {
	// Invoke starts one model turn and streams events on the returned
	// channel until it closes. The channel is closed on completion, error,
	// or ctx cancellation — whichever comes first.
	Invoke(ctx context.Context, req BackendRequest) (<-chan BackendEvent, error)
}

// BackendRequest carries everything the Model Backend needs for one turn.
type BackendRequest struct {
	Provider           string
	ModelID            string
	ContextFiles       []string
	ToolNames          []string
	SkillsPrompt       string
	SystemPromptSuffix string
	ThinkingLevel      string
	SessionID          string
	Message            string
}

// BackendEventKind discriminates the four streamed event shapes a backend
// may emit.
type BackendEventKind string

const (
	EventMessageUpdate      BackendEventKind = "message_update"
	EventToolExecutionStart BackendEventKind = "tool_execution_start"
	EventToolExecutionEnd   BackendEventKind = "tool_execution_end"
	EventMessageEnd         BackendEventKind = "message_end"
)

// BackendEvent is one item on a Backend's event stream.
type BackendEvent struct {
	Kind BackendEventKind

	// EventMessageUpdate
	TextDelta string
	Role      string

	// EventToolExecutionStart / EventToolExecutionEnd
	ToolName   string
	ToolArgs   map[string]interface{}
	ToolResult string

	// EventMessageEnd
	FinalText string

	// Present on any event that concludes token accounting for the turn.
	Usage *Usage
}

// Usage reports token counts for a completed turn.
type Usage struct {
	Input  int64
	Output int64
}
