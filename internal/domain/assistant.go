package domain

import (
	"context"

	json "github.com/goccy/go-json"
)

// RunStatus is the provider-side state of a Run
type RunStatus string

// RunStatus constants
const (
	RunQueued         RunStatus = "queued"
	RunInProgress     RunStatus = "in_progress"
	RunRequiresAction RunStatus = "requires_action"
	RunCancelling     RunStatus = "cancelling"
	RunCancelled      RunStatus = "cancelled"
	RunFailed         RunStatus = "failed"
	RunCompleted      RunStatus = "completed"
	RunIncomplete     RunStatus = "incomplete"
	RunExpired        RunStatus = "expired"
)

// IsTerminal reports whether no further transition can happen
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunCompleted, RunFailed, RunExpired, RunCancelled, RunIncomplete:
		return true
	}
	return false
}

// IsFailure reports a terminal state that did not complete
func (s RunStatus) IsFailure() bool {
	return s.IsTerminal() && s != RunCompleted
}

// Run is one execution of the assistant over a thread
type Run struct {
	ID        string
	ThreadID  string
	Status    RunStatus
	ToolCalls []ToolCall // populated while Status == requires_action
	LastError string
}

// IsActive reports a non-terminal run
func (r Run) IsActive() bool {
	return !r.Status.IsTerminal()
}

// ToolCall is a function invocation requested by a run
type ToolCall struct {
	ID        string
	Name      string
	Arguments string // raw JSON object
}

// ToolOutput answers a ToolCall
type ToolOutput struct {
	ToolCallID string `json:"tool_call_id"`
	Output     string `json:"output"`
}

// Message roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ThreadMessage is a message held in a provider thread
type ThreadMessage struct {
	ID       string
	Role     string
	RunID    string
	Contents []MessageContent
}

// MessageContent is one content part of a ThreadMessage
type MessageContent struct {
	Type string
	Text string
}

// ToolDefinition declares a function tool to the provider
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  json.RawMessage // JSON schema
}

// AssistantProvider is the stateful thread/run API of the assistant provider
type AssistantProvider interface {
	CreateThread(ctx context.Context) (string, error)
	AddMessage(ctx context.Context, threadID, text string) error
	CreateRun(ctx context.Context, threadID string, tools []ToolDefinition) (Run, error)
	ListRuns(ctx context.Context, threadID string) ([]Run, error)
	SubmitToolOutputs(ctx context.Context, threadID, runID string, outputs []ToolOutput) (Run, error)
	CancelRun(ctx context.Context, threadID, runID string) (Run, error)
	// ListMessages returns the thread's messages newest first
	ListMessages(ctx context.Context, threadID string) ([]ThreadMessage, error)
}

// ToolDispatcher executes tool calls and exposes their schema
type ToolDispatcher interface {
	Dispatch(ctx context.Context, name, arguments string) string
	Tools() []ToolDefinition
}
