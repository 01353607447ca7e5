package assistants

// RunStatus enumerates the lifecycle states a run moves through on the remote
// API. The set is fixed by the protocol; unknown values are preserved verbatim.
type RunStatus string

const (
	RunStatusQueued         RunStatus = "queued"
	RunStatusInProgress     RunStatus = "in_progress"
	RunStatusRequiresAction RunStatus = "requires_action"
	RunStatusCompleted      RunStatus = "completed"
	RunStatusFailed         RunStatus = "failed"
	RunStatusCancelled      RunStatus = "cancelled"
	RunStatusExpired        RunStatus = "expired"
)

// Terminal reports whether the status ends the run's lifecycle.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunStatusCompleted, RunStatusFailed, RunStatusCancelled, RunStatusExpired:
		return true
	}
	return false
}

// TerminalFailure reports whether the status ends the run without a result.
func (s RunStatus) TerminalFailure() bool {
	switch s {
	case RunStatusFailed, RunStatusCancelled, RunStatusExpired:
		return true
	}
	return false
}

// Roles used on thread messages.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Tool types with model-compatibility constraints.
const (
	ToolTypeCodeInterpreter = "code_interpreter"
	ToolTypeFileSearch      = "file_search"
	ToolTypeFunction        = "function"
)

// FunctionSpec describes a callable function advertised on an assistant tool.
type FunctionSpec struct {
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Parameters  *ParameterSchema `json:"parameters,omitempty"`
}

// ParameterSchema is the JSON-schema fragment declaring function parameters.
// Property order follows the declaration order in the stored schema document.
type ParameterSchema struct {
	Type       string                    `json:"type"`
	Properties map[string]PropertySchema `json:"properties,omitempty"`
	Required   []string                  `json:"required,omitempty"`
	// PropertyOrder preserves document order of Properties; JSON objects do
	// not retain order so it is rebuilt at decode time.
	PropertyOrder []string `json:"-"`
}

// PropertySchema describes one declared function parameter.
type PropertySchema struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

// Tool is one entry of an assistant's tool list.
type Tool struct {
	Type     string        `json:"type"`
	Function *FunctionSpec `json:"function,omitempty"`
}

// ToolResources mirrors the tool_resources object on an assistant.
type ToolResources struct {
	CodeInterpreter *CodeInterpreterResources `json:"code_interpreter,omitempty"`
}

// CodeInterpreterResources lists files attached for the code interpreter tool.
type CodeInterpreterResources struct {
	FileIDs []string `json:"file_ids"`
}

// Assistant is the remote assistant configuration.
type Assistant struct {
	ID            string         `json:"id"`
	Object        string         `json:"object"`
	CreatedAt     int64          `json:"created_at"`
	Name          string         `json:"name"`
	Model         string         `json:"model"`
	Instructions  string         `json:"instructions"`
	Tools         []Tool         `json:"tools"`
	ToolResources *ToolResources `json:"tool_resources,omitempty"`
}

// FileIDs returns the code-interpreter file attachments, never nil.
func (a *Assistant) FileIDs() []string {
	if a == nil || a.ToolResources == nil || a.ToolResources.CodeInterpreter == nil {
		return nil
	}
	return a.ToolResources.CodeInterpreter.FileIDs
}

// HasToolType reports whether the assistant's tool list contains the type.
func (a *Assistant) HasToolType(toolType string) bool {
	for _, tool := range a.Tools {
		if tool.Type == toolType {
			return true
		}
	}
	return false
}

// Thread is a remote conversation context.
type Thread struct {
	ID        string            `json:"id"`
	Object    string            `json:"object"`
	CreatedAt int64             `json:"created_at"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// TextContent carries the text payload of a message content block.
type TextContent struct {
	Value       string       `json:"value"`
	Annotations []Annotation `json:"annotations"`
}

// Annotation marks a span of message text referencing a generated or cited file.
type Annotation struct {
	Type         string        `json:"type"`
	Text         string        `json:"text"`
	FilePath     *FileRef      `json:"file_path,omitempty"`
	FileCitation *FileCitation `json:"file_citation,omitempty"`
}

// FileRef points at a file produced by a run.
type FileRef struct {
	FileID string `json:"file_id"`
}

// FileCitation references a source passage inside an attached file.
type FileCitation struct {
	FileID string `json:"file_id"`
	Quote  string `json:"quote,omitempty"`
}

// Content is one ordered block of message content.
type Content struct {
	Type string       `json:"type"`
	Text *TextContent `json:"text,omitempty"`
}

// Message is one entry of a thread's history.
type Message struct {
	ID        string    `json:"id"`
	Object    string    `json:"object"`
	CreatedAt int64     `json:"created_at"`
	ThreadID  string    `json:"thread_id"`
	RunID     string    `json:"run_id,omitempty"`
	Role      string    `json:"role"`
	Content   []Content `json:"content"`
}

// MessageList is a paginated message listing.
type MessageList struct {
	Object  string    `json:"object"`
	Data    []Message `json:"data"`
	FirstID string    `json:"first_id"`
	LastID  string    `json:"last_id"`
	HasMore bool      `json:"has_more"`
}

// ToolCall is one function invocation requested by a run in requires_action.
type ToolCall struct {
	ID       string           `json:"id"`
	Type     string           `json:"type"`
	Function ToolCallFunction `json:"function"`
}

// ToolCallFunction carries the requested function name and serialized arguments.
type ToolCallFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// SubmitToolOutputsAction lists the calls a paused run is waiting on.
type SubmitToolOutputsAction struct {
	ToolCalls []ToolCall `json:"tool_calls"`
}

// RequiredAction describes what a requires_action run needs to proceed.
type RequiredAction struct {
	Type              string                   `json:"type"`
	SubmitToolOutputs *SubmitToolOutputsAction `json:"submit_tool_outputs,omitempty"`
}

// Run is one assistant turn executed against a thread.
type Run struct {
	ID             string          `json:"id"`
	Object         string          `json:"object"`
	CreatedAt      int64           `json:"created_at"`
	ThreadID       string          `json:"thread_id"`
	AssistantID    string          `json:"assistant_id"`
	Status         RunStatus       `json:"status"`
	RequiredAction *RequiredAction `json:"required_action,omitempty"`
	LastError      *RunError       `json:"last_error,omitempty"`
}

// RunError is the remote-side failure detail attached to a failed run.
type RunError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PendingToolCalls returns the authoritative tool-call list of a paused run.
func (r *Run) PendingToolCalls() []ToolCall {
	if r == nil || r.RequiredAction == nil || r.RequiredAction.SubmitToolOutputs == nil {
		return nil
	}
	return r.RequiredAction.SubmitToolOutputs.ToolCalls
}

// ToolOutput is the submitted result for one tool call.
type ToolOutput struct {
	ToolCallID string `json:"tool_call_id"`
	Output     string `json:"output"`
}

// File is remote file metadata.
type File struct {
	ID        string `json:"id"`
	Object    string `json:"object"`
	Bytes     int64  `json:"bytes"`
	CreatedAt int64  `json:"created_at"`
	Filename  string `json:"filename"`
	Purpose   string `json:"purpose"`
}

// ListMessagesQuery narrows ListMessages. Zero values are omitted.
type ListMessagesQuery struct {
	Order  string
	Limit  int
	After  string
	Before string
}

// CreateAssistantRequest creates a remote assistant.
type CreateAssistantRequest struct {
	Name         string `json:"name,omitempty"`
	Model        string `json:"model"`
	Instructions string `json:"instructions,omitempty"`
	Tools        []Tool `json:"tools,omitempty"`
}

// UpdateAssistantRequest mutates a remote assistant. Nil fields are
// untouched. Tools is a pointer so an empty list still clears the remote
// tool set instead of being omitted.
type UpdateAssistantRequest struct {
	Name          string         `json:"name,omitempty"`
	Model         string         `json:"model,omitempty"`
	Instructions  string         `json:"instructions,omitempty"`
	Tools         *[]Tool        `json:"tools,omitempty"`
	ToolResources *ToolResources `json:"tool_resources,omitempty"`
}

// SeedMessage is a message included at thread creation.
type SeedMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
