package core

// Part represents a polymorphic piece of message content. Concrete part
// types implement the unexported isPart marker enabling a closed set.
type Part interface{ isPart() }

// TextPart is a plain text content segment. A well-formed ChatMessage carries
// at most one of these; see Consolidate.
type TextPart struct {
	Text string // Plain UTF-8 text
}

// isPart implements the Part interface for TextPart.
func (TextPart) isPart() {}

// DataPart is an inline binary segment (image bytes, audio, generated media).
type DataPart struct {
	Bytes    []byte // Raw content
	MIMEType string // e.g. "image/png"
	Name     string // Original filename hint, may be empty
}

// isPart implements the Part interface for DataPart.
func (DataPart) isPart() {}

// LinkPart references external content by URI instead of inlining it.
type LinkPart struct {
	URI      string
	MIMEType string // Optional MIME hint
}

// isPart implements the Part interface for LinkPart.
func (LinkPart) isPart() {}

// ToolCall describes a tool invocation requested by the model.
type ToolCall struct {
	ID        string `json:"id,omitempty"`        // Stable id; assigned by the orchestrator when the provider omits one
	Name      string `json:"name"`                // Tool name
	Arguments string `json:"arguments,omitempty"` // Serialized JSON argument payload
}

// ToolCallPart wraps a ToolCall as a content part.
type ToolCallPart struct {
	Call ToolCall
}

// isPart implements the Part interface for ToolCallPart.
func (ToolCallPart) isPart() {}

// ToolResult describes the outcome of a tool call. Exactly one result must
// exist per call id before a turn is considered tool-complete.
type ToolResult struct {
	ID    string `json:"id,omitempty"`    // Matches the originating ToolCall ID
	Name  string `json:"name"`            // Tool name
	Value any    `json:"value,omitempty"` // Successful result (any JSON-serializable shape)
	Error string `json:"error,omitempty"` // Populated on failure; the model sees and may react to it
}

// ToolResultPart wraps a ToolResult as a content part.
type ToolResultPart struct {
	Result ToolResult
}

// isPart implements the Part interface for ToolResultPart.
func (ToolResultPart) isPart() {}
