package contract

import "time"

// Customer identifies the active session. Email is the identity key;
// it is normalized to lower case before any store access.
type Customer struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// PolicyEntry is one topic/text pair from the static policy corpus.
type PolicyEntry struct {
	Topic string `json:"topic"`
	Text  string `json:"text"`
}

// Ticket is an append-only escalation record. Identity is the ID.
type Ticket struct {
	ID            string    `json:"id"`
	CustomerEmail string    `json:"customer_email"`
	Category      string    `json:"category"`
	Description   string    `json:"description"`
	CreatedAt     time.Time `json:"created_at"`
}

// ToolCallRecord captures one executed tool call for persistence.
type ToolCallRecord struct {
	Tool   string         `json:"tool"`
	Args   map[string]any `json:"args,omitempty"`
	Result any            `json:"result,omitempty"`
	Error  string         `json:"error,omitempty"`
}

// InteractionRecord summarizes one completed turn. Records are append-only;
// RedactedMessage must never contain unredacted PII.
type InteractionRecord struct {
	CustomerEmail    string           `json:"customer_email"`
	CreatedAt        time.Time        `json:"created_at"`
	RedactedMessage  string           `json:"redacted_message"`
	Intent           string           `json:"intent,omitempty"`
	ToolCalls        []ToolCallRecord `json:"tool_calls,omitempty"`
	Response         string           `json:"response"`
	TicketID         string           `json:"ticket_id,omitempty"`
	GenerationFailed bool             `json:"generation_failed,omitempty"`
}

const (
	IntentSupportRequest = "support_request"
	IntentChitChat       = "chitchat"
	IntentUnknown        = "unknown"
)

// ToolRequest is a tool invocation requested by the model.
type ToolRequest struct {
	ID   string         `json:"id,omitempty"`
	Tool string         `json:"tool"`
	Args map[string]any `json:"args,omitempty"`
}

// ToolResult is the structured outcome of a tool invocation. Domain and
// schema failures go into Error; they never surface as Go errors.
type ToolResult struct {
	CallID string `json:"-"`
	Tool   string `json:"tool"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// ParamType is the declared type of a tool argument.
type ParamType string

const (
	ParamString ParamType = "string"
)

type ParamSpec struct {
	Type     ParamType
	Desc     string
	Required bool
}

// ToolSpec declares one callable the model may request by name.
type ToolSpec struct {
	Name   string
	Desc   string
	Params map[string]ParamSpec
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ChatMessage is one entry of the prompt handed to the model capability.
// Raw optionally carries the provider-native form of an assistant turn so
// tool-call rounds replay exactly; fakes leave it nil.
type ChatMessage struct {
	Role       string        `json:"role"`
	Content    string        `json:"content,omitempty"`
	ToolCalls  []ToolRequest `json:"tool_calls,omitempty"`
	ToolCallID string        `json:"tool_call_id,omitempty"`
	Raw        any           `json:"-"`
}

// ModelReply is what the model capability produced for one round: free
// text, zero or more tool requests, or both.
type ModelReply struct {
	Content      string
	ToolRequests []ToolRequest
	Raw          any
}
