package contract

import "context"

// ChatModel is the opaque model capability: given a prompt and declared
// tools, produce text and zero-or-more tool invocations. May fail
// transiently; retry policy is the caller's concern.
type ChatModel interface {
	Generate(ctx context.Context, msgs []ChatMessage, tools []ToolSpec) (ModelReply, error)
}

// ToolGateway exposes the deterministic tools as schema-validated
// callables. Execute never returns a Go error: schema and domain failures
// come back inside the ToolResult.
type ToolGateway interface {
	Specs() []ToolSpec
	Execute(ctx context.Context, customer Customer, req ToolRequest) ToolResult
}

// HistoryStore is the durable per-customer interaction log. Load returns
// records in insertion order; an identity with no records yields an empty
// slice, not an error.
type HistoryStore interface {
	Append(ctx context.Context, rec *InteractionRecord) error
	Load(ctx context.Context, customerEmail string) ([]InteractionRecord, error)
}
