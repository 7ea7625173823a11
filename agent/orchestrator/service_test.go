package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	contractx "github.com/resolvehq/resolve/agent/contract"
	nodex "github.com/resolvehq/resolve/agent/nodes"
	policyx "github.com/resolvehq/resolve/agent/policy"
	ticketx "github.com/resolvehq/resolve/agent/ticket"
	toolx "github.com/resolvehq/resolve/agent/tool"
)

type fakeStore struct {
	records   []contractx.InteractionRecord
	loadErr   error
	appendErr error
}

func (f *fakeStore) Append(ctx context.Context, rec *contractx.InteractionRecord) error {
	if f.appendErr != nil {
		return f.appendErr
	}
	f.records = append(f.records, *rec)
	return nil
}

func (f *fakeStore) Load(ctx context.Context, email string) ([]contractx.InteractionRecord, error) {
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	var out []contractx.InteractionRecord
	for _, rec := range f.records {
		if rec.CustomerEmail == email {
			out = append(out, rec)
		}
	}
	return out, nil
}

// scripted reply: either an error or a ModelReply, consumed per call.
type modelTurn struct {
	reply contractx.ModelReply
	err   error
}

type fakeModel struct {
	turns    []modelTurn
	calls    int
	prompts  [][]contractx.ChatMessage
	lastSpec []contractx.ToolSpec
}

func (f *fakeModel) Generate(ctx context.Context, msgs []contractx.ChatMessage, tools []contractx.ToolSpec) (contractx.ModelReply, error) {
	f.calls++
	f.prompts = append(f.prompts, append([]contractx.ChatMessage(nil), msgs...))
	f.lastSpec = tools
	if len(f.turns) == 0 {
		return contractx.ModelReply{}, fmt.Errorf("no scripted turn left at call=%d", f.calls)
	}
	turn := f.turns[0]
	f.turns = f.turns[1:]
	if turn.err != nil {
		return contractx.ModelReply{}, turn.err
	}
	return turn.reply, nil
}

var zeroDelayRetry = nodex.RetryPolicy{
	MaxAttempts:     3,
	InitialInterval: time.Microsecond,
	MaxInterval:     time.Microsecond,
}

func newTestOrchestrator(t *testing.T, store *fakeStore, model *fakeModel) *Orchestrator {
	t.Helper()

	gateway := toolx.NewGateway(policyx.NewIndex(), ticketx.NewRegistry(), store)
	o, err := New(store, model, gateway, Config{Retry: zeroDelayRetry})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return o
}

var jane = contractx.Customer{Name: "Jane", Email: "jane@example.com"}

func TestHandleMessageInvalidInput(t *testing.T) {
	t.Parallel()

	o := newTestOrchestrator(t, &fakeStore{}, &fakeModel{})

	_, err := o.HandleMessage(context.Background(), contractx.Customer{Email: "not-an-email"}, "hello")
	if !errors.Is(err, ErrInvalidCustomer) {
		t.Fatalf("expected ErrInvalidCustomer, got %v", err)
	}

	_, err = o.HandleMessage(context.Background(), jane, "   ")
	if !errors.Is(err, ErrInvalidMessage) {
		t.Fatalf("expected ErrInvalidMessage, got %v", err)
	}
}

func TestHandleMessagePolicyPath(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	model := &fakeModel{turns: []modelTurn{
		{reply: contractx.ModelReply{ToolRequests: []contractx.ToolRequest{
			{ID: "call-1", Tool: toolx.ToolPolicyLookup, Args: map[string]any{"query": "return policy"}},
		}}},
		{reply: contractx.ModelReply{Content: "You can return items within 60 days for a full refund."}},
	}}
	o := newTestOrchestrator(t, store, model)

	out, err := o.HandleMessage(context.Background(), jane, "What is your return policy?")
	if err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if out.Reply != "You can return items within 60 days for a full refund." {
		t.Fatalf("unexpected reply: %q", out.Reply)
	}
	if out.Warning != "" {
		t.Fatalf("unexpected warning: %q", out.Warning)
	}

	if len(store.records) != 1 {
		t.Fatalf("expected 1 persisted record, got %d", len(store.records))
	}
	rec := store.records[0]
	if rec.RedactedMessage != "What is your return policy?" {
		t.Fatalf("message should be unchanged without PII: %q", rec.RedactedMessage)
	}
	if rec.Intent != contractx.IntentSupportRequest {
		t.Fatalf("unexpected intent: %s", rec.Intent)
	}
	if rec.TicketID != "" {
		t.Fatalf("no ticket expected, got %q", rec.TicketID)
	}
	if len(rec.ToolCalls) != 1 || rec.ToolCalls[0].Tool != toolx.ToolPolicyLookup {
		t.Fatalf("unexpected tool calls: %+v", rec.ToolCalls)
	}

	// The second model call must carry the tool result back.
	lastPrompt := model.prompts[len(model.prompts)-1]
	toolMsg := lastPrompt[len(lastPrompt)-1]
	if toolMsg.Role != contractx.RoleTool || toolMsg.ToolCallID != "call-1" {
		t.Fatalf("tool result not fed back: %+v", toolMsg)
	}
	if !strings.Contains(toolMsg.Content, "Returns") {
		t.Fatalf("tool result content missing policy: %q", toolMsg.Content)
	}
}

func TestHandleMessageTicketPathRedactsPII(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	model := &fakeModel{turns: []modelTurn{
		{reply: contractx.ModelReply{ToolRequests: []contractx.ToolRequest{
			{ID: "call-1", Tool: toolx.ToolTicketCreate, Args: map[string]any{
				"category":    "damaged item",
				"description": "order arrived broken",
			}},
		}}},
		{reply: contractx.ModelReply{Content: "I opened a ticket for you and we will follow up."}},
	}}
	o := newTestOrchestrator(t, store, model)

	out, err := o.HandleMessage(context.Background(), jane, "My order is broken, email me at jane@example.com")
	if err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if out.Reply == "" {
		t.Fatal("expected a reply")
	}

	rec := store.records[0]
	if !strings.Contains(rec.RedactedMessage, "[EMAIL REDACTED]") {
		t.Fatalf("placeholder missing from persisted message: %q", rec.RedactedMessage)
	}
	if strings.Contains(rec.RedactedMessage, "jane@example.com") {
		t.Fatalf("literal address persisted: %q", rec.RedactedMessage)
	}
	if rec.TicketID == "" || !strings.HasPrefix(rec.TicketID, ticketx.IDPrefix) {
		t.Fatalf("ticket id not captured: %q", rec.TicketID)
	}

	// No prompt handed to the model may contain the raw address.
	for _, prompt := range model.prompts {
		for _, msg := range prompt {
			if msg.Role == contractx.RoleUser && strings.Contains(msg.Content, "jane@example.com") {
				t.Fatalf("raw address reached the model: %q", msg.Content)
			}
		}
	}
}

func TestHandleMessageRetriesThenSucceeds(t *testing.T) {
	t.Parallel()

	transient := errors.New("model timeout")
	store := &fakeStore{}
	model := &fakeModel{turns: []modelTurn{
		{err: transient},
		{err: transient},
		{reply: contractx.ModelReply{Content: "Hello Jane, how can I help?"}},
	}}
	o := newTestOrchestrator(t, store, model)

	out, err := o.HandleMessage(context.Background(), jane, "hello there")
	if err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if out.Reply != "Hello Jane, how can I help?" {
		t.Fatalf("unexpected reply: %q", out.Reply)
	}
	if model.calls != 3 {
		t.Fatalf("expected 3 model calls, got %d", model.calls)
	}
	if len(store.records) != 1 {
		t.Fatalf("expected exactly 1 persisted record, got %d", len(store.records))
	}
	if store.records[0].GenerationFailed {
		t.Fatal("record must not be marked failed after a successful retry")
	}
}

func TestHandleMessageRetriesExhaustedFallsBack(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	model := &fakeModel{turns: []modelTurn{
		{err: errors.New("quota exceeded")},
		{err: errors.New("quota exceeded")},
		{err: errors.New("quota exceeded")},
	}}
	o := newTestOrchestrator(t, store, model)

	out, err := o.HandleMessage(context.Background(), jane, "hello there")
	if err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if out.Reply != nodex.FallbackReply {
		t.Fatalf("expected fallback reply, got %q", out.Reply)
	}
	if len(store.records) != 1 {
		t.Fatalf("expected 1 persisted record, got %d", len(store.records))
	}
	rec := store.records[0]
	if !rec.GenerationFailed {
		t.Fatal("record must be marked as failed generation")
	}
	if rec.Intent != contractx.IntentUnknown {
		t.Fatalf("unexpected intent: %s", rec.Intent)
	}
}

func TestHandleMessageToolRoundBound(t *testing.T) {
	t.Parallel()

	// The model keeps requesting tools forever; the loop must terminate
	// with the fallback reply after the bound.
	toolTurn := modelTurn{reply: contractx.ModelReply{ToolRequests: []contractx.ToolRequest{
		{ID: "loop", Tool: toolx.ToolPolicyLookup, Args: map[string]any{"query": "shipping"}},
	}}}
	store := &fakeStore{}
	model := &fakeModel{turns: []modelTurn{toolTurn, toolTurn, toolTurn, toolTurn, toolTurn}}
	o := newTestOrchestrator(t, store, model)

	out, err := o.HandleMessage(context.Background(), jane, "where is my package")
	if err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if out.Reply != nodex.FallbackReply {
		t.Fatalf("expected fallback reply, got %q", out.Reply)
	}
	if model.calls != 4 {
		t.Fatalf("expected 4 model calls (3 tool rounds + bound check), got %d", model.calls)
	}
	if len(store.records) != 1 {
		t.Fatalf("expected 1 persisted record, got %d", len(store.records))
	}
	if len(store.records[0].ToolCalls) != 3 {
		t.Fatalf("expected 3 recorded tool calls, got %d", len(store.records[0].ToolCalls))
	}
}

func TestHandleMessagePersistFailureWarnsButReplies(t *testing.T) {
	t.Parallel()

	store := &fakeStore{appendErr: errors.New("disk full")}
	model := &fakeModel{turns: []modelTurn{
		{reply: contractx.ModelReply{Content: "All good."}},
	}}
	o := newTestOrchestrator(t, store, model)

	out, err := o.HandleMessage(context.Background(), jane, "thanks!")
	if err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if out.Reply != "All good." {
		t.Fatalf("unexpected reply: %q", out.Reply)
	}
	if out.Warning != nodex.WarningNotSaved {
		t.Fatalf("expected not-saved warning, got %q", out.Warning)
	}
}

func TestHandleMessageIncludesHistoryContext(t *testing.T) {
	t.Parallel()

	store := &fakeStore{records: []contractx.InteractionRecord{{
		CustomerEmail:   "jane@example.com",
		CreatedAt:       time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC),
		RedactedMessage: "my package is late",
		Intent:          contractx.IntentSupportRequest,
		Response:        "We apologized and opened a ticket.",
		TicketID:        "TICKET_OLD",
	}}}
	model := &fakeModel{turns: []modelTurn{
		{reply: contractx.ModelReply{Content: "Welcome back!"}},
	}}
	o := newTestOrchestrator(t, store, model)

	if _, err := o.HandleMessage(context.Background(), jane, "hello again"); err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}

	prompt := model.prompts[0]
	var found bool
	for _, msg := range prompt {
		if msg.Role == contractx.RoleSystem && strings.Contains(msg.Content, "TICKET_OLD") {
			found = true
		}
	}
	if !found {
		t.Fatal("history context not included in the prompt")
	}
	if len(model.lastSpec) != 3 {
		t.Fatalf("expected 3 declared tools, got %d", len(model.lastSpec))
	}
}

func TestHandleMessageChitChatIntent(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	model := &fakeModel{turns: []modelTurn{
		{reply: contractx.ModelReply{Content: "Hi! How can I help today?"}},
	}}
	o := newTestOrchestrator(t, store, model)

	if _, err := o.HandleMessage(context.Background(), jane, "good morning"); err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if got := store.records[0].Intent; got != contractx.IntentChitChat {
		t.Fatalf("unexpected intent: %s", got)
	}
}
