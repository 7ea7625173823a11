package tool

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	contractx "github.com/resolvehq/resolve/agent/contract"
	policyx "github.com/resolvehq/resolve/agent/policy"
	ticketx "github.com/resolvehq/resolve/agent/ticket"
)

const (
	ToolPolicyLookup  = "policy.lookup"
	ToolTicketCreate  = "ticket.create"
	ToolHistoryLookup = "history.lookup"
)

// Gateway binds the declared tools to the policy index, ticket registry,
// and history store. The active customer identity is supplied by the
// pipeline on every call, never by the model, so PII does not have to
// round-trip through the prompt.
type Gateway struct {
	policies *policyx.Index
	tickets  *ticketx.Registry
	history  contractx.HistoryStore
	specs    []contractx.ToolSpec
}

var _ contractx.ToolGateway = (*Gateway)(nil)

func NewGateway(policies *policyx.Index, tickets *ticketx.Registry, history contractx.HistoryStore) *Gateway {
	return &Gateway{
		policies: policies,
		tickets:  tickets,
		history:  history,
		specs:    buildSpecs(),
	}
}

func buildSpecs() []contractx.ToolSpec {
	return []contractx.ToolSpec{
		{
			Name: ToolPolicyLookup,
			Desc: "Look up the company policy most relevant to a topic (shipping, returns, refunds, store credit, privacy, order lookup).",
			Params: map[string]contractx.ParamSpec{
				"query": {Type: contractx.ParamString, Desc: "Topic or question to search policies for", Required: true},
			},
		},
		{
			Name: ToolTicketCreate,
			Desc: "Open a support ticket for the current customer's issue. Returns the new ticket, including its id.",
			Params: map[string]contractx.ParamSpec{
				"category":    {Type: contractx.ParamString, Desc: "Short issue category, e.g. damaged item, lost shipment", Required: true},
				"description": {Type: contractx.ParamString, Desc: "One-sentence description of the issue, without personal data", Required: true},
			},
		},
		{
			Name:   ToolHistoryLookup,
			Desc:   "Retrieve the current customer's past support interactions.",
			Params: map[string]contractx.ParamSpec{},
		},
	}
}

// Specs returns the declared tool schemas in a stable order.
func (g *Gateway) Specs() []contractx.ToolSpec {
	return g.specs
}

// Execute validates req against the declared schema and runs the bound
// function. Failures come back in ToolResult.Error so the conversation
// loop can hand them to the model instead of aborting the turn.
func (g *Gateway) Execute(ctx context.Context, customer contractx.Customer, req contractx.ToolRequest) contractx.ToolResult {
	spec, ok := g.spec(req.Tool)
	if !ok {
		return contractx.ToolResult{
			CallID: req.ID,
			Tool:   req.Tool,
			Error:  fmt.Sprintf("unknown tool %q", req.Tool),
		}
	}

	if err := validateArgs(spec, req.Args); err != nil {
		log.Warn().Str("tool", req.Tool).Err(err).Msg("tool arguments rejected")
		return contractx.ToolResult{
			CallID: req.ID,
			Tool:   req.Tool,
			Error:  err.Error(),
		}
	}

	result := contractx.ToolResult{CallID: req.ID, Tool: req.Tool}
	switch req.Tool {
	case ToolPolicyLookup:
		result.Result, result.Error = g.lookupPolicy(stringArg(req.Args, "query"))
	case ToolTicketCreate:
		result.Result, result.Error = g.createTicket(customer, stringArg(req.Args, "category"), stringArg(req.Args, "description"))
	case ToolHistoryLookup:
		result.Result, result.Error = g.lookupHistory(ctx, customer)
	}
	return result
}

type PolicyLookupOutput struct {
	Topic string `json:"topic"`
	Text  string `json:"text"`
}

func (g *Gateway) lookupPolicy(query string) (any, string) {
	entry, err := g.policies.Lookup(query)
	if errors.Is(err, policyx.ErrNoMatch) {
		return nil, fmt.Sprintf("no policy information found for %q", query)
	}
	if err != nil {
		return nil, err.Error()
	}
	return PolicyLookupOutput{Topic: entry.Topic, Text: entry.Text}, ""
}

func (g *Gateway) createTicket(customer contractx.Customer, category, description string) (any, string) {
	tk, err := g.tickets.Create(customer.Email, category, description)
	if err != nil {
		return nil, err.Error()
	}
	log.Info().Str("ticket_id", tk.ID).Str("category", tk.Category).Msg("ticket created")
	return tk, ""
}

type HistoryLookupOutput struct {
	Records []string `json:"records"`
}

func (g *Gateway) lookupHistory(ctx context.Context, customer contractx.Customer) (any, string) {
	records, err := g.history.Load(ctx, customer.Email)
	if err != nil {
		return nil, fmt.Sprintf("history unavailable: %v", err)
	}

	lines := make([]string, 0, len(records))
	for _, rec := range records {
		line := fmt.Sprintf("%s [%s] %s -> %s",
			rec.CreatedAt.UTC().Format("2006-01-02"), rec.Intent, rec.RedactedMessage, rec.Response)
		if rec.TicketID != "" {
			line += " (ticket " + rec.TicketID + ")"
		}
		lines = append(lines, line)
	}
	return HistoryLookupOutput{Records: lines}, ""
}

func (g *Gateway) spec(name string) (contractx.ToolSpec, bool) {
	for _, s := range g.specs {
		if s.Name == name {
			return s, true
		}
	}
	return contractx.ToolSpec{}, false
}

func validateArgs(spec contractx.ToolSpec, args map[string]any) error {
	for name := range args {
		if _, declared := spec.Params[name]; !declared {
			return fmt.Errorf("%w: argument %q is not declared for tool %s", contractx.ErrSchemaViolation, name, spec.Name)
		}
	}
	for name, param := range spec.Params {
		raw, present := args[name]
		if !present {
			if param.Required {
				return fmt.Errorf("%w: %s is required", contractx.ErrSchemaViolation, name)
			}
			continue
		}
		switch param.Type {
		case contractx.ParamString:
			s, ok := raw.(string)
			if !ok {
				return fmt.Errorf("%w: %s must be a string", contractx.ErrSchemaViolation, name)
			}
			if param.Required && strings.TrimSpace(s) == "" {
				return fmt.Errorf("%w: %s must not be empty", contractx.ErrSchemaViolation, name)
			}
		default:
			return fmt.Errorf("%w: unsupported parameter type %q", contractx.ErrSchemaViolation, param.Type)
		}
	}
	return nil
}

func stringArg(args map[string]any, name string) string {
	s, _ := args[name].(string)
	return strings.TrimSpace(s)
}
