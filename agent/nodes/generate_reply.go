package pipelinenode

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"

	contractx "github.com/resolvehq/resolve/agent/contract"
	toolx "github.com/resolvehq/resolve/agent/tool"
)

// FallbackReply is returned when the model capability is exhausted or the
// tool-call bound is exceeded.
const FallbackReply = "I'm sorry, I couldn't process your request. How can I assist you?"

// historyContextLimit caps how many prior records go into the prompt.
const historyContextLimit = 10

// RetryPolicy bounds retries around each model call. Tests substitute a
// near-zero-delay policy.
type RetryPolicy struct {
	MaxAttempts     uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts == 0 {
		p.MaxAttempts = 3
	}
	if p.InitialInterval <= 0 {
		p.InitialInterval = 500 * time.Millisecond
	}
	if p.MaxInterval <= 0 {
		p.MaxInterval = 5 * time.Second
	}
	return p
}

// GenerateReply runs the model/tool loop for one turn: invoke the model
// with the declared tools, execute any requested calls through the
// gateway, feed results back, and stop at the first plain-text reply.
// At most maxToolRounds tool rounds run; past that, or when retries are
// exhausted, the turn terminates with the fallback reply. Failures are
// captured in the state, never returned, so the turn is always persisted.
func GenerateReply(
	ctx context.Context,
	in *GraphState,
	model contractx.ChatModel,
	tools contractx.ToolGateway,
	systemPrompt string,
	retry RetryPolicy,
	maxToolRounds int,
) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	msgs := []contractx.ChatMessage{
		{Role: contractx.RoleSystem, Content: systemPrompt},
	}
	if summary := historyContext(in.History); summary != "" {
		msgs = append(msgs, contractx.ChatMessage{
			Role:    contractx.RoleSystem,
			Content: "Previous interactions with this customer:\n" + summary,
		})
	}
	msgs = append(msgs, contractx.ChatMessage{Role: contractx.RoleUser, Content: in.RedactedText})

	specs := tools.Specs()
	for round := 0; ; round++ {
		reply, err := generateWithRetry(ctx, model, msgs, specs, retry)
		if err != nil {
			log.Error().Err(err).Msg("model capability exhausted, falling back")
			in.Reply = FallbackReply
			in.Intent = contractx.IntentUnknown
			in.GenerationFailed = true
			return in, nil
		}

		if len(reply.ToolRequests) == 0 {
			in.Reply = strings.TrimSpace(reply.Content)
			if in.Reply == "" {
				in.Reply = FallbackReply
			}
			break
		}

		if round >= maxToolRounds {
			log.Warn().Int("rounds", round).Msg("tool-call bound exceeded, terminating turn")
			in.Reply = FallbackReply
			break
		}

		msgs = append(msgs, contractx.ChatMessage{
			Role:      contractx.RoleAssistant,
			Content:   reply.Content,
			ToolCalls: reply.ToolRequests,
			Raw:       reply.Raw,
		})
		for _, req := range reply.ToolRequests {
			res := tools.Execute(ctx, in.Customer, req)
			in.ToolCalls = append(in.ToolCalls, contractx.ToolCallRecord{
				Tool:   req.Tool,
				Args:   req.Args,
				Result: res.Result,
				Error:  res.Error,
			})
			if req.Tool == toolx.ToolTicketCreate && res.Error == "" {
				if tk, ok := res.Result.(contractx.Ticket); ok {
					in.TicketID = tk.ID
				}
			}
			msgs = append(msgs, contractx.ChatMessage{
				Role:       contractx.RoleTool,
				ToolCallID: req.ID,
				Content:    marshalToolResult(res),
			})
		}
	}

	if len(in.ToolCalls) > 0 {
		in.Intent = contractx.IntentSupportRequest
	} else {
		in.Intent = contractx.IntentChitChat
	}
	return in, nil
}

func generateWithRetry(
	ctx context.Context,
	model contractx.ChatModel,
	msgs []contractx.ChatMessage,
	specs []contractx.ToolSpec,
	retry RetryPolicy,
) (contractx.ModelReply, error) {
	p := retry.withDefaults()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.InitialInterval
	bo.MaxInterval = p.MaxInterval
	bo.MaxElapsedTime = 0

	var reply contractx.ModelReply
	op := func() error {
		r, err := model.Generate(ctx, msgs, specs)
		if err != nil {
			log.Debug().Err(err).Msg("model invoke failed, will retry")
			return err
		}
		reply = r
		return nil
	}

	if err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(bo, p.MaxAttempts-1), ctx)); err != nil {
		return contractx.ModelReply{}, fmt.Errorf("%w: %v", contractx.ErrModelInvoke, err)
	}
	return reply, nil
}

func historyContext(records []contractx.InteractionRecord) string {
	if len(records) == 0 {
		return ""
	}
	if len(records) > historyContextLimit {
		records = records[len(records)-historyContextLimit:]
	}

	lines := make([]string, 0, len(records))
	for _, rec := range records {
		line := fmt.Sprintf("%s [%s] customer: %s / agent: %s",
			rec.CreatedAt.UTC().Format("2006-01-02"), rec.Intent, rec.RedactedMessage, rec.Response)
		if rec.TicketID != "" {
			line += " (ticket " + rec.TicketID + ")"
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func marshalToolResult(res contractx.ToolResult) string {
	payload, err := json.Marshal(res)
	if err != nil {
		return fmt.Sprintf(`{"tool":%q,"error":"result not serializable"}`, res.Tool)
	}
	return string(payload)
}
