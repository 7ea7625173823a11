package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/cloudwego/eino/compose"

	contractx "github.com/resolvehq/resolve/agent/contract"
	nodex "github.com/resolvehq/resolve/agent/nodes"
	promptx "github.com/resolvehq/resolve/agent/prompt"
)

var (
	ErrInvalidMessage  = nodex.ErrInvalidMessage
	ErrInvalidCustomer = nodex.ErrInvalidCustomer
)

const defaultMaxToolRounds = 3

type Config struct {
	// SystemPrompt overrides the embedded default when non-empty.
	SystemPrompt  string
	Retry         nodex.RetryPolicy
	MaxToolRounds int
}

// Orchestrator runs the per-turn pipeline: validate, redact, contextualize,
// generate with tool dispatch, persist, emit. Turns are strictly
// sequential; HandleMessage must not be called concurrently.
type Orchestrator struct {
	store contractx.HistoryStore
	model contractx.ChatModel
	tools contractx.ToolGateway

	graphRunner compose.Runnable[nodex.GraphInput, nodex.GraphOutput]

	systemPrompt  string
	retry         nodex.RetryPolicy
	maxToolRounds int

	now func() time.Time
}

func New(
	store contractx.HistoryStore,
	model contractx.ChatModel,
	tools contractx.ToolGateway,
	cfg Config,
) (*Orchestrator, error) {
	if store == nil {
		return nil, errors.New("history store is required")
	}
	if model == nil {
		return nil, errors.New("chat model is required")
	}
	if tools == nil {
		return nil, errors.New("tool gateway is required")
	}

	systemPrompt := cfg.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = promptx.System()
	}
	maxToolRounds := cfg.MaxToolRounds
	if maxToolRounds <= 0 {
		maxToolRounds = defaultMaxToolRounds
	}

	o := &Orchestrator{
		store:         store,
		model:         model,
		tools:         tools,
		systemPrompt:  systemPrompt,
		retry:         cfg.Retry,
		maxToolRounds: maxToolRounds,
		now:           time.Now,
	}

	graphRunner, err := o.compileHandleMessageGraph(context.Background())
	if err != nil {
		return nil, err
	}
	o.graphRunner = graphRunner

	return o, nil
}

// HandleMessage processes one turn for the given customer and returns the
// reply plus an optional non-fatal warning.
func (o *Orchestrator) HandleMessage(ctx context.Context, customer contractx.Customer, text string) (nodex.GraphOutput, error) {
	out, err := o.graphRunner.Invoke(ctx, nodex.GraphInput{
		Customer: customer,
		Text:     text,
	})
	if err != nil {
		return nodex.GraphOutput{}, err
	}
	return out, nil
}
