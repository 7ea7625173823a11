package pipelinenode

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	contractx "github.com/resolvehq/resolve/agent/contract"
)

// LoadHistory fetches prior interactions for conversational context. An
// unreadable store degrades to an empty context rather than losing the
// turn; only a failed append is worth surfacing to the caller.
func LoadHistory(ctx context.Context, in *GraphState, store contractx.HistoryStore) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	records, err := store.Load(ctx, in.Customer.Email)
	if err != nil {
		log.Warn().Err(err).Msg("history load failed, continuing without context")
		return in, nil
	}
	in.History = records
	return in, nil
}
