package pipelinenode

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	contractx "github.com/resolvehq/resolve/agent/contract"
)

// WarningNotSaved is surfaced on the turn outcome when the interaction
// record could not be durably persisted.
const WarningNotSaved = "note: this conversation could not be saved to your support history"

// PersistRecord appends the turn's interaction record. A failed append is
// reported as a warning on the outcome; the reply is still delivered.
func PersistRecord(ctx context.Context, in *GraphState, store contractx.HistoryStore) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	rec := contractx.InteractionRecord{
		CustomerEmail:    in.Customer.Email,
		CreatedAt:        in.Now,
		RedactedMessage:  in.RedactedText,
		Intent:           in.Intent,
		ToolCalls:        in.ToolCalls,
		Response:         in.Reply,
		TicketID:         in.TicketID,
		GenerationFailed: in.GenerationFailed,
	}
	if err := store.Append(ctx, &rec); err != nil {
		log.Error().Err(err).Msg("interaction record not persisted")
		in.Warning = WarningNotSaved
	}
	return in, nil
}
