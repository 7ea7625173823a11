package pipelinenode

import (
	"fmt"

	"github.com/rs/zerolog/log"

	contractx "github.com/resolvehq/resolve/agent/contract"
	redactx "github.com/resolvehq/resolve/agent/redact"
)

// RedactInput sanitizes the raw user text. Everything downstream, including
// the persisted record, sees only the redacted form.
func RedactInput(in *GraphState) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	in.RedactedText, in.PIIFound = redactx.Redact(in.RawText)
	if in.PIIFound {
		log.Debug().Msg("pii redacted from user message")
	}
	return in, nil
}
