package pipelinenode

import (
	"errors"
	"strings"
	"time"

	contractx "github.com/resolvehq/resolve/agent/contract"
	redactx "github.com/resolvehq/resolve/agent/redact"
)

var (
	ErrInvalidMessage  = errors.New("message is empty")
	ErrInvalidCustomer = errors.New("customer email is malformed")
)

type GraphInput struct {
	Customer contractx.Customer
	Text     string
}

type GraphOutput struct {
	Reply string
	// Warning is set when the turn completed but was not durably saved.
	Warning string
}

// GraphState is threaded through the per-turn pipeline. RawText never
// leaves this struct; every later stage works on RedactedText only.
type GraphState struct {
	Customer contractx.Customer
	RawText  string
	Now      time.Time

	RedactedText string
	PIIFound     bool
	History      []contractx.InteractionRecord

	Reply            string
	Intent           string
	ToolCalls        []contractx.ToolCallRecord
	TicketID         string
	GenerationFailed bool
	Warning          string
}

func ValidateRequest(in GraphInput, nowFn func() time.Time) (*GraphState, error) {
	email := strings.TrimSpace(in.Customer.Email)
	if !redactx.IsEmailAddress(email) {
		return nil, ErrInvalidCustomer
	}

	text := strings.TrimSpace(in.Text)
	if text == "" {
		return nil, ErrInvalidMessage
	}

	return &GraphState{
		Customer: contractx.Customer{
			Name:  strings.TrimSpace(in.Customer.Name),
			Email: strings.ToLower(email),
		},
		RawText: text,
		Now:     nowFn().UTC(),
	}, nil
}
