package ticket

import (
	"crypto/rand"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	contractx "github.com/resolvehq/resolve/agent/contract"
)

// IDPrefix makes ticket identifiers recognizable in replies and logs.
const IDPrefix = "TICKET_"

// Registry issues tickets for the lifetime of the process. Every Create
// call produces a new ticket, even for identical arguments; tickets are
// never updated or deleted.
type Registry struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
	now     func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		entropy: ulid.Monotonic(rand.Reader, 0),
		now:     time.Now,
	}
}

// Create allocates a fresh 128-bit ticket identity. The only failure mode
// is entropy exhaustion, which the caller should treat as fatal.
func (r *Registry) Create(customerEmail, category, description string) (contractx.Ticket, error) {
	r.mu.Lock()
	id, err := ulid.New(ulid.Timestamp(r.now()), r.entropy)
	r.mu.Unlock()
	if err != nil {
		return contractx.Ticket{}, fmt.Errorf("allocate ticket id: %w", err)
	}

	return contractx.Ticket{
		ID:            IDPrefix + id.String(),
		CustomerEmail: strings.ToLower(strings.TrimSpace(customerEmail)),
		Category:      strings.TrimSpace(category),
		Description:   strings.TrimSpace(description),
		CreatedAt:     r.now().UTC(),
	}, nil
}
