package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "modernc.org/sqlite"

	contractx "github.com/resolvehq/resolve/agent/contract"
)

var (
	ErrNilRecord        = errors.New("interaction record is nil")
	ErrInvalidCustomer  = errors.New("customer email is empty")
	ErrCustomerNotFound = errors.New("customer not found")
)

type Config struct {
	Path string `envconfig:"PATH" split_words:"true" default:"support.db"`
}

// Store is the durable interaction log, backed by SQLite. Appends are
// single inserts, so a failed append never touches committed rows.
type Store struct {
	db *bun.DB
}

type customerRow struct {
	bun.BaseModel `bun:"table:customers,alias:c"`

	Email string `bun:"email,pk"`
	Name  string `bun:"name,notnull"`
}

type interactionRow struct {
	bun.BaseModel `bun:"table:interactions,alias:i"`

	ID               int64          `bun:"id,pk,autoincrement"`
	CustomerEmail    string         `bun:"customer_email,notnull"`
	CreatedAt        time.Time      `bun:"created_at,notnull"`
	RedactedMessage  string         `bun:"redacted_message,notnull"`
	Intent           string         `bun:"intent"`
	ToolCalls        string         `bun:"tool_calls"`
	Response         string         `bun:"response"`
	TicketID         sql.NullString `bun:"ticket_id"`
	GenerationFailed bool           `bun:"generation_failed,notnull,default:false"`
}

// Open opens (creating if necessary) the database at cfg.Path and applies
// the schema. An unusable store here is startup-fatal for the caller.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("history: database path is required")
	}

	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	sqldb, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("history: open database: %w", err)
	}

	db := bun.NewDB(sqldb, sqlitedialect.New())
	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.NewCreateTable().
		Model((*customerRow)(nil)).
		IfNotExists().
		Exec(ctx); err != nil {
		return fmt.Errorf("history: create customers table: %w", err)
	}

	if _, err := s.db.NewCreateTable().
		Model((*interactionRow)(nil)).
		IfNotExists().
		Exec(ctx); err != nil {
		return fmt.Errorf("history: create interactions table: %w", err)
	}

	if _, err := s.db.NewCreateIndex().
		Model((*interactionRow)(nil)).
		Index("idx_interactions_customer_email").
		Column("customer_email").
		IfNotExists().
		Exec(ctx); err != nil {
		return fmt.Errorf("history: create email index: %w", err)
	}

	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// UpsertCustomer registers the session identity, updating the display name
// when the email is already known.
func (s *Store) UpsertCustomer(ctx context.Context, c contractx.Customer) error {
	email := normalizeEmail(c.Email)
	if email == "" {
		return ErrInvalidCustomer
	}

	row := customerRow{Email: email, Name: strings.TrimSpace(c.Name)}
	if _, err := s.db.NewInsert().
		Model(&row).
		On("CONFLICT (email) DO UPDATE").
		Set("name = EXCLUDED.name").
		Exec(ctx); err != nil {
		return fmt.Errorf("history: upsert customer: %w", err)
	}
	return nil
}

// Customer returns the stored identity for email, or ErrCustomerNotFound.
func (s *Store) Customer(ctx context.Context, email string) (contractx.Customer, error) {
	key := normalizeEmail(email)
	if key == "" {
		return contractx.Customer{}, ErrInvalidCustomer
	}

	var row customerRow
	err := s.db.NewSelect().
		Model(&row).
		Where("email = ?", key).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return contractx.Customer{}, fmt.Errorf("%w: %s", ErrCustomerNotFound, key)
	}
	if err != nil {
		return contractx.Customer{}, fmt.Errorf("history: load customer: %w", err)
	}
	return contractx.Customer{Name: row.Name, Email: row.Email}, nil
}

// Append durably persists one interaction record.
func (s *Store) Append(ctx context.Context, rec *contractx.InteractionRecord) error {
	if rec == nil {
		return ErrNilRecord
	}
	email := normalizeEmail(rec.CustomerEmail)
	if email == "" {
		return ErrInvalidCustomer
	}

	row := interactionRow{
		CustomerEmail:    email,
		CreatedAt:        rec.CreatedAt.UTC(),
		RedactedMessage:  rec.RedactedMessage,
		Intent:           rec.Intent,
		Response:         rec.Response,
		GenerationFailed: rec.GenerationFailed,
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	if rec.TicketID != "" {
		row.TicketID = sql.NullString{String: rec.TicketID, Valid: true}
	}
	if len(rec.ToolCalls) > 0 {
		payload, err := json.Marshal(rec.ToolCalls)
		if err != nil {
			return fmt.Errorf("history: marshal tool calls: %w", err)
		}
		row.ToolCalls = string(payload)
	}

	if _, err := s.db.NewInsert().Model(&row).Exec(ctx); err != nil {
		return fmt.Errorf("history: append interaction: %w", err)
	}
	return nil
}

// Load returns all records for the identity in insertion order. No records
// is an empty slice, not an error.
func (s *Store) Load(ctx context.Context, customerEmail string) ([]contractx.InteractionRecord, error) {
	email := normalizeEmail(customerEmail)
	if email == "" {
		return nil, ErrInvalidCustomer
	}

	var rows []interactionRow
	if err := s.db.NewSelect().
		Model(&rows).
		Where("customer_email = ?", email).
		OrderExpr("id ASC").
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("history: load interactions: %w", err)
	}

	records := make([]contractx.InteractionRecord, 0, len(rows))
	for _, row := range rows {
		rec := contractx.InteractionRecord{
			CustomerEmail:    row.CustomerEmail,
			CreatedAt:        row.CreatedAt,
			RedactedMessage:  row.RedactedMessage,
			Intent:           row.Intent,
			Response:         row.Response,
			TicketID:         row.TicketID.String,
			GenerationFailed: row.GenerationFailed,
		}
		if row.ToolCalls != "" {
			if err := json.Unmarshal([]byte(row.ToolCalls), &rec.ToolCalls); err != nil {
				return nil, fmt.Errorf("history: unmarshal tool calls for record %d: %w", row.ID, err)
			}
		}
		records = append(records, rec)
	}
	return records, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
