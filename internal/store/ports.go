// Package store defines the document store boundary: per-user transaction
// collections plus the account records the identity service keeps.
package store

import (
	"context"
	"errors"
	"time"

	"fintrack/internal/core"
)

// Document field names shared by every backend.
const (
	FieldType        = "type"
	FieldAmountCents = "amount_cents"
	FieldCategory    = "category"
	FieldDescription = "description"
	FieldDate        = "date"
	FieldCreatedAt   = "created_at"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("already exists")
)

type (
	// Document is a stored transaction as the backend returns it. Date may
	// be a backend timestamp (time.Time) or an ISO string.
	Document struct {
		ID     string
		Fields map[string]any
	}

	User struct {
		ID           string
		Email        string
		PasswordHash string
		Verified     bool
		CreatedAt    time.Time
	}

	// Token is a single-use verification or password reset token.
	Token struct {
		Value     string
		UserID    string
		Purpose   string
		ExpiresAt time.Time
	}
)

// Ports for the transaction collections. There is no update or delete.
type (
	Adder interface {
		// Add stores t in the user's collection, assigning the id and the
		// creation timestamp.
		Add(ctx context.Context, userID string, t core.Transaction) (Document, error)
	}

	Querier interface {
		// Query returns the user's collection ordered by date, newest first.
		Query(ctx context.Context, userID string) ([]Document, error)
	}

	Getter interface {
		Get(ctx context.Context, userID, id string) (Document, error)
	}

	TransactionStore interface {
		Adder
		Querier
		Getter
	}

	UserStore interface {
		CreateUser(ctx context.Context, u User) error
		UserByEmail(ctx context.Context, email string) (User, error)
		UserByID(ctx context.Context, id string) (User, error)
		SetVerified(ctx context.Context, userID string) error
		SetPasswordHash(ctx context.Context, userID, hash string) error
		SaveToken(ctx context.Context, t Token) error
		// ConsumeToken returns and deletes a live token; expired or unknown
		// tokens yield ErrNotFound.
		ConsumeToken(ctx context.Context, value, purpose string) (Token, error)
	}

	Pinger interface {
		Ping(ctx context.Context) error
	}
)

// NewDocument builds the field map for t.
func NewDocument(id string, t core.Transaction, date any, createdAt time.Time) Document {
	return Document{
		ID: id,
		Fields: map[string]any{
			FieldType:        t.Type.String(),
			FieldAmountCents: t.Amount.Cents,
			FieldCategory:    t.Category,
			FieldDescription: t.Description,
			FieldDate:        date,
			FieldCreatedAt:   createdAt,
		},
	}
}
