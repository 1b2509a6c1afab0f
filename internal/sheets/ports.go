// Package sheets is the spreadsheet mirror boundary: stored transactions
// are copied row by row into an external sheet.
package sheets

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"fintrack/internal/core"
)

// Ports for outbound adapters. The mirror only ever appends.
type (
	RowAppender interface {
		Append(ctx context.Context, r Row) (rowRef string, err error)
	}

	// IDLister returns the transaction ids already present in the sheet.
	IDLister interface {
		MirroredIDs(ctx context.Context) (map[string]struct{}, error)
	}
)

// Row is one mirrored transaction. Amount is signed: expenses are negative
// so the sheet's column sum is the net balance.
type Row struct {
	ID          string
	UserID      string
	Date        string
	Type        string
	Category    string
	Description string
	Amount      decimal.Decimal
}

// Header is the column layout written by adapters.
var Header = []string{"ID", "User", "Date", "Type", "Category", "Description", "Amount"}

func NewRow(userID string, t core.Transaction) Row {
	date := t.Date
	if at, ok := t.Time(); ok {
		date = at.UTC().Format(time.DateTime)
	}
	amount := t.Amount.Decimal()
	if t.Type == core.Expense {
		amount = amount.Neg()
	}
	return Row{
		ID:          t.ID,
		UserID:      userID,
		Date:        date,
		Type:        t.Type.Label(),
		Category:    t.Category,
		Description: t.Description,
		Amount:      amount,
	}
}
