package core

import (
	"errors"
	"strings"
	"time"
)

// TransactionType is the closed set of transaction kinds.
type TransactionType int

const (
	Income TransactionType = iota + 1
	Expense
)

type (
	Money struct {
		Cents int64
	}

	// Transaction is a single recorded income or expense event.
	// Date is an ISO-8601 string; all filtering and sorting goes through Time.
	Transaction struct {
		ID          string
		Type        TransactionType
		Amount      Money
		Category    string
		Description string
		Date        string
	}

	// Draft is the raw user input of the creation form.
	Draft struct {
		Type        string
		Amount      string
		Category    string
		Description string
	}
)

var (
	ErrInvalidType        = errors.New("invalid transaction type")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrMissingAmount      = errors.New("amount is required")
	ErrMissingCategory    = errors.New("category is required")
	ErrMissingDescription = errors.New("description is required")
	ErrInvalidDate        = errors.New("invalid date")
)

// ParseTransactionType accepts "income" or "expense" in any case.
func ParseTransactionType(s string) (TransactionType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "income":
		return Income, nil
	case "expense":
		return Expense, nil
	default:
		return 0, ErrInvalidType
	}
}

func (t TransactionType) Valid() bool {
	return t == Income || t == Expense
}

func (t TransactionType) String() string {
	switch t {
	case Income:
		return "income"
	case Expense:
		return "expense"
	default:
		return ""
	}
}

// Label is the capitalised form used in tables and reports.
func (t TransactionType) Label() string {
	switch t {
	case Income:
		return "Income"
	case Expense:
		return "Expense"
	default:
		return ""
	}
}

// Sign is the display prefix for signed amounts.
func (t TransactionType) Sign() string {
	switch t {
	case Income:
		return "+"
	case Expense:
		return "-"
	default:
		return ""
	}
}

func (t TransactionType) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, ErrInvalidType
	}
	return []byte(t.String()), nil
}

func (t *TransactionType) UnmarshalText(b []byte) error {
	parsed, err := ParseTransactionType(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Validate rejects negative amounts and amounts above MaxAmountCents.
func (m Money) Validate() error {
	if m.Cents < 0 || m.Cents > MaxAmountCents {
		return ErrInvalidAmount
	}
	return nil
}

// Validate checks the record invariants.
func (t Transaction) Validate() error {
	if !t.Type.Valid() {
		return ErrInvalidType
	}
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(t.Category) == "" {
		return ErrMissingCategory
	}
	if strings.TrimSpace(t.Description) == "" {
		return ErrMissingDescription
	}
	return nil
}

// Time parses Date. Records whose date cannot be parsed report ok=false.
func (t Transaction) Time() (time.Time, bool) {
	return ParseISODate(t.Date)
}

// ParseISODate understands RFC 3339 timestamps (with or without fraction)
// and plain YYYY-MM-DD dates.
func ParseISODate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"} {
		if tm, err := time.Parse(layout, s); err == nil {
			return tm, true
		}
	}
	return time.Time{}, false
}

// FormatISO renders t the way the document store normalises timestamps.
func FormatISO(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

// Validate rejects blank required fields and unparseable input. It never
// mutates the draft.
func (d Draft) Validate() error {
	if strings.TrimSpace(d.Amount) == "" {
		return ErrMissingAmount
	}
	if strings.TrimSpace(d.Category) == "" {
		return ErrMissingCategory
	}
	if strings.TrimSpace(d.Description) == "" {
		return ErrMissingDescription
	}
	if _, err := ParseTransactionType(d.Type); err != nil {
		return err
	}
	if _, err := ParseDecimalToCents(d.Amount); err != nil {
		return err
	}
	return nil
}

// Transaction converts a validated draft into a record dated at now.
// The id is left for the store to assign.
func (d Draft) Transaction(now time.Time) (Transaction, error) {
	if err := d.Validate(); err != nil {
		return Transaction{}, err
	}
	typ, _ := ParseTransactionType(d.Type)
	cents, _ := ParseDecimalToCents(d.Amount)
	return Transaction{
		Type:        typ,
		Amount:      Money{Cents: cents},
		Category:    strings.TrimSpace(d.Category),
		Description: strings.TrimSpace(d.Description),
		Date:        FormatISO(now),
	}, nil
}
