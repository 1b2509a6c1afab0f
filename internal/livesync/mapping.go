package livesync

import (
	"fmt"
	"strconv"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/store"
)

// ToTransaction maps a stored document to a record. Backend timestamps are
// normalised to ISO strings; string dates pass through unchanged.
func ToTransaction(doc store.Document) (core.Transaction, error) {
	typ, err := core.ParseTransactionType(stringField(doc.Fields, store.FieldType))
	if err != nil {
		return core.Transaction{}, fmt.Errorf("document %s: %w", doc.ID, err)
	}
	cents, err := centsField(doc.Fields[store.FieldAmountCents])
	if err != nil {
		return core.Transaction{}, fmt.Errorf("document %s: %w", doc.ID, err)
	}
	return core.Transaction{
		ID:          doc.ID,
		Type:        typ,
		Amount:      core.Money{Cents: cents},
		Category:    stringField(doc.Fields, store.FieldCategory),
		Description: stringField(doc.Fields, store.FieldDescription),
		Date:        dateField(doc.Fields[store.FieldDate]),
	}, nil
}

// ToTransactions maps docs in order, skipping documents that cannot be read.
func ToTransactions(docs []store.Document) ([]core.Transaction, []error) {
	out := make([]core.Transaction, 0, len(docs))
	var errs []error
	for _, d := range docs {
		t, err := ToTransaction(d)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, t)
	}
	return out, errs
}

func dateField(v any) string {
	switch d := v.(type) {
	case time.Time:
		return core.FormatISO(d)
	case *time.Time:
		if d == nil {
			return ""
		}
		return core.FormatISO(*d)
	case string:
		return d
	case nil:
		return ""
	default:
		return fmt.Sprint(d)
	}
}

func centsField(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case float64:
		return int64(n), nil
	case string:
		return strconv.ParseInt(n, 10, 64)
	default:
		return 0, fmt.Errorf("amount: unsupported value %T", v)
	}
}

func stringField(fields map[string]any, key string) string {
	switch v := fields[key].(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}
