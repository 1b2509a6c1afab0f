// Package filter narrows and orders transaction collections for the
// history and report views.
package filter

import (
	"slices"
	"strings"
	"time"

	"fintrack/internal/core"
)

// All is the value that disables the type and category predicates.
const All = "all"

// Spec holds the filter predicates. Zero values disable each one.
type Spec struct {
	Search   string
	Type     string
	Category string
	Start    time.Time
	End      time.Time
}

// IsZero reports whether no predicate is active.
func (s Spec) IsZero() bool {
	return strings.TrimSpace(s.Search) == "" &&
		isAll(s.Type) && isAll(s.Category) &&
		s.Start.IsZero() && s.End.IsZero()
}

// Match reports whether r satisfies every active predicate.
func (s Spec) Match(r core.Transaction) bool {
	if q := strings.ToLower(strings.TrimSpace(s.Search)); q != "" {
		if !strings.Contains(strings.ToLower(r.Description), q) &&
			!strings.Contains(strings.ToLower(r.Category), q) {
			return false
		}
	}
	if !isAll(s.Type) {
		typ, err := core.ParseTransactionType(s.Type)
		if err != nil || r.Type != typ {
			return false
		}
	}
	if !isAll(s.Category) && r.Category != s.Category {
		return false
	}
	if !s.Start.IsZero() || !s.End.IsZero() {
		at, ok := r.Time()
		if !ok {
			return false
		}
		if !s.Start.IsZero() && at.Before(s.Start) {
			return false
		}
		if !s.End.IsZero() && at.After(s.End) {
			return false
		}
	}
	return true
}

// Apply returns the records matching spec, most recent first. Records with
// equal dates keep their input order. The input slice is not modified.
func Apply(records []core.Transaction, spec Spec) []core.Transaction {
	out := make([]core.Transaction, 0, len(records))
	for _, r := range records {
		if spec.Match(r) {
			out = append(out, r)
		}
	}
	SortByDateDesc(out)
	return out
}

// SortByDateDesc sorts in place, newest first, stable for equal dates.
// Unparseable dates sort after every dated record.
func SortByDateDesc(records []core.Transaction) {
	slices.SortStableFunc(records, func(a, b core.Transaction) int {
		ta, okA := a.Time()
		tb, okB := b.Time()
		switch {
		case okA && okB:
			return tb.Compare(ta)
		case okA:
			return -1
		case okB:
			return 1
		default:
			return 0
		}
	})
}

// Categories returns the category facet: "all" followed by every distinct
// category in first-seen order.
func Categories(records []core.Transaction) []string {
	out := []string{All}
	seen := make(map[string]struct{}, len(records))
	for _, r := range records {
		if _, ok := seen[r.Category]; ok {
			continue
		}
		seen[r.Category] = struct{}{}
		out = append(out, r.Category)
	}
	return out
}

// Recent returns at most n of the newest records.
func Recent(records []core.Transaction, n int) []core.Transaction {
	sorted := Apply(records, Spec{})
	if n >= 0 && len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

// EndOfDay widens a date-only bound to the last instant of that day.
func EndOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 59, int(time.Second-time.Nanosecond), t.Location())
}

func isAll(v string) bool {
	v = strings.TrimSpace(v)
	return v == "" || strings.EqualFold(v, All)
}
