// Package report builds the financial report for a filtered view and
// renders it as a PDF document.
package report

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"fintrack/internal/core"
	"fintrack/internal/filter"
)

const Title = "Financial Report"

// ErrNothingToExport is returned when the filtered view is empty.
var ErrNothingToExport = errors.New("no transactions to export")

type Row struct {
	Date        string
	Type        string
	Category    string
	Description string
	Amount      string
}

type Report struct {
	Title       string
	Period      string
	Filter      string
	Totals      core.Totals
	Income      string
	Expenses    string
	Net         string
	Rows        []Row
	GeneratedAt time.Time
}

// Build filters records through spec and lays out the report. An empty
// result is ErrNothingToExport.
func Build(records []core.Transaction, spec filter.Spec, symbol string, now time.Time) (Report, error) {
	matched := filter.Apply(records, spec)
	if len(matched) == 0 {
		return Report{}, ErrNothingToExport
	}
	totals := core.Aggregate(matched)
	r := Report{
		Title:       Title,
		Period:      Period(spec.Start, spec.End),
		Filter:      Describe(spec),
		Totals:      totals,
		Income:      FormatAmount(totals.Income.Cents, symbol),
		Expenses:    FormatAmount(totals.Expenses.Cents, symbol),
		Net:         FormatAmount(totals.Net.Cents, symbol),
		Rows:        make([]Row, 0, len(matched)),
		GeneratedAt: now,
	}
	for _, t := range matched {
		r.Rows = append(r.Rows, Row{
			Date:        ShortDate(t),
			Type:        t.Type.Label(),
			Category:    t.Category,
			Description: t.Description,
			Amount:      SignedAmount(t, symbol),
		})
	}
	return r, nil
}

// Period renders the date range; an open bound reads "All".
func Period(start, end time.Time) string {
	if start.IsZero() && end.IsZero() {
		return "All"
	}
	return longDate(start) + " - " + longDate(end)
}

// Describe summarises the active predicates of spec.
func Describe(spec filter.Spec) string {
	typ := "All"
	if t, err := core.ParseTransactionType(spec.Type); err == nil {
		typ = t.Label()
	}
	parts := []string{"Type: " + typ}
	if c := strings.TrimSpace(spec.Category); c != "" && !strings.EqualFold(c, filter.All) {
		parts = append(parts, "Category: "+c)
	}
	if q := strings.TrimSpace(spec.Search); q != "" {
		parts = append(parts, fmt.Sprintf("Search: %q", q))
	}
	return strings.Join(parts, ", ")
}

// Filename is the download name for a report generated at now.
func Filename(now time.Time) string {
	return "financial-report-" + now.Format("2006-01-02") + ".pdf"
}

// FormatAmount renders cents with the currency symbol and thousands
// separators. A zero fraction is omitted and trailing zeros are trimmed:
// 100000 -> "₹1,000", 123450 -> "₹1,234.5".
func FormatAmount(cents int64, symbol string) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	s := sign + symbol + humanize.Comma(cents/100)
	if frac := cents % 100; frac != 0 {
		s += "." + strings.TrimRight(fmt.Sprintf("%02d", frac), "0")
	}
	return s
}

// SignedAmount prefixes "+" for income and "-" for expenses.
func SignedAmount(t core.Transaction, symbol string) string {
	return t.Type.Sign() + FormatAmount(t.Amount.Cents, symbol)
}

// ShortDate formats the record date as "Jan 02, 2006"; unparseable dates
// are shown as stored.
func ShortDate(t core.Transaction) string {
	at, ok := t.Time()
	if !ok {
		return t.Date
	}
	return at.Format("Jan 02, 2006")
}

func longDate(t time.Time) string {
	if t.IsZero() {
		return "All"
	}
	return t.Format("January 2, 2006")
}
