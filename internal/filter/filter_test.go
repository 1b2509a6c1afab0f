package filter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fintrack/internal/core"
)

func sample() []core.Transaction {
	return []core.Transaction{
		{ID: "a", Type: core.Income, Amount: core.Money{Cents: 100000}, Category: "Salary", Description: "January pay", Date: "2024-01-05"},
		{ID: "b", Type: core.Expense, Amount: core.Money{Cents: 40000}, Category: "Food & Dining", Description: "Groceries", Date: "2024-01-10"},
		{ID: "c", Type: core.Income, Amount: core.Money{Cents: 20000}, Category: "Gift", Description: "Birthday", Date: "2024-01-15"},
	}
}

func ids(records []core.Transaction) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}

func day(s string) time.Time {
	t, _ := time.Parse("2006-01-02", s)
	return t
}

func TestApplyEmptySpecSortsDescending(t *testing.T) {
	in := sample()
	got := Apply(in, Spec{Type: "all", Category: "all"})
	assert.Equal(t, []string{"c", "b", "a"}, ids(got))
	assert.Equal(t, []string{"a", "b", "c"}, ids(in), "input must not be reordered")
}

func TestApplyTypeIncomeScenario(t *testing.T) {
	got := Apply(sample(), Spec{Type: "income"})
	require.Len(t, got, 2)
	assert.Equal(t, "2024-01-15", got[0].Date)
	assert.Equal(t, "2024-01-05", got[1].Date)
}

func TestApplySearchIsCaseInsensitiveOverDescriptionAndCategory(t *testing.T) {
	assert.Equal(t, []string{"b"}, ids(Apply(sample(), Spec{Search: "GROC"})))
	assert.Equal(t, []string{"b"}, ids(Apply(sample(), Spec{Search: "dining"})))
	assert.Equal(t, []string{"c", "b", "a"}, ids(Apply(sample(), Spec{Search: "  "})))
}

func TestApplyDateRangeIsInclusive(t *testing.T) {
	got := Apply(sample(), Spec{Start: day("2024-01-05"), End: day("2024-01-10")})
	assert.Equal(t, []string{"b", "a"}, ids(got))

	got = Apply(sample(), Spec{Start: day("2024-01-15")})
	assert.Equal(t, []string{"c"}, ids(got))
}

func TestApplyEndOfDayIncludesTimestampsOnEndDate(t *testing.T) {
	records := []core.Transaction{
		{ID: "late", Type: core.Expense, Category: "Travel", Description: "taxi", Date: "2024-01-10T22:15:00.000Z"},
	}
	assert.Empty(t, Apply(records, Spec{End: day("2024-01-10")}))
	assert.Len(t, Apply(records, Spec{End: EndOfDay(day("2024-01-10"))}), 1)
}

func TestApplyExclusivePredicatesYieldEmpty(t *testing.T) {
	got := Apply(sample(), Spec{Type: "income", Category: "Food & Dining"})
	assert.Empty(t, got)
}

func TestApplyCategoryExactMatch(t *testing.T) {
	assert.Empty(t, Apply(sample(), Spec{Category: "gift"}))
	assert.Equal(t, []string{"c"}, ids(Apply(sample(), Spec{Category: "Gift"})))
}

func TestApplyStableForEqualDates(t *testing.T) {
	records := []core.Transaction{
		{ID: "1", Type: core.Income, Category: "x", Description: "x", Date: "2024-02-01"},
		{ID: "2", Type: core.Income, Category: "x", Description: "x", Date: "2024-03-01"},
		{ID: "3", Type: core.Income, Category: "x", Description: "x", Date: "2024-02-01"},
		{ID: "4", Type: core.Income, Category: "x", Description: "x", Date: "2024-02-01"},
	}
	assert.Equal(t, []string{"2", "1", "3", "4"}, ids(Apply(records, Spec{})))
}

func TestApplyResultIsSubset(t *testing.T) {
	in := sample()
	specs := []Spec{{}, {Search: "a"}, {Type: "expense"}, {Category: "Salary"}, {Start: day("2024-01-06")}}
	for _, spec := range specs {
		for _, r := range Apply(in, spec) {
			assert.Contains(t, in, r)
		}
	}
}

func TestApplyEmptyInput(t *testing.T) {
	got := Apply(nil, Spec{Type: "income"})
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestApplyUnknownTypeMatchesNothing(t *testing.T) {
	assert.Empty(t, Apply(sample(), Spec{Type: "transfer"}))
}

func TestCategories(t *testing.T) {
	in := append(sample(), core.Transaction{ID: "d", Category: "Salary", Date: "2024-01-20"})
	assert.Equal(t, []string{"all", "Salary", "Food & Dining", "Gift"}, Categories(in))
	assert.Equal(t, []string{"all"}, Categories(nil))
}

func TestRecent(t *testing.T) {
	assert.Equal(t, []string{"c", "b"}, ids(Recent(sample(), 2)))
	assert.Len(t, Recent(sample(), 5), 3)
}

func TestSpecIsZero(t *testing.T) {
	assert.True(t, Spec{Type: "all", Category: "ALL"}.IsZero())
	assert.False(t, Spec{Search: "x"}.IsZero())
}
