package core

import "testing"

func TestAggregateScenario(t *testing.T) {
	records := []Transaction{
		{Type: Income, Amount: Money{Cents: 100000}, Date: "2024-01-05"},
		{Type: Expense, Amount: Money{Cents: 40000}, Date: "2024-01-10"},
		{Type: Income, Amount: Money{Cents: 20000}, Date: "2024-01-15"},
	}
	got := Aggregate(records)
	if got.Income.Cents != 120000 || got.Expenses.Cents != 40000 || got.Net.Cents != 80000 {
		t.Fatalf("unexpected totals: %+v", got)
	}
}

func TestAggregateEmpty(t *testing.T) {
	got := Aggregate(nil)
	if got != (Totals{}) {
		t.Fatalf("expected zero totals, got %+v", got)
	}
	if in, ex := got.Shares(); in != 0 || ex != 0 {
		t.Fatalf("expected zero shares, got %d/%d", in, ex)
	}
}

func TestAggregateNoDrift(t *testing.T) {
	// 10,000 records of 0.10 and 0.20: float accumulation would drift.
	records := make([]Transaction, 0, 10000)
	for i := 0; i < 5000; i++ {
		records = append(records,
			Transaction{Type: Income, Amount: Money{Cents: 10}},
			Transaction{Type: Expense, Amount: Money{Cents: 20}},
		)
	}
	got := Aggregate(records)
	if got.Income.Cents != 50000 || got.Expenses.Cents != 100000 {
		t.Fatalf("unexpected totals: %+v", got)
	}
	if got.Income.Cents-got.Expenses.Cents != got.Net.Cents {
		t.Fatalf("net mismatch: %+v", got)
	}
	if got.Income.Decimal().String() != "500" {
		t.Fatalf("decimal income = %s", got.Income.Decimal())
	}
}

func TestShares(t *testing.T) {
	in, ex := Totals{Income: Money{Cents: 300}, Expenses: Money{Cents: 100}}.Shares()
	if in != 75 || ex != 25 {
		t.Fatalf("got %d/%d", in, ex)
	}
}

func TestSuggestedCategories(t *testing.T) {
	if got := SuggestedCategories(Income); len(got) != 6 || got[0] != "Salary" {
		t.Fatalf("income suggestions: %v", got)
	}
	if got := SuggestedCategories(Expense); len(got) != 9 || got[8] != "Other Expense" {
		t.Fatalf("expense suggestions: %v", got)
	}
	got := SuggestedCategories(Income)
	got[0] = "mutated"
	if SuggestedCategories(Income)[0] != "Salary" {
		t.Fatalf("suggestions must be copied")
	}
}

func TestAggregateLargestAmountsDoNotOverflow(t *testing.T) {
	largest, err := ParseDecimalToCents("1000000000000")
	if err != nil {
		t.Fatalf("largest amount rejected: %v", err)
	}
	records := make([]Transaction, 0, 20000)
	for i := 0; i < 10000; i++ {
		records = append(records,
			Transaction{Type: Income, Amount: Money{Cents: largest}},
			Transaction{Type: Expense, Amount: Money{Cents: largest / 2}},
		)
	}
	got := Aggregate(records)
	if got.Income.Cents != 10000*MaxAmountCents {
		t.Fatalf("income = %d", got.Income.Cents)
	}
	if got.Expenses.Cents != 5000*MaxAmountCents {
		t.Fatalf("expenses = %d", got.Expenses.Cents)
	}
	if got.Income.Cents < 0 || got.Net.Cents != got.Income.Cents-got.Expenses.Cents || got.Net.Cents < 0 {
		t.Fatalf("totals wrapped: %+v", got)
	}
}
