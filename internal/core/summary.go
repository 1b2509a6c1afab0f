package core

// Totals is the aggregation of a transaction collection.
type Totals struct {
	Income   Money
	Expenses Money
	Net      Money
}

// Aggregate sums income and expense amounts. It keeps no state and is
// cheap enough to recompute on every snapshot.
func Aggregate(records []Transaction) Totals {
	var income, expenses int64
	for _, r := range records {
		switch r.Type {
		case Income:
			income += r.Amount.Cents
		case Expense:
			expenses += r.Amount.Cents
		}
	}
	return Totals{
		Income:   Money{Cents: income},
		Expenses: Money{Cents: expenses},
		Net:      Money{Cents: income - expenses},
	}
}

// Shares returns the income and expense percentages of the combined volume,
// rounded to whole numbers. Both are 0 for an empty collection.
func (t Totals) Shares() (income, expenses int) {
	sum := t.Income.Cents + t.Expenses.Cents
	if sum <= 0 {
		return 0, 0
	}
	income = int((t.Income.Cents*100 + sum/2) / sum)
	return income, 100 - income
}
