package core

var (
	incomeCategories = []string{
		"Salary", "Freelance", "Business", "Investment", "Gift", "Other Income",
	}
	expenseCategories = []string{
		"Food & Dining", "Shopping", "Transportation", "Bills & Utilities",
		"Entertainment", "Healthcare", "Travel", "Education", "Other Expense",
	}
)

// SuggestedCategories lists the labels offered by the creation form.
// Categories are free-form; this list is never used for validation.
func SuggestedCategories(t TransactionType) []string {
	switch t {
	case Income:
		return append([]string(nil), incomeCategories...)
	case Expense:
		return append([]string(nil), expenseCategories...)
	default:
		return nil
	}
}
