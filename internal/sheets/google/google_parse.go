package google

import (
	"errors"
	"fmt"
	"strings"

	ports "fintrack/internal/sheets"
)

// rowValues lays r out in Header order. The amount is written as a plain
// decimal string so USER_ENTERED parses it as a number.
func rowValues(r ports.Row) []any {
	return []any{r.ID, r.UserID, r.Date, r.Type, r.Category, r.Description, r.Amount.StringFixed(2)}
}

func validateRow(r ports.Row) error {
	switch {
	case strings.TrimSpace(r.ID) == "":
		return errors.New("row without id")
	case strings.TrimSpace(r.UserID) == "":
		return errors.New("row without user")
	case r.Type == "":
		return errors.New("row without type")
	}
	return nil
}

// a1Range quotes the sheet name when it holds anything but letters, digits
// and underscores.
func a1Range(sheet, cells string) string {
	plain := true
	for _, r := range sheet {
		if !(r == '_' || r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z') {
			plain = false
			break
		}
	}
	if plain {
		return sheet + "!" + cells
	}
	return "'" + strings.ReplaceAll(sheet, "'", "''") + "'!" + cells
}

// firstColumn flattens a single-column values matrix, dropping blanks.
func firstColumn(values [][]any) []string {
	out := make([]string, 0, len(values))
	for _, row := range values {
		if len(row) == 0 {
			continue
		}
		v := strings.TrimSpace(fmt.Sprint(row[0]))
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}
