package auraflow

import (
	"strconv"
	"strings"
)

// RowNumber extracts the numeric row from a "<sheet>:<row>" locator, e.g.
// "Sheet1:17" -> 17. The locator carries no meaning in the store; it only
// correlates a batch result back to its spreadsheet row. Returns nil when
// the locator is empty or does not end in a number.
func RowNumber(locator string) *int {
	if locator == "" {
		return nil
	}
	parts := strings.Split(locator, ":")
	n, err := strconv.Atoi(parts[len(parts)-1])
	if err != nil {
		return nil
	}
	return &n
}
