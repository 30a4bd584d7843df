package expenses

import (
	"fmt"
	"strings"
)

// NoExpensesMessage is returned when a user has no expenses.
const NoExpensesMessage = "No expenses found."

// FormatAmount renders an amount with two decimals.
func FormatAmount(amount float64) string {
	return fmt.Sprintf("$%.2f", amount)
}

// Summary renders expenses as one line each under a count header.
func Summary(list []Expense) string {
	if len(list) == 0 {
		return NoExpensesMessage
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Expense data (%d entries):\n\n", len(list))
	for _, e := range list {
		fmt.Fprintf(&b, "Date: %s, Amount: %s, Category: %s, Description: %s, Payment: %s\n",
			orNA(e.Date), FormatAmount(e.Amount), orNA(string(e.Category)), orNA(e.Description), orNA(string(e.PaymentMethod)))
	}
	return b.String()
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
