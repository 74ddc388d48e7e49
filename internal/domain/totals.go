package domain

import "github.com/shopspring/decimal"

// TotalItemCount sums the amounts of all line items.
func TotalItemCount(items []CartLineItem) int {
	total := 0
	for _, item := range items {
		total += item.Amount
	}
	return total
}

// TotalPrice sums price * amount over all line items using exact decimal
// arithmetic.
func TotalPrice(items []CartLineItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Subtotal())
	}
	return total
}
