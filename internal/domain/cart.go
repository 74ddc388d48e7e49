package domain

import "github.com/shopspring/decimal"

// CartLineItem is Amount units of one catalog item currently in a cart.
type CartLineItem struct {
	CatalogItem
	Amount int `json:"amount"`
}

func (l CartLineItem) Subtotal() decimal.Decimal {
	return l.Price.Mul(decimal.NewFromInt(int64(l.Amount)))
}

// CloneLines returns a copy of lines that shares no backing array with it.
func CloneLines(lines []CartLineItem) []CartLineItem {
	out := make([]CartLineItem, len(lines))
	copy(out, lines)
	return out
}
