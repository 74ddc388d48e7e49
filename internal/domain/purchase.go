package domain

import "github.com/shopspring/decimal"

// DateLayout is the calendar-date format purchases are stamped with.
const DateLayout = "2006-01-02"

// Purchase is the committed snapshot of a cart. The JSON shape is the
// storage and wire contract shared with every collaborator.
type Purchase struct {
	ID         string          `json:"id"`
	UserID     string          `json:"userId"`
	TotalPrice decimal.Decimal `json:"totalPrice"`
	TotalItems int             `json:"totalItems"`
	DateTime   string          `json:"dateTime"`
	Cheeses    []CartLineItem  `json:"cheeses"`
}
