package domain

import "github.com/shopspring/decimal"

// CatalogItem is a product as the catalog serves it. Identity is ID.
type CatalogItem struct {
	ID          int64           `json:"id"`
	Category    string          `json:"category"`
	Description string          `json:"description"`
	Image       string          `json:"image"`
	Price       decimal.Decimal `json:"price"`
	Title       string          `json:"title"`
}
