package domain

import "time"

const EventPurchaseCompleted = "PurchaseCompleted"

// PurchaseCompletedEvent is emitted once per stored purchase.
type PurchaseCompletedEvent struct {
	Purchase    Purchase  `json:"purchase"`
	CompletedAt time.Time `json:"completed_at"`
}
