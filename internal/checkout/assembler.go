package checkout

import (
	"time"

	"github.com/fjod/cheeseshop/internal/domain"
	"github.com/fjod/cheeseshop/internal/identity"
)

// Assembler turns cart lines into a Purchase.
type Assembler struct {
	ids identity.Generator
}

func NewAssembler(ids identity.Generator) *Assembler {
	return &Assembler{ids: ids}
}

// Commit snapshots items into a new Purchase owned by sessionID. The
// purchase shares no state with items. An empty cart yields a purchase
// with zero totals.
func (a *Assembler) Commit(items []domain.CartLineItem, sessionID string, now time.Time) domain.Purchase {
	snapshot := domain.CloneLines(items)
	return domain.Purchase{
		ID:         a.ids.NewID(),
		UserID:     sessionID,
		TotalPrice: domain.TotalPrice(snapshot),
		TotalItems: domain.TotalItemCount(snapshot),
		DateTime:   now.Format(domain.DateLayout),
		Cheeses:    snapshot,
	}
}
