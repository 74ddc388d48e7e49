package ledger

import (
	"github.com/fjod/cheeseshop/internal/domain"
	"github.com/shopspring/decimal"
)

// Ledger owns the line items of one cart. It keeps at most one line per
// catalog id, every line has Amount >= 1, and lines stay in the order they
// were first added.
//
// A Ledger is not safe for concurrent use; the owning session serializes
// access to it.
type Ledger struct {
	items []domain.CartLineItem
}

func New() *Ledger {
	return &Ledger{}
}

// Restore builds a ledger from previously persisted lines. Lines with a
// non-positive amount are dropped and repeated ids are merged into the
// first occurrence.
func Restore(lines []domain.CartLineItem) *Ledger {
	l := New()
	for _, line := range lines {
		if line.Amount < 1 {
			continue
		}
		if i := l.indexOf(line.ID); i >= 0 {
			l.items[i].Amount += line.Amount
			continue
		}
		l.items = append(l.items, line)
	}
	return l
}

// Add puts one unit of item into the cart. An existing line keeps its
// position and its own fields; only its amount changes.
func (l *Ledger) Add(item domain.CatalogItem) {
	if i := l.indexOf(item.ID); i >= 0 {
		l.items[i].Amount++
		return
	}
	l.items = append(l.items, domain.CartLineItem{CatalogItem: item, Amount: 1})
}

// Remove takes one unit of id out of the cart, deleting the line when its
// last unit goes. Removing an id that is not in the cart does nothing.
func (l *Ledger) Remove(id int64) {
	i := l.indexOf(id)
	if i < 0 {
		return
	}
	if l.items[i].Amount > 1 {
		l.items[i].Amount--
		return
	}
	l.items = append(l.items[:i], l.items[i+1:]...)
}

func (l *Ledger) Reset() {
	l.items = nil
}

// Items returns a copy of the current lines.
func (l *Ledger) Items() []domain.CartLineItem {
	return domain.CloneLines(l.items)
}

func (l *Ledger) Len() int {
	return len(l.items)
}

func (l *Ledger) IsEmpty() bool {
	return len(l.items) == 0
}

func (l *Ledger) TotalItems() int {
	return domain.TotalItemCount(l.items)
}

func (l *Ledger) TotalPrice() decimal.Decimal {
	return domain.TotalPrice(l.items)
}

func (l *Ledger) indexOf(id int64) int {
	for i := range l.items {
		if l.items[i].ID == id {
			return i
		}
	}
	return -1
}
