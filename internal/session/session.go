package session

import (
	"errors"
	"sync"

	"github.com/fjod/cheeseshop/internal/domain"
	"github.com/fjod/cheeseshop/internal/ledger"
	"github.com/shopspring/decimal"
)

var ErrCheckoutInProgress = errors.New("checkout in progress")

// Session is the state of one shopper: a read-only identity and the cart
// ledger. All operations on a session are serialized.
type Session struct {
	id string

	mu         sync.Mutex
	ledger     *ledger.Ledger
	committing bool
	// version counts cart changes; persisted is the version last stored.
	version   uint64
	persist   sync.Mutex
	persisted uint64
}

// Cart is a point-in-time view of a session's cart with derived totals.
type Cart struct {
	Items      []domain.CartLineItem
	TotalItems int
	TotalPrice decimal.Decimal
}

func New(id string) *Session {
	return &Session{id: id, ledger: ledger.New()}
}

// Restore creates a session whose cart starts from persisted lines.
func Restore(id string, lines []domain.CartLineItem) *Session {
	return &Session{id: id, ledger: ledger.Restore(lines)}
}

func (s *Session) ID() string {
	return s.id
}

// Add puts one unit of item into the cart. It is rejected while a checkout
// of this session is in flight.
func (s *Session) Add(item domain.CatalogItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.committing {
		return ErrCheckoutInProgress
	}
	s.ledger.Add(item)
	s.version++
	return nil
}

// Remove takes one unit of id out of the cart. It is rejected while a
// checkout of this session is in flight.
func (s *Session) Remove(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.committing {
		return ErrCheckoutInProgress
	}
	s.ledger.Remove(id)
	s.version++
	return nil
}

func (s *Session) Cart() Cart {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := s.ledger.Items()
	return Cart{
		Items:      items,
		TotalItems: domain.TotalItemCount(items),
		TotalPrice: domain.TotalPrice(items),
	}
}

func (s *Session) Items() []domain.CartLineItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.Items()
}

func (s *Session) snapshot() ([]domain.CartLineItem, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.Items(), s.version
}

// Committing reports whether a checkout is in flight.
func (s *Session) Committing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.committing
}

// BeginCheckout freezes the cart and returns the lines to commit. The cart
// stays frozen until FinishCheckout.
func (s *Session) BeginCheckout() ([]domain.CartLineItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.committing {
		return nil, ErrCheckoutInProgress
	}
	s.committing = true
	return s.ledger.Items(), nil
}

// FinishCheckout unfreezes the cart. The ledger is cleared only when the
// purchase was submitted.
func (s *Session) FinishCheckout(submitted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if submitted && !s.ledger.IsEmpty() {
		s.ledger.Reset()
		s.version++
	}
	s.committing = false
}
