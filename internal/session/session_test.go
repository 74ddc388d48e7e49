package session

import (
	"testing"

	"github.com/fjod/cheeseshop/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cheese(id int64, price string) domain.CatalogItem {
	return domain.CatalogItem{ID: id, Title: "cheese", Price: decimal.RequireFromString(price)}
}

func TestSession_AddRemove(t *testing.T) {
	s := New("abc")
	require.NoError(t, s.Add(cheese(1, "5.00")))
	require.NoError(t, s.Add(cheese(1, "5.00")))
	require.NoError(t, s.Add(cheese(2, "3.50")))

	cart := s.Cart()
	assert.Equal(t, "abc", s.ID())
	assert.Len(t, cart.Items, 2)
	assert.Equal(t, 3, cart.TotalItems)
	assert.True(t, decimal.RequireFromString("13.50").Equal(cart.TotalPrice))

	require.NoError(t, s.Remove(2))
	assert.Equal(t, 2, s.Cart().TotalItems)
}

func TestSession_MutationsRejectedWhileCommitting(t *testing.T) {
	s := New("abc")
	require.NoError(t, s.Add(cheese(1, "5.00")))

	lines, err := s.BeginCheckout()
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.True(t, s.Committing())

	assert.ErrorIs(t, s.Add(cheese(2, "1.00")), ErrCheckoutInProgress)
	assert.ErrorIs(t, s.Remove(1), ErrCheckoutInProgress)
	_, err = s.BeginCheckout()
	assert.ErrorIs(t, err, ErrCheckoutInProgress)

	// nothing changed while frozen
	assert.Equal(t, lines, s.Items())
}

func TestSession_FinishCheckout_Submitted(t *testing.T) {
	s := New("abc")
	require.NoError(t, s.Add(cheese(1, "5.00")))
	_, err := s.BeginCheckout()
	require.NoError(t, err)

	s.FinishCheckout(true)

	assert.False(t, s.Committing())
	assert.Empty(t, s.Items())
	require.NoError(t, s.Add(cheese(2, "1.00")))
}

func TestSession_FinishCheckout_Failed(t *testing.T) {
	s := New("abc")
	require.NoError(t, s.Add(cheese(1, "5.00")))
	require.NoError(t, s.Add(cheese(2, "1.00")))
	before := s.Items()
	_, err := s.BeginCheckout()
	require.NoError(t, err)

	s.FinishCheckout(false)

	assert.False(t, s.Committing())
	assert.Equal(t, before, s.Items())
}

func TestRestore(t *testing.T) {
	s := Restore("abc", []domain.CartLineItem{{CatalogItem: cheese(4, "2.00"), Amount: 3}})

	cart := s.Cart()
	require.Len(t, cart.Items, 1)
	assert.Equal(t, 3, cart.TotalItems)
	assert.True(t, decimal.RequireFromString("6.00").Equal(cart.TotalPrice))
}
