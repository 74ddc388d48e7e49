package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/fjod/cheeseshop/internal/cache"
	"github.com/fjod/cheeseshop/internal/checkout"
	"github.com/fjod/cheeseshop/internal/domain"
	"github.com/fjod/cheeseshop/internal/identity"
	"github.com/fjod/cheeseshop/internal/repository"
	"github.com/fjod/cheeseshop/internal/session"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockCatalog struct {
	m      sync.RWMutex
	items  []domain.CatalogItem
	err    error
	getErr error
	calls  int
}

func (m *mockCatalog) ListItems(context.Context) ([]domain.CatalogItem, error) {
	m.m.Lock()
	defer m.m.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.items, nil
}

func (m *mockCatalog) GetItem(_ context.Context, id int64) (*domain.CatalogItem, error) {
	m.m.RLock()
	defer m.m.RUnlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	for i := range m.items {
		if m.items[i].ID == id {
			return &m.items[i], nil
		}
	}
	return nil, repository.ErrCatalogItemNotFound
}

func (m *mockCatalog) callCount() int {
	m.m.RLock()
	defer m.m.RUnlock()
	return m.calls
}

type mockCache struct {
	m     sync.RWMutex
	items []domain.CatalogItem
	err   error
}

func (m *mockCache) Get(context.Context) ([]domain.CatalogItem, error) {
	m.m.RLock()
	defer m.m.RUnlock()
	if m.err != nil {
		return nil, m.err
	}
	if m.items == nil {
		return nil, cache.ErrCacheMiss
	}
	return m.items, nil
}

func (m *mockCache) Set(_ context.Context, items []domain.CatalogItem) error {
	m.m.Lock()
	defer m.m.Unlock()
	m.items = items
	return nil
}

func (m *mockCache) Delete(context.Context) error {
	m.m.Lock()
	defer m.m.Unlock()
	m.items = nil
	return nil
}

func (m *mockCache) getItems() []domain.CatalogItem {
	m.m.RLock()
	defer m.m.RUnlock()
	return m.items
}

type mockPurchases struct {
	m         sync.RWMutex
	purchases []domain.Purchase
	err       error
}

func (m *mockPurchases) CreatePurchase(_ context.Context, p domain.Purchase) error {
	m.m.Lock()
	defer m.m.Unlock()
	if m.err != nil {
		return m.err
	}
	m.purchases = append([]domain.Purchase{p}, m.purchases...)
	return nil
}

func (m *mockPurchases) SubmitPurchase(ctx context.Context, p domain.Purchase) error {
	return m.CreatePurchase(ctx, p)
}

func (m *mockPurchases) GetPurchaseByID(_ context.Context, id string) (*domain.Purchase, error) {
	m.m.RLock()
	defer m.m.RUnlock()
	if m.err != nil {
		return nil, m.err
	}
	for i := range m.purchases {
		if m.purchases[i].ID == id {
			p := m.purchases[i]
			return &p, nil
		}
	}
	return nil, repository.ErrPurchaseNotFound
}

func (m *mockPurchases) ListPurchasesByUserID(_ context.Context, userID string) ([]domain.Purchase, error) {
	m.m.RLock()
	defer m.m.RUnlock()
	if m.err != nil {
		return nil, m.err
	}
	out := []domain.Purchase{}
	for _, p := range m.purchases {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *mockPurchases) setErr(err error) {
	m.m.Lock()
	defer m.m.Unlock()
	m.err = err
}

func testItems() []domain.CatalogItem {
	return []domain.CatalogItem{
		{ID: 1, Category: "soft", Title: "Brie", Price: decimal.RequireFromString("5.00")},
		{ID: 2, Category: "brine", Title: "Feta", Price: decimal.RequireFromString("3.50")},
		{ID: 7, Category: "semi", Title: "Gouda", Price: decimal.RequireFromString("2.00")},
	}
}

type fixture struct {
	sut       *StorefrontService
	catalog   *mockCatalog
	cache     *mockCache
	purchases *mockPurchases
}

func newFixture(t *testing.T) *fixture {
	catalog := &mockCatalog{items: testItems()}
	c := &mockCache{}
	purchases := &mockPurchases{}

	registry, err := session.NewRegistry(16, nil, zap.NewNop())
	require.NoError(t, err)

	n := 0
	ids := identity.Func(func() string {
		n++
		return fmt.Sprintf("purchase-%d", n)
	})
	co := checkout.NewCheckout(checkout.NewAssembler(ids), purchases, zap.NewNop())

	return &fixture{
		sut:       NewStorefrontService(catalog, c, registry, co, purchases, zap.NewNop()),
		catalog:   catalog,
		cache:     c,
		purchases: purchases,
	}
}

func TestCatalog_CacheMissLoadsFromRepoAndFillsCache(t *testing.T) {
	f := newFixture(t)

	items, err := f.sut.Catalog(context.Background())
	require.NoError(t, err)
	assert.Len(t, items, 3)
	assert.Equal(t, 1, f.catalog.callCount())

	require.Eventually(t, func() bool {
		return f.cache.getItems() != nil
	}, 100*time.Millisecond, 10*time.Millisecond, "catalog was not set in cache")
}

func TestCatalog_CacheHit(t *testing.T) {
	f := newFixture(t)
	f.cache.items = testItems()[:1]

	items, err := f.sut.Catalog(context.Background())
	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.Equal(t, 0, f.catalog.callCount())
}

func TestCatalog_CacheErrorFallsBackToRepo(t *testing.T) {
	f := newFixture(t)
	f.cache.err = fmt.Errorf("redis down")

	items, err := f.sut.Catalog(context.Background())
	require.NoError(t, err)
	assert.Len(t, items, 3)
}

func TestCatalog_RepoError(t *testing.T) {
	f := newFixture(t)
	f.catalog.err = fmt.Errorf("database error")

	items, err := f.sut.Catalog(context.Background())
	require.ErrorContains(t, err, "database error")
	assert.Nil(t, items)
	assert.Nil(t, f.cache.getItems())
}

func TestAddItem_MergesById(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.sut.AddItem(ctx, "s-1", 7)
	require.NoError(t, err)
	cart, err := f.sut.AddItem(ctx, "s-1", 7)
	require.NoError(t, err)

	require.Len(t, cart.Items, 1)
	assert.Equal(t, int64(7), cart.Items[0].ID)
	assert.Equal(t, 2, cart.Items[0].Amount)
	assert.True(t, decimal.RequireFromString("2.00").Equal(cart.Items[0].Price))
	assert.Equal(t, cart, f.sut.Cart(ctx, "s-1"))
}

func TestAddItem_UnknownItem(t *testing.T) {
	f := newFixture(t)

	_, err := f.sut.AddItem(context.Background(), "s-1", 99)
	assert.ErrorIs(t, err, ErrUnknownItem)
	assert.Empty(t, f.sut.Cart(context.Background(), "s-1").Items)
}

func TestAddItem_StaleCacheIsInvalidated(t *testing.T) {
	f := newFixture(t)
	f.cache.items = testItems()[:1]

	cart, err := f.sut.AddItem(context.Background(), "s-1", 7)
	require.NoError(t, err)

	require.Len(t, cart.Items, 1)
	assert.Equal(t, "Gouda", cart.Items[0].Title)
	assert.Nil(t, f.cache.getItems())
}

func TestAddItem_ItemLookupError(t *testing.T) {
	f := newFixture(t)
	f.catalog.getErr = fmt.Errorf("database error")

	_, err := f.sut.AddItem(context.Background(), "s-1", 99)
	require.ErrorContains(t, err, "database error")
	assert.NotErrorIs(t, err, ErrUnknownItem)
}

func TestAddItem_CatalogUnavailable(t *testing.T) {
	f := newFixture(t)
	f.catalog.err = fmt.Errorf("database error")

	_, err := f.sut.AddItem(context.Background(), "s-1", 1)
	require.ErrorContains(t, err, "database error")
}

func TestSessionsAreIsolated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.sut.AddItem(ctx, "s-1", 1)
	require.NoError(t, err)

	assert.Empty(t, f.sut.Cart(ctx, "s-2").Items)
}

func TestRemoveItem(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.sut.AddItem(ctx, "s-1", 7)
	require.NoError(t, err)
	_, err = f.sut.AddItem(ctx, "s-1", 7)
	require.NoError(t, err)

	cart, err := f.sut.RemoveItem(ctx, "s-1", 7)
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, 1, cart.Items[0].Amount)

	cart, err = f.sut.RemoveItem(ctx, "s-1", 7)
	require.NoError(t, err)
	assert.Empty(t, cart.Items)

	cart, err = f.sut.RemoveItem(ctx, "s-1", 7)
	require.NoError(t, err)
	assert.Empty(t, cart.Items)
}

func TestCheckout_Success(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, id := range []int64{1, 1, 2} {
		_, err := f.sut.AddItem(ctx, "s-1", id)
		require.NoError(t, err)
	}

	purchase, err := f.sut.Checkout(ctx, "s-1")
	require.NoError(t, err)

	assert.Equal(t, "purchase-1", purchase.ID)
	assert.Equal(t, "s-1", purchase.UserID)
	assert.Equal(t, 3, purchase.TotalItems)
	assert.True(t, decimal.RequireFromString("13.50").Equal(purchase.TotalPrice))
	assert.Empty(t, f.sut.Cart(ctx, "s-1").Items)

	history, err := f.sut.PurchaseHistory(ctx, "s-1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, purchase.ID, history[0].ID)
}

func TestCheckout_SubmissionFailureKeepsCart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.sut.AddItem(ctx, "s-1", 1)
	require.NoError(t, err)
	before := f.sut.Cart(ctx, "s-1")
	f.purchases.setErr(fmt.Errorf("database error"))

	_, err = f.sut.Checkout(ctx, "s-1")

	assert.ErrorIs(t, err, checkout.ErrSubmissionFailed)
	assert.Equal(t, before, f.sut.Cart(ctx, "s-1"))
}

func TestPurchaseHistory_Error(t *testing.T) {
	f := newFixture(t)
	f.purchases.setErr(fmt.Errorf("database error"))

	_, err := f.sut.PurchaseHistory(context.Background(), "s-1")
	require.ErrorContains(t, err, "database error")
}

func TestPurchase_OnlyOwnPurchases(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.sut.AddItem(ctx, "s-1", 1)
	require.NoError(t, err)
	purchase, err := f.sut.Checkout(ctx, "s-1")
	require.NoError(t, err)

	got, err := f.sut.Purchase(ctx, "s-1", purchase.ID)
	require.NoError(t, err)
	assert.Equal(t, purchase.ID, got.ID)

	_, err = f.sut.Purchase(ctx, "s-2", purchase.ID)
	assert.ErrorIs(t, err, repository.ErrPurchaseNotFound)

	_, err = f.sut.Purchase(ctx, "s-1", "missing")
	assert.ErrorIs(t, err, repository.ErrPurchaseNotFound)
}
