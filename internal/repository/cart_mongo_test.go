package repository

import (
	"context"
	"testing"

	"github.com/fjod/cheeseshop/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
)

func setupCartStore(t *testing.T) (*CartStore, func()) {
	ctx := context.Background()

	mongoContainer, err := mongodb.Run(ctx, "mongo:7")
	require.NoError(t, err)

	uri, err := mongoContainer.ConnectionString(ctx)
	require.NoError(t, err)

	db, err := ConnectMongoDB(ctx, uri, "testdb")
	require.NoError(t, err)

	store := NewCartStore(db)
	require.NoError(t, store.CreateIndexes(ctx))

	cleanup := func() {
		_ = db.Client().Disconnect(ctx)
		if err := mongoContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	}
	return store, cleanup
}

func testLines() []domain.CartLineItem {
	return []domain.CartLineItem{
		{
			CatalogItem: domain.CatalogItem{ID: 3, Category: "hard", Title: "Comte", Image: "comte.jpg", Price: decimal.RequireFromString("9.20")},
			Amount:      2,
		},
		{
			CatalogItem: domain.CatalogItem{ID: 1, Category: "soft", Title: "Brie", Price: decimal.RequireFromString("6.50")},
			Amount:      1,
		},
	}
}

func TestCartStore_SaveAndLoad(t *testing.T) {
	store, cleanup := setupCartStore(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, store.SaveCart(ctx, "session-1", testLines()))

	lines, err := store.LoadCart(ctx, "session-1")
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, int64(3), lines[0].ID)
	assert.Equal(t, "Comte", lines[0].Title)
	assert.Equal(t, 2, lines[0].Amount)
	assert.True(t, decimal.RequireFromString("9.20").Equal(lines[0].Price))
	assert.Equal(t, int64(1), lines[1].ID)
}

func TestCartStore_SaveReplacesSnapshot(t *testing.T) {
	store, cleanup := setupCartStore(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, store.SaveCart(ctx, "session-1", testLines()))
	require.NoError(t, store.SaveCart(ctx, "session-1", testLines()[:1]))

	lines, err := store.LoadCart(ctx, "session-1")
	require.NoError(t, err)
	assert.Len(t, lines, 1)
}

func TestCartStore_LoadCart_NotFound(t *testing.T) {
	store, cleanup := setupCartStore(t)
	defer cleanup()

	_, err := store.LoadCart(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrCartNotFound)
}

func TestCartStore_DeleteCart(t *testing.T) {
	store, cleanup := setupCartStore(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, store.SaveCart(ctx, "session-1", testLines()))
	require.NoError(t, store.DeleteCart(ctx, "session-1"))

	_, err := store.LoadCart(ctx, "session-1")
	assert.ErrorIs(t, err, ErrCartNotFound)
	assert.ErrorIs(t, store.DeleteCart(ctx, "session-1"), ErrCartNotFound)
}
