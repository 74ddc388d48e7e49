package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/cheeseshop/internal/cache"
	"github.com/fjod/cheeseshop/internal/checkout"
	"github.com/fjod/cheeseshop/internal/domain"
	"github.com/fjod/cheeseshop/internal/repository"
	"github.com/fjod/cheeseshop/internal/session"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

var ErrUnknownItem = errors.New("item is not in the catalog")

// PurchaseReader serves stored purchases.
type PurchaseReader interface {
	GetPurchaseByID(ctx context.Context, id string) (*domain.Purchase, error)
	ListPurchasesByUserID(ctx context.Context, userID string) ([]domain.Purchase, error)
}

type StorefrontService struct {
	catalog   repository.CatalogReader
	cache     cache.CatalogCache
	sessions  *session.Registry
	checkout  *checkout.Checkout
	purchases PurchaseReader
	logger    *zap.Logger
	sfg       singleflight.Group // Prevents cache stampede
}

func NewStorefrontService(
	catalog repository.CatalogReader,
	catalogCache cache.CatalogCache,
	sessions *session.Registry,
	co *checkout.Checkout,
	purchases PurchaseReader,
	logger *zap.Logger,
) *StorefrontService {
	return &StorefrontService{
		catalog:   catalog,
		cache:     catalogCache,
		sessions:  sessions,
		checkout:  co,
		purchases: purchases,
		logger:    logger,
	}
}

// Catalog returns all catalog items, from cache when possible.
func (s *StorefrontService) Catalog(ctx context.Context) ([]domain.CatalogItem, error) {
	v, err, _ := s.sfg.Do("catalog", func() (interface{}, error) {
		items, err := s.cache.Get(ctx)
		if err == nil {
			return items, nil
		}

		if !errors.Is(err, cache.ErrCacheMiss) {
			s.logger.Warn("catalog cache get failed", zap.Error(err))
		}

		items, errList := s.catalog.ListItems(ctx)
		if errList != nil {
			return nil, fmt.Errorf("failed to fetch catalog: %w", errList)
		}

		go func() {
			setCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			if errSet := s.cache.Set(setCtx, items); errSet != nil {
				s.logger.Warn("catalog cache set failed", zap.Error(errSet))
			}
		}()

		return items, nil
	})

	if err != nil {
		return nil, err
	}

	return v.([]domain.CatalogItem), nil
}

// Cart returns the current cart of the session.
func (s *StorefrontService) Cart(ctx context.Context, sessionID string) session.Cart {
	return s.sessions.Get(ctx, sessionID).Cart()
}

// AddItem puts one unit of the catalog item itemID into the session's cart.
func (s *StorefrontService) AddItem(ctx context.Context, sessionID string, itemID int64) (session.Cart, error) {
	item, err := s.findItem(ctx, itemID)
	if err != nil {
		return session.Cart{}, err
	}

	sess, release := s.sessions.Acquire(ctx, sessionID)
	defer release()
	if err := sess.Add(*item); err != nil {
		return session.Cart{}, err
	}

	s.sessions.Save(ctx, sess)
	return sess.Cart(), nil
}

// RemoveItem takes one unit of itemID out of the session's cart. Removing
// an item that is not in the cart is not an error.
func (s *StorefrontService) RemoveItem(ctx context.Context, sessionID string, itemID int64) (session.Cart, error) {
	sess, release := s.sessions.Acquire(ctx, sessionID)
	defer release()
	if err := sess.Remove(itemID); err != nil {
		return session.Cart{}, err
	}

	s.sessions.Save(ctx, sess)
	return sess.Cart(), nil
}

// Checkout turns the session's cart into a stored purchase.
func (s *StorefrontService) Checkout(ctx context.Context, sessionID string) (*domain.Purchase, error) {
	sess, release := s.sessions.Acquire(ctx, sessionID)
	defer release()
	purchase, err := s.checkout.Run(ctx, sess)
	if err != nil {
		return nil, err
	}

	s.sessions.Save(ctx, sess)
	return purchase, nil
}

// PurchaseHistory lists the session's purchases, newest first.
func (s *StorefrontService) PurchaseHistory(ctx context.Context, sessionID string) ([]domain.Purchase, error) {
	purchases, err := s.purchases.ListPurchasesByUserID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch purchase history: %w", err)
	}
	return purchases, nil
}

// Purchase returns one purchase of the session. Purchases of other
// sessions are reported as not found.
func (s *StorefrontService) Purchase(ctx context.Context, sessionID, purchaseID string) (*domain.Purchase, error) {
	purchase, err := s.purchases.GetPurchaseByID(ctx, purchaseID)
	if err != nil {
		if errors.Is(err, repository.ErrPurchaseNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to fetch purchase: %w", err)
	}
	if purchase.UserID != sessionID {
		return nil, repository.ErrPurchaseNotFound
	}
	return purchase, nil
}

// findItem looks itemID up in the catalog. An id missing from a cached
// catalog is checked against the repository, and a hit there means the
// cache is stale.
func (s *StorefrontService) findItem(ctx context.Context, itemID int64) (*domain.CatalogItem, error) {
	items, err := s.Catalog(ctx)
	if err != nil {
		return nil, err
	}
	for i := range items {
		if items[i].ID == itemID {
			return &items[i], nil
		}
	}

	item, err := s.catalog.GetItem(ctx, itemID)
	if err != nil {
		if errors.Is(err, repository.ErrCatalogItemNotFound) {
			return nil, ErrUnknownItem
		}
		return nil, fmt.Errorf("failed to fetch catalog item: %w", err)
	}

	if errDel := s.cache.Delete(ctx); errDel != nil {
		s.logger.Warn("catalog cache invalidation failed", zap.Error(errDel))
	}
	return item, nil
}
