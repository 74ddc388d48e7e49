package cache

import (
	"context"
	"errors"

	"github.com/fjod/cheeseshop/internal/domain"
)

type CatalogCache interface {
	Get(ctx context.Context) ([]domain.CatalogItem, error)
	Set(ctx context.Context, items []domain.CatalogItem) error
	Delete(ctx context.Context) error
}

var ErrCacheMiss = errors.New("cache miss")

// Nop never holds anything. It stands in when no redis is configured.
type Nop struct{}

func (Nop) Get(context.Context) ([]domain.CatalogItem, error) { return nil, ErrCacheMiss }

func (Nop) Set(context.Context, []domain.CatalogItem) error { return nil }

func (Nop) Delete(context.Context) error { return nil }
