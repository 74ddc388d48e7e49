package repository

import (
	"context"
	"errors"
	"time"

	"github.com/fjod/cheeseshop/internal/domain"
)

var (
	ErrCatalogItemNotFound = errors.New("catalog item not found")
	ErrPurchaseNotFound    = errors.New("purchase not found")
	ErrDuplicatePurchase   = errors.New("purchase with this id already exists")
	ErrCartNotFound        = errors.New("cart not found")
	ErrEventNotFound       = errors.New("unprocessed outbox event not found")
)

// OutboxEvent is a stored event waiting to be published.
type OutboxEvent struct {
	ID          int64
	AggregateID string
	EventType   string
	Payload     []byte
	CreatedAt   time.Time
}

type Credentials struct {
	Host              string
	Port              int
	User              string
	Password          string
	DBName            string
	MigrationsDirPath string
}

// CatalogReader is the read side of the catalog the storefront needs.
type CatalogReader interface {
	ListItems(ctx context.Context) ([]domain.CatalogItem, error)
	GetItem(ctx context.Context, id int64) (*domain.CatalogItem, error)
}
