package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/cheeseshop/internal/domain"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// cartTTL is how long an untouched cart snapshot is kept.
const cartTTL = 90 * 24 * time.Hour

type cartDocument struct {
	SessionID string         `bson:"session_id"`
	Items     []cartLineItem `bson:"items"`
	UpdatedAt time.Time      `bson:"updated_at"`
}

// Prices are stored as strings so they round-trip exactly.
type cartLineItem struct {
	ID          int64  `bson:"id"`
	Category    string `bson:"category"`
	Description string `bson:"description"`
	Image       string `bson:"image"`
	Price       string `bson:"price"`
	Title       string `bson:"title"`
	Amount      int    `bson:"amount"`
}

// CartStore keeps one cart snapshot per session in MongoDB.
type CartStore struct {
	collection *mongo.Collection
}

func NewCartStore(db *mongo.Database) *CartStore {
	return &CartStore{collection: db.Collection("carts")}
}

func (s *CartStore) LoadCart(ctx context.Context, sessionID string) ([]domain.CartLineItem, error) {
	var doc cartDocument
	err := s.collection.FindOne(ctx, bson.M{"session_id": sessionID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrCartNotFound
		}
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}

	lines := make([]domain.CartLineItem, 0, len(doc.Items))
	for _, item := range doc.Items {
		price, err := decimal.NewFromString(item.Price)
		if err != nil {
			return nil, fmt.Errorf("invalid price %q for item %d: %w", item.Price, item.ID, err)
		}
		lines = append(lines, domain.CartLineItem{
			CatalogItem: domain.CatalogItem{
				ID:          item.ID,
				Category:    item.Category,
				Description: item.Description,
				Image:       item.Image,
				Price:       price,
				Title:       item.Title,
			},
			Amount: item.Amount,
		})
	}
	return lines, nil
}

func (s *CartStore) SaveCart(ctx context.Context, sessionID string, lines []domain.CartLineItem) error {
	doc := cartDocument{
		SessionID: sessionID,
		Items:     make([]cartLineItem, len(lines)),
		UpdatedAt: time.Now(),
	}
	for i, line := range lines {
		doc.Items[i] = cartLineItem{
			ID:          line.ID,
			Category:    line.Category,
			Description: line.Description,
			Image:       line.Image,
			Price:       line.Price.String(),
			Title:       line.Title,
			Amount:      line.Amount,
		}
	}

	opts := options.Replace().SetUpsert(true)
	_, err := s.collection.ReplaceOne(ctx, bson.M{"session_id": sessionID}, doc, opts)
	if err != nil {
		return fmt.Errorf("failed to upsert cart: %w", err)
	}
	return nil
}

func (s *CartStore) DeleteCart(ctx context.Context, sessionID string) error {
	result, err := s.collection.DeleteOne(ctx, bson.M{"session_id": sessionID})
	if err != nil {
		return fmt.Errorf("failed to delete cart: %w", err)
	}

	if result.DeletedCount == 0 {
		return ErrCartNotFound
	}
	return nil
}

func (s *CartStore) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "session_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "updated_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(int32(cartTTL.Seconds())),
		},
	}

	_, err := s.collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	return nil
}
