package poller

import (
	"context"
	"encoding/json"
	"errors"
	"io"

	"github.com/fjod/cheeseshop/internal/domain"
	"github.com/fjod/cheeseshop/internal/publisher"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// MessageReader is the part of *kafka.Reader the poller uses.
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// SessionEvicter drops a cached session so its cart is reloaded.
type SessionEvicter interface {
	Evict(id string) bool
}

// Poller follows purchase-completed events and evicts the purchasing
// session from this instance's registry. Carts checked out on another
// instance are then reloaded from the shared store.
type Poller struct {
	reader   MessageReader
	sessions SessionEvicter
	logger   *zap.Logger
}

func NewPoller(reader MessageReader, sessions SessionEvicter, logger *zap.Logger) *Poller {
	return &Poller{reader: reader, sessions: sessions, logger: logger}
}

// NewKafkaReader reads the purchase topic. Each instance needs its own
// groupID so every instance sees every event.
func NewKafkaReader(brokers []string, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    publisher.PurchaseTopic,
		GroupID:  groupID,
		MaxBytes: 10e6, // 10MB
	})
}

func (p *Poller) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if err := p.processMessage(ctx); errors.Is(err, io.EOF) {
			return
		}
	}
}

func (p *Poller) Close() {
	if err := p.reader.Close(); err != nil {
		p.logger.Warn("error closing kafka reader", zap.Error(err))
	}
}

func (p *Poller) processMessage(ctx context.Context) error {
	m, err := p.reader.ReadMessage(ctx)
	if err != nil {
		if !errors.Is(err, context.Canceled) && !errors.Is(err, io.EOF) {
			p.logger.Warn("error reading message", zap.Error(err))
		}
		return err
	}

	var event domain.PurchaseCompletedEvent
	if err := json.Unmarshal(m.Value, &event); err != nil {
		p.logger.Warn("error parsing message", zap.Int64("offset", m.Offset), zap.Error(err))
		return nil
	}
	if event.Purchase.UserID == "" {
		p.logger.Warn("purchase event without user id", zap.Int64("offset", m.Offset))
		return nil
	}

	if p.sessions.Evict(event.Purchase.UserID) {
		p.logger.Debug("session evicted after purchase",
			zap.String("session_id", event.Purchase.UserID),
			zap.String("purchase_id", event.Purchase.ID))
	}
	return nil
}
