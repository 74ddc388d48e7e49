package publisher

import (
	"context"
	"time"

	"github.com/fjod/cheeseshop/internal/repository"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// OutboxStore is the outbox side of the purchase repository.
type OutboxStore interface {
	GetUnprocessedEvents(ctx context.Context, limit int) ([]*repository.OutboxEvent, error)
	MarkEventAsProcessed(ctx context.Context, id int64) error
}

// OutboxPoller publishes stored purchase events to Kafka. An event is marked
// processed only after the broker accepted it, so delivery is at least once.
type OutboxPoller struct {
	tick   time.Duration
	batch  int
	store  OutboxStore
	writer MessageWriter
	logger *zap.Logger
}

func NewOutboxPoller(store OutboxStore, writer MessageWriter, logger *zap.Logger) *OutboxPoller {
	return &OutboxPoller{
		tick:   time.Second,
		batch:  100,
		store:  store,
		writer: writer,
		logger: logger,
	}
}

func (p *OutboxPoller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.processUnpublishedEvents(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (p *OutboxPoller) Close() error {
	return p.writer.Close()
}

// processUnpublishedEvents publishes one batch and returns how many events
// were marked processed.
func (p *OutboxPoller) processUnpublishedEvents(ctx context.Context) int {
	events, err := p.store.GetUnprocessedEvents(ctx, p.batch)
	if err != nil {
		p.logger.Warn("failed to fetch outbox events", zap.Error(err))
		return 0
	}

	published := 0
	for _, event := range events {
		if err := p.publish(ctx, event); err != nil {
			p.logger.Warn("failed to publish outbox event",
				zap.Int64("event_id", event.ID),
				zap.String("aggregate_id", event.AggregateID),
				zap.Error(err))
			// keep order: later events wait for this one
			return published
		}

		if err := p.store.MarkEventAsProcessed(ctx, event.ID); err != nil {
			p.logger.Warn("failed to mark outbox event as processed",
				zap.Int64("event_id", event.ID),
				zap.Error(err))
			continue
		}
		published++
	}
	return published
}

func (p *OutboxPoller) publish(ctx context.Context, event *repository.OutboxEvent) error {
	msg := kafka.Message{
		Key:   []byte(event.AggregateID),
		Value: event.Payload, // already JSON from the database
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
		},
		Time: event.CreatedAt,
	}
	return p.writer.WriteMessages(ctx, msg)
}
