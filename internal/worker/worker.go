package worker

import (
	"context"
	"time"

	"ticket-service/internal/broker"
	"ticket-service/internal/models"
	"ticket-service/internal/service"
	"ticket-service/internal/util"

	"go.uber.org/zap"
)

// FulfillmentWorker applies ticket and order lifecycle events from Kafka.
type FulfillmentWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	logger       *zap.Logger
}

// NewFulfillmentWorker creates a new fulfillment worker
func NewFulfillmentWorker(consumer *broker.Consumer, fulfillment *service.FulfillmentService) *FulfillmentWorker {
	eventHandler := broker.NewEventHandler()

	eventHandler.OnTicketUsed(fulfillment.HandleTicketUsed)
	eventHandler.OnTicketExpired(fulfillment.HandleTicketExpired)
	eventHandler.OnOrderShipped(fulfillment.HandleOrderShipped)
	eventHandler.OnOrderCancelled(fulfillment.HandleOrderCancelled)

	return &FulfillmentWorker{
		consumer:     consumer,
		eventHandler: eventHandler,
		logger:       util.GetLogger(),
	}
}

// Start blocks until ctx is cancelled or the consumer is closed.
func (w *FulfillmentWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting fulfillment worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *FulfillmentWorker) Stop() error {
	w.logger.Info("Stopping fulfillment worker")
	return w.consumer.Close()
}

// OutboxStore reads and stamps outbox rows.
type OutboxStore interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	FetchUnpublished(ctx context.Context, limit int) ([]models.OutboxEvent, error)
	MarkPublished(ctx context.Context, id string) error
}

// OutboxPublisher delivers one outbox event downstream.
type OutboxPublisher interface {
	PublishOutboxEvent(ctx context.Context, event *models.OutboxEvent) error
}

// OutboxRelay moves committed outbox events to Kafka. Delivery is at least
// once; consumers dedupe on event_id.
type OutboxRelay struct {
	store     OutboxStore
	publisher OutboxPublisher
	interval  time.Duration
	batchSize int
	logger    *zap.Logger
}

// NewOutboxRelay creates a relay polling every interval for up to batchSize
// events.
func NewOutboxRelay(store OutboxStore, publisher OutboxPublisher, interval time.Duration, batchSize int) *OutboxRelay {
	if batchSize <= 0 {
		batchSize = 100
	}
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	return &OutboxRelay{
		store:     store,
		publisher: publisher,
		interval:  interval,
		batchSize: batchSize,
		logger:    util.GetLogger(),
	}
}

// Start polls until ctx is cancelled.
func (r *OutboxRelay) Start(ctx context.Context) error {
	r.logger.Info("Starting outbox relay", zap.Duration("interval", r.interval))

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Stopping outbox relay")
			return ctx.Err()
		case <-ticker.C:
			if _, err := r.RelayOnce(ctx); err != nil && ctx.Err() == nil {
				r.logger.Error("Outbox relay pass failed", zap.Error(err))
			}
		}
	}
}

// RelayOnce publishes one batch and returns how many events were relayed.
// Events published before a failure stay marked; the rest are retried on the
// next pass.
func (r *OutboxRelay) RelayOnce(ctx context.Context) (int, error) {
	ctx, span := util.StartSpan(ctx, "OutboxRelay.RelayOnce")
	defer span.End()

	relayed := 0
	var publishErr error
	err := r.store.WithTx(ctx, func(txCtx context.Context) error {
		events, err := r.store.FetchUnpublished(txCtx, r.batchSize)
		if err != nil {
			return err
		}

		for i := range events {
			event := &events[i]
			if err := r.publisher.PublishOutboxEvent(txCtx, event); err != nil {
				util.OutboxPublishFailedTotal.Inc()
				publishErr = err
				r.logger.Warn("Failed to publish outbox event",
					zap.String("event_id", event.ID),
					zap.String("event_type", event.EventType),
					zap.Error(err))
				break
			}
			if err := r.store.MarkPublished(txCtx, event.ID); err != nil {
				return err
			}
			relayed++
		}
		return nil
	})
	if err != nil {
		util.RecordError(span, err)
		return 0, err
	}

	util.OutboxPublishedTotal.Add(float64(relayed))
	if relayed > 0 {
		r.logger.Debug("Relayed outbox events", zap.Int("count", relayed))
	}
	return relayed, publishErr
}
