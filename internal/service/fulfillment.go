package service

import (
	"context"
	"errors"
	"fmt"

	"ticket-service/internal/models"
	"ticket-service/internal/util"

	"go.uber.org/zap"
)

// FulfillmentStore applies post-purchase status transitions.
type FulfillmentStore interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID, eventType string) error
	UpdateTicketStatus(ctx context.Context, ticketID string, from, to models.TicketStatus) error
	UpdateOrderStatus(ctx context.Context, orderID string, from, to models.OrderStatus) error
	ExpireValidTickets(ctx context.Context, orderID string) (int64, error)
}

// FulfillmentService consumes lifecycle events from venue scanning, shipping
// and refunds. Each event is applied at most once.
type FulfillmentService struct {
	store  FulfillmentStore
	logger *zap.Logger
}

func NewFulfillmentService(store FulfillmentStore) *FulfillmentService {
	return &FulfillmentService{
		store:  store,
		logger: util.GetLogger(),
	}
}

// HandleTicketUsed marks a valid ticket as used.
func (fs *FulfillmentService) HandleTicketUsed(ctx context.Context, event *models.TicketStatusEvent) error {
	ctx, span := util.StartSpan(ctx, "FulfillmentService.HandleTicketUsed")
	defer span.End()

	return fs.apply(ctx, event.BaseEvent, func(ctx context.Context) error {
		return fs.store.UpdateTicketStatus(ctx, event.TicketID, models.TicketStatusValid, models.TicketStatusUsed)
	}, zap.String("ticket_id", event.TicketID))
}

// HandleTicketExpired marks a valid ticket as expired, which frees the
// holder's identity for a new purchase in the same session.
func (fs *FulfillmentService) HandleTicketExpired(ctx context.Context, event *models.TicketStatusEvent) error {
	ctx, span := util.StartSpan(ctx, "FulfillmentService.HandleTicketExpired")
	defer span.End()

	return fs.apply(ctx, event.BaseEvent, func(ctx context.Context) error {
		return fs.store.UpdateTicketStatus(ctx, event.TicketID, models.TicketStatusValid, models.TicketStatusExpired)
	}, zap.String("ticket_id", event.TicketID))
}

// HandleOrderShipped moves a paid order to shipped.
func (fs *FulfillmentService) HandleOrderShipped(ctx context.Context, event *models.OrderStatusEvent) error {
	ctx, span := util.StartSpan(ctx, "FulfillmentService.HandleOrderShipped")
	defer span.End()

	return fs.apply(ctx, event.BaseEvent, func(ctx context.Context) error {
		return fs.store.UpdateOrderStatus(ctx, event.OrderID, models.OrderStatusPaid, models.OrderStatusShipped)
	}, zap.String("order_id", event.OrderID))
}

// HandleOrderCancelled cancels a paid order and expires its valid tickets.
// Sold counts are not given back.
func (fs *FulfillmentService) HandleOrderCancelled(ctx context.Context, event *models.OrderStatusEvent) error {
	ctx, span := util.StartSpan(ctx, "FulfillmentService.HandleOrderCancelled")
	defer span.End()

	return fs.apply(ctx, event.BaseEvent, func(ctx context.Context) error {
		if err := fs.store.UpdateOrderStatus(ctx, event.OrderID, models.OrderStatusPaid, models.OrderStatusCancelled); err != nil {
			return err
		}
		expired, err := fs.store.ExpireValidTickets(ctx, event.OrderID)
		if err != nil {
			return fmt.Errorf("expire tickets of order %s: %w", event.OrderID, err)
		}
		fs.logger.Info("Order cancelled",
			zap.String("order_id", event.OrderID),
			zap.String("reason", event.Reason),
			zap.Int64("tickets_expired", expired))
		return nil
	}, zap.String("order_id", event.OrderID))
}

// apply runs the transition and the processed-event marker in one
// transaction. A transition that no longer applies is logged and the event
// is still marked processed so it is not redelivered forever.
func (fs *FulfillmentService) apply(ctx context.Context, event models.BaseEvent, transition func(context.Context) error, subject zap.Field) error {
	if event.EventID == "" {
		return fmt.Errorf("%w: %s event without event_id", models.ErrMalformedEvent, event.EventType)
	}

	applied := false
	err := fs.store.WithTx(ctx, func(txCtx context.Context) error {
		processed, err := fs.store.IsEventProcessed(txCtx, event.EventID)
		if err != nil {
			return fmt.Errorf("failed to check event processed: %w", err)
		}
		if processed {
			fs.logger.Info("Event already processed", zap.String("event_id", event.EventID))
			return nil
		}

		err = transition(txCtx)
		switch {
		case errors.Is(err, models.ErrInvalidTransition), errors.Is(err, models.ErrNotFound):
			fs.logger.Warn("Ignoring event that does not apply",
				zap.String("event_id", event.EventID),
				zap.String("event_type", event.EventType),
				subject,
				zap.Error(err))
		case err != nil:
			return err
		default:
			applied = true
		}

		return fs.store.MarkEventProcessed(txCtx, event.EventID, event.EventType)
	})
	if err != nil {
		fs.logger.Error("Failed to apply fulfillment event",
			zap.String("event_id", event.EventID),
			zap.String("event_type", event.EventType),
			subject,
			zap.Error(err))
		return err
	}

	if applied {
		util.FulfillmentEventsTotal.WithLabelValues(event.EventType).Inc()
		fs.logger.Info("Fulfillment event applied",
			zap.String("event_id", event.EventID),
			zap.String("event_type", event.EventType),
			subject)
	}
	return nil
}
