package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"ticket-service/internal/models"
	"ticket-service/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const headerEventType = "event_type"

// EventPublisher handles publishing domain events
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// PublishOutboxEvent relays a stored outbox row. The payload is sent as is,
// keyed by its aggregate.
func (ep *EventPublisher) PublishOutboxEvent(ctx context.Context, event *models.OutboxEvent) error {
	key := fmt.Sprintf("order-%s", event.AggregateID)
	return ep.producer.Publish(ctx, key, event.Payload,
		kafka.Header{Key: headerEventType, Value: []byte(event.EventType)})
}

// EventHandler handles incoming events
type EventHandler struct {
	onTicketUsed     func(context.Context, *models.TicketStatusEvent) error
	onTicketExpired  func(context.Context, *models.TicketStatusEvent) error
	onOrderShipped   func(context.Context, *models.OrderStatusEvent) error
	onOrderCancelled func(context.Context, *models.OrderStatusEvent) error
	logger           *zap.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{logger: util.GetLogger()}
}

func (eh *EventHandler) OnTicketUsed(handler func(context.Context, *models.TicketStatusEvent) error) {
	eh.onTicketUsed = handler
}

func (eh *EventHandler) OnTicketExpired(handler func(context.Context, *models.TicketStatusEvent) error) {
	eh.onTicketExpired = handler
}

func (eh *EventHandler) OnOrderShipped(handler func(context.Context, *models.OrderStatusEvent) error) {
	eh.onOrderShipped = handler
}

func (eh *EventHandler) OnOrderCancelled(handler func(context.Context, *models.OrderStatusEvent) error) {
	eh.onOrderCancelled = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("%w: unmarshal base event: %v", models.ErrMalformedEvent, err)
	}

	eh.logger.Debug("Handling event",
		zap.String("event_type", baseEvent.EventType),
		zap.String("event_id", baseEvent.EventID))

	switch baseEvent.EventType {
	case models.EventTypeTicketUsed:
		return dispatchTicket(ctx, msg.Value, eh.onTicketUsed)
	case models.EventTypeTicketExpired:
		return dispatchTicket(ctx, msg.Value, eh.onTicketExpired)
	case models.EventTypeOrderShipped:
		return dispatchOrder(ctx, msg.Value, eh.onOrderShipped)
	case models.EventTypeOrderCancelled:
		return dispatchOrder(ctx, msg.Value, eh.onOrderCancelled)
	default:
		eh.logger.Debug("Unhandled event type", zap.String("event_type", baseEvent.EventType))
	}

	return nil
}

func dispatchTicket(ctx context.Context, value []byte, handler func(context.Context, *models.TicketStatusEvent) error) error {
	if handler == nil {
		return nil
	}
	var event models.TicketStatusEvent
	if err := json.Unmarshal(value, &event); err != nil {
		return fmt.Errorf("%w: unmarshal ticket event: %v", models.ErrMalformedEvent, err)
	}
	return handler(ctx, &event)
}

func dispatchOrder(ctx context.Context, value []byte, handler func(context.Context, *models.OrderStatusEvent) error) error {
	if handler == nil {
		return nil
	}
	var event models.OrderStatusEvent
	if err := json.Unmarshal(value, &event); err != nil {
		return fmt.Errorf("%w: unmarshal order event: %v", models.ErrMalformedEvent, err)
	}
	return handler(ctx, &event)
}
