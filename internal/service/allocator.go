package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"ticket-service/internal/models"
	"ticket-service/internal/store"
	"ticket-service/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// AllocationStore provides the transaction boundary and the order side of
// the purchase.
type AllocationStore interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	CreateOrder(ctx context.Context, order *models.Order) error
	InsertOutboxEvent(ctx context.Context, event *models.OutboxEvent) error
}

// AllocateRequest is a purchase of 1..4 tickets in one zone.
type AllocateRequest struct {
	PurchaserID int64          `json:"purchaser_id"`
	SessionID   int64          `json:"session_id" binding:"required"`
	ZoneID      int64          `json:"zone_id" binding:"required"`
	Buyers      []BuyerRequest `json:"buyers"`
}

// BuyerRequest identifies the person a ticket is issued to.
type BuyerRequest struct {
	IDNumber string `json:"id_number"`
	Name     string `json:"name"`
}

// AllocateResult is returned for a committed purchase.
type AllocateResult struct {
	OrderID     string             `json:"order_id"`
	TicketIDs   []string           `json:"ticket_ids"`
	TotalAmount models.Money       `json:"total_amount"`
	TicketCount int                `json:"ticket_count"`
	Status      models.OrderStatus `json:"status"`
}

const (
	defaultAllocationTimeout = 5 * time.Second
	defaultMaxRetries        = 3
)

// OrderAllocator admits or rejects purchase requests. Capacity reservation,
// identity claims, the order, its tickets and the outbox event commit in one
// transaction or not at all.
type OrderAllocator struct {
	store       AllocationStore
	catalog     *SessionZoneCatalog
	ledger      *CapacityLedger
	guard       *ScalpingGuard
	timeout     time.Duration
	maxRetries  int
	isRetryable func(error) bool
	logger      *zap.Logger
}

type AllocatorOption func(*OrderAllocator)

// WithAllocationTimeout bounds each Allocate call.
func WithAllocationTimeout(d time.Duration) AllocatorOption {
	return func(a *OrderAllocator) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// WithMaxRetries sets how many times a transaction that hit a transient
// storage conflict is attempted again.
func WithMaxRetries(n int) AllocatorOption {
	return func(a *OrderAllocator) {
		if n >= 0 {
			a.maxRetries = n
		}
	}
}

// WithRetryClassifier overrides which storage errors are retried.
func WithRetryClassifier(fn func(error) bool) AllocatorOption {
	return func(a *OrderAllocator) {
		if fn != nil {
			a.isRetryable = fn
		}
	}
}

func NewOrderAllocator(
	store AllocationStore,
	catalog *SessionZoneCatalog,
	ledger *CapacityLedger,
	guard *ScalpingGuard,
	opts ...AllocatorOption,
) *OrderAllocator {
	a := &OrderAllocator{
		store:       store,
		catalog:     catalog,
		ledger:      ledger,
		guard:       guard,
		timeout:     defaultAllocationTimeout,
		maxRetries:  defaultMaxRetries,
		isRetryable: storeRetryable,
		logger:      util.GetLogger(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func storeRetryable(err error) bool {
	return store.IsRetryable(err)
}

// Allocate runs a purchase. Business outcomes come back as *models.Rejection;
// any other error is a storage fault and left no trace in the datastore.
func (a *OrderAllocator) Allocate(ctx context.Context, req *AllocateRequest) (*AllocateResult, error) {
	ctx, span := util.StartSpan(ctx, "OrderAllocator.Allocate")
	defer span.End()

	start := time.Now()
	defer func() {
		util.AllocationLatency.Observe(time.Since(start).Seconds())
	}()

	result, err := a.allocate(ctx, req)
	if err != nil {
		if rej, ok := models.AsRejection(err); ok {
			util.AllocationsTotal.WithLabelValues(string(rej.Reason)).Inc()
			fields := []zap.Field{
				zap.String("reason", string(rej.Reason)),
				zap.Int64("purchaser_id", req.PurchaserID),
				zap.Int64("session_id", req.SessionID),
				zap.Int64("zone_id", req.ZoneID),
				zap.Int("buyers", len(req.Buyers)),
			}
			if rej.Reason == models.ReasonInsufficientCapacity {
				fields = append(fields, zap.Int("remaining", rej.Remaining))
			}
			if rej.IDNumber != "" {
				fields = append(fields, zap.String("id_number", util.MaskIDNumber(rej.IDNumber)))
			}
			a.logger.Info("Allocation rejected", fields...)
			return nil, rej
		}

		util.AllocationsTotal.WithLabelValues("error").Inc()
		util.RecordError(span, err)
		a.logger.Error("Allocation failed",
			zap.Int64("purchaser_id", req.PurchaserID),
			zap.Int64("zone_id", req.ZoneID),
			zap.Error(err))
		return nil, err
	}

	util.AllocationsTotal.WithLabelValues("success").Inc()
	util.TicketsIssuedTotal.Add(float64(result.TicketCount))
	a.logger.Info("Tickets allocated",
		zap.String("order_id", result.OrderID),
		zap.Int64("purchaser_id", req.PurchaserID),
		zap.Int64("zone_id", req.ZoneID),
		zap.Int("ticket_count", result.TicketCount),
		zap.String("total_amount", result.TotalAmount.String()))
	return result, nil
}

func (a *OrderAllocator) allocate(ctx context.Context, req *AllocateRequest) (*AllocateResult, error) {
	buyers, err := normalizeBuyers(req.Buyers)
	if err != nil {
		return nil, err
	}

	listing, err := a.catalog.LookupZone(ctx, req.SessionID, req.ZoneID)
	if err != nil {
		return nil, err
	}
	if !a.catalog.ZoneBelongsToSession(listing.Zone, req.SessionID) {
		return nil, models.Reject(models.ReasonZoneSessionMismatch,
			"zone %d is not part of session %d", req.ZoneID, req.SessionID)
	}
	if listing.Session.Status == models.SessionStatusEnded {
		return nil, models.Reject(models.ReasonSessionClosed, "session %d has ended", req.SessionID)
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	for attempt := 0; ; attempt++ {
		result, err := a.commit(ctx, req.PurchaserID, listing, buyers)
		if err == nil {
			return result, nil
		}
		if attempt >= a.maxRetries || !a.isRetryable(err) || ctx.Err() != nil {
			return nil, err
		}
		util.AllocationRetriesTotal.Inc()
		a.logger.Warn("Retrying allocation after transient storage conflict",
			zap.Int("attempt", attempt+1),
			zap.Int64("zone_id", req.ZoneID),
			zap.Error(err))
	}
}

// commit is one attempt at the transactional part of a purchase.
func (a *OrderAllocator) commit(ctx context.Context, purchaserID int64, listing *Listing, buyers []BuyerRequest) (*AllocateResult, error) {
	zone := listing.Zone
	orderID := uuid.NewString()

	tickets := make([]*models.Ticket, len(buyers))
	ticketIDs := make([]string, len(buyers))
	for i, b := range buyers {
		tickets[i] = &models.Ticket{
			ID:            uuid.NewString(),
			OrderID:       orderID,
			PurchaserID:   purchaserID,
			SessionID:     zone.SessionID,
			ZoneID:        zone.ID,
			BuyerIDNumber: b.IDNumber,
			BuyerName:     b.Name,
			Status:        models.TicketStatusValid,
		}
		ticketIDs[i] = tickets[i].ID
	}

	var order *models.Order
	err := a.store.WithTx(ctx, func(txCtx context.Context) error {
		if err := a.ledger.TryReserve(txCtx, zone.ID, len(buyers)); err != nil {
			return err
		}

		for _, ticket := range tickets {
			if err := a.guard.TryClaim(txCtx, ticket); err != nil {
				return err
			}
		}

		order = &models.Order{
			ID:          orderID,
			PurchaserID: purchaserID,
			Type:        models.OrderTypeTicket,
			TotalAmount: orderTotal(zone.Price, len(buyers)),
			Status:      models.OrderStatusPaid,
		}
		if err := a.store.CreateOrder(txCtx, order); err != nil {
			return err
		}

		event, err := ticketsAllocatedEvent(order, zone, tickets)
		if err != nil {
			return err
		}
		return a.store.InsertOutboxEvent(txCtx, event)
	})
	if err != nil {
		return nil, err
	}

	return &AllocateResult{
		OrderID:     order.ID,
		TicketIDs:   ticketIDs,
		TotalAmount: order.TotalAmount,
		TicketCount: len(tickets),
		Status:      order.Status,
	}, nil
}

// normalizeBuyers enforces the buyer-count rule and trims buyer fields.
func normalizeBuyers(in []BuyerRequest) ([]BuyerRequest, error) {
	if len(in) < models.MinBuyersPerOrder || len(in) > models.MaxBuyersPerOrder {
		return nil, models.Reject(models.ReasonInvalidBuyerCount,
			"an order must have between %d and %d buyers, got %d",
			models.MinBuyersPerOrder, models.MaxBuyersPerOrder, len(in))
	}

	out := make([]BuyerRequest, len(in))
	for i, b := range in {
		idNumber := strings.TrimSpace(b.IDNumber)
		name := strings.TrimSpace(b.Name)
		if idNumber == "" || name == "" {
			return nil, models.Reject(models.ReasonInvalidBuyer,
				"buyer %d needs both an id number and a name", i+1)
		}
		out[i] = BuyerRequest{IDNumber: idNumber, Name: name}
	}
	return out, nil
}

func orderTotal(price decimal.Decimal, count int) models.Money {
	return models.NewMoney(price.Mul(decimal.NewFromInt(int64(count))))
}

func ticketsAllocatedEvent(order *models.Order, zone *models.Zone, tickets []*models.Ticket) (*models.OutboxEvent, error) {
	data := make([]models.TicketData, len(tickets))
	for i, t := range tickets {
		data[i] = models.TicketData{TicketID: t.ID, BuyerName: t.BuyerName}
	}

	event := models.TicketsAllocatedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.NewString(),
			EventType: models.EventTypeTicketsAllocated,
			Timestamp: time.Now().UTC(),
		},
		OrderID:     order.ID,
		PurchaserID: order.PurchaserID,
		SessionID:   zone.SessionID,
		ZoneID:      zone.ID,
		TotalAmount: order.TotalAmount,
		Tickets:     data,
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshal %s event: %w", event.EventType, err)
	}

	return &models.OutboxEvent{
		ID:          event.EventID,
		AggregateID: order.ID,
		EventType:   event.EventType,
		Payload:     payload,
	}, nil
}
