package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// SessionStatus is the lifecycle state of a performance window.
type SessionStatus string

const (
	SessionStatusAvailable SessionStatus = "available"
	SessionStatusSoldOut   SessionStatus = "sold_out"
	SessionStatusEnded     SessionStatus = "ended"
)

// OrderStatus is the state of a purchase. The allocator only ever sets Paid.
type OrderStatus string

const (
	OrderStatusPaid      OrderStatus = "paid"
	OrderStatusShipped   OrderStatus = "shipped"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// TicketStatus is the state of one admission unit.
type TicketStatus string

const (
	TicketStatusValid   TicketStatus = "valid"
	TicketStatusUsed    TicketStatus = "used"
	TicketStatusExpired TicketStatus = "expired"
)

// OrderTypeTicket tags orders produced by the allocation engine.
const OrderTypeTicket = "ticket"

// Buyer limits per purchase request.
const (
	MinBuyersPerOrder = 1
	MaxBuyersPerOrder = 4
)

// Session represents a scheduled performance window
type Session struct {
	ID        int64         `db:"id" json:"id"`
	EventID   int64         `db:"event_id" json:"event_id"`
	Name      string        `db:"name" json:"name"`
	StartsAt  time.Time     `db:"starts_at" json:"starts_at"`
	EndsAt    time.Time     `db:"ends_at" json:"ends_at"`
	Status    SessionStatus `db:"status" json:"status"`
	CreatedAt time.Time     `db:"created_at" json:"created_at"`
}

// Zone is a fixed-capacity pool of tickets within a session
type Zone struct {
	ID            int64           `db:"id" json:"id"`
	SessionID     int64           `db:"session_id" json:"session_id"`
	Name          string          `db:"name" json:"name"`
	TotalCapacity int             `db:"total_capacity" json:"total_capacity"`
	SoldCount     int             `db:"sold_count" json:"sold_count"`
	Price         decimal.Decimal `db:"price" json:"price"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updated_at"`
}

// Remaining returns the unsold capacity of the zone.
func (z *Zone) Remaining() int {
	return z.TotalCapacity - z.SoldCount
}

// BelongsTo reports whether the zone is owned by the given session.
func (z *Zone) BelongsTo(sessionID int64) bool {
	return z.SessionID == sessionID
}

// Order represents a ticket purchase
type Order struct {
	ID          string      `db:"id" json:"id"`
	PurchaserID int64       `db:"purchaser_id" json:"purchaser_id"`
	Type        string      `db:"type" json:"type"`
	TotalAmount Money       `db:"total_amount" json:"total_amount"`
	Status      OrderStatus `db:"status" json:"status"`
	CreatedAt   time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time   `db:"updated_at" json:"updated_at"`
}

// Ticket is one admission unit bound to a buyer identity document
type Ticket struct {
	ID            string       `db:"id" json:"id"`
	OrderID       string       `db:"order_id" json:"order_id"`
	PurchaserID   int64        `db:"purchaser_id" json:"purchaser_id"`
	SessionID     int64        `db:"session_id" json:"session_id"`
	ZoneID        int64        `db:"zone_id" json:"zone_id"`
	BuyerIDNumber string       `db:"buyer_id_number" json:"buyer_id_number"`
	BuyerName     string       `db:"buyer_name" json:"buyer_name"`
	Status        TicketStatus `db:"status" json:"status"`
	CreatedAt     time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time    `db:"updated_at" json:"updated_at"`
}

// OutboxEvent is a domain event written in the same transaction as the
// state change it describes and relayed to Kafka afterwards.
type OutboxEvent struct {
	ID          string     `db:"id"`
	AggregateID string     `db:"aggregate_id"`
	EventType   string     `db:"event_type"`
	Payload     []byte     `db:"payload"`
	CreatedAt   time.Time  `db:"created_at"`
	PublishedAt *time.Time `db:"published_at"`
}
