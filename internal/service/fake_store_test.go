package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"ticket-service/internal/models"

	"github.com/shopspring/decimal"
)

type txKey struct{}

// memStore is an in-memory store with serialized transactions. A failed
// transaction restores the snapshot taken when it began.
type memStore struct {
	txMu sync.Mutex
	mu   sync.Mutex

	sessions  map[int64]*models.Session
	zones     map[int64]*models.Zone
	orders    map[string]*models.Order
	tickets   map[string]*models.Ticket
	seq       []string
	outbox    []models.OutboxEvent
	processed map[string]string

	// fault injection
	outboxFaults  []error
	outboxCalls   int
	beforeReserve func(ctx context.Context) error
	markFault     error
}

func newMemStore() *memStore {
	return &memStore{
		sessions:  make(map[int64]*models.Session),
		zones:     make(map[int64]*models.Zone),
		orders:    make(map[string]*models.Order),
		tickets:   make(map[string]*models.Ticket),
		processed: make(map[string]string),
	}
}

func (m *memStore) addSession(id int64, status models.SessionStatus) {
	m.sessions[id] = &models.Session{ID: id, EventID: 1, Name: "Evening show", Status: status}
}

func (m *memStore) addZone(id, sessionID int64, capacity, sold int, price string) {
	m.zones[id] = &models.Zone{
		ID:            id,
		SessionID:     sessionID,
		Name:          "Zone",
		TotalCapacity: capacity,
		SoldCount:     sold,
		Price:         decimal.RequireFromString(price),
	}
}

type memSnapshot struct {
	zones     map[int64]models.Zone
	orders    map[string]models.Order
	tickets   map[string]models.Ticket
	seq       []string
	outbox    []models.OutboxEvent
	processed map[string]string
}

func (m *memStore) snapshot() memSnapshot {
	s := memSnapshot{
		zones:     make(map[int64]models.Zone, len(m.zones)),
		orders:    make(map[string]models.Order, len(m.orders)),
		tickets:   make(map[string]models.Ticket, len(m.tickets)),
		seq:       append([]string(nil), m.seq...),
		outbox:    append([]models.OutboxEvent(nil), m.outbox...),
		processed: make(map[string]string, len(m.processed)),
	}
	for k, v := range m.zones {
		s.zones[k] = *v
	}
	for k, v := range m.orders {
		s.orders[k] = *v
	}
	for k, v := range m.tickets {
		s.tickets[k] = *v
	}
	for k, v := range m.processed {
		s.processed[k] = v
	}
	return s
}

func (m *memStore) restore(s memSnapshot) {
	m.zones = make(map[int64]*models.Zone, len(s.zones))
	for k, v := range s.zones {
		v := v
		m.zones[k] = &v
	}
	m.orders = make(map[string]*models.Order, len(s.orders))
	for k, v := range s.orders {
		v := v
		m.orders[k] = &v
	}
	m.tickets = make(map[string]*models.Ticket, len(s.tickets))
	for k, v := range s.tickets {
		v := v
		m.tickets[k] = &v
	}
	m.seq = s.seq
	m.outbox = s.outbox
	m.processed = s.processed
}

func (m *memStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.Lock()
	snap := m.snapshot()
	m.mu.Unlock()

	err := fn(context.WithValue(ctx, txKey{}, true))
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		m.mu.Lock()
		m.restore(snap)
		m.mu.Unlock()
		return err
	}
	return nil
}

func (m *memStore) GetSession(ctx context.Context, id int64) (*models.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memStore) GetZone(ctx context.Context, id int64) (*models.Zone, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	z, ok := m.zones[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *z
	return &cp, nil
}

func (m *memStore) ReserveCapacity(ctx context.Context, zoneID int64, count int) (int, error) {
	if m.beforeReserve != nil {
		if err := m.beforeReserve(ctx); err != nil {
			return 0, err
		}
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	z, ok := m.zones[zoneID]
	if !ok {
		return 0, models.ErrNotFound
	}
	if z.SoldCount+count > z.TotalCapacity {
		return 0, &models.Rejection{Reason: models.ReasonInsufficientCapacity, Remaining: z.Remaining()}
	}
	z.SoldCount += count
	return z.SoldCount, nil
}

func (m *memStore) ReleaseCapacity(ctx context.Context, zoneID int64, count int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	z, ok := m.zones[zoneID]
	if !ok || z.SoldCount < count {
		return models.ErrNotFound
	}
	z.SoldCount -= count
	return nil
}

func (m *memStore) InsertTicket(ctx context.Context, ticket *models.Ticket) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tickets {
		if t.Status == models.TicketStatusValid &&
			t.SessionID == ticket.SessionID &&
			t.BuyerIDNumber == ticket.BuyerIDNumber {
			return models.ErrDuplicateClaim
		}
	}
	now := time.Now()
	ticket.CreatedAt, ticket.UpdatedAt = now, now
	cp := *ticket
	m.tickets[ticket.ID] = &cp
	m.seq = append(m.seq, ticket.ID)
	return nil
}

func (m *memStore) CreateOrder(ctx context.Context, order *models.Order) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	order.CreatedAt, order.UpdatedAt = now, now
	cp := *order
	m.orders[order.ID] = &cp
	return nil
}

func (m *memStore) InsertOutboxEvent(ctx context.Context, event *models.OutboxEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outboxCalls++
	if len(m.outboxFaults) > 0 {
		err := m.outboxFaults[0]
		m.outboxFaults = m.outboxFaults[1:]
		if err != nil {
			return err
		}
	}
	event.CreatedAt = time.Now()
	m.outbox = append(m.outbox, *event)
	return nil
}

func (m *memStore) GetOrderByID(ctx context.Context, id string) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *memStore) GetTicketsByOrderID(ctx context.Context, orderID string) ([]models.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Ticket
	for _, id := range m.seq {
		if t := m.tickets[id]; t.OrderID == orderID {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (m *memStore) UpdateOrderStatus(ctx context.Context, orderID string, from, to models.OrderStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok || o.Status != from {
		return models.ErrInvalidTransition
	}
	o.Status = to
	return nil
}

func (m *memStore) UpdateTicketStatus(ctx context.Context, ticketID string, from, to models.TicketStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tickets[ticketID]
	if !ok || t.Status != from {
		return models.ErrInvalidTransition
	}
	t.Status = to
	return nil
}

func (m *memStore) ExpireValidTickets(ctx context.Context, orderID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, t := range m.tickets {
		if t.OrderID == orderID && t.Status == models.TicketStatusValid {
			t.Status = models.TicketStatusExpired
			n++
		}
	}
	return n, nil
}

func (m *memStore) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.processed[eventID]
	return ok, nil
}

func (m *memStore) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.markFault != nil {
		return m.markFault
	}
	m.processed[eventID] = eventType
	return nil
}

func (m *memStore) soldCount(zoneID int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.zones[zoneID].SoldCount
}

func (m *memStore) ticketCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tickets)
}

func (m *memStore) orderCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.orders)
}

func (m *memStore) outboxEvents() []models.OutboxEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.OutboxEvent(nil), m.outbox...)
}

func (m *memStore) ticketStatus(id string) models.TicketStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tickets[id].Status
}

func (m *memStore) ticketIDsOf(orderID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for id, t := range m.tickets {
		if t.OrderID == orderID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}
