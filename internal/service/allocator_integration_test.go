package service_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"ticket-service/internal/models"
	"ticket-service/internal/service"
	"ticket-service/internal/testutil"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocatorAgainstPostgres(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	newAllocator := func() *service.OrderAllocator {
		catalog := service.NewSessionZoneCatalog(s, nil, time.Minute)
		return service.NewOrderAllocator(s, catalog,
			service.NewCapacityLedger(s), service.NewScalpingGuard(s),
			service.WithAllocationTimeout(10*time.Second))
	}

	t.Run("commits order tickets and outbox event together", func(t *testing.T) {
		testutil.TruncateAll(t, ctx, s)
		sessionID, zoneID := testutil.InsertSessionAndZone(t, ctx, s, 100, 0, "299.00")

		res, err := newAllocator().Allocate(ctx, &service.AllocateRequest{
			PurchaserID: 42,
			SessionID:   sessionID,
			ZoneID:      zoneID,
			Buyers: []service.BuyerRequest{
				{IDNumber: "A123456789", Name: "Ann"},
				{IDNumber: "B123456789", Name: "Bob"},
			},
		})
		require.NoError(t, err)
		assert.True(t, res.TotalAmount.Equal(decimal.RequireFromString("598.00")))

		order, err := s.GetOrderByID(ctx, res.OrderID)
		require.NoError(t, err)
		assert.Equal(t, models.OrderStatusPaid, order.Status)
		assert.True(t, order.TotalAmount.Equal(res.TotalAmount.Decimal))

		tickets, err := s.GetTicketsByOrderID(ctx, res.OrderID)
		require.NoError(t, err)
		assert.Len(t, tickets, 2)

		zone, err := s.GetZone(ctx, zoneID)
		require.NoError(t, err)
		assert.Equal(t, 2, zone.SoldCount)
		assert.Equal(t, 1, testutil.CountRows(t, ctx, s, "outbox_events"))
	})

	t.Run("rejected claim rolls back the reservation", func(t *testing.T) {
		testutil.TruncateAll(t, ctx, s)
		sessionID, zoneID := testutil.InsertSessionAndZone(t, ctx, s, 100, 0, "10.00")
		a := newAllocator()

		_, err := a.Allocate(ctx, &service.AllocateRequest{
			SessionID: sessionID, ZoneID: zoneID,
			Buyers: []service.BuyerRequest{{IDNumber: "A1", Name: "Ann"}},
		})
		require.NoError(t, err)

		_, err = a.Allocate(ctx, &service.AllocateRequest{
			SessionID: sessionID, ZoneID: zoneID,
			Buyers: []service.BuyerRequest{{IDNumber: "B2", Name: "Bob"}, {IDNumber: "A1", Name: "Ann"}},
		})
		rej, ok := models.AsRejection(err)
		require.True(t, ok, "expected rejection, got %v", err)
		assert.Equal(t, models.ReasonAlreadyPurchased, rej.Reason)

		zone, err := s.GetZone(ctx, zoneID)
		require.NoError(t, err)
		assert.Equal(t, 1, zone.SoldCount)
		assert.Equal(t, 1, testutil.CountRows(t, ctx, s, "tickets"))
		assert.Equal(t, 1, testutil.CountRows(t, ctx, s, "orders"))
	})

	t.Run("concurrent purchases never oversell", func(t *testing.T) {
		testutil.TruncateAll(t, ctx, s)
		sessionID, zoneID := testutil.InsertSessionAndZone(t, ctx, s, 10, 0, "10.00")
		a := newAllocator()

		var wg sync.WaitGroup
		for i := 0; i < 30; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := a.Allocate(ctx, &service.AllocateRequest{
					PurchaserID: int64(i),
					SessionID:   sessionID,
					ZoneID:      zoneID,
					Buyers:      []service.BuyerRequest{{IDNumber: fmt.Sprintf("ID-%d", i), Name: "Buyer"}},
				})
				if err != nil {
					if _, ok := models.AsRejection(err); !ok {
						t.Errorf("unexpected error: %v", err)
					}
				}
			}(i)
		}
		wg.Wait()

		zone, err := s.GetZone(ctx, zoneID)
		require.NoError(t, err)
		assert.Equal(t, 10, zone.SoldCount)
		assert.Equal(t, 10, testutil.CountRows(t, ctx, s, "tickets"))
		assert.Equal(t, 10, testutil.CountRows(t, ctx, s, "orders"))
	})
}
