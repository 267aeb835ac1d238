package service

import (
	"context"
	"errors"
	"fmt"

	"ticket-service/internal/models"
	"ticket-service/internal/util"

	"go.uber.org/zap"
)

// LedgerStore mutates a zone's sold count.
type LedgerStore interface {
	ReserveCapacity(ctx context.Context, zoneID int64, count int) (int, error)
	ReleaseCapacity(ctx context.Context, zoneID int64, count int) error
}

// CapacityLedger owns the sold count of every zone.
type CapacityLedger struct {
	store  LedgerStore
	logger *zap.Logger
}

func NewCapacityLedger(store LedgerStore) *CapacityLedger {
	return &CapacityLedger{
		store:  store,
		logger: util.GetLogger(),
	}
}

// TryReserve adds count units to the zone's sold count if they fit. It
// returns nil when reserved, an InsufficientCapacity rejection carrying the
// remaining units when they do not, or a storage error. A rejected call
// writes nothing. Run it inside the caller's transaction so the reservation
// commits or rolls back with the rest of the purchase.
func (l *CapacityLedger) TryReserve(ctx context.Context, zoneID int64, count int) error {
	ctx, span := util.StartSpan(ctx, "CapacityLedger.TryReserve")
	defer span.End()

	if count <= 0 {
		return fmt.Errorf("reserve %d units: count must be positive", count)
	}

	sold, err := l.store.ReserveCapacity(ctx, zoneID, count)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.Reject(models.ReasonZoneNotFound, "zone %d does not exist", zoneID)
		}
		if rej, ok := models.AsRejection(err); ok {
			util.CapacityRejectionsTotal.Inc()
			l.logger.Info("Capacity exhausted",
				zap.Int64("zone_id", zoneID),
				zap.Int("requested", count),
				zap.Int("remaining", rej.Remaining))
			return rej
		}
		util.RecordError(span, err)
		return err
	}

	l.logger.Debug("Capacity reserved",
		zap.Int64("zone_id", zoneID),
		zap.Int("count", count),
		zap.Int("sold_count", sold))
	return nil
}

// Release undoes a reservation made outside a storage transaction.
func (l *CapacityLedger) Release(ctx context.Context, zoneID int64, count int) error {
	ctx, span := util.StartSpan(ctx, "CapacityLedger.Release")
	defer span.End()

	if err := l.store.ReleaseCapacity(ctx, zoneID, count); err != nil {
		l.logger.Error("Failed to release capacity",
			zap.Int64("zone_id", zoneID),
			zap.Int("count", count),
			zap.Error(err))
		util.RecordError(span, err)
		return err
	}
	return nil
}
