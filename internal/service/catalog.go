package service

import (
	"context"
	"errors"
	"time"

	"ticket-service/internal/models"
	"ticket-service/internal/util"

	"go.uber.org/zap"
)

// CatalogStore is the authoritative source of sessions and zones.
type CatalogStore interface {
	GetSession(ctx context.Context, id int64) (*models.Session, error)
	GetZone(ctx context.Context, id int64) (*models.Zone, error)
}

// CatalogCache holds session and zone metadata. Implementations never keep
// sold counts.
type CatalogCache interface {
	GetCachedSession(ctx context.Context, sessionID int64) (*models.Session, error)
	CacheSession(ctx context.Context, session *models.Session, ttl time.Duration) error
	GetCachedZone(ctx context.Context, zoneID int64) (*models.Zone, error)
	CacheZone(ctx context.Context, zone *models.Zone, ttl time.Duration) error
}

// Listing is a zone together with the session it was requested under.
// Zone.SoldCount is not populated; the ledger owns it.
type Listing struct {
	Session *models.Session
	Zone    *models.Zone
}

// Availability is an authoritative capacity snapshot of a zone.
type Availability struct {
	SessionID     int64        `json:"session_id"`
	ZoneID        int64        `json:"zone_id"`
	ZoneName      string       `json:"zone_name"`
	TotalCapacity int          `json:"total_capacity"`
	SoldCount     int          `json:"sold_count"`
	Remaining     int          `json:"remaining"`
	Price         models.Money `json:"price"`
}

// SessionZoneCatalog is a read-only lookup of sessions and zones. It is safe
// for concurrent use.
type SessionZoneCatalog struct {
	store  CatalogStore
	cache  CatalogCache
	ttl    time.Duration
	logger *zap.Logger
}

// NewSessionZoneCatalog creates a catalog. cache may be nil.
func NewSessionZoneCatalog(store CatalogStore, cache CatalogCache, ttl time.Duration) *SessionZoneCatalog {
	return &SessionZoneCatalog{
		store:  store,
		cache:  cache,
		ttl:    ttl,
		logger: util.GetLogger(),
	}
}

// LookupSession returns the session or a SessionNotFound rejection.
func (c *SessionZoneCatalog) LookupSession(ctx context.Context, sessionID int64) (*models.Session, error) {
	if session := c.cachedSession(ctx, sessionID); session != nil {
		return session, nil
	}

	session, err := c.store.GetSession(ctx, sessionID)
	if errors.Is(err, models.ErrNotFound) {
		return nil, models.Reject(models.ReasonSessionNotFound, "session %d does not exist", sessionID)
	}
	if err != nil {
		return nil, err
	}

	if c.cache != nil {
		if err := c.cache.CacheSession(ctx, session, c.ttl); err != nil {
			c.logger.Warn("Failed to cache session", zap.Int64("session_id", sessionID), zap.Error(err))
		}
	}
	return session, nil
}

// LookupZone resolves both ids. It reports SessionNotFound or ZoneNotFound
// but does not check that the zone belongs to the session.
func (c *SessionZoneCatalog) LookupZone(ctx context.Context, sessionID, zoneID int64) (*Listing, error) {
	session, err := c.LookupSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if zone := c.cachedZone(ctx, zoneID); zone != nil {
		return &Listing{Session: session, Zone: zone}, nil
	}

	zone, err := c.store.GetZone(ctx, zoneID)
	if errors.Is(err, models.ErrNotFound) {
		return nil, models.Reject(models.ReasonZoneNotFound, "zone %d does not exist", zoneID)
	}
	if err != nil {
		return nil, err
	}

	if c.cache != nil {
		if err := c.cache.CacheZone(ctx, zone, c.ttl); err != nil {
			c.logger.Warn("Failed to cache zone", zap.Int64("zone_id", zoneID), zap.Error(err))
		}
	}

	meta := *zone
	meta.SoldCount = 0
	return &Listing{Session: session, Zone: &meta}, nil
}

// ZoneBelongsToSession reports whether zone is owned by sessionID.
func (c *SessionZoneCatalog) ZoneBelongsToSession(zone *models.Zone, sessionID int64) bool {
	return zone != nil && zone.BelongsTo(sessionID)
}

// Availability reads the zone's current counts straight from the store.
func (c *SessionZoneCatalog) Availability(ctx context.Context, sessionID, zoneID int64) (*Availability, error) {
	zone, err := c.store.GetZone(ctx, zoneID)
	if errors.Is(err, models.ErrNotFound) {
		return nil, models.Reject(models.ReasonZoneNotFound, "zone %d does not exist", zoneID)
	}
	if err != nil {
		return nil, err
	}
	if !zone.BelongsTo(sessionID) {
		return nil, models.Reject(models.ReasonZoneSessionMismatch, "zone %d is not part of session %d", zoneID, sessionID)
	}

	return &Availability{
		SessionID:     zone.SessionID,
		ZoneID:        zone.ID,
		ZoneName:      zone.Name,
		TotalCapacity: zone.TotalCapacity,
		SoldCount:     zone.SoldCount,
		Remaining:     zone.Remaining(),
		Price:         models.NewMoney(zone.Price),
	}, nil
}

func (c *SessionZoneCatalog) cachedSession(ctx context.Context, sessionID int64) *models.Session {
	if c.cache == nil {
		return nil
	}
	session, err := c.cache.GetCachedSession(ctx, sessionID)
	if err != nil {
		c.logger.Warn("Session cache read failed", zap.Int64("session_id", sessionID), zap.Error(err))
		util.CatalogCacheTotal.WithLabelValues("error").Inc()
		return nil
	}
	if session == nil {
		util.CatalogCacheTotal.WithLabelValues("miss").Inc()
		return nil
	}
	util.CatalogCacheTotal.WithLabelValues("hit").Inc()
	return session
}

func (c *SessionZoneCatalog) cachedZone(ctx context.Context, zoneID int64) *models.Zone {
	if c.cache == nil {
		return nil
	}
	zone, err := c.cache.GetCachedZone(ctx, zoneID)
	if err != nil {
		c.logger.Warn("Zone cache read failed", zap.Int64("zone_id", zoneID), zap.Error(err))
		util.CatalogCacheTotal.WithLabelValues("error").Inc()
		return nil
	}
	if zone == nil {
		util.CatalogCacheTotal.WithLabelValues("miss").Inc()
		return nil
	}
	util.CatalogCacheTotal.WithLabelValues("hit").Inc()
	return zone
}
