package service

import (
	"context"
	"errors"

	"ticket-service/internal/models"
	"ticket-service/internal/util"

	"go.uber.org/zap"
)

// ClaimStore persists valid tickets under a uniqueness constraint on
// (session, buyer identity).
type ClaimStore interface {
	InsertTicket(ctx context.Context, ticket *models.Ticket) error
}

// ScalpingGuard enforces one valid ticket per identity document per session.
type ScalpingGuard struct {
	store  ClaimStore
	logger *zap.Logger
}

func NewScalpingGuard(store ClaimStore) *ScalpingGuard {
	return &ScalpingGuard{
		store:  store,
		logger: util.GetLogger(),
	}
}

// TryClaim records the ticket's (session, identity) pair. The claim is the
// valid ticket row itself, so it only becomes durable when the caller's
// transaction commits. A duplicate yields an AlreadyPurchased rejection.
func (g *ScalpingGuard) TryClaim(ctx context.Context, ticket *models.Ticket) error {
	ctx, span := util.StartSpan(ctx, "ScalpingGuard.TryClaim")
	defer span.End()

	ticket.Status = models.TicketStatusValid
	err := g.store.InsertTicket(ctx, ticket)
	if errors.Is(err, models.ErrDuplicateClaim) {
		g.logger.Info("Identity already holds a ticket",
			zap.Int64("session_id", ticket.SessionID),
			zap.String("id_number", util.MaskIDNumber(ticket.BuyerIDNumber)))
		return &models.Rejection{
			Reason:   models.ReasonAlreadyPurchased,
			IDNumber: ticket.BuyerIDNumber,
		}
	}
	if err != nil {
		util.RecordError(span, err)
		return err
	}
	return nil
}
