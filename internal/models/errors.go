package models

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrDuplicateClaim    = errors.New("identity already holds a valid ticket for session")
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrMalformedEvent marks a message that can never be handled, however
	// often it is redelivered.
	ErrMalformedEvent = errors.New("malformed event")
)

// Reason is a machine-readable rejection cause returned to callers.
type Reason string

const (
	ReasonInvalidBuyerCount    Reason = "InvalidBuyerCount"
	ReasonInvalidBuyer         Reason = "InvalidBuyer"
	ReasonSessionNotFound      Reason = "SessionNotFound"
	ReasonZoneNotFound         Reason = "ZoneNotFound"
	ReasonZoneSessionMismatch  Reason = "ZoneSessionMismatch"
	ReasonSessionClosed        Reason = "SessionClosed"
	ReasonInsufficientCapacity Reason = "InsufficientCapacity"
	ReasonAlreadyPurchased     Reason = "AlreadyPurchased"
	ReasonRateLimited          Reason = "RateLimited"
)

// IsValidation reports whether the reason is detected before any mutation
// and depends only on the request input.
func (r Reason) IsValidation() bool {
	switch r {
	case ReasonInvalidBuyerCount, ReasonInvalidBuyer, ReasonSessionNotFound,
		ReasonZoneNotFound, ReasonZoneSessionMismatch:
		return true
	}
	return false
}

// Rejection is a business outcome, not a fault. It never leaves shared state
// modified.
type Rejection struct {
	Reason Reason
	// Remaining is set for InsufficientCapacity.
	Remaining int
	// IDNumber is set for AlreadyPurchased. It is returned to the caller that
	// submitted it and must be masked before logging.
	IDNumber string
	Detail   string
}

func (r *Rejection) Error() string {
	switch r.Reason {
	case ReasonInsufficientCapacity:
		return fmt.Sprintf("%s: only %d tickets remaining", r.Reason, r.Remaining)
	case ReasonAlreadyPurchased:
		return fmt.Sprintf("%s: identity %s already holds a ticket for this session", r.Reason, r.IDNumber)
	}
	if r.Detail != "" {
		return fmt.Sprintf("%s: %s", r.Reason, r.Detail)
	}
	return string(r.Reason)
}

// Reject builds a rejection with an optional formatted detail.
func Reject(reason Reason, format string, args ...interface{}) *Rejection {
	return &Rejection{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

// AsRejection unwraps err into a Rejection if it carries one.
func AsRejection(err error) (*Rejection, bool) {
	var rej *Rejection
	if errors.As(err, &rej) {
		return rej, true
	}
	return nil, false
}
