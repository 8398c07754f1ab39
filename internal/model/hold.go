package model

import "time"

// ReservationHold represents a temporary lock on seats while the customer
// completes an external payment redirect.  The backend issues the
// reservation identifier when the seats are provisionally locked; past
// ExpiresAt the hold is assumed invalid without asking the server.
//
// Fields:
//  ReservationID – opaque identifier issued by the reservation service.
//  ExpiresAt     – absolute expiry of the hold.
//  Seats         – seat codes provisionally locked (owned by the search subsystem).
type ReservationHold struct {
	ReservationID string    `json:"reservationId"`
	ExpiresAt     time.Time `json:"expiresAt"`
	Seats         []string  `json:"seats,omitempty"`
}

// Expired reports whether the hold is past its expiry at now.  A hold
// without a recorded expiry is never considered expired on the client.
func (h ReservationHold) Expired(now time.Time) bool {
	if h.ExpiresAt.IsZero() {
		return false
	}
	return now.After(h.ExpiresAt)
}

// Remaining returns the time left on the hold, floored at zero.
func (h ReservationHold) Remaining(now time.Time) time.Duration {
	if h.ExpiresAt.IsZero() {
		return 0
	}
	d := h.ExpiresAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}
