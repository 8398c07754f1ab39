// Package queue defines message payloads exchanged over the message broker.
package queue

import "time"

// LifecycleQueue is the durable queue operational events are published to.
const LifecycleQueue = "reservation.lifecycle"

// Event kinds carried by LifecycleEvent.
const (
	KindBookingConfirmed = "booking.confirmed"
	KindConfirmFailed    = "confirm.failed"
	KindReleaseFailed    = "release.failed"
	KindHoldSwept        = "hold.swept"
)

// LifecycleEvent records something operations may need to follow up on:
// a confirmed booking, a lifecycle call the backend did not acknowledge, or
// an abandoned hold the sweeper released.  None of these ever reach the
// customer.
type LifecycleEvent struct {
	Kind          string    `json:"kind"`
	ReservationID string    `json:"reservation_id"`
	TicketID      string    `json:"ticket_id,omitempty"`
	BookingID     string    `json:"booking_id,omitempty"`
	Pidx          string    `json:"pidx,omitempty"`
	Error         string    `json:"error,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}
