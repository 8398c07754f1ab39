// Package lifecycle wraps the release and confirm calls of the
// reservation service.  Both calls are bookkeeping: whether a booking
// happened is decided by payment verification, so a failed lifecycle call
// is logged and reported for operations but never fails the caller's flow.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/bus-seat-checkout/internal/backend"
	"github.com/iliyamo/bus-seat-checkout/internal/queue"
)

// Backend is the subset of the backend client the lifecycle calls need.
type Backend interface {
	Release(ctx context.Context, reservationID string) error
	Confirm(ctx context.Context, reservationID, ticketID, bookingID string) error
}

// Reporter forwards operational events, usually to the lifecycle queue.
type Reporter interface {
	Publish(ctx context.Context, event queue.LifecycleEvent) error
}

// LifecycleCallFailure is a release or confirm the backend did not
// acknowledge.
type LifecycleCallFailure struct {
	Op            string // "release" or "confirm"
	ReservationID string
	Err           error
}

func (e *LifecycleCallFailure) Error() string {
	return fmt.Sprintf("lifecycle: %s %s: %v", e.Op, e.ReservationID, e.Err)
}

func (e *LifecycleCallFailure) Unwrap() error { return e.Err }

// Client issues release and confirm calls.  Calling either more than once
// for the same reservation is safe: the backend's "already settled"
// answers count as success.
type Client struct {
	backend  Backend
	reporter Reporter
	log      *logrus.Logger
	now      func() time.Time
}

// New returns a Client.  reporter may be nil, in which case failures are
// only logged.
func New(b Backend, reporter Reporter, log *logrus.Logger) *Client {
	return &Client{backend: b, reporter: reporter, log: log, now: time.Now}
}

// Release abandons the hold so its seats are freed.  An empty
// reservationID is a no-op.
func (c *Client) Release(ctx context.Context, reservationID string) error {
	if reservationID == "" {
		return nil
	}
	err := c.backend.Release(ctx, reservationID)
	return c.settle(ctx, "release", queue.LifecycleEvent{
		Kind:          queue.KindReleaseFailed,
		ReservationID: reservationID,
	}, err)
}

// Confirm marks the hold as a permanent booking.  An empty reservationID
// is a no-op.
func (c *Client) Confirm(ctx context.Context, reservationID, ticketID, bookingID string) error {
	if reservationID == "" {
		return nil
	}
	err := c.backend.Confirm(ctx, reservationID, ticketID, bookingID)
	return c.settle(ctx, "confirm", queue.LifecycleEvent{
		Kind:          queue.KindConfirmFailed,
		ReservationID: reservationID,
		TicketID:      ticketID,
		BookingID:     bookingID,
	}, err)
}

func (c *Client) settle(ctx context.Context, op string, failed queue.LifecycleEvent, err error) error {
	fields := logrus.Fields{"op": op, "reservation_id": failed.ReservationID}
	if err == nil || errors.Is(err, backend.ErrAlreadySettled) {
		c.log.WithFields(fields).Debug("lifecycle call acknowledged")
		return nil
	}
	failure := &LifecycleCallFailure{Op: op, ReservationID: failed.ReservationID, Err: err}
	c.log.WithFields(fields).WithError(err).Warn("lifecycle call failed; left for operational follow-up")
	if c.reporter != nil {
		failed.Error = err.Error()
		failed.OccurredAt = c.now().UTC()
		// the request may already be finishing; the report must still go out
		_ = c.reporter.Publish(context.WithoutCancel(ctx), failed)
	}
	return failure
}
