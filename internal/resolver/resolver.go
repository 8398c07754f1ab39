// Package resolver recovers a customer-facing booking reference from
// whatever state survives a failed or interrupted checkout.  Strategies
// are tried in a fixed order and the first non-empty answer wins; a
// strategy that errors simply hands over to the next one.
package resolver

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/bus-seat-checkout/internal/model"
)

// Lookup is the snapshot of identifiers a strategy may use.  It is taken
// before any storage is cleared.
type Lookup struct {
	Pidx            string
	PurchaseOrderID string
	TicketID        string
	PaymentData     *model.PaymentData
}

// orderID is the order reference from the callback, else from the cached
// paymentData.
func (l Lookup) orderID() string {
	if l.PurchaseOrderID != "" {
		return l.PurchaseOrderID
	}
	if l.PaymentData != nil {
		return l.PaymentData.OrderRef()
	}
	return ""
}

// Strategy produces a booking reference or "" when it has nothing to say.
type Strategy func(ctx context.Context, in Lookup) (string, error)

// Step is a named Strategy; the name only shows up in logs.
type Step struct {
	Name     string
	Strategy Strategy
}

// FirstNonEmpty composes steps into a single Strategy returning the first
// non-empty reference.  Errors are logged and skipped; the composed
// strategy itself never fails.
func FirstNonEmpty(log *logrus.Logger, steps ...Step) Strategy {
	return func(ctx context.Context, in Lookup) (string, error) {
		for _, s := range steps {
			ref, err := s.Strategy(ctx, in)
			if err != nil {
				log.WithFields(logrus.Fields{"step": s.Name, "pidx": in.Pidx}).WithError(err).Debug("resolver step failed")
				continue
			}
			if ref = strings.TrimSpace(ref); ref != "" {
				log.WithFields(logrus.Fields{"step": s.Name, "pidx": in.Pidx}).Debug("resolved booking reference")
				return ref, nil
			}
		}
		return "", nil
	}
}

// TicketLookup is the backend surface the network strategies query.
type TicketLookup interface {
	TicketByTransaction(ctx context.Context, pidx, purchaseOrderID string) (string, error)
	TicketByID(ctx context.Context, ticketID string) (string, error)
	TicketByOrder(ctx context.Context, orderID string) (string, error)
}

// ByTransaction asks the backend for any ticket created under the gateway
// transaction.  It is the most authoritative step.
func ByTransaction(t TicketLookup) Step {
	return Step{Name: "by-transaction", Strategy: func(ctx context.Context, in Lookup) (string, error) {
		if in.Pidx == "" {
			return "", nil
		}
		return t.TicketByTransaction(ctx, in.Pidx, in.PurchaseOrderID)
	}}
}

// ByTicketID looks the cached ticket id up.
func ByTicketID(t TicketLookup) Step {
	return Step{Name: "by-ticket-id", Strategy: func(ctx context.Context, in Lookup) (string, error) {
		if in.TicketID == "" {
			return "", nil
		}
		return t.TicketByID(ctx, in.TicketID)
	}}
}

// ByOrderID looks the ticket up by order id.
func ByOrderID(t TicketLookup) Step {
	return Step{Name: "by-order-id", Strategy: func(ctx context.Context, in Lookup) (string, error) {
		id := in.orderID()
		if id == "" {
			return "", nil
		}
		return t.TicketByOrder(ctx, id)
	}}
}

// CachedBookingID returns paymentData.bookingId when it carries prefix.
// Anything else cached under that key is not a booking id we issued.
func CachedBookingID(prefix string) Step {
	return Step{Name: "cached-booking-id", Strategy: func(_ context.Context, in Lookup) (string, error) {
		if in.PaymentData == nil {
			return "", nil
		}
		id := strings.TrimSpace(in.PaymentData.BookingID)
		if id == "" || !strings.HasPrefix(id, prefix) {
			return "", nil
		}
		return id, nil
	}}
}

// OrderIDEcho surfaces the raw order id as the reference of last resort.
func OrderIDEcho() Step {
	return Step{Name: "order-id", Strategy: func(_ context.Context, in Lookup) (string, error) {
		return in.orderID(), nil
	}}
}

// Resolver bundles the two chains the payment flow uses.
type Resolver struct {
	full   Strategy
	cached Strategy
}

// New builds the standard chains: by transaction, by cached ticket id, by
// order id, cached booking id, raw order id.  The cached chain skips the
// three network lookups.
func New(t TicketLookup, bookingPrefix string, log *logrus.Logger) *Resolver {
	return &Resolver{
		full: FirstNonEmpty(log,
			ByTransaction(t),
			ByTicketID(t),
			ByOrderID(t),
			CachedBookingID(bookingPrefix),
			OrderIDEcho(),
		),
		cached: FirstNonEmpty(log,
			CachedBookingID(bookingPrefix),
			OrderIDEcho(),
		),
	}
}

// Resolve runs the full chain.  "" means every step came up empty.
func (r *Resolver) Resolve(ctx context.Context, in Lookup) string {
	ref, _ := r.full(ctx, in)
	return ref
}

// ResolveCached runs only the steps that need no network.
func (r *Resolver) ResolveCached(ctx context.Context, in Lookup) string {
	ref, _ := r.cached(ctx, in)
	return ref
}
