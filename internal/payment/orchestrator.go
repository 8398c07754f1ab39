package payment

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/iliyamo/bus-seat-checkout/internal/backend"
	"github.com/iliyamo/bus-seat-checkout/internal/model"
	"github.com/iliyamo/bus-seat-checkout/internal/queue"
	"github.com/iliyamo/bus-seat-checkout/internal/repository"
	"github.com/iliyamo/bus-seat-checkout/internal/resolver"
)

// Verifier is the backend verify call.
type Verifier interface {
	Verify(ctx context.Context, req backend.VerifyRequest) (backend.VerifyResponse, error)
}

// Lifecycle settles the hold.  Errors are already logged and reported by
// the implementation; the orchestrator ignores them.
type Lifecycle interface {
	Release(ctx context.Context, reservationID string) error
	Confirm(ctx context.Context, reservationID, ticketID, bookingID string) error
}

// References recovers a booking reference for non-success outcomes.
type References interface {
	Resolve(ctx context.Context, in resolver.Lookup) string
	ResolveCached(ctx context.Context, in resolver.Lookup) string
}

// Recorder stores the attempt audit row.
type Recorder interface {
	Insert(ctx context.Context, rec *model.AttemptRecord) error
}

// Notifier receives operational events such as confirmed bookings.
type Notifier interface {
	Publish(ctx context.Context, event queue.LifecycleEvent) error
}

// ExpiryIndex is the sweeper's view of held sessions.  A hold a callback
// has claimed is dropped from it.
type ExpiryIndex interface {
	Unindex(ctx context.Context, sessionID string) error
}

// Deps are the collaborators shared by all orchestrators.  Recorder,
// Notifier and Index are optional.
type Deps struct {
	Verifier  Verifier
	Lifecycle Lifecycle
	Resolver  References
	Recorder  Recorder
	Notifier  Notifier
	Index     ExpiryIndex
	Now       func() time.Time
	Log       *logrus.Logger
}

// Orchestrator handles one gateway callback for one session.  It is not
// safe for concurrent use; build one per request.
type Orchestrator struct {
	deps      Deps
	store     repository.HoldRepository
	sessionID string
	state     State
	outcome   Outcome
}

// New returns an orchestrator in INITIATED for the given session storage.
func New(deps Deps, sessionID string, store repository.HoldRepository) *Orchestrator {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Log == nil {
		deps.Log = logrus.StandardLogger()
	}
	return &Orchestrator{deps: deps, store: store, sessionID: sessionID}
}

// State returns the current state.
func (o *Orchestrator) State() State { return o.state }

// Run feeds the callback query into the machine and drives it to a
// terminal state.  Calling Run again on the same orchestrator performs no
// I/O and returns the outcome of the first run.
func (o *Orchestrator) Run(ctx context.Context, query url.Values) Outcome {
	o.dispatch(ctx, CallbackArrived{Query: query})
	return o.outcome
}

// dispatch applies e and runs the entry action of every phase entered as
// a result.
func (o *Orchestrator) dispatch(ctx context.Context, e Event) {
	for e != nil {
		next := Transition(o.state, e)
		if next.Phase == o.state.Phase {
			return
		}
		o.state = next
		e = o.enter(ctx)
	}
}

func (o *Orchestrator) entry() *logrus.Entry {
	return o.deps.Log.WithFields(logrus.Fields{
		"session": o.sessionID,
		"phase":   o.state.Phase.String(),
		"pidx":    o.state.Params.Pidx,
	})
}

// enter performs the effects of the phase just entered and returns the
// event they produced, or nil in a terminal phase.
func (o *Orchestrator) enter(ctx context.Context) Event {
	switch o.state.Phase {
	case PhaseAwaitingCallback:
		p := ParseCallback(o.state.Query)
		if p.Pidx == "" {
			return CallbackRejected{Params: p}
		}
		return CallbackParsed{Params: p}
	case PhaseCheckingExpiry:
		return o.inspectHold(ctx)
	case PhaseVerifying:
		return o.verify(ctx)
	case PhaseConfirmed:
		o.finish(ctx, o.confirm(ctx))
	case PhaseExpired:
		o.finish(ctx, o.expire(ctx))
	case PhaseFailed:
		o.finish(ctx, o.fail(ctx))
	}
	return nil
}

func (o *Orchestrator) inspectHold(ctx context.Context) Event {
	verified, err := repository.IsVerified(ctx, o.store)
	if err != nil {
		return HoldInspected{Err: err}
	}
	if verified {
		ev := HoldInspected{Verified: true}
		ev.BookingID, _, _ = o.store.Get(ctx, repository.KeyBookingID)
		ev.TicketID, _, _ = o.store.Get(ctx, repository.KeyTicketID)
		return ev
	}
	hold, err := repository.LoadHold(ctx, o.store)
	if err != nil && !errors.Is(err, repository.ErrInvalidValue) {
		return HoldInspected{Err: err}
	}
	if err != nil {
		// An unreadable expiry cannot prove the hold is still alive.
		o.entry().WithError(err).Warn("treating hold with unreadable expiry as expired")
		return HoldInspected{ReservationID: hold.ReservationID, Expired: true}
	}
	ev := HoldInspected{ReservationID: hold.ReservationID, Expired: hold.Expired(o.deps.Now())}
	if ev.Expired || ev.ReservationID == "" {
		return ev
	}
	return o.claimHold(ctx, ev)
}

// claimHold takes the settlement lease before verification so the sweeper
// cannot release a hold this callback may still confirm.  A hold the
// sweeper already took is reported as expired.
func (o *Orchestrator) claimHold(ctx context.Context, ev HoldInspected) Event {
	holder, err := repository.ClaimSettlement(ctx, o.store, repository.SettledByCallback)
	if err != nil {
		return HoldInspected{Err: err}
	}
	if holder == repository.SettledBySweeper {
		o.entry().WithField("reservation_id", ev.ReservationID).Info("hold already swept")
		ev.Expired = true
		return ev
	}
	if o.deps.Index != nil {
		if err := o.deps.Index.Unindex(ctx, o.sessionID); err != nil {
			o.entry().WithError(err).Warn("drop hold from expiry index")
		}
	}
	return ev
}

func (o *Orchestrator) verify(ctx context.Context) Event {
	p := o.state.Params
	resp, err := o.deps.Verifier.Verify(ctx, backend.VerifyRequest{
		Pidx:            p.Pidx,
		Status:          p.Status,
		PurchaseOrderID: p.PurchaseOrderID,
		ReservationID:   o.state.ReservationID,
	})
	var rej *backend.RejectedError
	switch {
	case err == nil:
		return VerifySucceeded{Booking: model.BookingRecord{
			BookingID:   resp.BookingID,
			TicketID:    resp.TicketID,
			InvoiceData: resp.InvoiceData,
		}}
	case errors.As(err, &rej):
		return VerifyRejected{Err: err, Body: rej.Body}
	default:
		return VerifyErrored{Err: err}
	}
}

func (o *Orchestrator) confirm(ctx context.Context) string {
	b := o.state.Booking
	ref := b.BookingID
	if ref == "" {
		ref = b.TicketID
	}
	if o.state.Replayed {
		o.entry().WithField("booking_id", b.BookingID).Info("callback replayed for verified payment")
		return ref
	}
	log := o.entry().WithFields(logrus.Fields{"reservation_id": o.state.ReservationID, "booking_id": b.BookingID})
	for _, kv := range []struct {
		k repository.HoldKey
		v string
	}{
		{repository.KeyTicketID, b.TicketID},
		{repository.KeyBookingID, b.BookingID},
		{repository.KeyPaymentVerified, "true"},
	} {
		if err := o.store.Set(ctx, kv.k, kv.v); err != nil {
			log.WithError(err).WithField("key", kv.k).Warn("persist booking key")
		}
	}
	_ = o.deps.Lifecycle.Confirm(ctx, o.state.ReservationID, b.TicketID, b.BookingID)
	o.clearHold(ctx)
	if o.deps.Notifier != nil {
		err := o.deps.Notifier.Publish(context.WithoutCancel(ctx), queue.LifecycleEvent{
			Kind:          queue.KindBookingConfirmed,
			ReservationID: o.state.ReservationID,
			TicketID:      b.TicketID,
			BookingID:     b.BookingID,
			Pidx:          o.state.Params.Pidx,
		})
		if err != nil {
			log.WithError(err).Warn("publish booking confirmed")
		}
	}
	log.Info("payment verified")
	return ref
}

func (o *Orchestrator) expire(ctx context.Context) string {
	ref := o.deps.Resolver.Resolve(ctx, o.snapshot(ctx))
	_ = o.deps.Lifecycle.Release(ctx, o.state.ReservationID)
	o.clearHold(ctx)
	o.entry().WithField("reservation_id", o.state.ReservationID).Info("hold expired before verification")
	return ref
}

func (o *Orchestrator) fail(ctx context.Context) string {
	log := o.entry().WithField("reason", o.state.Reason)
	if o.state.Err != nil {
		log = log.WithError(o.state.Err)
	}
	switch o.state.Reason {
	case ReasonNoReservation:
		log.Warn("callback without reservation")
		return o.deps.Resolver.ResolveCached(ctx, o.snapshot(ctx))
	case ReasonValidation:
		// No reservation id was read on this path; release whatever the
		// session still holds.
		ref := o.deps.Resolver.Resolve(ctx, o.snapshot(ctx))
		id, _, _ := o.store.Get(ctx, repository.KeyReservationID)
		o.releaseAndClear(ctx, id)
		log.Warn("callback rejected")
		return ref
	case ReasonRejected:
		ref := bookingIDFromBody(o.state.RejectedBody)
		if ref == "" {
			ref = o.deps.Resolver.Resolve(ctx, o.snapshot(ctx))
		}
		o.releaseAndClear(ctx, o.state.ReservationID)
		log.Warn("verification rejected")
		return ref
	default:
		ref := o.deps.Resolver.Resolve(ctx, o.snapshot(ctx))
		o.releaseAndClear(ctx, o.state.ReservationID)
		log.Error("verification failed")
		return ref
	}
}

func (o *Orchestrator) releaseAndClear(ctx context.Context, reservationID string) {
	_ = o.deps.Lifecycle.Release(ctx, reservationID)
	o.clearHold(ctx)
}

func (o *Orchestrator) clearHold(ctx context.Context) {
	if err := o.store.Clear(ctx, repository.HoldKeys...); err != nil {
		o.entry().WithError(err).Warn("clear hold keys")
	}
}

// snapshot collects what the resolver may use.  It must run before the
// hold keys are cleared.
func (o *Orchestrator) snapshot(ctx context.Context) resolver.Lookup {
	in := resolver.Lookup{
		Pidx:            o.state.Params.Pidx,
		PurchaseOrderID: o.state.Params.PurchaseOrderID,
	}
	in.TicketID, _, _ = o.store.Get(ctx, repository.KeyTicketID)
	pd, err := repository.LoadPaymentData(ctx, o.store)
	if err != nil {
		o.entry().WithError(err).Debug("ignoring cached paymentData")
	}
	in.PaymentData = pd
	return in
}

// bookingIDFromBody digs a booking id out of a rejected verify body.  The
// body is untrusted and may not be JSON at all.
func bookingIDFromBody(body []byte) string {
	if len(body) == 0 || !gjson.ValidBytes(body) {
		return ""
	}
	for _, path := range []string{"bookingId", "data.bookingId", "booking.bookingId", "ticket.bookingId"} {
		if v := strings.TrimSpace(gjson.GetBytes(body, path).String()); v != "" {
			return v
		}
	}
	return ""
}

func (o *Orchestrator) finish(ctx context.Context, reference string) {
	o.outcome = buildOutcome(o.state, reference)
	if o.deps.Recorder == nil {
		return
	}
	rec := &model.AttemptRecord{
		SessionID:       o.sessionID,
		Pidx:            o.state.Params.Pidx,
		PurchaseOrderID: o.state.Params.PurchaseOrderID,
		GatewayStatus:   o.state.Params.Status,
		ReservationID:   o.state.ReservationID,
		Outcome:         o.outcome.State,
		Reason:          string(o.state.Reason),
		Reference:       reference,
		CreatedAt:       o.deps.Now(),
	}
	if err := o.deps.Recorder.Insert(context.WithoutCancel(ctx), rec); err != nil {
		o.entry().WithError(err).Warn("record payment attempt")
	}
}
