// Package payment drives the gateway callback: it parses the redirect,
// checks the hold's expiry, verifies the payment with the backend and then
// confirms or releases the reservation.
//
// The flow is an explicit state machine.  Transition is pure; every
// network or storage call happens in the entry action of the phase that
// needs it (see Orchestrator), so the rules below are testable without a
// network.
//
//	INITIATED -> AWAITING_CALLBACK -> CHECKING_EXPIRY -> VERIFYING -> CONFIRMED
//	                    |                   |               |
//	                    +-> FAILED          +-> EXPIRED     +-> FAILED
//	                                        +-> FAILED
//	                                        +-> CONFIRMED (already verified)
package payment

import (
	"net/url"

	"github.com/iliyamo/bus-seat-checkout/internal/model"
)

// Phase is the position of a callback in the flow.
type Phase int

const (
	PhaseInitiated Phase = iota
	PhaseAwaitingCallback
	PhaseCheckingExpiry
	PhaseVerifying
	PhaseConfirmed
	PhaseExpired
	PhaseFailed
)

var phaseNames = [...]string{
	PhaseInitiated:        "INITIATED",
	PhaseAwaitingCallback: "AWAITING_CALLBACK",
	PhaseCheckingExpiry:   "CHECKING_EXPIRY",
	PhaseVerifying:        "VERIFYING",
	PhaseConfirmed:        "CONFIRMED",
	PhaseExpired:          "EXPIRED",
	PhaseFailed:           "FAILED",
}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return "UNKNOWN"
	}
	return phaseNames[p]
}

// Terminal reports whether no event can move the callback any further.
func (p Phase) Terminal() bool {
	return p == PhaseConfirmed || p == PhaseExpired || p == PhaseFailed
}

// Reason classifies why a callback did not end in CONFIRMED.
type Reason string

const (
	ReasonNone          Reason = ""
	ReasonValidation    Reason = "VALIDATION_ERROR"     // callback without pidx
	ReasonExpired       Reason = "EXPIRY_ERROR"         // hold past its expiry
	ReasonNoReservation Reason = "NO_RESERVATION"       // nothing to verify against
	ReasonRejected      Reason = "VERIFICATION_FAILURE" // backend said no
	ReasonNetwork       Reason = "NETWORK_ERROR"        // we could not ask
)

// State is the full state of one callback.  Which fields are meaningful
// depends on Phase.
type State struct {
	Phase         Phase
	Query         url.Values           // AWAITING_CALLBACK
	Params        model.PaymentAttempt // from CHECKING_EXPIRY on
	ReservationID string               // from VERIFYING on, and in EXPIRED
	Booking       model.BookingRecord  // CONFIRMED
	Replayed      bool                 // CONFIRMED from a previous callback
	Reason        Reason               // EXPIRED, FAILED
	RejectedBody  []byte               // FAILED with ReasonRejected
	Err           error                // FAILED with ReasonRejected or ReasonNetwork
}

// Event is one input to Transition.
type Event interface{ isEvent() }

// CallbackArrived starts the flow with the raw callback query.
type CallbackArrived struct{ Query url.Values }

// CallbackParsed carries well-formed callback parameters.
type CallbackParsed struct{ Params model.PaymentAttempt }

// CallbackRejected carries callback parameters without a pidx.
type CallbackRejected struct{ Params model.PaymentAttempt }

// HoldInspected is what local storage says about the hold at callback time.
type HoldInspected struct {
	ReservationID string
	Expired       bool
	Verified      bool   // paymentVerified=true left by an earlier callback
	BookingID     string // stored with Verified
	TicketID      string // stored with Verified
	Err           error  // storage could not be read
}

// VerifySucceeded is a positive answer from the verify endpoint.
type VerifySucceeded struct{ Booking model.BookingRecord }

// VerifyRejected is an explicit refusal from the verify endpoint.
type VerifyRejected struct {
	Err  error
	Body []byte
}

// VerifyErrored means the verify call itself failed.
type VerifyErrored struct{ Err error }

func (CallbackArrived) isEvent()  {}
func (CallbackParsed) isEvent()   {}
func (CallbackRejected) isEvent() {}
func (HoldInspected) isEvent()    {}
func (VerifySucceeded) isEvent()  {}
func (VerifyRejected) isEvent()   {}
func (VerifyErrored) isEvent()    {}

// Transition returns the state that follows s on e.  An event that is not
// legal in s.Phase leaves s unchanged, so terminal states absorb every
// event and VERIFYING can only be entered once, from CHECKING_EXPIRY.
func Transition(s State, e Event) State {
	switch s.Phase {
	case PhaseInitiated:
		if ev, ok := e.(CallbackArrived); ok {
			return State{Phase: PhaseAwaitingCallback, Query: ev.Query}
		}

	case PhaseAwaitingCallback:
		switch ev := e.(type) {
		case CallbackParsed:
			return State{Phase: PhaseCheckingExpiry, Params: ev.Params}
		case CallbackRejected:
			return State{Phase: PhaseFailed, Params: ev.Params, Reason: ReasonValidation}
		}

	case PhaseCheckingExpiry:
		ev, ok := e.(HoldInspected)
		if !ok {
			break
		}
		next := State{Params: s.Params, ReservationID: ev.ReservationID}
		switch {
		case ev.Err != nil:
			next.Phase, next.Reason, next.Err = PhaseFailed, ReasonNetwork, ev.Err
		case ev.Verified:
			next.Phase, next.Replayed = PhaseConfirmed, true
			next.Booking = model.BookingRecord{BookingID: ev.BookingID, TicketID: ev.TicketID}
		case ev.Expired:
			next.Phase, next.Reason = PhaseExpired, ReasonExpired
		case ev.ReservationID == "":
			next.Phase, next.Reason = PhaseFailed, ReasonNoReservation
		default:
			next.Phase = PhaseVerifying
		}
		return next

	case PhaseVerifying:
		next := State{Params: s.Params, ReservationID: s.ReservationID}
		switch ev := e.(type) {
		case VerifySucceeded:
			next.Phase, next.Booking = PhaseConfirmed, ev.Booking
			return next
		case VerifyRejected:
			next.Phase, next.Reason, next.Err, next.RejectedBody = PhaseFailed, ReasonRejected, ev.Err, ev.Body
			return next
		case VerifyErrored:
			next.Phase, next.Reason, next.Err = PhaseFailed, ReasonNetwork, ev.Err
			return next
		}
	}
	return s
}
