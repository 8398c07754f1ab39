package payment

import (
	"errors"
	"net/url"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"

	"github.com/iliyamo/bus-seat-checkout/internal/model"
)

var allEvents = []Event{
	CallbackArrived{Query: url.Values{"pidx": {"TX1"}}},
	CallbackParsed{Params: model.PaymentAttempt{Pidx: "TX1"}},
	CallbackRejected{},
	HoldInspected{ReservationID: "R1"},
	VerifySucceeded{Booking: model.BookingRecord{BookingID: "BK-1"}},
	VerifyRejected{Err: errors.New("no")},
	VerifyErrored{Err: errors.New("down")},
}

func TestTransition_HappyPath(t *testing.T) {
	s := State{}
	s = Transition(s, CallbackArrived{Query: url.Values{"pidx": {"TX1"}}})
	assert.Equal(t, PhaseAwaitingCallback, s.Phase)

	s = Transition(s, CallbackParsed{Params: model.PaymentAttempt{Pidx: "TX1", Status: "Completed"}})
	assert.Equal(t, PhaseCheckingExpiry, s.Phase)

	s = Transition(s, HoldInspected{ReservationID: "R1"})
	assert.Equal(t, PhaseVerifying, s.Phase)
	assert.Equal(t, "R1", s.ReservationID)

	s = Transition(s, VerifySucceeded{Booking: model.BookingRecord{BookingID: "BK-9", TicketID: "T1"}})
	assert.Equal(t, PhaseConfirmed, s.Phase)
	assert.Equal(t, "BK-9", s.Booking.BookingID)
	assert.Equal(t, "R1", s.ReservationID)
	assert.Equal(t, "TX1", s.Params.Pidx)
	assert.Equal(t, ReasonNone, s.Reason)
}

func TestTransition_CheckingExpiry(t *testing.T) {
	checking := State{Phase: PhaseCheckingExpiry, Params: model.PaymentAttempt{Pidx: "TX1"}}
	cases := []struct {
		name   string
		ev     HoldInspected
		phase  Phase
		reason Reason
	}{
		{"expired wins over reservation", HoldInspected{ReservationID: "R1", Expired: true}, PhaseExpired, ReasonExpired},
		{"missing reservation", HoldInspected{}, PhaseFailed, ReasonNoReservation},
		{"storage error", HoldInspected{Err: errors.New("redis down")}, PhaseFailed, ReasonNetwork},
		{"already verified", HoldInspected{Verified: true, BookingID: "BK-1", Expired: true}, PhaseConfirmed, ReasonNone},
		{"live hold", HoldInspected{ReservationID: "R1"}, PhaseVerifying, ReasonNone},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := Transition(checking, tc.ev)
			assert.Equal(t, tc.phase, s.Phase)
			assert.Equal(t, tc.reason, s.Reason)
			assert.Equal(t, "TX1", s.Params.Pidx)
		})
	}
}

func TestTransition_ReplayCarriesStoredBooking(t *testing.T) {
	s := Transition(State{Phase: PhaseCheckingExpiry}, HoldInspected{Verified: true, BookingID: "BK-1", TicketID: "T1"})
	assert.True(t, s.Replayed)
	assert.Equal(t, model.BookingRecord{BookingID: "BK-1", TicketID: "T1"}, s.Booking)
}

func TestTransition_VerifyFailuresConverge(t *testing.T) {
	verifying := State{Phase: PhaseVerifying, ReservationID: "R1"}

	rejected := Transition(verifying, VerifyRejected{Err: errors.New("no"), Body: []byte(`{}`)})
	errored := Transition(verifying, VerifyErrored{Err: errors.New("down")})

	assert.Equal(t, PhaseFailed, rejected.Phase)
	assert.Equal(t, PhaseFailed, errored.Phase)
	assert.Equal(t, ReasonRejected, rejected.Reason)
	assert.Equal(t, ReasonNetwork, errored.Reason)
	assert.Equal(t, "R1", rejected.ReservationID)
	assert.Equal(t, "R1", errored.ReservationID)
}

func TestTransition_MissingPidxFails(t *testing.T) {
	s := Transition(State{Phase: PhaseAwaitingCallback}, CallbackRejected{Params: model.PaymentAttempt{Status: "Completed"}})
	assert.Equal(t, PhaseFailed, s.Phase)
	assert.Equal(t, ReasonValidation, s.Reason)
}

func TestTransition_TerminalAbsorbsEverything(t *testing.T) {
	for _, phase := range []Phase{PhaseConfirmed, PhaseExpired, PhaseFailed} {
		s := State{Phase: phase, ReservationID: "R1", Reason: ReasonExpired}
		for _, ev := range allEvents {
			assert.Equal(t, s, Transition(s, ev), "%s on %T", phase, ev)
		}
	}
}

func TestTransition_VerifyingOnlyFromCheckingExpiry(t *testing.T) {
	for _, phase := range []Phase{PhaseInitiated, PhaseAwaitingCallback, PhaseVerifying, PhaseConfirmed, PhaseExpired, PhaseFailed} {
		for _, ev := range allEvents {
			s := State{Phase: phase}
			next := Transition(s, ev)
			if next.Phase == PhaseVerifying {
				assert.Equal(t, PhaseVerifying, phase, "entered VERIFYING again from %s on %T", phase, ev)
			}
		}
	}
}

func TestTransition_IllegalEventIgnored(t *testing.T) {
	s := State{Phase: PhaseInitiated}
	assert.Equal(t, s, Transition(s, VerifySucceeded{}))

	s = State{Phase: PhaseVerifying, ReservationID: "R1"}
	assert.Equal(t, s, Transition(s, CallbackArrived{}))
	assert.Equal(t, s, Transition(s, HoldInspected{Expired: true}))
}

func TestPhaseString(t *testing.T) {
	assert.Equal(t, "CHECKING_EXPIRY", PhaseCheckingExpiry.String())
	assert.Equal(t, "UNKNOWN", Phase(42).String())
	assert.True(t, PhaseExpired.Terminal())
	assert.False(t, PhaseVerifying.Terminal())
}

func TestParseCallback(t *testing.T) {
	q, _ := url.ParseQuery("pidx=%20TX1%20&status=User%20canceled&purchase_order_id=ORD-1")
	p := ParseCallback(q)
	assert.Equal(t, model.PaymentAttempt{Pidx: "TX1", Status: "User canceled", PurchaseOrderID: "ORD-1"}, p)

	long := make([]byte, maxParamLen+1)
	for i := range long {
		long[i] = 'a'
	}
	assert.Empty(t, ParseCallback(url.Values{"pidx": {string(long)}}).Pidx)
}

func TestParseCallback_ClipKeepsRunesWhole(t *testing.T) {
	// 127 ASCII bytes then a 3-byte rune straddling the limit.
	status := strings.Repeat("a", maxParamLen-1) + "रु" + "tail"
	p := ParseCallback(url.Values{"status": {status}, "purchase_order_id": {"ORD-\xff1"}})

	assert.True(t, utf8.ValidString(p.Status))
	assert.Equal(t, strings.Repeat("a", maxParamLen-1), p.Status)
	assert.Equal(t, "ORD-1", p.PurchaseOrderID)

	exact := strings.Repeat("é", maxParamLen/2)
	assert.Equal(t, exact, clip(exact))
	assert.Equal(t, exact, clip(exact+"é"))
}

func TestMessage_ClaimsReleaseOnlyWhenDispatched(t *testing.T) {
	cancelled := model.PaymentAttempt{Pidx: "TX1", Status: "User canceled"}

	none := message(State{Phase: PhaseFailed, Reason: ReasonNoReservation, Params: cancelled})
	assert.Equal(t, "Payment was cancelled.", none)
	assert.NotContains(t, none, "released")

	for _, r := range []Reason{ReasonValidation, ReasonRejected, ReasonNetwork} {
		assert.Contains(t, message(State{Phase: PhaseFailed, Reason: r, Params: cancelled}), "released", r)
	}
}

func TestIsCancellation(t *testing.T) {
	for _, s := range []string{"User canceled", "CANCELLED", "cancel"} {
		assert.True(t, IsCancellation(s), s)
	}
	for _, s := range []string{"", "Completed", "Expired", "Pending"} {
		assert.False(t, IsCancellation(s), s)
	}
}

func TestBookingIDFromBody(t *testing.T) {
	assert.Equal(t, "BK-1", bookingIDFromBody([]byte(`{"success":false,"bookingId":"BK-1"}`)))
	assert.Equal(t, "BK-2", bookingIDFromBody([]byte(`{"data":{"bookingId":" BK-2 "}}`)))
	assert.Empty(t, bookingIDFromBody([]byte(`<html>bad gateway</html>`)))
	assert.Empty(t, bookingIDFromBody(nil))
}
