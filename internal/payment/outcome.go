package payment

import (
	"encoding/json"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/iliyamo/bus-seat-checkout/internal/model"
)

// RetryPath is where a customer starts over after a failed attempt.
const RetryPath = "/"

// InvoicePath is where a confirmed booking is shown.
const InvoicePath = "/invoice"

// maxParamLen bounds callback values; anything longer did not come from
// the gateway.
const maxParamLen = 128

// Redirect is the navigation the UI should perform after CONFIRMED.
type Redirect struct {
	Path        string          `json:"path"`
	BookingID   string          `json:"bookingId,omitempty"`
	TicketID    string          `json:"ticketId,omitempty"`
	InvoiceData json.RawMessage `json:"invoiceData,omitempty"`
}

// Outcome is the user-visible result of a callback.
type Outcome struct {
	State     string    `json:"state"`
	Reason    Reason    `json:"reason,omitempty"`
	Cancelled bool      `json:"cancelled"`
	Message   string    `json:"message"`
	Reference string    `json:"reference,omitempty"`
	Replayed  bool      `json:"replayed,omitempty"`
	RetryPath string    `json:"retryPath,omitempty"`
	Redirect  *Redirect `json:"redirect,omitempty"`
}

// ParseCallback extracts the gateway parameters from a callback query.
// Values are trimmed and stripped of invalid UTF-8; an over-long pidx is
// dropped so the callback fails validation instead of reaching the backend.
func ParseCallback(q url.Values) model.PaymentAttempt {
	get := func(k string) string { return strings.ToValidUTF8(strings.TrimSpace(q.Get(k)), "") }
	p := model.PaymentAttempt{
		Pidx:            get("pidx"),
		Status:          clip(get("status")),
		PurchaseOrderID: clip(get("purchase_order_id")),
	}
	if len(p.Pidx) > maxParamLen {
		p.Pidx = ""
	}
	return p
}

// clip cuts s to at most maxParamLen bytes without splitting a rune.
func clip(s string) string {
	if len(s) <= maxParamLen {
		return s
	}
	n := maxParamLen
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// IsCancellation reports whether the gateway status says the customer
// cancelled.  Gateways spell it "User canceled", "Cancelled", "CANCELED".
func IsCancellation(status string) bool {
	return strings.Contains(strings.ToLower(status), "cancel")
}

// message picks the text shown for a terminal state.
func message(s State) string {
	switch s.Phase {
	case PhaseConfirmed:
		if s.Replayed {
			return "This payment was already verified. Your booking is confirmed."
		}
		return "Payment successful. Your booking is confirmed."
	case PhaseExpired:
		return "Your seat reservation expired before the payment completed. The seats have been released."
	}
	if IsCancellation(s.Params.Status) {
		if s.Reason == ReasonNoReservation {
			// Nothing was held, so nothing was released.
			return "Payment was cancelled."
		}
		return "Payment was cancelled. Your seats have been released."
	}
	switch s.Reason {
	case ReasonValidation:
		return "We could not read the payment response. Please start a new booking."
	case ReasonNoReservation:
		return "We could not find a seat reservation for this payment. Please start a new booking."
	case ReasonRejected:
		return "Payment could not be verified. Your seats have been released."
	default:
		return "We could not reach the booking service to verify your payment. Your seats have been released."
	}
}

func buildOutcome(s State, reference string) Outcome {
	out := Outcome{
		State:     s.Phase.String(),
		Reason:    s.Reason,
		Cancelled: s.Phase != PhaseConfirmed && IsCancellation(s.Params.Status),
		Message:   message(s),
		Reference: reference,
		Replayed:  s.Replayed,
	}
	if s.Phase == PhaseConfirmed {
		out.Redirect = &Redirect{
			Path:        InvoicePath,
			BookingID:   s.Booking.BookingID,
			TicketID:    s.Booking.TicketID,
			InvoiceData: s.Booking.InvoiceData,
		}
	} else {
		out.RetryPath = RetryPath
	}
	return out
}
