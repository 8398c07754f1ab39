package model

// PaymentAttempt is what the gateway hands back on its redirect.  Pidx is
// the authoritative correlation key; Status is advisory only since the
// verify call decides the outcome.
//
// Fields:
//  Pidx            – gateway transaction identifier.
//  Status          – gateway-reported outcome token (e.g. "Completed", "User canceled").
//  PurchaseOrderID – merchant-side order reference, secondary correlation key.
type PaymentAttempt struct {
	Pidx            string `json:"pidx"`
	Status          string `json:"status"`
	PurchaseOrderID string `json:"purchase_order_id"`
}

// PaymentData is the JSON blob cached by checkout before redirecting to the
// gateway.  Only the fields the callback flow reads are modelled; anything
// else survives in Extra.
type PaymentData struct {
	BookingID       string         `json:"bookingId,omitempty"`
	OrderID         string         `json:"orderId,omitempty"`
	PurchaseOrderID string         `json:"purchaseOrderId,omitempty"`
	Amount          int64          `json:"amount,omitempty"`
	Extra           map[string]any `json:"extra,omitempty"`
}

// OrderRef returns the order id checkout remembered, preferring the
// purchase order id the gateway was given.
func (p PaymentData) OrderRef() string {
	if p.PurchaseOrderID != "" {
		return p.PurchaseOrderID
	}
	return p.OrderID
}
