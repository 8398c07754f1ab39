package model

import "time"

// AttemptRecord is one row of the payment_attempts audit log.  A row is
// written for every callback the service handles so support staff can
// locate an attempt even when no booking id was ever issued.
//
// Fields:
//  ID              – primary key (UUID).
//  SessionID       – hold session the callback belonged to.
//  Pidx            – gateway transaction identifier (may be empty on validation failures).
//  PurchaseOrderID – merchant order reference from the callback.
//  GatewayStatus   – advisory status string reported by the gateway.
//  ReservationID   – reservation the attempt was verified against, if any.
//  Outcome         – terminal state (CONFIRMED, EXPIRED, FAILED).
//  Reason          – failure taxonomy entry, empty on success.
//  Reference       – reference shown to the customer.
//  CreatedAt       – when the callback was handled.
type AttemptRecord struct {
	ID              string    `json:"id"`                // payment_attempts.id
	SessionID       string    `json:"session_id"`        // payment_attempts.session_id
	Pidx            string    `json:"pidx"`              // payment_attempts.pidx
	PurchaseOrderID string    `json:"purchase_order_id"` // payment_attempts.purchase_order_id
	GatewayStatus   string    `json:"gateway_status"`    // payment_attempts.gateway_status
	ReservationID   string    `json:"reservation_id"`    // payment_attempts.reservation_id
	Outcome         string    `json:"outcome"`           // payment_attempts.outcome
	Reason          string    `json:"reason,omitempty"`  // payment_attempts.reason
	Reference       string    `json:"reference"`         // payment_attempts.reference
	CreatedAt       time.Time `json:"created_at"`        // payment_attempts.created_at
}
