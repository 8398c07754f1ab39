package model

import "encoding/json"

// BookingRecord is owned by the backend and produced once a hold is
// confirmed.  InvoiceData is passed through untouched so the invoice view
// can render without fetching it again.
type BookingRecord struct {
	BookingID   string          `json:"bookingId"`
	TicketID    string          `json:"ticketId"`
	InvoiceData json.RawMessage `json:"invoiceData,omitempty"`
}
