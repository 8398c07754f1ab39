// Package backend is the HTTP client for the reservation, payment and
// ticket endpoints of the booking backend.  It only knows the wire
// contracts; deciding what a failure means is left to callers.
package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"
)

// ErrAlreadySettled is returned by Release and Confirm when the backend
// answers 404 or 409: the reservation is gone or already in the requested
// terminal state.
var ErrAlreadySettled = errors.New("reservation already settled")

// StatusError is an HTTP answer the client could not interpret as success.
type StatusError struct {
	Op   string
	Code int
	Body []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend: %s: unexpected status %d", e.Op, e.Code)
}

// RejectedError is an explicit "no" from the verify endpoint.  Body keeps
// the raw answer so callers can still dig a booking id out of it.
type RejectedError struct {
	Code    int
	Message string
	Body    []byte
}

func (e *RejectedError) Error() string {
	if e.Message != "" {
		return "backend: verify rejected: " + e.Message
	}
	return fmt.Sprintf("backend: verify rejected (status %d)", e.Code)
}

// Config holds the connection settings of the backend client.
type Config struct {
	BaseURL       string        // e.g. https://api.example.com
	APIKey        string        // optional, sent as X-Api-Key
	LookupTimeout time.Duration // per-call timeout for lifecycle and lookup calls; verify has none
}

// Client talks to the booking backend.  It is safe for concurrent use.
type Client struct {
	http          *resty.Client
	lookupTimeout time.Duration
}

// New builds a Client.  A nil hc uses resty's default transport.
func New(cfg Config, hc *http.Client) *Client {
	var rc *resty.Client
	if hc != nil {
		rc = resty.NewWithClient(hc)
	} else {
		rc = resty.New()
	}
	rc.SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetHeader("Accept", "application/json").
		SetHeader("Content-Type", "application/json")
	if cfg.APIKey != "" {
		rc.SetHeader("X-Api-Key", cfg.APIKey)
	}
	lt := cfg.LookupTimeout
	if lt <= 0 {
		lt = 10 * time.Second
	}
	return &Client{http: rc, lookupTimeout: lt}
}

// VerifyRequest is the body of the verify call.
type VerifyRequest struct {
	Pidx            string `json:"pidx"`
	Status          string `json:"status"`
	PurchaseOrderID string `json:"purchase_order_id"`
	ReservationID   string `json:"reservationId"`
}

// VerifyResponse is the success shape of the verify call.
type VerifyResponse struct {
	Success     bool            `json:"success"`
	TicketID    string          `json:"ticketId"`
	BookingID   string          `json:"bookingId"`
	InvoiceData json.RawMessage `json:"invoiceData,omitempty"`
	Message     string          `json:"message,omitempty"`
}

// Verify asks the backend whether the gateway transaction settled.  An
// explicit refusal is a *RejectedError; transport failures and answers
// that are not JSON at all come back as plain errors.  No timeout is set
// beyond what ctx carries.
func (c *Client) Verify(ctx context.Context, req VerifyRequest) (VerifyResponse, error) {
	resp, err := c.http.R().SetContext(ctx).SetBody(req).Post("/api/payments/verify")
	if err != nil {
		return VerifyResponse{}, fmt.Errorf("backend: verify: %w", err)
	}
	body := resp.Body()
	if !gjson.ValidBytes(body) {
		if resp.StatusCode() >= http.StatusInternalServerError || resp.IsSuccess() {
			return VerifyResponse{}, &StatusError{Op: "verify", Code: resp.StatusCode(), Body: body}
		}
		return VerifyResponse{}, &RejectedError{Code: resp.StatusCode(), Body: body}
	}
	var out VerifyResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return VerifyResponse{}, fmt.Errorf("backend: verify: decode: %w", err)
	}
	if !resp.IsSuccess() || !out.Success {
		msg := out.Message
		if msg == "" {
			msg = gjson.GetBytes(body, "error").String()
		}
		return VerifyResponse{}, &RejectedError{Code: resp.StatusCode(), Message: msg, Body: body}
	}
	return out, nil
}

// Release asks the backend to abandon the hold and free its seats.
func (c *Client) Release(ctx context.Context, reservationID string) error {
	return c.ack(ctx, "release", "/api/reservations/release", map[string]string{
		"reservationId": reservationID,
	})
}

// Confirm tells the backend the hold is now a permanent booking.
func (c *Client) Confirm(ctx context.Context, reservationID, ticketID, bookingID string) error {
	return c.ack(ctx, "confirm", "/api/reservations/confirm", map[string]string{
		"reservationId": reservationID,
		"ticketId":      ticketID,
		"bookingId":     bookingID,
	})
}

func (c *Client) ack(ctx context.Context, op, path string, body any) error {
	ctx, cancel := context.WithTimeout(ctx, c.lookupTimeout)
	defer cancel()
	resp, err := c.http.R().SetContext(ctx).SetBody(body).Post(path)
	if err != nil {
		return fmt.Errorf("backend: %s: %w", op, err)
	}
	switch code := resp.StatusCode(); {
	case resp.IsSuccess():
		return nil
	case code == http.StatusNotFound || code == http.StatusConflict:
		return ErrAlreadySettled
	default:
		return &StatusError{Op: op, Code: code, Body: resp.Body()}
	}
}

// TicketByTransaction looks up a ticket created under the gateway
// transaction.  It returns "" when the backend knows none.
func (c *Client) TicketByTransaction(ctx context.Context, pidx, purchaseOrderID string) (string, error) {
	q := map[string]string{"pidx": pidx}
	if purchaseOrderID != "" {
		q["purchase_order_id"] = purchaseOrderID
	}
	return c.lookup(ctx, "ticket-by-transaction", "bookingId", func(r *resty.Request) *resty.Request {
		return r.SetQueryParams(q)
	}, "/api/tickets/by-transaction")
}

// TicketByID returns the booking id of a ticket.
func (c *Client) TicketByID(ctx context.Context, ticketID string) (string, error) {
	return c.lookup(ctx, "ticket-by-id", "ticket.bookingId", func(r *resty.Request) *resty.Request {
		return r.SetPathParam("id", ticketID)
	}, "/api/tickets/{id}")
}

// TicketByOrder returns the booking id of the ticket bought under orderID.
func (c *Client) TicketByOrder(ctx context.Context, orderID string) (string, error) {
	return c.lookup(ctx, "ticket-by-order", "ticket.bookingId", func(r *resty.Request) *resty.Request {
		return r.SetPathParam("orderId", orderID)
	}, "/api/tickets/by-order/{orderId}")
}

func (c *Client) lookup(ctx context.Context, op, field string, build func(*resty.Request) *resty.Request, path string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.lookupTimeout)
	defer cancel()
	resp, err := build(c.http.R().SetContext(ctx)).Get(path)
	if err != nil {
		return "", fmt.Errorf("backend: %s: %w", op, err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return "", nil
	}
	if !resp.IsSuccess() {
		return "", &StatusError{Op: op, Code: resp.StatusCode(), Body: resp.Body()}
	}
	body := resp.Body()
	if !gjson.GetBytes(body, "success").Bool() {
		return "", nil
	}
	return gjson.GetBytes(body, field).String(), nil
}
