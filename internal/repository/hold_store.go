package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/iliyamo/bus-seat-checkout/internal/model"
)

// HoldKey names one slot of the session-scoped hold storage.
type HoldKey string

// Keys persisted for a session.  The names match what the booking UI
// reads and writes, so they must not change.
const (
	KeyReservationID     HoldKey = "reservationId"
	KeyReservationExpiry HoldKey = "reservationExpiry"
	KeyPaymentInitiated  HoldKey = "paymentInitiated"
	KeyPaymentData       HoldKey = "paymentData"
	KeyPaymentURL        HoldKey = "paymentUrl"
	KeyTicketID          HoldKey = "ticketId"
	KeyBookingID         HoldKey = "bookingId"
	KeyPaymentVerified   HoldKey = "paymentVerified"
	KeySettledBy         HoldKey = "settledBy" // lease: who may confirm or release the hold
)

// Owners of the KeySettledBy lease.
const (
	SettledByCallback = "callback"
	SettledBySweeper  = "sweeper"
)

// HoldKeys are the keys that describe an in-flight hold.  They are cleared
// together once the hold reaches a terminal outcome.
var HoldKeys = []HoldKey{
	KeyReservationID,
	KeyReservationExpiry,
	KeyPaymentInitiated,
	KeyPaymentData,
	KeyPaymentURL,
	KeySettledBy,
}

// HoldRepository is a small key/value store scoped to one browser
// session.  Get reports absence through ok rather than an error; err is
// reserved for storage I/O failures.  Clear removes all named keys in one
// operation.  SetIfAbsent writes only when key is unset and reports
// whether it did; it is atomic against concurrent writers of the same
// session.
type HoldRepository interface {
	Get(ctx context.Context, key HoldKey) (value string, ok bool, err error)
	Set(ctx context.Context, key HoldKey, value string) error
	SetIfAbsent(ctx context.Context, key HoldKey, value string) (bool, error)
	Clear(ctx context.Context, keys ...HoldKey) error
}

// HoldStore hands out per-session views of one backing store.
type HoldStore interface {
	ForSession(sessionID string) HoldRepository
}

// ClaimSettlement takes the settlement lease for owner.  It returns the
// lease holder: owner when the claim succeeded, otherwise whoever got
// there first.  Only the holder may confirm or release the hold, so a
// callback in verification and the sweeper never both act on it.
func ClaimSettlement(ctx context.Context, s HoldRepository, owner string) (string, error) {
	ok, err := s.SetIfAbsent(ctx, KeySettledBy, owner)
	if err != nil {
		return "", err
	}
	if ok {
		return owner, nil
	}
	holder, _, err := s.Get(ctx, KeySettledBy)
	return holder, err
}

// LoadHold reads the reservation id and expiry for the session.  A missing
// expiry yields a zero ExpiresAt; a malformed one is ErrInvalidValue.
func LoadHold(ctx context.Context, s HoldRepository) (model.ReservationHold, error) {
	var h model.ReservationHold
	id, _, err := s.Get(ctx, KeyReservationID)
	if err != nil {
		return h, err
	}
	h.ReservationID = id
	raw, ok, err := s.Get(ctx, KeyReservationExpiry)
	if err != nil {
		return h, err
	}
	if ok && raw != "" {
		exp, err := parseExpiry(raw)
		if err != nil {
			return h, err
		}
		h.ExpiresAt = exp
	}
	return h, nil
}

// SaveHold writes the keys checkout leaves behind before redirecting the
// customer to the gateway.  paymentData and paymentURL may be empty.
func SaveHold(ctx context.Context, s HoldRepository, h model.ReservationHold, data *model.PaymentData, paymentURL string) error {
	if err := s.Set(ctx, KeyReservationID, h.ReservationID); err != nil {
		return err
	}
	if err := s.Set(ctx, KeyReservationExpiry, h.ExpiresAt.UTC().Format(time.RFC3339)); err != nil {
		return err
	}
	if err := s.Set(ctx, KeyPaymentInitiated, "true"); err != nil {
		return err
	}
	if data != nil {
		bs, err := json.Marshal(data)
		if err != nil {
			return err
		}
		if err := s.Set(ctx, KeyPaymentData, string(bs)); err != nil {
			return err
		}
	}
	if paymentURL != "" {
		if err := s.Set(ctx, KeyPaymentURL, paymentURL); err != nil {
			return err
		}
	}
	return nil
}

// LoadPaymentData decodes the cached paymentData blob.  It returns nil when
// nothing is cached.
func LoadPaymentData(ctx context.Context, s HoldRepository) (*model.PaymentData, error) {
	raw, ok, err := s.Get(ctx, KeyPaymentData)
	if err != nil || !ok || raw == "" {
		return nil, err
	}
	var pd model.PaymentData
	if err := json.Unmarshal([]byte(raw), &pd); err != nil {
		return nil, fmt.Errorf("%w: paymentData: %v", ErrInvalidValue, err)
	}
	return &pd, nil
}

// IsVerified reports whether paymentVerified=true is stored.
func IsVerified(ctx context.Context, s HoldRepository) (bool, error) {
	v, ok, err := s.Get(ctx, KeyPaymentVerified)
	if err != nil || !ok {
		return false, err
	}
	b, _ := strconv.ParseBool(v)
	return b, nil
}

// parseExpiry accepts RFC 3339 timestamps as well as Unix epoch values in
// seconds or milliseconds, which is what older checkout pages stored.
func parseExpiry(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t.UTC(), nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: reservationExpiry %q", ErrInvalidValue, raw)
	}
	if n > 1e12 {
		return time.UnixMilli(n).UTC(), nil
	}
	return time.Unix(n, 0).UTC(), nil
}
