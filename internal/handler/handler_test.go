package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/bus-seat-checkout/internal/backend"
	"github.com/iliyamo/bus-seat-checkout/internal/middleware"
	"github.com/iliyamo/bus-seat-checkout/internal/model"
	"github.com/iliyamo/bus-seat-checkout/internal/payment"
	"github.com/iliyamo/bus-seat-checkout/internal/repository"
	"github.com/iliyamo/bus-seat-checkout/internal/resolver"
	"github.com/iliyamo/bus-seat-checkout/internal/utils"
)

var now = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newEcho() *echo.Echo {
	e := echo.New()
	e.Validator = NewRequestValidator()
	return e
}

type recordingIndex struct {
	sessions map[string]time.Time
}

func (r *recordingIndex) IndexExpiry(_ context.Context, sid string, exp time.Time) error {
	r.sessions[sid] = exp
	return nil
}

func TestHoldHandler_Create(t *testing.T) {
	store := repository.NewMemoryHoldStore()
	idx := &recordingIndex{sessions: map[string]time.Time{}}
	h := &HoldHandler{Store: store, Index: idx, Secret: "k", TTL: time.Hour, Now: func() time.Time { return now }, Log: quietLogger()}

	body := `{"reservationId":"R1","expiresAt":"2026-03-14T09:45:00Z","seats":["A1","A2"],
		"paymentUrl":"https://pay.example/TX1","paymentData":{"bookingId":"BK-1","purchaseOrderId":"ORD-1"}}`
	req := httptest.NewRequest(http.MethodPost, "/v1/holds", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()

	require.NoError(t, h.Create(newEcho().NewContext(req, rec)))
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp struct {
		SessionID    string `json:"sessionId"`
		SessionToken string `json:"sessionToken"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	claims, err := utils.ParseSessionToken("k", resp.SessionToken)
	require.NoError(t, err)
	assert.Equal(t, resp.SessionID, claims.Subject)
	assert.Contains(t, rec.Header().Get("Set-Cookie"), middleware.SessionCookie+"=")

	ctx := context.Background()
	hold, err := repository.LoadHold(ctx, store.ForSession(resp.SessionID))
	require.NoError(t, err)
	assert.Equal(t, "R1", hold.ReservationID)
	pd, err := repository.LoadPaymentData(ctx, store.ForSession(resp.SessionID))
	require.NoError(t, err)
	assert.Equal(t, "BK-1", pd.BookingID)
	assert.Contains(t, idx.sessions, resp.SessionID)
}

func TestHoldHandler_CreateRejects(t *testing.T) {
	h := &HoldHandler{Store: repository.NewMemoryHoldStore(), Secret: "k", TTL: time.Hour, Now: func() time.Time { return now }, Log: quietLogger()}
	for name, body := range map[string]string{
		"missing reservation": `{"expiresAt":"2026-03-14T09:45:00Z"}`,
		"already expired":     `{"reservationId":"R1","expiresAt":"2026-03-14T09:00:00Z"}`,
		"bad payment url":     `{"reservationId":"R1","expiresAt":"2026-03-14T09:45:00Z","paymentUrl":"nope"}`,
		"not json":            `reservationId=R1`,
	} {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/v1/holds", strings.NewReader(body))
			req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
			rec := httptest.NewRecorder()
			require.NoError(t, h.Create(newEcho().NewContext(req, rec)))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestHoldHandler_Current(t *testing.T) {
	store := repository.NewMemoryHoldStore()
	ctx := context.Background()
	require.NoError(t, repository.SaveHold(ctx, store.ForSession("sess-1"),
		model.ReservationHold{ReservationID: "R1", ExpiresAt: now.Add(90 * time.Second)}, nil, "https://pay.example/TX1"))
	h := &HoldHandler{Store: store, Now: func() time.Time { return now }, Log: quietLogger()}

	e := newEcho()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/v1/holds/current", nil), rec)
	c.Set(middleware.CtxSessionID, "sess-1")
	require.NoError(t, h.Current(c))

	assert.Equal(t, http.StatusOK, rec.Code)
	var v holdView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	assert.Equal(t, "R1", v.ReservationID)
	assert.Equal(t, int64(90), v.RemainingSeconds)
	assert.True(t, v.PaymentInitiated)
	assert.False(t, v.Expired)

	rec = httptest.NewRecorder()
	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/v1/holds/current", nil), rec)
	c.Set(middleware.CtxSessionID, "sess-unknown")
	require.NoError(t, h.Current(c))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

type stubVerifier struct{ mock.Mock }

func (s *stubVerifier) Verify(ctx context.Context, req backend.VerifyRequest) (backend.VerifyResponse, error) {
	args := s.Called(ctx, req)
	return args.Get(0).(backend.VerifyResponse), args.Error(1)
}

type noopLifecycle struct{ released []string }

func (n *noopLifecycle) Release(_ context.Context, id string) error {
	n.released = append(n.released, id)
	return nil
}
func (n *noopLifecycle) Confirm(context.Context, string, string, string) error { return nil }

type emptyLookup struct{}

func (emptyLookup) TicketByTransaction(context.Context, string, string) (string, error) {
	return "", errors.New("down")
}
func (emptyLookup) TicketByID(context.Context, string) (string, error)    { return "", nil }
func (emptyLookup) TicketByOrder(context.Context, string) (string, error) { return "", nil }

func TestPaymentHandler_Callback(t *testing.T) {
	store := repository.NewMemoryHoldStore()
	require.NoError(t, repository.SaveHold(context.Background(), store.ForSession("sess-1"),
		model.ReservationHold{ReservationID: "R1", ExpiresAt: now.Add(time.Minute)}, nil, ""))
	v := &stubVerifier{}
	v.On("Verify", mock.Anything, mock.Anything).
		Return(backend.VerifyResponse{Success: true, TicketID: "T1", BookingID: "BK-9", InvoiceData: json.RawMessage(`{"n":1}`)}, nil).Once()
	log := quietLogger()
	h := &PaymentHandler{Store: store, Deps: payment.Deps{
		Verifier:  v,
		Lifecycle: &noopLifecycle{},
		Resolver:  resolver.New(emptyLookup{}, "BK-", log),
		Now:       func() time.Time { return now },
		Log:       log,
	}}

	rec := httptest.NewRecorder()
	c := newEcho().NewContext(httptest.NewRequest(http.MethodGet, "/v1/payment/callback?pidx=TX123&status=Completed", nil), rec)
	c.Set(middleware.CtxSessionID, "sess-1")
	require.NoError(t, h.Callback(c))

	assert.Equal(t, http.StatusOK, rec.Code)
	var out payment.Outcome
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "CONFIRMED", out.State)
	require.NotNil(t, out.Redirect)
	assert.JSONEq(t, `{"n":1}`, string(out.Redirect.InvoiceData))
	v.AssertExpectations(t)
}

func TestPaymentHandler_CallbackWithoutSession(t *testing.T) {
	lc := &noopLifecycle{}
	log := quietLogger()
	h := &PaymentHandler{Store: repository.NewMemoryHoldStore(), Deps: payment.Deps{
		Verifier:  &stubVerifier{},
		Lifecycle: lc,
		Resolver:  resolver.New(emptyLookup{}, "BK-", log),
		Now:       func() time.Time { return now },
		Log:       log,
	}}

	rec := httptest.NewRecorder()
	c := newEcho().NewContext(httptest.NewRequest(http.MethodGet, "/v1/payment/callback?pidx=TX1&purchase_order_id=ORD-1", nil), rec)
	require.NoError(t, h.Callback(c))

	var out payment.Outcome
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "FAILED", out.State)
	assert.Equal(t, payment.ReasonNoReservation, out.Reason)
	assert.Equal(t, "ORD-1", out.Reference)
	assert.Empty(t, lc.released)
}

type stubSearcher struct {
	rows []model.AttemptRecord
	err  error
}

func (s stubSearcher) Search(context.Context, string, int) ([]model.AttemptRecord, error) {
	return s.rows, s.err
}

func TestSupportHandler_SearchAttempts(t *testing.T) {
	e := newEcho()
	get := func(h *SupportHandler, target string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		require.NoError(t, h.SearchAttempts(e.NewContext(httptest.NewRequest(http.MethodGet, target, nil), rec)))
		return rec
	}

	h := &SupportHandler{Attempts: stubSearcher{rows: []model.AttemptRecord{{ID: "a1", Reference: "ORD-5", Outcome: "FAILED"}}}, Log: quietLogger()}
	rec := get(h, "/v1/support/attempts?ref=ORD-5")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"id":"a1"`)

	assert.Equal(t, http.StatusBadRequest, get(h, "/v1/support/attempts").Code)
	assert.JSONEq(t, `{"attempts":[]}`, get(&SupportHandler{Attempts: stubSearcher{}, Log: quietLogger()}, "/v1/support/attempts?ref=x").Body.String())
	assert.Equal(t, http.StatusInternalServerError,
		get(&SupportHandler{Attempts: stubSearcher{err: errors.New("db")}, Log: quietLogger()}, "/v1/support/attempts?ref=x").Code)
	assert.Equal(t, http.StatusServiceUnavailable, get(&SupportHandler{Log: quietLogger()}, "/v1/support/attempts?ref=x").Code)
}

func TestHealth(t *testing.T) {
	rec := httptest.NewRecorder()
	require.NoError(t, Health(newEcho().NewContext(httptest.NewRequest(http.MethodGet, "/healthz", nil), rec)))
	assert.Equal(t, "ok", rec.Body.String())
}
