package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/bus-seat-checkout/internal/model"
)

func TestAttemptRepo_Insert(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	at := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO payment_attempts")).
		WithArgs(sqlmock.AnyArg(), "sess-1", "TX1", "ORD-1", "Completed", "R1", "CONFIRMED", "", "BK-9", "2026-03-14 09:30:00").
		WillReturnResult(sqlmock.NewResult(1, 1))

	rec := &model.AttemptRecord{
		SessionID: "sess-1", Pidx: "TX1", PurchaseOrderID: "ORD-1", GatewayStatus: "Completed",
		ReservationID: "R1", Outcome: "CONFIRMED", Reference: "BK-9", CreatedAt: at,
	}
	require.NoError(t, NewAttemptRepo(db).Insert(context.Background(), rec))
	assert.Len(t, rec.ID, 36)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttemptRepo_Search(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	at := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	cols := []string{"id", "session_id", "pidx", "purchase_order_id", "gateway_status", "reservation_id", "outcome", "reason", "reference", "created_at"}
	mock.ExpectQuery(regexp.QuoteMeta("FROM payment_attempts")).
		WithArgs("ORD-5", "ORD-5", "ORD-5", 20).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("a2", "sess-1", "TX2", "ORD-5", "Completed", "R1", "FAILED", "NETWORK_ERROR", "ORD-5", at).
			AddRow("a1", "sess-1", "TX1", "ORD-5", "User canceled", "R1", "FAILED", "VERIFICATION_FAILURE", "ORD-5", at.Add(-time.Minute)))

	got, err := NewAttemptRepo(db).Search(context.Background(), "ORD-5", 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a2", got[0].ID)
	assert.Equal(t, "NETWORK_ERROR", got[0].Reason)
	assert.True(t, at.Equal(got[0].CreatedAt))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttemptRepo_SearchEmpty(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("FROM payment_attempts")).
		WithArgs("nope", "nope", "nope", 5).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	got, err := NewAttemptRepo(db).Search(context.Background(), "nope", 5)
	require.NoError(t, err)
	assert.Empty(t, got)
}
