package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/bus-seat-checkout/internal/model"
)

// AttemptRepo persists the payment_attempts audit log in MySQL.
//
//	CREATE TABLE payment_attempts (
//	  id CHAR(36) PRIMARY KEY,
//	  session_id VARCHAR(64) NOT NULL,
//	  pidx VARCHAR(64) NOT NULL DEFAULT '',
//	  purchase_order_id VARCHAR(64) NOT NULL DEFAULT '',
//	  gateway_status VARCHAR(32) NOT NULL DEFAULT '',
//	  reservation_id VARCHAR(64) NOT NULL DEFAULT '',
//	  outcome VARCHAR(16) NOT NULL,
//	  reason VARCHAR(32) NOT NULL DEFAULT '',
//	  reference VARCHAR(64) NOT NULL DEFAULT '',
//	  created_at DATETIME NOT NULL,
//	  KEY idx_attempts_pidx (pidx),
//	  KEY idx_attempts_order (purchase_order_id)
//	);
type AttemptRepo struct{ DB *sql.DB }

func NewAttemptRepo(db *sql.DB) *AttemptRepo { return &AttemptRepo{DB: db} }

// Insert stores rec.  ID and CreatedAt are filled in when empty.
func (r *AttemptRepo) Insert(ctx context.Context, rec *model.AttemptRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO payment_attempts
		   (id, session_id, pidx, purchase_order_id, gateway_status, reservation_id, outcome, reason, reference, created_at)
		 VALUES (?,?,?,?,?,?,?,?,?,?)`,
		rec.ID, rec.SessionID, rec.Pidx, rec.PurchaseOrderID, rec.GatewayStatus,
		rec.ReservationID, rec.Outcome, rec.Reason, rec.Reference,
		rec.CreatedAt.UTC().Format("2006-01-02 15:04:05"))
	return err
}

// Search returns attempts whose pidx or purchase order id equals ref,
// newest first.  Support staff look attempts up by whichever reference
// the customer quotes.
func (r *AttemptRepo) Search(ctx context.Context, ref string, limit int) ([]model.AttemptRecord, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id, session_id, pidx, purchase_order_id, gateway_status, reservation_id, outcome, reason, reference, created_at
		   FROM payment_attempts
		  WHERE pidx = ? OR purchase_order_id = ? OR reference = ?
		  ORDER BY created_at DESC
		  LIMIT ?`,
		ref, ref, ref, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.AttemptRecord
	for rows.Next() {
		var a model.AttemptRecord
		if err := rows.Scan(&a.ID, &a.SessionID, &a.Pidx, &a.PurchaseOrderID, &a.GatewayStatus,
			&a.ReservationID, &a.Outcome, &a.Reason, &a.Reference, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
