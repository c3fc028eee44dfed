package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"github.com/izzacatering/backend/internal/apperr"
	"github.com/izzacatering/backend/internal/models"
)

// Payments accesses worker payout records.
type Payments struct{ *base }

const paymentColumns = `id, worker_id, worker_name, event_id, event_title, amount, status, paid_at, created_at`

func scanPayment(sc scanner) (models.Payment, error) {
	var p models.Payment
	var status string
	var paid sql.NullTime
	if err := sc.Scan(&p.ID, &p.WorkerID, &p.WorkerName, &p.EventID, &p.EventTitle,
		&p.Amount, &status, &paid, &p.CreatedAt); err != nil {
		return p, err
	}
	p.Status = models.PaymentStatus(status)
	p.PaidAt = timePtr(paid)
	p.CreatedAt = p.CreatedAt.UTC()
	return p, nil
}

// Create records a pending payout.
func (s *Payments) Create(ctx context.Context, workerID, workerName, eventID, eventTitle string, amount float64) (models.Payment, error) {
	const op = "store.Payments.Create"
	const msg = "Failed to create payment"
	if amount <= 0 {
		return models.Payment{}, apperr.New(op, apperr.Invalid, "Amount must be greater than zero")
	}
	p := models.Payment{
		ID:         uuid.NewString(),
		WorkerID:   workerID,
		WorkerName: workerName,
		EventID:    eventID,
		EventTitle: eventTitle,
		Amount:     amount,
		Status:     models.PaymentPending,
		CreatedAt:  s.stamp(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO payments (id, worker_id, worker_name, event_id, event_title, amount, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.WorkerID, p.WorkerName, p.EventID, p.EventTitle, p.Amount, string(p.Status), p.CreatedAt,
	)
	if err != nil {
		return models.Payment{}, apperr.Wrap(op, msg, err)
	}
	return p, nil
}

// MarkPaid moves a pending payment to paid and stamps paidAt. A payment
// that is already paid is left untouched and reported as Invalid.
func (s *Payments) MarkPaid(ctx context.Context, id string) (models.Payment, error) {
	const op = "store.Payments.MarkPaid"
	const msg = "Failed to update payment"

	now := s.stamp()
	res, err := s.db.ExecContext(ctx,
		`UPDATE payments SET status = ?, paid_at = ? WHERE id = ? AND status = ?`,
		string(models.PaymentPaid), now, id, string(models.PaymentPending))
	if err != nil {
		return models.Payment{}, apperr.Wrap(op, msg, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return models.Payment{}, apperr.Wrap(op, msg, err)
	}
	if n == 0 {
		err := s.missingOrMismatch(ctx, op, "payments", id, msg)
		if apperr.Is(err, apperr.Invalid) {
			return models.Payment{}, apperr.WrapKind(op, apperr.Invalid, "Payment already paid", errors.Unwrap(err))
		}
		return models.Payment{}, err
	}
	return s.Get(ctx, id)
}

// Get point-reads one payment.
func (s *Payments) Get(ctx context.Context, id string) (models.Payment, error) {
	const op = "store.Payments.Get"
	p, err := scanPayment(s.db.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE id = ?`, id))
	if err != nil {
		return models.Payment{}, apperr.Wrap(op, "Failed to fetch payments", err)
	}
	return p, nil
}

// ListByWorker returns every payment owed or made to workerID.
func (s *Payments) ListByWorker(ctx context.Context, workerID string) ([]models.Payment, error) {
	return s.query(ctx, "store.Payments.ListByWorker", "Failed to fetch payments",
		`SELECT `+paymentColumns+` FROM payments WHERE worker_id = ? ORDER BY created_at DESC`, workerID)
}

// ListPending returns every unpaid payment.
func (s *Payments) ListPending(ctx context.Context) ([]models.Payment, error) {
	return s.query(ctx, "store.Payments.ListPending", "Failed to fetch pending payments",
		`SELECT `+paymentColumns+` FROM payments WHERE status = ? ORDER BY created_at DESC`,
		string(models.PaymentPending))
}

func (s *Payments) query(ctx context.Context, op, msg, q string, args ...any) ([]models.Payment, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, apperr.Wrap(op, msg, err)
	}
	defer rows.Close()

	out := []models.Payment{}
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, apperr.Wrap(op, msg, err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(op, msg, err)
	}
	return out, nil
}
