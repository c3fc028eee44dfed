package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"github.com/izzacatering/backend/internal/apperr"
	"github.com/izzacatering/backend/internal/models"
)

// Attendance accesses worker shift records.
type Attendance struct{ *base }

const attendanceColumns = `id, event_id, worker_id, worker_name, event_title, check_in_time, check_out_time, status, earnings, created_at`

func scanAttendance(sc scanner) (models.Attendance, error) {
	var a models.Attendance
	var out sql.NullTime
	var status string
	if err := sc.Scan(&a.ID, &a.EventID, &a.WorkerID, &a.WorkerName, &a.EventTitle,
		&a.CheckInTime, &out, &status, &a.Earnings, &a.CreatedAt); err != nil {
		return a, err
	}
	a.Status = models.AttendanceStatus(status)
	a.CheckInTime = a.CheckInTime.UTC()
	a.CheckOutTime = timePtr(out)
	a.CreatedAt = a.CreatedAt.UTC()
	return a, nil
}

// CheckIn opens a shift for workerID at eventID.
//
// ────────────────────────────────────────────────────────────────────
// LEARNING NOTE — INSERT … SELECT … WHERE NOT EXISTS
// ────────────────────────────────────────────────────────────────────
// "At most one open shift per worker per event" could be checked with a
// SELECT followed by an INSERT, but two taps on the check-in button would
// then both see "no open shift" and both insert. Folding the check into
// the INSERT makes it one statement: SQLite either inserts the row or
// inserts nothing, and RowsAffected tells us which.
//
// A worker who has checked out may check in again; that is a new shift.
func (s *Attendance) CheckIn(ctx context.Context, eventID, workerID, workerName, eventTitle string, earnings float64) (models.Attendance, error) {
	const op = "store.Attendance.CheckIn"
	const msg = "Failed to check in"

	now := s.stamp()
	a := models.Attendance{
		ID:          uuid.NewString(),
		EventID:     eventID,
		WorkerID:    workerID,
		WorkerName:  workerName,
		EventTitle:  eventTitle,
		CheckInTime: now,
		Status:      models.AttendancePresent,
		Earnings:    earnings,
		CreatedAt:   now,
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO attendance (id, event_id, worker_id, worker_name, event_title, check_in_time, status, earnings, created_at)
		 SELECT ?, ?, ?, ?, ?, ?, ?, ?, ?
		 WHERE NOT EXISTS (
		     SELECT 1 FROM attendance
		     WHERE event_id = ? AND worker_id = ? AND check_out_time IS NULL
		 )`,
		a.ID, a.EventID, a.WorkerID, a.WorkerName, a.EventTitle, a.CheckInTime,
		string(a.Status), a.Earnings, a.CreatedAt,
		eventID, workerID,
	)
	if err != nil {
		return models.Attendance{}, apperr.Wrap(op, msg, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return models.Attendance{}, apperr.Wrap(op, msg, err)
	}
	if n == 0 {
		return models.Attendance{}, apperr.New(op, apperr.Conflict, "Already checked in")
	}
	return a, nil
}

// CheckOut closes an open shift.
func (s *Attendance) CheckOut(ctx context.Context, id string) (models.Attendance, error) {
	const op = "store.Attendance.CheckOut"
	const msg = "Failed to check out"

	res, err := s.db.ExecContext(ctx,
		`UPDATE attendance SET check_out_time = ? WHERE id = ? AND check_out_time IS NULL`,
		s.stamp(), id)
	if err != nil {
		return models.Attendance{}, apperr.Wrap(op, msg, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return models.Attendance{}, apperr.Wrap(op, msg, err)
	}
	if n == 0 {
		err := s.missingOrMismatch(ctx, op, "attendance", id, msg)
		if apperr.Is(err, apperr.Invalid) {
			return models.Attendance{}, apperr.WrapKind(op, apperr.Invalid, "Already checked out", errors.Unwrap(err))
		}
		return models.Attendance{}, err
	}
	return s.Get(ctx, id)
}

// Get point-reads one attendance record.
func (s *Attendance) Get(ctx context.Context, id string) (models.Attendance, error) {
	const op = "store.Attendance.Get"
	a, err := scanAttendance(s.db.QueryRowContext(ctx,
		`SELECT `+attendanceColumns+` FROM attendance WHERE id = ?`, id))
	if err != nil {
		return models.Attendance{}, apperr.Wrap(op, "Failed to fetch attendance", err)
	}
	return a, nil
}

// Open returns the worker's open shift at eventID, if any.
func (s *Attendance) Open(ctx context.Context, eventID, workerID string) (*models.Attendance, error) {
	const op = "store.Attendance.Open"
	a, err := scanAttendance(s.db.QueryRowContext(ctx,
		`SELECT `+attendanceColumns+` FROM attendance
		 WHERE event_id = ? AND worker_id = ? AND check_out_time IS NULL
		 ORDER BY check_in_time DESC LIMIT 1`, eventID, workerID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Wrap(op, "Failed to fetch attendance", err)
	}
	return &a, nil
}

// ListByWorker returns the worker's shifts, latest check-in first.
func (s *Attendance) ListByWorker(ctx context.Context, workerID string) ([]models.Attendance, error) {
	return s.query(ctx, "store.Attendance.ListByWorker", "Failed to fetch attendance",
		`SELECT `+attendanceColumns+` FROM attendance WHERE worker_id = ? ORDER BY check_in_time DESC`, workerID)
}

// ListByEvent returns every shift recorded at eventID, earliest first.
func (s *Attendance) ListByEvent(ctx context.Context, eventID string) ([]models.Attendance, error) {
	return s.query(ctx, "store.Attendance.ListByEvent", "Failed to fetch event attendance",
		`SELECT `+attendanceColumns+` FROM attendance WHERE event_id = ? ORDER BY check_in_time ASC`, eventID)
}

func (s *Attendance) query(ctx context.Context, op, msg, q string, args ...any) ([]models.Attendance, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, apperr.Wrap(op, msg, err)
	}
	defer rows.Close()

	out := []models.Attendance{}
	for rows.Next() {
		a, err := scanAttendance(rows)
		if err != nil {
			return nil, apperr.Wrap(op, msg, err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(op, msg, err)
	}
	return out, nil
}
