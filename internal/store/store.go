// Package store is the data-access layer: one type per collection, each
// method one backend statement (or one short transaction).
//
// ────────────────────────────────────────────────────────────────────
// LEARNING NOTE — fixed messages, preserved causes
// ────────────────────────────────────────────────────────────────────
// Every method fails with an *apperr.Error whose Message is a fixed,
// user-facing sentence ("Failed to fetch events") and whose Err is the
// raw driver error. Screens show the message, logs show the cause, and
// nothing in between has to parse SQLite error strings.
//
// Status changes are compare-and-set UPDATEs: the WHERE clause names the
// state the row must currently be in. When zero rows change we look the
// row up once more to tell "missing" (NotFound) from "wrong state"
// (Invalid). Two admins racing to approve the same event therefore
// produce exactly one winner.
package store

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/izzacatering/backend/internal/apperr"
	"github.com/izzacatering/backend/internal/models"
)

// Publisher receives every notification after it has been written.
// The realtime hub and the Redis relay both satisfy it.
type Publisher interface {
	Publish(ctx context.Context, n models.Notification) error
}

type base struct {
	db  *sql.DB
	log *slog.Logger
	pub Publisher
	now func() time.Time
}

func (b *base) stamp() time.Time { return b.now().UTC() }

// Store groups the collection accessors. All of them share one *sql.DB.
type Store struct {
	b *base

	Users         *Users
	Events        *Events
	Attendance    *Attendance
	Payments      *Payments
	Workers       *Workers
	Notifications *Notifications
}

// New builds a Store. pub may be nil, in which case notifications are
// only persisted.
func New(db *sql.DB, log *slog.Logger, pub Publisher) *Store {
	if log == nil {
		log = slog.Default()
	}
	b := &base{db: db, log: log, pub: pub, now: time.Now}
	return &Store{
		b:             b,
		Users:         &Users{b},
		Events:        &Events{b},
		Attendance:    &Attendance{b},
		Payments:      &Payments{b},
		Workers:       &Workers{b},
		Notifications: &Notifications{b},
	}
}

// SetClock replaces the time source used for createdAt/updatedAt stamps.
func (s *Store) SetClock(now func() time.Time) { s.b.now = now }

// Now returns the store clock's current time in UTC.
func (s *Store) Now() time.Time { return s.b.stamp() }

// DB exposes the underlying handle for health checks.
func (s *Store) DB() *sql.DB { return s.b.db }

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// errStateMismatch is the cause recorded when a compare-and-set UPDATE
// finds the row in a state it may not leave.
var errStateMismatch = errors.New("record is not in the expected state")

// missingOrMismatch is called after a guarded UPDATE changed nothing. It
// reports NotFound when the row does not exist and Invalid otherwise.
func (b *base) missingOrMismatch(ctx context.Context, op, table, id, msg string) error {
	var one int
	err := b.db.QueryRowContext(ctx, `SELECT 1 FROM `+table+` WHERE id = ?`, id).Scan(&one)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return apperr.WrapKind(op, apperr.NotFound, msg, err)
	case err != nil:
		return apperr.Wrap(op, msg, err)
	}
	return apperr.WrapKind(op, apperr.Invalid, msg, errStateMismatch)
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}
