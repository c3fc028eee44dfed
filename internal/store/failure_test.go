package store

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/izzacatering/backend/internal/apperr"
	"github.com/izzacatering/backend/internal/models"
)

var errBackend = errors.New("backend exploded")

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	database, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return New(database, slog.New(slog.NewTextHandler(io.Discard, nil)), nil), mock
}

// Every backend failure surfaces as the operation's fixed message with the
// driver error still reachable through errors.Is.
func TestBackendFailuresKeepFixedMessage(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		name   string
		expect func(m sqlmock.Sqlmock)
		call   func(s *Store) error
		msg    string
	}{
		{
			name:   "create event",
			expect: func(m sqlmock.Sqlmock) { m.ExpectExec("INSERT INTO events").WillReturnError(errBackend) },
			call: func(s *Store) error {
				_, err := s.Events.Create(ctx, "u1", "U", models.EventForm{Title: "t"})
				return err
			},
			msg: "Failed to create event",
		},
		{
			name:   "list events",
			expect: func(m sqlmock.Sqlmock) { m.ExpectQuery("SELECT .* FROM events").WillReturnError(errBackend) },
			call: func(s *Store) error {
				_, err := s.Events.List(ctx)
				return err
			},
			msg: "Failed to fetch events",
		},
		{
			name:   "user events",
			expect: func(m sqlmock.Sqlmock) { m.ExpectQuery("WHERE user_id").WillReturnError(errBackend) },
			call: func(s *Store) error {
				_, err := s.Events.ListByUser(ctx, "u1")
				return err
			},
			msg: "Failed to fetch user events",
		},
		{
			name:   "worker events",
			expect: func(m sqlmock.Sqlmock) { m.ExpectQuery("json_each").WillReturnError(errBackend) },
			call: func(s *Store) error {
				_, err := s.Events.ListByWorker(ctx, "w1")
				return err
			},
			msg: "Failed to fetch worker events",
		},
		{
			name:   "event status",
			expect: func(m sqlmock.Sqlmock) { m.ExpectExec("UPDATE events SET status").WillReturnError(errBackend) },
			call: func(s *Store) error {
				_, err := s.Events.UpdateStatus(ctx, "e1", models.EventApproved)
				return err
			},
			msg: "Failed to update event status",
		},
		{
			name:   "delete event",
			expect: func(m sqlmock.Sqlmock) { m.ExpectExec("DELETE FROM events").WillReturnError(errBackend) },
			call:   func(s *Store) error { return s.Events.Delete(ctx, "e1") },
			msg:    "Failed to delete event",
		},
		{
			name: "assign workers",
			expect: func(m sqlmock.Sqlmock) {
				m.ExpectBegin()
				m.ExpectQuery("SELECT assigned_workers").WillReturnError(errBackend)
				m.ExpectRollback()
			},
			call: func(s *Store) error {
				_, _, err := s.Events.AssignWorkers(ctx, "e1", []string{"w1"})
				return err
			},
			msg: "Failed to assign workers",
		},
		{
			name:   "check in",
			expect: func(m sqlmock.Sqlmock) { m.ExpectExec("INSERT INTO attendance").WillReturnError(errBackend) },
			call: func(s *Store) error {
				_, err := s.Attendance.CheckIn(ctx, "e1", "w1", "W", "E", 500)
				return err
			},
			msg: "Failed to check in",
		},
		{
			name:   "check out",
			expect: func(m sqlmock.Sqlmock) { m.ExpectExec("UPDATE attendance").WillReturnError(errBackend) },
			call: func(s *Store) error {
				_, err := s.Attendance.CheckOut(ctx, "a1")
				return err
			},
			msg: "Failed to check out",
		},
		{
			name:   "event attendance",
			expect: func(m sqlmock.Sqlmock) { m.ExpectQuery("FROM attendance WHERE event_id").WillReturnError(errBackend) },
			call: func(s *Store) error {
				_, err := s.Attendance.ListByEvent(ctx, "e1")
				return err
			},
			msg: "Failed to fetch event attendance",
		},
		{
			name:   "create payment",
			expect: func(m sqlmock.Sqlmock) { m.ExpectExec("INSERT INTO payments").WillReturnError(errBackend) },
			call: func(s *Store) error {
				_, err := s.Payments.Create(ctx, "w1", "W", "e1", "E", 10)
				return err
			},
			msg: "Failed to create payment",
		},
		{
			name:   "pending payments",
			expect: func(m sqlmock.Sqlmock) { m.ExpectQuery("FROM payments WHERE status").WillReturnError(errBackend) },
			call: func(s *Store) error {
				_, err := s.Payments.ListPending(ctx)
				return err
			},
			msg: "Failed to fetch pending payments",
		},
		{
			name:   "mark paid",
			expect: func(m sqlmock.Sqlmock) { m.ExpectExec("UPDATE payments").WillReturnError(errBackend) },
			call: func(s *Store) error {
				_, err := s.Payments.MarkPaid(ctx, "p1")
				return err
			},
			msg: "Failed to update payment",
		},
		{
			name:   "workers",
			expect: func(m sqlmock.Sqlmock) { m.ExpectQuery("FROM users WHERE role").WillReturnError(errBackend) },
			call: func(s *Store) error {
				_, err := s.Workers.List(ctx)
				return err
			},
			msg: "Failed to fetch workers",
		},
		{
			name:   "broadcast",
			expect: func(m sqlmock.Sqlmock) { m.ExpectExec("INSERT INTO notifications").WillReturnError(errBackend) },
			call: func(s *Store) error {
				_, err := s.Notifications.Broadcast(ctx, "t", "m")
				return err
			},
			msg: "Failed to broadcast notification",
		},
		{
			name:   "notifications",
			expect: func(m sqlmock.Sqlmock) { m.ExpectQuery("FROM notifications").WillReturnError(errBackend) },
			call: func(s *Store) error {
				_, err := s.Notifications.ListForUser(ctx, "u1")
				return err
			},
			msg: "Failed to fetch notifications",
		},
		{
			name:   "user profile",
			expect: func(m sqlmock.Sqlmock) { m.ExpectQuery("FROM users WHERE id").WillReturnError(errBackend) },
			call: func(s *Store) error {
				_, err := s.Users.Get(ctx, "u1")
				return err
			},
			msg: "Failed to load user data",
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			s, mock := newMockStore(t)
			c.expect(mock)

			err := c.call(s)
			require.Error(t, err)
			assert.Equal(t, c.msg, err.Error())
			assert.True(t, errors.Is(err, errBackend), "cause must be preserved")
			assert.Equal(t, apperr.Internal, apperr.KindOf(err))
			assert.False(t, apperr.Retryable(err))
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestUnavailableBackendIsRetryable(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery("FROM payments WHERE worker_id").WillReturnError(context.DeadlineExceeded)

	_, err := s.Payments.ListByWorker(context.Background(), "w1")
	require.Error(t, err)
	assert.Equal(t, "Failed to fetch payments", err.Error())
	assert.True(t, apperr.Retryable(err))
}

func TestProfileRenameRollsBackOnFailure(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE users SET name").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE events SET user_name").WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("UPDATE attendance SET worker_name").WillReturnError(errBackend)
	mock.ExpectRollback()

	name := "New"
	_, err := s.Users.UpdateProfile(context.Background(), "u1", models.ProfileUpdate{Name: &name})
	require.Error(t, err)
	assert.Equal(t, "Failed to update profile", err.Error())
	assert.True(t, errors.Is(err, errBackend))
	assert.NoError(t, mock.ExpectationsWereMet())
}
