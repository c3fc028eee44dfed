package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/izzacatering/backend/internal/apperr"
	"github.com/izzacatering/backend/internal/models"
)

// Events accesses the events collection.
type Events struct{ *base }

const eventColumns = `id, title, description, event_date, location, status, user_id, user_name, assigned_workers, created_at, updated_at`

func scanEvent(sc scanner) (models.Event, error) {
	var e models.Event
	var status, workers string
	if err := sc.Scan(&e.ID, &e.Title, &e.Description, &e.EventDate, &e.Location, &status,
		&e.UserID, &e.UserName, &workers, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return e, err
	}
	e.Status = models.EventStatus(status)
	e.EventDate = e.EventDate.UTC()
	e.CreatedAt = e.CreatedAt.UTC()
	e.UpdatedAt = e.UpdatedAt.UTC()
	e.AssignedWorkers = []string{}
	if workers != "" {
		if err := json.Unmarshal([]byte(workers), &e.AssignedWorkers); err != nil {
			return e, fmt.Errorf("decode assigned workers: %w", err)
		}
	}
	return e, nil
}

// Create stores a new event request. It always starts pending with no
// workers assigned.
func (s *Events) Create(ctx context.Context, userID, userName string, form models.EventForm) (string, error) {
	const op = "store.Events.Create"
	id := uuid.NewString()
	now := s.stamp()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (`+eventColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, '[]', ?, ?)`,
		id, form.Title, form.Description, form.EventDate.UTC(), form.Location,
		string(models.EventPending), userID, userName, now, now,
	)
	if err != nil {
		return "", apperr.Wrap(op, "Failed to create event", err)
	}
	return id, nil
}

// Get point-reads one event.
func (s *Events) Get(ctx context.Context, id string) (models.Event, error) {
	const op = "store.Events.Get"
	e, err := scanEvent(s.db.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = ?`, id))
	if err != nil {
		return models.Event{}, apperr.Wrap(op, "Failed to fetch event", err)
	}
	return e, nil
}

// List returns every event, latest event date first.
func (s *Events) List(ctx context.Context) ([]models.Event, error) {
	return s.query(ctx, "store.Events.List", "Failed to fetch events",
		`SELECT `+eventColumns+` FROM events ORDER BY event_date DESC`)
}

// ListByUser returns the events requested by userID.
func (s *Events) ListByUser(ctx context.Context, userID string) ([]models.Event, error) {
	return s.query(ctx, "store.Events.ListByUser", "Failed to fetch user events",
		`SELECT `+eventColumns+` FROM events WHERE user_id = ? ORDER BY event_date DESC`, userID)
}

// ListByStatus returns the events currently in status.
func (s *Events) ListByStatus(ctx context.Context, status models.EventStatus) ([]models.Event, error) {
	return s.query(ctx, "store.Events.ListByStatus", "Failed to fetch events",
		`SELECT `+eventColumns+` FROM events WHERE status = ? ORDER BY event_date DESC`, string(status))
}

// ListByWorker returns the events whose assigned set contains workerID.
func (s *Events) ListByWorker(ctx context.Context, workerID string) ([]models.Event, error) {
	return s.query(ctx, "store.Events.ListByWorker", "Failed to fetch worker events",
		`SELECT `+eventColumns+` FROM events
		 WHERE EXISTS (SELECT 1 FROM json_each(events.assigned_workers) WHERE json_each.value = ?)
		 ORDER BY event_date DESC`, workerID)
}

func (s *Events) query(ctx context.Context, op, msg, q string, args ...any) ([]models.Event, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, apperr.Wrap(op, msg, err)
	}
	defer rows.Close()

	// Initialise to an empty slice, not nil, so JSON encodes as [] not null.
	events := []models.Event{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, apperr.Wrap(op, msg, err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(op, msg, err)
	}
	return events, nil
}

// Update applies a partial edit. A title change is copied onto the
// attendance and payment records that carry the event title.
func (s *Events) Update(ctx context.Context, id string, upd models.EventUpdate) (models.Event, error) {
	const op = "store.Events.Update"
	const msg = "Failed to update event"
	if upd.Empty() {
		return models.Event{}, apperr.New(op, apperr.Invalid, msg)
	}

	var sets []string
	var args []any
	if upd.Title != nil {
		t := strings.TrimSpace(*upd.Title)
		if t == "" {
			return models.Event{}, apperr.New(op, apperr.Invalid, "Please fill in all fields")
		}
		upd.Title = &t
		sets = append(sets, "title = ?")
		args = append(args, t)
	}
	if upd.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, *upd.Description)
	}
	if upd.EventDate != nil {
		sets = append(sets, "event_date = ?")
		args = append(args, upd.EventDate.UTC())
	}
	if upd.Location != nil {
		sets = append(sets, "location = ?")
		args = append(args, *upd.Location)
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, s.stamp(), id)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.Event{}, apperr.Wrap(op, msg, err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after Commit

	res, err := tx.ExecContext(ctx, `UPDATE events SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return models.Event{}, apperr.Wrap(op, msg, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return models.Event{}, apperr.Wrap(op, msg, err)
	} else if n == 0 {
		return models.Event{}, apperr.WrapKind(op, apperr.NotFound, msg, sql.ErrNoRows)
	}

	if upd.Title != nil {
		for _, q := range []string{
			`UPDATE attendance SET event_title = ? WHERE event_id = ?`,
			`UPDATE payments SET event_title = ? WHERE event_id = ?`,
		} {
			if _, err := tx.ExecContext(ctx, q, *upd.Title, id); err != nil {
				return models.Event{}, apperr.Wrap(op, msg, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return models.Event{}, apperr.Wrap(op, msg, err)
	}
	return s.Get(ctx, id)
}

// UpdateStatus moves an event to status if, and only if, its current
// status is one of the statuses allowed to precede it.
func (s *Events) UpdateStatus(ctx context.Context, id string, status models.EventStatus) (models.Event, error) {
	const op = "store.Events.UpdateStatus"
	const msg = "Failed to update event status"

	preds := status.Predecessors()
	if !status.Valid() || len(preds) == 0 {
		return models.Event{}, apperr.WrapKind(op, apperr.Invalid, msg,
			fmt.Errorf("no event may move to status %q", status))
	}

	args := []any{string(status), s.stamp(), id}
	marks := make([]string, len(preds))
	for i, p := range preds {
		marks[i] = "?"
		args = append(args, string(p))
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE events SET status = ?, updated_at = ? WHERE id = ? AND status IN (`+strings.Join(marks, ", ")+`)`,
		args...)
	if err != nil {
		return models.Event{}, apperr.Wrap(op, msg, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return models.Event{}, apperr.Wrap(op, msg, err)
	}
	if n == 0 {
		return models.Event{}, s.missingOrMismatch(ctx, op, "events", id, msg)
	}
	return s.Get(ctx, id)
}

// AssignWorkers replaces the event's assigned set with workerIDs.
// Duplicates are dropped and first-seen order is kept. It returns the
// updated event and the ids that were not assigned before the call.
func (s *Events) AssignWorkers(ctx context.Context, id string, workerIDs []string) (models.Event, []string, error) {
	const op = "store.Events.AssignWorkers"
	const msg = "Failed to assign workers"

	seen := make(map[string]bool, len(workerIDs))
	set := make([]string, 0, len(workerIDs))
	for _, w := range workerIDs {
		w = strings.TrimSpace(w)
		if w == "" || seen[w] {
			continue
		}
		seen[w] = true
		set = append(set, w)
	}
	encoded, err := json.Marshal(set)
	if err != nil {
		return models.Event{}, nil, apperr.Wrap(op, msg, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.Event{}, nil, apperr.Wrap(op, msg, err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after Commit

	var prevRaw string
	err = tx.QueryRowContext(ctx, `SELECT assigned_workers FROM events WHERE id = ?`, id).Scan(&prevRaw)
	if err != nil {
		return models.Event{}, nil, apperr.Wrap(op, msg, err)
	}
	var prev []string
	if prevRaw != "" {
		if err := json.Unmarshal([]byte(prevRaw), &prev); err != nil {
			return models.Event{}, nil, apperr.Wrap(op, msg, err)
		}
	}
	had := make(map[string]bool, len(prev))
	for _, w := range prev {
		had[w] = true
	}
	added := []string{}
	for _, w := range set {
		if !had[w] {
			added = append(added, w)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE events SET assigned_workers = ?, updated_at = ? WHERE id = ?`,
		string(encoded), s.stamp(), id); err != nil {
		return models.Event{}, nil, apperr.Wrap(op, msg, err)
	}
	if err := tx.Commit(); err != nil {
		return models.Event{}, nil, apperr.Wrap(op, msg, err)
	}

	e, err := s.Get(ctx, id)
	if err != nil {
		return models.Event{}, nil, err
	}
	return e, added, nil
}

// Delete removes an event. Attendance and payment records that reference
// it are left in place.
func (s *Events) Delete(ctx context.Context, id string) error {
	const op = "store.Events.Delete"
	const msg = "Failed to delete event"
	res, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE id = ?`, id)
	if err != nil {
		return apperr.Wrap(op, msg, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apperr.Wrap(op, msg, err)
	}
	if n == 0 {
		return apperr.WrapKind(op, apperr.NotFound, msg, sql.ErrNoRows)
	}
	return nil
}
