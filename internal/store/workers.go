package store

import (
	"context"
	"database/sql"

	"github.com/izzacatering/backend/internal/apperr"
	"github.com/izzacatering/backend/internal/models"
)

// Workers is the users collection restricted to role == worker.
type Workers struct{ *base }

// List returns every worker profile ordered by name.
func (s *Workers) List(ctx context.Context) ([]models.User, error) {
	const op = "store.Workers.List"
	const msg = "Failed to fetch workers"
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE role = ? ORDER BY name ASC`, string(models.RoleWorker))
	if err != nil {
		return nil, apperr.Wrap(op, msg, err)
	}
	defer rows.Close()

	workers := []models.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, apperr.Wrap(op, msg, err)
		}
		workers = append(workers, u)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(op, msg, err)
	}
	return workers, nil
}

// Get returns one worker. Profiles with any other role are NotFound.
func (s *Workers) Get(ctx context.Context, id string) (models.User, error) {
	const op = "store.Workers.Get"
	u, err := scanUser(s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ? AND role = ?`, id, string(models.RoleWorker)))
	if err != nil {
		return models.User{}, apperr.Wrap(op, "Failed to fetch worker", err)
	}
	return u, nil
}

// UpdateDetails replaces a worker's payout details.
func (s *Workers) UpdateDetails(ctx context.Context, id string, wd models.WorkerDetails) (models.User, error) {
	const op = "store.Workers.UpdateDetails"
	const msg = "Failed to update worker details"
	details, err := encodeDetails(&wd)
	if err != nil {
		return models.User{}, apperr.Wrap(op, msg, err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET worker_details = ? WHERE id = ? AND role = ?`,
		details, id, string(models.RoleWorker))
	if err != nil {
		return models.User{}, apperr.Wrap(op, msg, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return models.User{}, apperr.Wrap(op, msg, err)
	}
	if n == 0 {
		return models.User{}, apperr.WrapKind(op, apperr.NotFound, msg, sql.ErrNoRows)
	}
	return s.Get(ctx, id)
}
