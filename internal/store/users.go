package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/izzacatering/backend/internal/apperr"
	"github.com/izzacatering/backend/internal/models"
)

// Users reads and writes profile documents.
type Users struct{ *base }

const userColumns = `id, email, name, phone, role, worker_details, created_at`

func scanUser(sc scanner) (models.User, error) {
	var u models.User
	var role string
	var details sql.NullString
	if err := sc.Scan(&u.ID, &u.Email, &u.Name, &u.Phone, &role, &details, &u.CreatedAt); err != nil {
		return u, err
	}
	u.Role = models.UserRole(role)
	u.CreatedAt = u.CreatedAt.UTC()
	if details.Valid && details.String != "" {
		var wd models.WorkerDetails
		if err := json.Unmarshal([]byte(details.String), &wd); err != nil {
			return u, fmt.Errorf("decode worker details: %w", err)
		}
		u.WorkerDetails = &wd
	}
	return u, nil
}

func encodeDetails(wd *models.WorkerDetails) (sql.NullString, error) {
	if wd == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(wd)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

// Get point-reads the profile stored under the identity uid id.
func (s *Users) Get(ctx context.Context, id string) (models.User, error) {
	const op = "store.Users.Get"
	u, err := scanUser(s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if err != nil {
		return models.User{}, apperr.Wrap(op, "Failed to load user data", err)
	}
	return u, nil
}

// Create writes the profile for a freshly signed-up identity. Worker
// details are stored only for workers.
func (s *Users) Create(ctx context.Context, u models.User) (models.User, error) {
	const op = "store.Users.Create"
	if u.ID == "" || !u.Role.Valid() {
		return models.User{}, apperr.New(op, apperr.Invalid, "Failed to create user profile")
	}
	if u.Role != models.RoleWorker {
		u.WorkerDetails = nil
	}
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	if u.CreatedAt.IsZero() {
		u.CreatedAt = s.stamp()
	}
	details, err := encodeDetails(u.WorkerDetails)
	if err != nil {
		return models.User{}, apperr.Wrap(op, "Failed to create user profile", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Email, u.Name, u.Phone, string(u.Role), details, u.CreatedAt.UTC(),
	)
	if err != nil {
		return models.User{}, apperr.Wrap(op, "Failed to create user profile", err)
	}
	return u, nil
}

// UpdateProfile applies a partial edit to the caller's own profile.
//
// The user's name is copied onto events (user_name), attendance and
// payments (worker_name). A rename rewrites every copy in the same
// transaction so the screens never show two names for one person.
func (s *Users) UpdateProfile(ctx context.Context, id string, upd models.ProfileUpdate) (models.User, error) {
	const op = "store.Users.UpdateProfile"
	const msg = "Failed to update profile"

	var sets []string
	var args []any
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return models.User{}, apperr.New(op, apperr.Invalid, "Please fill in all fields")
		}
		upd.Name = &name
		sets = append(sets, "name = ?")
		args = append(args, name)
	}
	if upd.Phone != nil {
		sets = append(sets, "phone = ?")
		args = append(args, strings.TrimSpace(*upd.Phone))
	}
	if len(sets) == 0 {
		return s.Get(ctx, id)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.User{}, apperr.Wrap(op, msg, err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after Commit

	res, err := tx.ExecContext(ctx,
		`UPDATE users SET `+strings.Join(sets, ", ")+` WHERE id = ?`, append(args, id)...)
	if err != nil {
		return models.User{}, apperr.Wrap(op, msg, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return models.User{}, apperr.Wrap(op, msg, err)
	} else if n == 0 {
		return models.User{}, apperr.WrapKind(op, apperr.NotFound, msg, sql.ErrNoRows)
	}

	if upd.Name != nil {
		for _, q := range []string{
			`UPDATE events SET user_name = ? WHERE user_id = ?`,
			`UPDATE attendance SET worker_name = ? WHERE worker_id = ?`,
			`UPDATE payments SET worker_name = ? WHERE worker_id = ?`,
		} {
			if _, err := tx.ExecContext(ctx, q, *upd.Name, id); err != nil {
				return models.User{}, apperr.Wrap(op, msg, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return models.User{}, apperr.Wrap(op, msg, err)
	}
	return s.Get(ctx, id)
}

// FindByEmail looks up a profile by email address.
func (s *Users) FindByEmail(ctx context.Context, email string) (models.User, error) {
	const op = "store.Users.FindByEmail"
	u, err := scanUser(s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ? LIMIT 1`, strings.ToLower(strings.TrimSpace(email))))
	if err != nil {
		return models.User{}, apperr.Wrap(op, "Failed to load user data", err)
	}
	return u, nil
}
