// Package seed provisions the admin account and the optional demo data.
//
// The register screen only creates "user" and "worker" accounts, so the
// admin identity is bootstrapped from configuration at start-up. The demo
// fixture (demo.yaml, embedded into the binary) gives a fresh database a
// known, populated state: customers with events in every status, workers
// with shifts and payouts, and a broadcast.
//
// Both entry points are idempotent. Accounts are matched by email, events
// by (requester, title), and attendance/payments by (worker, event), so
// running the seed twice creates nothing the second time.
package seed

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/izzacatering/backend/internal/apperr"
	"github.com/izzacatering/backend/internal/models"
	"github.com/izzacatering/backend/internal/store"
)

//go:embed demo.yaml
var demoYAML []byte

// Identities provisions credentials without signing anyone in.
type Identities interface {
	EnsureIdentity(ctx context.Context, email, password string) (uid string, created bool, err error)
}

// Fixture is the demo data document.
type Fixture struct {
	Password   string              `yaml:"password"`
	Users      []FixtureUser       `yaml:"users"`
	Events     []FixtureEvent      `yaml:"events"`
	Attendance []FixtureAttendance `yaml:"attendance"`
	Payments   []FixturePayment    `yaml:"payments"`
	Broadcasts []FixtureBroadcast  `yaml:"broadcasts"`
}

type FixtureUser struct {
	Email         string                `yaml:"email"`
	Name          string                `yaml:"name"`
	Phone         string                `yaml:"phone"`
	Role          models.UserRole       `yaml:"role"`
	WorkerDetails *models.WorkerDetails `yaml:"workerDetails"`
}

type FixtureEvent struct {
	Title       string             `yaml:"title"`
	Description string             `yaml:"description"`
	Location    string             `yaml:"location"`
	DaysFromNow int                `yaml:"daysFromNow"`
	Hour        int                `yaml:"hour"`
	RequestedBy string             `yaml:"requestedBy"`
	Status      models.EventStatus `yaml:"status"`
	Workers     []string           `yaml:"workers"`
}

type FixtureAttendance struct {
	Event      string `yaml:"event"`
	Worker     string `yaml:"worker"`
	CheckedOut bool   `yaml:"checkedOut"`
}

type FixturePayment struct {
	Event  string  `yaml:"event"`
	Worker string  `yaml:"worker"`
	Amount float64 `yaml:"amount"`
	Paid   bool    `yaml:"paid"`
}

type FixtureBroadcast struct {
	Title   string `yaml:"title"`
	Message string `yaml:"message"`
}

// Demo returns the embedded demo fixture.
func Demo() (*Fixture, error) {
	return Parse(demoYAML)
}

// Parse decodes and checks a fixture document. References between
// sections (requester, workers, events) must resolve inside the document.
func Parse(data []byte) (*Fixture, error) {
	var f Fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("seed: parse fixture: %w", err)
	}
	if err := f.validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

func (f *Fixture) validate() error {
	roles := make(map[string]models.UserRole, len(f.Users))
	for _, u := range f.Users {
		if u.Role != models.RoleUser && u.Role != models.RoleWorker {
			return fmt.Errorf("seed: user %s: role must be user or worker, got %q", u.Email, u.Role)
		}
		roles[strings.ToLower(u.Email)] = u.Role
	}
	titles := make(map[string]bool, len(f.Events))
	for _, e := range f.Events {
		if e.Title == "" {
			return fmt.Errorf("seed: event without title")
		}
		if !e.Status.Valid() {
			return fmt.Errorf("seed: event %q: unknown status %q", e.Title, e.Status)
		}
		if roles[strings.ToLower(e.RequestedBy)] != models.RoleUser {
			return fmt.Errorf("seed: event %q: requester %s is not a fixture user", e.Title, e.RequestedBy)
		}
		for _, w := range e.Workers {
			if roles[strings.ToLower(w)] != models.RoleWorker {
				return fmt.Errorf("seed: event %q: %s is not a fixture worker", e.Title, w)
			}
		}
		titles[e.Title] = true
	}
	for _, a := range f.Attendance {
		if !titles[a.Event] || roles[strings.ToLower(a.Worker)] != models.RoleWorker {
			return fmt.Errorf("seed: attendance %s at %q does not resolve", a.Worker, a.Event)
		}
	}
	for _, p := range f.Payments {
		if !titles[p.Event] || roles[strings.ToLower(p.Worker)] != models.RoleWorker {
			return fmt.Errorf("seed: payment %s for %q does not resolve", p.Worker, p.Event)
		}
	}
	return nil
}

// Result counts what one Apply created.
type Result struct {
	Users      int `json:"users"`
	Events     int `json:"events"`
	Attendance int `json:"attendance"`
	Payments   int `json:"payments"`
	Broadcasts int `json:"broadcasts"`
}

// Seeder writes accounts and fixtures through the auth backend and the store.
type Seeder struct {
	ids      Identities
	store    *store.Store
	log      *slog.Logger
	earnings float64
}

// New returns a Seeder. Seeded shifts earn shiftEarnings each.
func New(ids Identities, st *store.Store, shiftEarnings float64, log *slog.Logger) *Seeder {
	if log == nil {
		log = slog.Default()
	}
	return &Seeder{ids: ids, store: st, log: log, earnings: shiftEarnings}
}

// Admin is the configured administrator account.
type Admin struct {
	Email    string
	Password string
	Name     string
}

// Bootstrap makes sure the admin account exists with an admin profile.
// An existing profile under that email with another role is a conflict.
func (s *Seeder) Bootstrap(ctx context.Context, a Admin) (models.User, error) {
	const op = "seed.Bootstrap"
	existing, err := s.store.Users.FindByEmail(ctx, a.Email)
	switch {
	case err == nil && existing.Role != models.RoleAdmin:
		return models.User{}, apperr.New(op, apperr.Conflict,
			fmt.Sprintf("Account %s already exists with role %s", a.Email, existing.Role))
	case err != nil && !apperr.Is(err, apperr.NotFound):
		return models.User{}, err
	}
	uid, created, err := s.ids.EnsureIdentity(ctx, a.Email, a.Password)
	if err != nil {
		return models.User{}, apperr.WrapKind(op, apperr.Invalid, "Failed to provision admin account", err)
	}
	u, _, err := s.ensureProfile(ctx, models.User{
		ID: uid, Email: a.Email, Name: a.Name, Role: models.RoleAdmin,
	})
	if err != nil {
		return models.User{}, err
	}
	if u.Role != models.RoleAdmin {
		return models.User{}, apperr.New(op, apperr.Conflict,
			fmt.Sprintf("Account %s already exists with role %s", a.Email, u.Role))
	}
	if created {
		s.log.Info("admin account created", "email", u.Email, "uid", u.ID)
	}
	return u, nil
}

// ensureProfile returns the stored profile of u.ID, creating it from u
// when there is none.
func (s *Seeder) ensureProfile(ctx context.Context, u models.User) (models.User, bool, error) {
	existing, err := s.store.Users.Get(ctx, u.ID)
	if err == nil {
		return existing, false, nil
	}
	if !apperr.Is(err, apperr.NotFound) {
		return models.User{}, false, err
	}
	u, err = s.store.Users.Create(ctx, u)
	return u, err == nil, err
}

// Apply writes f. Records that already exist are left untouched.
func (s *Seeder) Apply(ctx context.Context, f *Fixture) (Result, error) {
	var res Result
	now := s.store.Now()

	users := make(map[string]models.User, len(f.Users))
	for _, fu := range f.Users {
		uid, _, err := s.ids.EnsureIdentity(ctx, fu.Email, f.Password)
		if err != nil {
			return res, fmt.Errorf("seed: identity %s: %w", fu.Email, err)
		}
		u, created, err := s.ensureProfile(ctx, models.User{
			ID: uid, Email: fu.Email, Name: fu.Name, Phone: fu.Phone,
			Role: fu.Role, WorkerDetails: fu.WorkerDetails,
		})
		if err != nil {
			return res, fmt.Errorf("seed: profile %s: %w", fu.Email, err)
		}
		if created {
			res.Users++
		}
		users[strings.ToLower(fu.Email)] = u
	}

	events := make(map[string]models.Event, len(f.Events))
	for _, fe := range f.Events {
		requester := users[strings.ToLower(fe.RequestedBy)]
		workerIDs := make([]string, 0, len(fe.Workers))
		for _, email := range fe.Workers {
			workerIDs = append(workerIDs, users[strings.ToLower(email)].ID)
		}
		e, created, err := s.ensureEvent(ctx, requester, workerIDs, fe, now)
		if err != nil {
			return res, fmt.Errorf("seed: event %q: %w", fe.Title, err)
		}
		if created {
			res.Events++
		}
		events[fe.Title] = e
	}

	for _, fa := range f.Attendance {
		w := users[strings.ToLower(fa.Worker)]
		e := events[fa.Event]
		created, err := s.ensureAttendance(ctx, w, e, fa.CheckedOut)
		if err != nil {
			return res, fmt.Errorf("seed: attendance %s at %q: %w", fa.Worker, fa.Event, err)
		}
		if created {
			res.Attendance++
		}
	}

	for _, fp := range f.Payments {
		w := users[strings.ToLower(fp.Worker)]
		e := events[fp.Event]
		created, err := s.ensurePayment(ctx, w, e, fp)
		if err != nil {
			return res, fmt.Errorf("seed: payment %s for %q: %w", fp.Worker, fp.Event, err)
		}
		if created {
			res.Payments++
		}
	}

	if len(f.Broadcasts) > 0 {
		// ListForUser("") sees exactly the broadcasts.
		existing, err := s.store.Notifications.ListForUser(ctx, "")
		if err != nil {
			return res, err
		}
		seen := make(map[string]bool, len(existing))
		for _, n := range existing {
			seen[n.Title] = true
		}
		for _, b := range f.Broadcasts {
			if seen[b.Title] {
				continue
			}
			if _, err := s.store.Notifications.Broadcast(ctx, b.Title, b.Message); err != nil {
				return res, err
			}
			res.Broadcasts++
		}
	}

	s.log.Info("demo data applied",
		"users", res.Users, "events", res.Events, "attendance", res.Attendance,
		"payments", res.Payments, "broadcasts", res.Broadcasts)
	return res, nil
}

// statusPath lists the transitions that take a new (pending) event to target.
func statusPath(target models.EventStatus) []models.EventStatus {
	switch target {
	case models.EventApproved:
		return []models.EventStatus{models.EventApproved}
	case models.EventRejected:
		return []models.EventStatus{models.EventRejected}
	case models.EventCompleted:
		return []models.EventStatus{models.EventApproved, models.EventCompleted}
	}
	return nil
}

func (s *Seeder) ensureEvent(ctx context.Context, requester models.User, workerIDs []string, fe FixtureEvent, now time.Time) (models.Event, bool, error) {
	mine, err := s.store.Events.ListByUser(ctx, requester.ID)
	if err != nil {
		return models.Event{}, false, err
	}
	for _, e := range mine {
		if e.Title == fe.Title {
			return e, false, nil
		}
	}

	day := now.AddDate(0, 0, fe.DaysFromNow)
	date := time.Date(day.Year(), day.Month(), day.Day(), fe.Hour, 0, 0, 0, time.UTC)
	id, err := s.store.Events.Create(ctx, requester.ID, requester.Name, models.EventForm{
		Title: fe.Title, Description: fe.Description, EventDate: date, Location: fe.Location,
	})
	if err != nil {
		return models.Event{}, false, err
	}

	e, err := s.store.Events.Get(ctx, id)
	if err != nil {
		return models.Event{}, false, err
	}
	if len(workerIDs) > 0 {
		if e, _, err = s.store.Events.AssignWorkers(ctx, id, workerIDs); err != nil {
			return models.Event{}, false, err
		}
	}
	for _, st := range statusPath(fe.Status) {
		if e, err = s.store.Events.UpdateStatus(ctx, id, st); err != nil {
			return models.Event{}, false, err
		}
	}
	return e, true, nil
}

func (s *Seeder) ensureAttendance(ctx context.Context, w models.User, e models.Event, checkOut bool) (bool, error) {
	records, err := s.store.Attendance.ListByWorker(ctx, w.ID)
	if err != nil {
		return false, err
	}
	for _, a := range records {
		if a.EventID == e.ID {
			return false, nil
		}
	}
	a, err := s.store.Attendance.CheckIn(ctx, e.ID, w.ID, w.Name, e.Title, s.earnings)
	if err != nil {
		return false, err
	}
	if checkOut {
		if _, err := s.store.Attendance.CheckOut(ctx, a.ID); err != nil {
			return false, err
		}
	}
	return true, nil
}

func (s *Seeder) ensurePayment(ctx context.Context, w models.User, e models.Event, fp FixturePayment) (bool, error) {
	payments, err := s.store.Payments.ListByWorker(ctx, w.ID)
	if err != nil {
		return false, err
	}
	for _, p := range payments {
		if p.EventID == e.ID {
			return false, nil
		}
	}
	p, err := s.store.Payments.Create(ctx, w.ID, w.Name, e.ID, e.Title, fp.Amount)
	if err != nil {
		return false, err
	}
	if fp.Paid {
		if _, err := s.store.Payments.MarkPaid(ctx, p.ID); err != nil {
			return false, err
		}
	}
	return true, nil
}
