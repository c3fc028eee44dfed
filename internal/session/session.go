// Package session is the session provider: it owns the signed-in user of
// one client and keeps it in step with the identity backend.
//
// ────────────────────────────────────────────────────────────────────
// LEARNING NOTE — an explicit session instead of a global
// ────────────────────────────────────────────────────────────────────
// A single-user app can keep "the current user" in one process-wide
// variable. A server talks to many clients at once, so every client gets
// its own *Session and the Registry maps tokens to sessions. Handlers
// never reach for a global: the middleware puts the request's session on
// the context and handlers read it back with FromContext.
//
// A Session is {User, Loading, Err} behind a mutex. Every operation sets
// Loading, talks to the backend WITHOUT holding the mutex (the backend
// calls our listener synchronously, and the listener needs the mutex),
// then writes the outcome back under the mutex.
package session

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/izzacatering/backend/internal/apperr"
	"github.com/izzacatering/backend/internal/auth"
	"github.com/izzacatering/backend/internal/models"
	"github.com/izzacatering/backend/internal/navigation"
)

// Authenticator is the identity backend as the session sees it.
type Authenticator interface {
	SignUp(ctx context.Context, email, password string) (auth.Identity, error)
	SignIn(ctx context.Context, email, password string) (auth.Identity, error)
	SignOut(ctx context.Context, token string) error
	Verify(ctx context.Context, token string) (auth.Identity, error)
	OnAuthStateChanged(fn func(auth.StateChange)) (unsubscribe func())
}

// Profiles reads and writes user profile documents.
type Profiles interface {
	Get(ctx context.Context, id string) (models.User, error)
	Create(ctx context.Context, u models.User) (models.User, error)
}

// State is a snapshot of a session.
type State struct {
	User    *models.User
	Loading bool
	Err     string
}

// Session is the signed-in state of one client.
type Session struct {
	auth     Authenticator
	profiles Profiles
	log      *slog.Logger
	nav      *navigation.Machine
	now      func() time.Time

	mu        sync.Mutex
	token     string
	expiresAt time.Time
	state     State

	unsubscribe func()
}

// New returns a session in the loading state, subscribed to the identity
// backend's state stream.
func New(a Authenticator, p Profiles, log *slog.Logger) *Session {
	if log == nil {
		log = slog.Default()
	}
	s := &Session{
		auth:     a,
		profiles: p,
		log:      log,
		nav:      navigation.NewMachine(),
		now:      time.Now,
		state:    State{Loading: true},
	}
	s.unsubscribe = a.OnAuthStateChanged(s.onAuthState)
	return s
}

// onAuthState reacts to backend events for this session's own token. A
// sign-out of that token clears the session.
func (s *Session) onAuthState(c auth.StateChange) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token == "" || c.Token != s.token || c.SignedIn {
		return
	}
	s.clearLocked()
}

func (s *Session) clearLocked() {
	s.token = ""
	s.expiresAt = time.Time{}
	s.state = State{}
	if _, err := s.nav.Transition(navigation.Unauthenticated); err != nil {
		s.log.Warn("navigation transition", "err", err)
	}
}

// Close detaches the session from the backend's state stream.
func (s *Session) Close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
}

// State returns a copy of the session state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state
	if st.User != nil {
		u := *st.User
		st.User = &u
	}
	return st
}

// User returns the signed-in user, or nil.
func (s *Session) User() *models.User {
	return s.State().User
}

// Token returns the identity token of the signed-in user, or "".
func (s *Session) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// Expired reports whether the session's token has passed its expiry.
func (s *Session) Expired() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token != "" && !s.expiresAt.IsZero() && s.now().After(s.expiresAt)
}

// Navigation returns the current navigation state.
func (s *Session) Navigation() navigation.State {
	return s.nav.State()
}

// SetUser replaces the cached profile after the user edited it. Profiles
// of other identities are ignored.
func (s *Session) SetUser(u models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.User != nil && s.state.User.ID == u.ID {
		s.state.User = &u
	}
}

func (s *Session) begin() {
	s.mu.Lock()
	s.state.Loading = true
	s.state.Err = ""
	s.mu.Unlock()
}

// fail ends an operation with message msg. It always clears Loading.
func (s *Session) fail(op string, kind apperr.Kind, msg string, cause error) error {
	s.mu.Lock()
	s.state.Loading = false
	s.state.Err = msg
	if s.state.User == nil {
		if _, err := s.nav.Transition(navigation.Unauthenticated); err != nil {
			s.log.Warn("navigation transition", "err", err)
		}
	}
	s.mu.Unlock()
	if cause == nil {
		return apperr.New(op, kind, msg)
	}
	return apperr.WrapKind(op, kind, msg, cause)
}

// signedIn records a successful sign-in and moves navigation to the
// user's role.
func (s *Session) signedIn(op string, id auth.Identity, u models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := navigation.Resolve(false, &u)
	if _, err := s.nav.Transition(next); err != nil {
		s.state.Loading = false
		s.state.Err = "Please sign out first"
		return apperr.WrapKind(op, apperr.Conflict, "Please sign out first", err)
	}
	s.token = id.Token
	s.expiresAt = id.ExpiresAt
	s.state = State{User: &u}
	return nil
}

// Resume restores a session from a previously issued token. It stands in
// for the backend's initial auth-state event: with no token, or a token
// that no longer verifies, the session resolves to unauthenticated.
func (s *Session) Resume(ctx context.Context, token string) error {
	const op = "session.Resume"
	s.begin()

	token = strings.TrimSpace(token)
	if token == "" {
		s.mu.Lock()
		s.state.Loading = false
		s.mu.Unlock()
		if _, err := s.nav.Transition(navigation.Unauthenticated); err != nil {
			s.log.Warn("navigation transition", "err", err)
		}
		return nil
	}

	id, err := s.auth.Verify(ctx, token)
	if err != nil {
		return s.fail(op, apperr.Unauthenticated, "Session expired. Please sign in again.", err)
	}
	u, err := s.profiles.Get(ctx, id.UID)
	if err != nil {
		return s.fail(op, apperr.KindOf(err), apperr.Message(err), err)
	}
	return s.signedIn(op, id, u)
}

// Login signs in with email and password and loads the profile.
func (s *Session) Login(ctx context.Context, email, password string) (models.User, error) {
	const op = "session.Login"
	s.begin()

	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return models.User{}, s.fail(op, apperr.Invalid, "Please fill in all fields", nil)
	}

	id, err := s.auth.SignIn(ctx, email, password)
	if err != nil {
		kind := authKind(err)
		if auth.CodeOf(err) == auth.CodeInvalidEmail {
			kind = apperr.Unauthenticated
		}
		return models.User{}, s.fail(op, kind, loginMessage(err), err)
	}
	u, err := s.profiles.Get(ctx, id.UID)
	if err != nil {
		s.revoke(ctx, id.Token)
		return models.User{}, s.fail(op, apperr.KindOf(err), apperr.Message(err), err)
	}
	if err := s.signedIn(op, id, u); err != nil {
		s.revoke(ctx, id.Token)
		return models.User{}, err
	}
	s.log.Info("signed in", "uid", u.ID, "role", u.Role)
	return u, nil
}

// Register validates the registration form, creates the identity and
// writes its profile.
func (s *Session) Register(ctx context.Context, req models.RegisterRequest) (models.User, error) {
	const op = "session.Register"
	s.begin()

	req.Email = strings.TrimSpace(req.Email)
	req.Name = strings.TrimSpace(req.Name)
	req.Phone = strings.TrimSpace(req.Phone)
	if req.Role == "" {
		req.Role = models.RoleUser
	}

	switch {
	case req.Email == "" || req.Password == "" || req.Name == "" || req.Phone == "":
		return models.User{}, s.fail(op, apperr.Invalid, "Please fill in all fields", nil)
	case req.Password != req.ConfirmPassword:
		return models.User{}, s.fail(op, apperr.Invalid, "Passwords do not match", nil)
	case len(req.Password) < auth.MinPasswordLength:
		return models.User{}, s.fail(op, apperr.Invalid, "Password must be at least 6 characters", nil)
	case req.Role != models.RoleUser && req.Role != models.RoleWorker:
		return models.User{}, s.fail(op, apperr.Invalid, "Invalid account type", nil)
	}

	id, err := s.auth.SignUp(ctx, req.Email, req.Password)
	if err != nil {
		return models.User{}, s.fail(op, authKind(err), registerMessage(err), err)
	}

	profile := models.User{
		ID:    id.UID,
		Email: id.Email,
		Name:  req.Name,
		Phone: req.Phone,
		Role:  req.Role,
	}
	if req.Role == models.RoleWorker {
		wd := models.WorkerDetails{}
		if req.WorkerDetails != nil {
			wd = *req.WorkerDetails
		}
		profile.WorkerDetails = &wd
	}
	u, err := s.profiles.Create(ctx, profile)
	if err != nil {
		// The credential exists without a profile. Nothing rolls it back.
		s.log.Error("profile write failed after sign-up; orphan credential left behind",
			"uid", id.UID, "err", err)
		s.revoke(ctx, id.Token)
		return models.User{}, s.fail(op, apperr.KindOf(err), "Registration failed. Please try again.", err)
	}

	if err := s.signedIn(op, id, u); err != nil {
		s.revoke(ctx, id.Token)
		return models.User{}, err
	}
	s.log.Info("registered", "uid", u.ID, "role", u.Role)
	return u, nil
}

// Logout revokes the session's token and clears the session.
func (s *Session) Logout(ctx context.Context) error {
	const op = "session.Logout"
	token := s.Token()
	if token == "" {
		s.mu.Lock()
		s.clearLocked()
		s.mu.Unlock()
		return nil
	}

	s.begin()
	// SignOut notifies onAuthState, which clears the session.
	err := s.auth.SignOut(ctx, token)
	if err != nil && auth.CodeOf(err) == auth.CodeInternal {
		s.mu.Lock()
		s.state.Loading = false
		s.state.Err = "Logout failed. Please try again."
		s.mu.Unlock()
		return apperr.WrapKind(op, apperr.Unavailable, "Logout failed. Please try again.", err)
	}

	s.mu.Lock()
	if s.token == token || s.token == "" {
		s.clearLocked()
	}
	s.mu.Unlock()
	return nil
}

func (s *Session) revoke(ctx context.Context, token string) {
	if err := s.auth.SignOut(ctx, token); err != nil {
		s.log.Warn("revoke token", "err", err)
	}
}

func authKind(err error) apperr.Kind {
	switch auth.CodeOf(err) {
	case auth.CodeWrongPassword, auth.CodeUserNotFound, auth.CodeInvalidToken, auth.CodeTokenRevoked:
		return apperr.Unauthenticated
	case auth.CodeEmailInUse:
		return apperr.Conflict
	case auth.CodeInvalidEmail, auth.CodeWeakPassword:
		return apperr.Invalid
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return apperr.Unavailable
	}
	return apperr.Internal
}
