package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/izzacatering/backend/internal/apperr"
	"github.com/izzacatering/backend/internal/auth"
)

// Registry maps identity tokens to live sessions.
type Registry struct {
	auth     Authenticator
	profiles Profiles
	log      *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry returns an empty registry.
func NewRegistry(a Authenticator, p Profiles, log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{auth: a, profiles: p, log: log, sessions: make(map[string]*Session)}
}

// New returns a fresh session that is not registered yet. The login and
// register screens sign it in and then hand it to Add.
func (r *Registry) New() *Session {
	return New(r.auth, r.profiles, r.log)
}

// Add registers a signed-in session under its token.
func (r *Registry) Add(s *Session) {
	token := s.Token()
	if token == "" {
		return
	}
	r.mu.Lock()
	r.sessions[token] = s
	r.mu.Unlock()
}

// Lookup returns the session for token. A token the registry has not
// seen (for example after a restart) is resumed against the backend and
// registered on success.
//
// A cached session is re-verified on every lookup, so a sign-out made
// through another server instance takes effect here too.
func (r *Registry) Lookup(ctx context.Context, token string) (*Session, error) {
	const op = "session.Registry.Lookup"
	if token == "" {
		return nil, apperr.New(op, apperr.Unauthenticated, "Please sign in")
	}

	r.mu.Lock()
	s, ok := r.sessions[token]
	r.mu.Unlock()
	if ok {
		if s.Token() == token && !s.Expired() {
			_, err := r.auth.Verify(ctx, token)
			if err == nil {
				return s, nil
			}
			if auth.CodeOf(err) == auth.CodeInternal {
				return nil, apperr.WrapKind(op, apperr.Unavailable, "Something went wrong. Please try again.", err)
			}
			r.Remove(token)
			return nil, apperr.WrapKind(op, apperr.Unauthenticated, "Session expired. Please sign in again.", err)
		}
		r.Remove(token)
		if s.Token() != token {
			return nil, apperr.New(op, apperr.Unauthenticated, "Please sign in")
		}
	}

	s = r.New()
	if err := s.Resume(ctx, token); err != nil {
		s.Close()
		return nil, err
	}
	if s.User() == nil {
		s.Close()
		return nil, apperr.New(op, apperr.Unauthenticated, "Please sign in")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.sessions[token]; ok {
		// Another request resumed the same token first.
		s.Close()
		return existing, nil
	}
	r.sessions[token] = s
	return s, nil
}

// Remove drops the session registered under token and detaches it.
func (r *Registry) Remove(token string) {
	r.mu.Lock()
	s, ok := r.sessions[token]
	delete(r.sessions, token)
	r.mu.Unlock()
	if ok {
		s.Close()
	}
}

// Logout signs s out and removes it from the registry.
func (r *Registry) Logout(ctx context.Context, s *Session) error {
	token := s.Token()
	if err := s.Logout(ctx); err != nil {
		return err
	}
	if token != "" {
		r.Remove(token)
	}
	return nil
}

// Sweep drops every session whose token has expired or that has been
// signed out, and detaches it from the backend. It returns the number
// removed.
func (r *Registry) Sweep() int {
	r.mu.Lock()
	var dead []*Session
	for token, s := range r.sessions {
		if s.Token() != token || s.Expired() {
			dead = append(dead, s)
			delete(r.sessions, token)
		}
	}
	r.mu.Unlock()
	for _, s := range dead {
		s.Close()
	}
	return len(dead)
}

// StartCleanup runs Sweep every interval until ctx is cancelled.
func (r *Registry) StartCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := r.Sweep(); n > 0 {
					r.log.Debug("expired sessions swept", "count", n)
				}
			}
		}
	}()
}

// Len reports the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Close detaches every registered session.
func (r *Registry) Close() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()
	for _, s := range sessions {
		s.Close()
	}
}

type contextKey struct{}

// WithSession returns a copy of ctx carrying s.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, contextKey{}, s)
}

// FromContext returns the session stored by WithSession.
func FromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(contextKey{}).(*Session)
	return s, ok && s != nil
}
