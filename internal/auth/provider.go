package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// MinPasswordLength is the shortest password SignUp accepts.
const MinPasswordLength = 6

// Identity is a signed-in identity and the token that proves it.
type Identity struct {
	UID       string    `json:"uid"`
	Email     string    `json:"email"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// StateChange is delivered to listeners after every sign-up, sign-in and
// sign-out. For a sign-out SignedIn is false and Token is the token that
// was revoked.
type StateChange struct {
	UID      string
	Token    string
	SignedIn bool
}

// Provider is the identity backend.
type Provider struct {
	db     *sql.DB
	secret string
	ttl    time.Duration
	log    *slog.Logger
	now    func() time.Time

	// Cost is the bcrypt work factor. Tests lower it to bcrypt.MinCost.
	Cost int

	mu        sync.Mutex
	nextID    int
	listeners map[int]func(StateChange)
}

// NewProvider builds a Provider over the credentials and revoked_tokens
// tables of database.
func NewProvider(database *sql.DB, secret string, ttl time.Duration, log *slog.Logger) *Provider {
	if log == nil {
		log = slog.Default()
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &Provider{
		db:        database,
		secret:    secret,
		ttl:       ttl,
		log:       log,
		now:       time.Now,
		Cost:      bcrypt.DefaultCost,
		listeners: make(map[int]func(StateChange)),
	}
}

// OnAuthStateChanged registers fn for every future state change and
// returns a func that unregisters it. Listeners run synchronously on the
// goroutine that caused the change and must not block.
func (p *Provider) OnAuthStateChanged(fn func(StateChange)) (unsubscribe func()) {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.listeners[id] = fn
	p.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.listeners, id)
			p.mu.Unlock()
		})
	}
}

// emit copies the listener set under the lock and calls it outside, so a
// listener may itself subscribe or unsubscribe.
func (p *Provider) emit(c StateChange) {
	p.mu.Lock()
	fns := make([]func(StateChange), 0, len(p.listeners))
	for _, fn := range p.listeners {
		fns = append(fns, fn)
	}
	p.mu.Unlock()
	for _, fn := range fns {
		fn(c)
	}
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", newError(CodeInvalidEmail, errors.New("email is empty"))
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", newError(CodeInvalidEmail, fmt.Errorf("malformed email %q", email))
	}
	return email, nil
}

// SignUp creates a credential for email and signs it in.
func (p *Provider) SignUp(ctx context.Context, email, password string) (Identity, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return Identity{}, err
	}
	if len(password) < MinPasswordLength {
		return Identity{}, newError(CodeWeakPassword, fmt.Errorf("password shorter than %d characters", MinPasswordLength))
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), p.Cost)
	if err != nil {
		return Identity{}, newError(CodeInternal, fmt.Errorf("hash password: %w", err))
	}

	uid := uuid.NewString()
	_, err = p.db.ExecContext(ctx,
		`INSERT INTO credentials (uid, email, password_hash, created_at) VALUES (?, ?, ?, ?)`,
		uid, email, string(hash), p.now().UTC(),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return Identity{}, newError(CodeEmailInUse, err)
		}
		return Identity{}, newError(CodeInternal, err)
	}

	id, err := p.issue(uid, email)
	if err != nil {
		return Identity{}, err
	}
	p.log.Info("identity created", "uid", uid)
	p.emit(StateChange{UID: uid, Token: id.Token, SignedIn: true})
	return id, nil
}

// SignIn checks email and password and issues a fresh token.
func (p *Provider) SignIn(ctx context.Context, email, password string) (Identity, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return Identity{}, err
	}

	var uid, hash string
	err = p.db.QueryRowContext(ctx,
		`SELECT uid, password_hash FROM credentials WHERE email = ?`, email,
	).Scan(&uid, &hash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Identity{}, newError(CodeUserNotFound, err)
		}
		return Identity{}, newError(CodeInternal, err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return Identity{}, newError(CodeWrongPassword, err)
	}

	id, err := p.issue(uid, email)
	if err != nil {
		return Identity{}, err
	}
	p.emit(StateChange{UID: uid, Token: id.Token, SignedIn: true})
	return id, nil
}

func (p *Provider) issue(uid, email string) (Identity, error) {
	token, claims, err := GenerateToken(uid, email, p.secret, p.now().UTC(), p.ttl)
	if err != nil {
		return Identity{}, newError(CodeInternal, err)
	}
	return Identity{UID: uid, Email: email, Token: token, ExpiresAt: claims.ExpiresAt.Time.UTC()}, nil
}

// Verify returns the identity behind token. Expired, forged and revoked
// tokens are rejected.
func (p *Provider) Verify(ctx context.Context, token string) (Identity, error) {
	claims, err := ParseToken(token, p.secret)
	if err != nil {
		return Identity{}, newError(CodeInvalidToken, err)
	}

	var one int
	err = p.db.QueryRowContext(ctx, `SELECT 1 FROM revoked_tokens WHERE jti = ?`, claims.ID).Scan(&one)
	switch {
	case err == nil:
		return Identity{}, newError(CodeTokenRevoked, nil)
	case !errors.Is(err, sql.ErrNoRows):
		return Identity{}, newError(CodeInternal, err)
	}

	return Identity{
		UID:       claims.UID,
		Email:     claims.Email,
		Token:     token,
		ExpiresAt: claims.ExpiresAt.Time.UTC(),
	}, nil
}

// SignOut revokes token. Signing out an already revoked token succeeds
// without notifying listeners again.
func (p *Provider) SignOut(ctx context.Context, token string) error {
	claims, err := ParseToken(token, p.secret)
	if err != nil {
		return newError(CodeInvalidToken, err)
	}

	now := p.now().UTC()
	res, err := p.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO revoked_tokens (jti, expires_at) VALUES (?, ?)`,
		claims.ID, claims.ExpiresAt.Time.UTC(),
	)
	if err != nil {
		return newError(CodeInternal, err)
	}

	// Revocations only matter until the token would have expired anyway.
	if _, err := p.db.ExecContext(ctx, `DELETE FROM revoked_tokens WHERE expires_at < ?`, now); err != nil {
		p.log.Warn("prune revoked tokens", "err", err)
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil
	}
	p.emit(StateChange{UID: claims.UID, Token: token, SignedIn: false})
	return nil
}

// EnsureIdentity returns the uid registered for email, creating the
// credential when it does not exist yet. It never emits a state change.
// The admin bootstrap and the demo fixture provision accounts through it.
func (p *Provider) EnsureIdentity(ctx context.Context, email, password string) (uid string, created bool, err error) {
	email, err = normalizeEmail(email)
	if err != nil {
		return "", false, err
	}
	err = p.db.QueryRowContext(ctx, `SELECT uid FROM credentials WHERE email = ?`, email).Scan(&uid)
	if err == nil {
		return uid, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", false, newError(CodeInternal, err)
	}
	if len(password) < MinPasswordLength {
		return "", false, newError(CodeWeakPassword, fmt.Errorf("password shorter than %d characters", MinPasswordLength))
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), p.Cost)
	if err != nil {
		return "", false, newError(CodeInternal, fmt.Errorf("hash password: %w", err))
	}
	uid = uuid.NewString()
	_, err = p.db.ExecContext(ctx,
		`INSERT INTO credentials (uid, email, password_hash, created_at) VALUES (?, ?, ?, ?)`,
		uid, email, string(hash), p.now().UTC(),
	)
	if err != nil {
		return "", false, newError(CodeInternal, err)
	}
	return uid, true, nil
}
