package middleware_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/izzacatering/backend/internal/auth"
	"github.com/izzacatering/backend/internal/db"
	"github.com/izzacatering/backend/internal/middleware"
	"github.com/izzacatering/backend/internal/models"
	"github.com/izzacatering/backend/internal/navigation"
	"github.com/izzacatering/backend/internal/session"
	"github.com/izzacatering/backend/internal/store"
)

var dbCounter atomic.Int64

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

// newRegistry wires a real provider and store over a private in-memory DB.
func newRegistry(t *testing.T) *session.Registry {
	t.Helper()
	database, err := db.Open(fmt.Sprintf("file:mwtest%d?mode=memory&cache=shared", dbCounter.Add(1)))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	p := auth.NewProvider(database, "middleware-test-secret", time.Hour, quietLogger())
	p.Cost = bcrypt.MinCost
	st := store.New(database, quietLogger(), nil)
	reg := session.NewRegistry(p, st.Users, quietLogger())
	t.Cleanup(reg.Close)
	return reg
}

// signIn registers a new account with role and returns its token.
func signIn(t *testing.T, reg *session.Registry, email string, role models.UserRole) string {
	t.Helper()
	s := reg.New()
	_, err := s.Register(context.Background(), models.RegisterRequest{
		Email: email, Password: "secret1", ConfirmPassword: "secret1",
		Name: "Test", Phone: "9876543210", Role: role,
	})
	if err != nil {
		t.Fatalf("register %s: %v", email, err)
	}
	reg.Add(s)
	return s.Token()
}

// okHandler records the user it saw and writes 200.
func okHandler(seen *string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*seen = middleware.GetUserID(r.Context())
		w.WriteHeader(http.StatusOK)
	})
}

func errorBody(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return body["error"]
}

// ─── Authenticate ────────────────────────────────────────────────────────────

func TestAuthenticate_ValidBearerToken(t *testing.T) {
	reg := newRegistry(t)
	token := signIn(t, reg, "user@example.com", models.RoleUser)

	var seen string
	h := middleware.Authenticate(reg)(okHandler(&seen))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if seen == "" {
		t.Error("expected the signed-in user in the request context")
	}
}

func TestAuthenticate_TokenQueryParameter(t *testing.T) {
	reg := newRegistry(t)
	token := signIn(t, reg, "query@example.com", models.RoleWorker)

	var seen string
	h := middleware.Authenticate(reg)(okHandler(&seen))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/?token="+token, nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestAuthenticate_MissingToken(t *testing.T) {
	reg := newRegistry(t)
	h := middleware.Authenticate(reg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run without a token")
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected JSON error, got content type %q", ct)
	}
}

func TestAuthenticate_InvalidToken(t *testing.T) {
	reg := newRegistry(t)
	h := middleware.Authenticate(reg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run with a bad token")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer not.a.token")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	if msg := errorBody(t, rr); msg != "Session expired. Please sign in again." {
		t.Errorf("unexpected error message %q", msg)
	}
}

func TestAuthenticate_LoggedOutTokenRejected(t *testing.T) {
	reg := newRegistry(t)
	token := signIn(t, reg, "gone@example.com", models.RoleUser)

	s, err := reg.Lookup(context.Background(), token)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if err := reg.Logout(context.Background(), s); err != nil {
		t.Fatalf("logout: %v", err)
	}

	var seen string
	h := middleware.Authenticate(reg)(okHandler(&seen))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 after logout, got %d", rr.Code)
	}
}

// ─── RequireScreen ───────────────────────────────────────────────────────────

func TestRequireScreen(t *testing.T) {
	reg := newRegistry(t)
	userToken := signIn(t, reg, "u@example.com", models.RoleUser)
	workerToken := signIn(t, reg, "w@example.com", models.RoleWorker)

	tests := []struct {
		name   string
		token  string
		screen navigation.Screen
		want   int
	}{
		{"user reaches own screen", userToken, navigation.UserMyEvents, http.StatusOK},
		{"user blocked from admin screen", userToken, navigation.AdminEventManagement, http.StatusForbidden},
		{"worker reaches check-in", workerToken, navigation.WorkerCheckIn, http.StatusOK},
		{"worker blocked from admin payments", workerToken, navigation.AdminPaymentTracking, http.StatusForbidden},
		{"worker blocked from user screen", workerToken, navigation.UserEventRequest, http.StatusForbidden},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var seen string
			h := middleware.Authenticate(reg)(middleware.RequireScreen(tc.screen)(okHandler(&seen)))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("Authorization", "Bearer "+tc.token)
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)

			if rr.Code != tc.want {
				t.Errorf("expected %d, got %d", tc.want, rr.Code)
			}
		})
	}
}

func TestRequireScreen_NamesOwningRole(t *testing.T) {
	reg := newRegistry(t)
	workerToken := signIn(t, reg, "w@example.com", models.RoleWorker)
	var seen string
	h := middleware.Authenticate(reg)(middleware.RequireScreen(navigation.AdminPaymentTracking)(okHandler(&seen)))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+workerToken)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "only available to admin accounts") {
		t.Errorf("unexpected body %s", rr.Body.String())
	}
}

func TestRequireScreen_WithoutSession(t *testing.T) {
	h := middleware.RequireScreen(navigation.UserDashboard)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run without a session")
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

// ─── CORS ────────────────────────────────────────────────────────────────────

func TestCORS_SetsHeaders(t *testing.T) {
	h := middleware.CORS("")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("expected Access-Control-Allow-Origin *, got %q", got)
	}
	if !strings.Contains(rr.Header().Get("Access-Control-Allow-Methods"), "PATCH") {
		t.Error("expected PATCH among the allowed methods")
	}
}

func TestCORS_ConfiguredOrigin(t *testing.T) {
	h := middleware.CORS("https://app.izza.example")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "https://app.izza.example" {
		t.Errorf("unexpected origin %q", got)
	}
	if rr.Header().Get("Vary") != "Origin" {
		t.Error("expected Vary: Origin for a fixed origin")
	}
}

func TestCORS_PreflightReturns204(t *testing.T) {
	h := middleware.CORS("*")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("preflight must not reach the handler")
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodOptions, "/", nil))

	if rr.Code != http.StatusNoContent {
		t.Errorf("expected 204 for preflight, got %d", rr.Code)
	}
}

// ─── TokenFromRequest ────────────────────────────────────────────────────────

func TestTokenFromRequest_HeaderWins(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?token=query", nil)
	req.Header.Set("Authorization", "Bearer header")
	if got := middleware.TokenFromRequest(req); got != "header" {
		t.Errorf("expected header token, got %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/?token=query", nil)
	req.Header.Set("Authorization", "Basic abc")
	if got := middleware.TokenFromRequest(req); got != "query" {
		t.Errorf("expected query token for a non-bearer header, got %q", got)
	}
}

// ─── RateLimiter ─────────────────────────────────────────────────────────────

func TestRateLimiter_BlocksAfterBurst(t *testing.T) {
	rl := middleware.NewRateLimiter(0.001, 2, quietLogger())
	h := rl.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
		req.RemoteAddr = "10.0.0.1:5000"
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		codes = append(codes, rr.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK {
		t.Fatalf("expected the burst to pass, got %v", codes)
	}
	if codes[2] != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after the burst, got %d", codes[2])
	}

	// A different client has its own bucket.
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
	req.RemoteAddr = "10.0.0.2:5000"
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Errorf("expected another client to pass, got %d", rr.Code)
	}
}

func TestRateLimiter_Cleanup(t *testing.T) {
	rl := middleware.NewRateLimiter(1, 1, quietLogger())
	h := rl.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	h.ServeHTTP(httptest.NewRecorder(), req)

	if n := rl.Cleanup(time.Hour); n != 0 {
		t.Errorf("expected no idle clients, removed %d", n)
	}
	if n := rl.Cleanup(-time.Second); n != 1 {
		t.Errorf("expected the client to be forgotten, removed %d", n)
	}
}

// ─── RequestLogger ───────────────────────────────────────────────────────────

func TestRequestLogger_LogsStatus(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, nil))
	h := middleware.RequestLogger(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/missing", nil))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if entry["level"] != "WARN" {
		t.Errorf("expected WARN for a 404, got %v", entry["level"])
	}
	if entry["path"] != "/api/missing" || entry["status"] != float64(404) {
		t.Errorf("unexpected log entry %v", entry)
	}
}
