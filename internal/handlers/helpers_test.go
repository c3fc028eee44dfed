package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/izzacatering/backend/internal/auth"
	"github.com/izzacatering/backend/internal/db"
	"github.com/izzacatering/backend/internal/logging"
	"github.com/izzacatering/backend/internal/models"
	"github.com/izzacatering/backend/internal/notify"
	"github.com/izzacatering/backend/internal/seed"
	"github.com/izzacatering/backend/internal/session"
	"github.com/izzacatering/backend/internal/store"
)

const testSecret = "handler-test-secret"

var testDBCounter uint64

// testEnv is a fully wired Server plus the pieces tests poke at directly.
type testEnv struct {
	srv   *Server
	h     http.Handler
	store *store.Store
	hub   *notify.Hub
}

// newTestServer creates a Server backed by a unique in-memory SQLite database.
func newTestServer(t *testing.T) *testEnv {
	t.Helper()
	// Each test gets its own named shared-cache memory DB so connections
	// in the pool all see the same tables without interfering across tests.
	id := atomic.AddUint64(&testDBCounter, 1)
	testDB, err := db.Open(fmt.Sprintf("file:handlerdb%d?mode=memory&cache=shared", id))
	if err != nil {
		t.Fatalf("newTestServer: open db: %v", err)
	}
	testDB.SetMaxOpenConns(1)
	t.Cleanup(func() { testDB.Close() })

	log := logging.Discard()
	p := auth.NewProvider(testDB, testSecret, time.Hour, log)
	p.Cost = bcrypt.MinCost
	hub := notify.NewHub(notify.DefaultBuffer)
	st := store.New(testDB, log, hub)
	reg := session.NewRegistry(p, st.Users, log)
	t.Cleanup(reg.Close)

	srv := &Server{
		Store:         st,
		Sessions:      reg,
		Hub:           hub,
		Seeder:        seed.New(p, st, 500, log),
		Log:           log,
		ShiftEarnings: 500,
	}
	return &testEnv{srv: srv, h: srv.Routes(), store: st, hub: hub}
}

// jsonBody encodes v to JSON and returns a bytes.Buffer.
func jsonBody(t *testing.T, v any) *bytes.Buffer {
	t.Helper()
	buf := &bytes.Buffer{}
	if v == nil {
		return buf
	}
	if err := json.NewEncoder(buf).Encode(v); err != nil {
		t.Fatalf("jsonBody: %v", err)
	}
	return buf
}

// do sends one request through the full router, middleware included.
func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, jsonBody(t, body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.h.ServeHTTP(rec, req)
	return rec
}

func decodeInto(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("decode response (%d): %v", rec.Code, err)
	}
}

func errorOf(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	decodeInto(t, rec, &body)
	return body["error"]
}

func registration(email string, role models.UserRole) models.RegisterRequest {
	return models.RegisterRequest{
		Email: email, Password: "secret1", ConfirmPassword: "secret1",
		Name: "Name of " + email, Phone: "9876543210", Role: role,
	}
}

// register signs up a new account and returns its token and user.
func (e *testEnv) register(t *testing.T, email string, role models.UserRole) (string, models.User) {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/auth/register", "", registration(email, role))
	if rec.Code != http.StatusCreated {
		t.Fatalf("register %s: %d %s", email, rec.Code, rec.Body.String())
	}
	var resp models.SessionResponse
	decodeInto(t, rec, &resp)
	return resp.Token, *resp.User
}

// admin provisions the admin account the way start-up does and signs in.
func (e *testEnv) admin(t *testing.T) string {
	t.Helper()
	_, err := e.srv.Seeder.Bootstrap(context.Background(),
		seed.Admin{Email: "admin@izza.test", Password: "admin123", Name: "Admin"})
	if err != nil {
		t.Fatalf("bootstrap admin: %v", err)
	}
	rec := e.do(t, http.MethodPost, "/api/auth/login", "",
		models.LoginRequest{Email: "admin@izza.test", Password: "admin123"})
	if rec.Code != http.StatusOK {
		t.Fatalf("admin login: %d %s", rec.Code, rec.Body.String())
	}
	var resp models.SessionResponse
	decodeInto(t, rec, &resp)
	return resp.Token
}

// requestEvent creates an event as the customer behind token.
func (e *testEnv) requestEvent(t *testing.T, token, title string, date time.Time) models.Event {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/user/events", token, models.EventForm{
		Title: title, Description: "Dinner for 50", EventDate: date, Location: "Hall A",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("request event: %d %s", rec.Code, rec.Body.String())
	}
	var ev models.Event
	decodeInto(t, rec, &ev)
	return ev
}

// approvedEventWith creates an approved event staffed by workerIDs.
func (e *testEnv) approvedEventWith(t *testing.T, adminToken, userToken string, workerIDs ...string) models.Event {
	t.Helper()
	ev := e.requestEvent(t, userToken, "Staffed Event", time.Now().Add(48*time.Hour))
	rec := e.do(t, http.MethodPatch, "/api/admin/events/"+ev.ID+"/status", adminToken,
		models.StatusRequest{Status: models.EventApproved})
	if rec.Code != http.StatusOK {
		t.Fatalf("approve: %d %s", rec.Code, rec.Body.String())
	}
	rec = e.do(t, http.MethodPut, "/api/admin/events/"+ev.ID+"/workers", adminToken,
		models.AssignWorkersRequest{WorkerIDs: workerIDs})
	if rec.Code != http.StatusOK {
		t.Fatalf("assign: %d %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Event models.Event `json:"event"`
	}
	decodeInto(t, rec, &resp)
	return resp.Event
}
