// Package handlers contains the HTTP handler logic for the IZZA API.
//
// ────────────────────────────────────────────────────────────────────
// LEARNING NOTE — package structure
// ────────────────────────────────────────────────────────────────────
// All handler files share the same "handlers" package so they can call
// each other's helpers freely without exporting them. The files are
// split by role (auth, user, admin, worker, notifications) purely for
// readability.
//
// The central type is Server. It holds what every handler needs: the
// store, the session registry and the notification hub. Putting shared
// dependencies on a struct (instead of global variables) makes the code
// easier to test — each test creates its own Server with its own
// in-memory database and no test pollutes another.
//
// Every route is a SCREEN. Routes registers each handler under exactly
// one navigation screen, and middleware.RequireScreen checks that the
// caller's session can reach it. A worker token therefore never reaches
// an admin handler, whatever URL it asks for.
package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/izzacatering/backend/internal/apperr"
	"github.com/izzacatering/backend/internal/metrics"
	"github.com/izzacatering/backend/internal/middleware"
	"github.com/izzacatering/backend/internal/navigation"
	"github.com/izzacatering/backend/internal/notify"
	"github.com/izzacatering/backend/internal/seed"
	"github.com/izzacatering/backend/internal/session"
	"github.com/izzacatering/backend/internal/store"
)

// respond writes v as JSON with the given HTTP status code.
// Setting Content-Type before WriteHeader is important — once
// WriteHeader is called the headers are flushed and cannot be changed.
func respond(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Ignoring the encode error: if the client disconnected mid-write
	// there is nothing useful we can do, and logging every dropped
	// connection would be very noisy.
	_ = json.NewEncoder(w).Encode(body)
}

// respondError is a convenience wrapper that sends a JSON object with
// a single "error" key, e.g. {"error": "Failed to fetch events"}.
func respondError(w http.ResponseWriter, status int, msg string) {
	respond(w, status, map[string]string{"error": msg})
}

// decode reads and parses a JSON request body into v.
func decode(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

// fail answers with the status and fixed message carried by err. The
// cause never reaches the client; it is logged here instead.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	status := kind.HTTPStatus()
	if status >= http.StatusInternalServerError {
		s.Log.Error("request failed", "route", r.Pattern, "kind", kind.String(), "err", err)
	} else {
		s.Log.Debug("request rejected", "route", r.Pattern, "kind", kind.String(), "err", err)
	}
	if apperr.Retryable(err) {
		w.Header().Set("Retry-After", "5")
	}
	respondError(w, status, apperr.Message(err))
}

// Server holds shared dependencies for all handlers.
type Server struct {
	Store *store.Store
	// Sessions maps identity tokens to live sessions; login and register
	// add to it and every authenticated route looks the caller up in it.
	Sessions *session.Registry
	// Hub delivers notifications to open streams.
	Hub *notify.Hub
	// Seeder backs the admin demo-seed route. Nil disables the route.
	Seeder *seed.Seeder
	// Limiter guards login and register. Nil disables limiting.
	Limiter *middleware.RateLimiter
	Log     *slog.Logger
	// ShiftEarnings is credited to every check-in.
	ShiftEarnings float64
	// CORSOrigin is passed to middleware.CORS.
	CORSOrigin string
	// Closing is closed on shutdown to end open notification streams,
	// which http.Server.Shutdown does not track once hijacked.
	Closing <-chan struct{}

	upgrader websocket.Upgrader
}

// Routes registers every screen on a new ServeMux and wraps it with the
// request-wide middleware.
//
// Go 1.22+ ServeMux supports method prefixes ("GET /path") and path
// wildcards ("{id}") natively — no third-party router needed.
func (s *Server) Routes() http.Handler {
	if s.Log == nil {
		s.Log = slog.Default()
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		// Origins are governed by CORSOrigin, as for every other route.
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	mux := http.NewServeMux()
	authed := middleware.Authenticate(s.Sessions)

	// screen chains the middleware for one route:
	//   1. Authenticate   → attaches the caller's session
	//   2. RequireScreen  → allows or rejects based on navigation state
	//   3. handler        → does the actual work
	screen := func(pattern string, sc navigation.Screen, h http.HandlerFunc) {
		mux.Handle(pattern, authed(middleware.RequireScreen(sc)(h)))
	}
	limited := func(h http.HandlerFunc) http.Handler {
		if s.Limiter == nil {
			return h
		}
		return s.Limiter.Handler(h)
	}

	// ── Public ───────────────────────────────────────────────────────
	mux.Handle("POST /api/auth/register", limited(s.Register))
	mux.Handle("POST /api/auth/login", limited(s.Login))
	mux.HandleFunc("GET /api/session", s.SessionState)
	mux.Handle("POST /api/auth/logout", authed(http.HandlerFunc(s.Logout)))
	mux.HandleFunc("GET /healthz", s.Health)
	mux.Handle("GET /metrics", metrics.Handler())

	// ── User ─────────────────────────────────────────────────────────
	screen("GET /api/user/dashboard", navigation.UserDashboard, s.UserDashboard)
	screen("POST /api/user/events", navigation.UserEventRequest, s.RequestEvent)
	screen("GET /api/user/events", navigation.UserMyEvents, s.MyEvents)
	screen("GET /api/user/events/{id}", navigation.UserEventDetails, s.UserEventDetails)
	screen("GET /api/user/about", navigation.UserAbout, s.About)
	screen("GET /api/user/profile", navigation.UserProfile, s.GetProfile)
	screen("PATCH /api/user/profile", navigation.UserProfile, s.UpdateProfile)
	s.notificationScreens(screen, "/api/user", navigation.UserNotifications)

	// ── Admin ────────────────────────────────────────────────────────
	screen("GET /api/admin/dashboard", navigation.AdminDashboard, s.AdminDashboard)
	screen("POST /api/admin/seed", navigation.AdminDashboard, s.SeedDemo)
	screen("GET /api/admin/events", navigation.AdminEventManagement, s.ListEvents)
	screen("PATCH /api/admin/events/{id}", navigation.AdminEventManagement, s.UpdateEvent)
	screen("PATCH /api/admin/events/{id}/status", navigation.AdminEventManagement, s.UpdateEventStatus)
	screen("DELETE /api/admin/events/{id}", navigation.AdminEventManagement, s.DeleteEvent)
	screen("GET /api/admin/events/{id}", navigation.AdminEventDetails, s.AdminEventDetails)
	screen("GET /api/admin/events/{id}/workers", navigation.AdminAssignWorkers, s.AssignableWorkers)
	screen("PUT /api/admin/events/{id}/workers", navigation.AdminAssignWorkers, s.AssignWorkers)
	screen("GET /api/admin/calendar", navigation.AdminCalendar, s.Calendar)
	screen("GET /api/admin/workers", navigation.AdminWorkerManagement, s.ListWorkers)
	screen("GET /api/admin/workers/{id}", navigation.AdminWorkerManagement, s.GetWorker)
	screen("GET /api/admin/workers/{id}/attendance", navigation.AdminWorkerManagement, s.WorkerAttendance)
	screen("GET /api/admin/workers/{id}/payments", navigation.AdminWorkerManagement, s.WorkerPayments)
	screen("GET /api/admin/payments", navigation.AdminPaymentTracking, s.PendingPayments)
	screen("POST /api/admin/payments", navigation.AdminPaymentTracking, s.CreatePayment)
	screen("PATCH /api/admin/payments/{id}/paid", navigation.AdminPaymentTracking, s.MarkPaymentPaid)
	screen("POST /api/admin/broadcast", navigation.AdminBroadcast, s.Broadcast)
	s.notificationScreens(screen, "/api/admin", navigation.AdminNotifications)

	// ── Worker ───────────────────────────────────────────────────────
	screen("GET /api/worker/dashboard", navigation.WorkerDashboard, s.WorkerDashboard)
	screen("GET /api/worker/events/available", navigation.WorkerAvailableEvents, s.AvailableEvents)
	screen("GET /api/worker/assignments", navigation.WorkerMyAssignments, s.MyAssignments)
	screen("GET /api/worker/events/{id}", navigation.WorkerEventDetails, s.WorkerEventDetails)
	screen("POST /api/worker/events/{id}/check-in", navigation.WorkerCheckIn, s.CheckIn)
	screen("POST /api/worker/attendance/{id}/check-out", navigation.WorkerCheckIn, s.CheckOut)
	screen("GET /api/worker/attendance", navigation.WorkerAttendance, s.MyAttendance)
	screen("GET /api/worker/earnings", navigation.WorkerEarnings, s.Earnings)
	screen("GET /api/worker/payments/{id}", navigation.WorkerEarnings, s.PaymentDetails)
	screen("GET /api/worker/profile", navigation.WorkerProfile, s.GetProfile)
	screen("PATCH /api/worker/profile", navigation.WorkerProfile, s.UpdateProfile)
	screen("PUT /api/worker/profile/details", navigation.WorkerProfile, s.UpdateWorkerDetails)
	s.notificationScreens(screen, "/api/worker", navigation.WorkerNotifications)

	// Request-wide layers, outermost first: metrics, request log, CORS.
	return metrics.InstrumentHandler(
		middleware.RequestLogger(s.Log)(
			middleware.CORS(s.CORSOrigin)(mux)))
}

// notificationScreens registers the notification screen of one role.
func (s *Server) notificationScreens(screen func(string, navigation.Screen, http.HandlerFunc), prefix string, sc navigation.Screen) {
	screen("GET "+prefix+"/notifications", sc, s.ListNotifications)
	screen("GET "+prefix+"/notifications/unread", sc, s.UnreadCount)
	screen("PATCH "+prefix+"/notifications/{id}/read", sc, s.MarkNotificationRead)
	screen("GET "+prefix+"/notifications/stream", sc, s.NotificationStream)
}

// Health handles GET /healthz.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	if err := s.Store.DB().PingContext(r.Context()); err != nil {
		respondError(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	respond(w, http.StatusOK, map[string]string{"status": "ok"})
}
