package handlers

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/izzacatering/backend/internal/apperr"
	"github.com/izzacatering/backend/internal/middleware"
	"github.com/izzacatering/backend/internal/models"
	"github.com/izzacatering/backend/internal/seed"
)

// AdminDashboard handles GET /api/admin/dashboard
func (s *Server) AdminDashboard(w http.ResponseWriter, r *http.Request) {
	events, err := s.Store.Events.List(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	pending, err := s.Store.Payments.ListPending(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	workers, err := s.Store.Workers.List(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}

	var owed float64
	for _, p := range pending {
		owed += p.Amount
	}
	respond(w, http.StatusOK, map[string]any{
		"counts":          models.CountByStatus(events),
		"recentEvents":    recent(events),
		"pendingPayments": len(pending),
		"pendingAmount":   owed,
		"workerCount":     len(workers),
	})
}

// SeedDemo handles POST /api/admin/seed
//
// Loads the embedded demo fixture. Safe to call repeatedly: existing
// records are left alone and the response counts only what was created.
func (s *Server) SeedDemo(w http.ResponseWriter, r *http.Request) {
	if s.Seeder == nil {
		respondError(w, http.StatusNotFound, "demo seed is disabled")
		return
	}
	f, err := seed.Demo()
	if err != nil {
		s.fail(w, r, apperr.Wrap("handlers.SeedDemo", "Failed to load demo data", err))
		return
	}
	res, err := s.Seeder.Apply(r.Context(), f)
	if err != nil {
		s.fail(w, r, apperr.Wrap("handlers.SeedDemo", "Failed to load demo data", err))
		return
	}
	respond(w, http.StatusOK, res)
}

// ListEvents handles GET /api/admin/events[?status=pending]
func (s *Server) ListEvents(w http.ResponseWriter, r *http.Request) {
	var (
		events []models.Event
		err    error
	)
	if raw := r.URL.Query().Get("status"); raw != "" {
		status := models.EventStatus(raw)
		if !status.Valid() {
			respondError(w, http.StatusBadRequest, "Invalid status")
			return
		}
		events, err = s.Store.Events.ListByStatus(r.Context(), status)
	} else {
		events, err = s.Store.Events.List(r.Context())
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, events)
}

// UpdateEvent handles PATCH /api/admin/events/{id}
func (s *Server) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	var upd models.EventUpdate
	if err := decode(r, &upd); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	e, err := s.Store.Events.Update(r.Context(), r.PathValue("id"), upd)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, e)
}

// UpdateEventStatus handles PATCH /api/admin/events/{id}/status
//
// LEARNING NOTE — compare-and-set
// The store only moves the event if its CURRENT status may precede the
// new one (pending→approved, approved→completed, ...). Two admins
// approving the same request at once cannot both win: the second UPDATE
// matches no row and gets 400 instead of overwriting.
func (s *Server) UpdateEventStatus(w http.ResponseWriter, r *http.Request) {
	var req models.StatusRequest
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if !req.Status.Valid() {
		respondError(w, http.StatusBadRequest, "Invalid status")
		return
	}

	e, err := s.Store.Events.UpdateStatus(r.Context(), r.PathValue("id"), req.Status)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	switch e.Status {
	case models.EventApproved:
		s.notify(r.Context(), e.UserID, "Event approved",
			fmt.Sprintf("Your event %q has been approved.", e.Title), models.NotifyEventApproved)
	case models.EventRejected:
		s.notify(r.Context(), e.UserID, "Event rejected",
			fmt.Sprintf("Your event %q has been rejected.", e.Title), models.NotifyEventRejected)
	}
	respond(w, http.StatusOK, e)
}

// DeleteEvent handles DELETE /api/admin/events/{id}
func (s *Server) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	if err := s.Store.Events.Delete(r.Context(), r.PathValue("id")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AdminEventDetails handles GET /api/admin/events/{id}
func (s *Server) AdminEventDetails(w http.ResponseWriter, r *http.Request) {
	e, err := s.Store.Events.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	attendance, err := s.Store.Attendance.ListByEvent(r.Context(), e.ID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, map[string]any{
		"event":      e,
		"attendance": attendance,
	})
}

// AssignableWorkers handles GET /api/admin/events/{id}/workers
// It lists every worker with a flag for those already on the event.
func (s *Server) AssignableWorkers(w http.ResponseWriter, r *http.Request) {
	e, err := s.Store.Events.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	workers, err := s.Store.Workers.List(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	type candidate struct {
		models.User
		Assigned bool `json:"assigned"`
	}
	out := make([]candidate, 0, len(workers))
	for _, wk := range workers {
		out = append(out, candidate{User: wk, Assigned: e.HasWorker(wk.ID)})
	}
	respond(w, http.StatusOK, map[string]any{"event": e, "workers": out})
}

// AssignWorkers handles PUT /api/admin/events/{id}/workers
//
// The body replaces the assigned set. Only approved events are staffed,
// and every id must belong to a worker. Each newly added worker is told.
func (s *Server) AssignWorkers(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.AssignWorkers"
	var req models.AssignWorkersRequest
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	e, err := s.Store.Events.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if e.Status != models.EventApproved {
		s.fail(w, r, apperr.New(op, apperr.Invalid, "Only approved events can be assigned workers"))
		return
	}
	for _, id := range req.WorkerIDs {
		if _, err := s.Store.Workers.Get(r.Context(), strings.TrimSpace(id)); err != nil {
			if apperr.Is(err, apperr.NotFound) {
				err = apperr.WrapKind(op, apperr.Invalid, "Unknown worker selected", err)
			}
			s.fail(w, r, err)
			return
		}
	}

	e, added, err := s.Store.Events.AssignWorkers(r.Context(), e.ID, req.WorkerIDs)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	when := e.EventDate.Format("02 Jan 2006")
	for _, id := range added {
		s.notify(r.Context(), id, "New assignment",
			fmt.Sprintf("You have been assigned to %q on %s at %s.", e.Title, when, e.Location),
			models.NotifyEventAssigned)
	}
	respond(w, http.StatusOK, map[string]any{"event": e, "added": added})
}

// Calendar handles GET /api/admin/calendar[?month=2026-10]
func (s *Server) Calendar(w http.ResponseWriter, r *http.Request) {
	events, err := s.Store.Events.List(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if raw := r.URL.Query().Get("month"); raw != "" {
		month, err := time.Parse("2006-01", raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "month must look like 2026-01")
			return
		}
		kept := events[:0]
		for _, e := range events {
			d := e.EventDate.UTC()
			if d.Year() == month.Year() && d.Month() == month.Month() {
				kept = append(kept, e)
			}
		}
		events = kept
	}
	respond(w, http.StatusOK, models.GroupByDay(events))
}

// ListWorkers handles GET /api/admin/workers
func (s *Server) ListWorkers(w http.ResponseWriter, r *http.Request) {
	workers, err := s.Store.Workers.List(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, workers)
}

// GetWorker handles GET /api/admin/workers/{id}
func (s *Server) GetWorker(w http.ResponseWriter, r *http.Request) {
	wk, err := s.Store.Workers.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, wk)
}

// WorkerAttendance handles GET /api/admin/workers/{id}/attendance
func (s *Server) WorkerAttendance(w http.ResponseWriter, r *http.Request) {
	wk, err := s.Store.Workers.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	records, err := s.Store.Attendance.ListByWorker(r.Context(), wk.ID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, records)
}

// WorkerPayments handles GET /api/admin/workers/{id}/payments
func (s *Server) WorkerPayments(w http.ResponseWriter, r *http.Request) {
	wk, err := s.Store.Workers.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	payments, err := s.Store.Payments.ListByWorker(r.Context(), wk.ID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, payments)
}

// PendingPayments handles GET /api/admin/payments
func (s *Server) PendingPayments(w http.ResponseWriter, r *http.Request) {
	payments, err := s.Store.Payments.ListPending(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, payments)
}

// CreatePayment handles POST /api/admin/payments
func (s *Server) CreatePayment(w http.ResponseWriter, r *http.Request) {
	var req models.PaymentRequest
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if strings.TrimSpace(req.WorkerID) == "" || strings.TrimSpace(req.EventID) == "" {
		respondError(w, http.StatusBadRequest, "Please fill in all fields")
		return
	}

	wk, err := s.Store.Workers.Get(r.Context(), req.WorkerID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	e, err := s.Store.Events.Get(r.Context(), req.EventID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	p, err := s.Store.Payments.Create(r.Context(), wk.ID, wk.Name, e.ID, e.Title, req.Amount)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusCreated, p)
}

// MarkPaymentPaid handles PATCH /api/admin/payments/{id}/paid
func (s *Server) MarkPaymentPaid(w http.ResponseWriter, r *http.Request) {
	p, err := s.Store.Payments.MarkPaid(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.notify(r.Context(), p.WorkerID, "Payment received",
		fmt.Sprintf("₹%.2f for %q has been paid.", p.Amount, p.EventTitle),
		models.NotifyPaymentReceived)
	respond(w, http.StatusOK, p)
}

// Broadcast handles POST /api/admin/broadcast
func (s *Server) Broadcast(w http.ResponseWriter, r *http.Request) {
	var req models.BroadcastRequest
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	req.Title = strings.TrimSpace(req.Title)
	req.Message = strings.TrimSpace(req.Message)
	if req.Title == "" || req.Message == "" {
		respondError(w, http.StatusBadRequest, "Please fill in all fields")
		return
	}
	n, err := s.Store.Notifications.Broadcast(r.Context(), req.Title, req.Message)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.Log.Info("broadcast sent", "by", middleware.GetUserID(r.Context()), "id", n.ID)
	respond(w, http.StatusCreated, n)
}
