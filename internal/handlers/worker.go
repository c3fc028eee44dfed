package handlers

import (
	"net/http"

	"github.com/izzacatering/backend/internal/apperr"
	"github.com/izzacatering/backend/internal/middleware"
	"github.com/izzacatering/backend/internal/models"
)

// WorkerDashboard handles GET /api/worker/dashboard
func (s *Server) WorkerDashboard(w http.ResponseWriter, r *http.Request) {
	u := middleware.GetUser(r.Context())
	assignments, err := s.Store.Events.ListByWorker(r.Context(), u.ID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	attendance, err := s.Store.Attendance.ListByWorker(r.Context(), u.ID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	payments, err := s.Store.Payments.ListByWorker(r.Context(), u.ID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	unread := s.unreadCount(r.Context(), u.ID)

	now := s.Store.Now()
	upcoming := []models.Event{}
	for _, e := range assignments {
		if e.Status == models.EventApproved && !e.EventDate.Before(now) {
			upcoming = append(upcoming, e)
		}
	}
	var open *models.Attendance
	for i := range attendance {
		if attendance[i].IsOpen() {
			open = &attendance[i]
			break
		}
	}
	respond(w, http.StatusOK, map[string]any{
		"user":        u,
		"assignments": len(assignments),
		"upcoming":    recent(upcoming),
		"openShift":   open,
		"earnings":    models.SummarizeEarnings(attendance, payments),
		"unreadCount": unread,
	})
}

// AvailableEvents handles GET /api/worker/events/available
func (s *Server) AvailableEvents(w http.ResponseWriter, r *http.Request) {
	events, err := s.Store.Events.ListByStatus(r.Context(), models.EventApproved)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, events)
}

// MyAssignments handles GET /api/worker/assignments
func (s *Server) MyAssignments(w http.ResponseWriter, r *http.Request) {
	events, err := s.Store.Events.ListByWorker(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, events)
}

// WorkerEventDetails handles GET /api/worker/events/{id}
// Workers see approved events and any event they are assigned to.
func (s *Server) WorkerEventDetails(w http.ResponseWriter, r *http.Request) {
	uid := middleware.GetUserID(r.Context())
	e, err := s.Store.Events.Get(r.Context(), r.PathValue("id"))
	if err == nil && e.Status != models.EventApproved && !e.HasWorker(uid) {
		err = apperr.New("handlers.WorkerEventDetails", apperr.NotFound, "Event not found")
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	open, err := s.Store.Attendance.Open(r.Context(), e.ID, uid)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, map[string]any{
		"event":     e,
		"assigned":  e.HasWorker(uid),
		"openShift": open,
	})
}

// CheckIn handles POST /api/worker/events/{id}/check-in
//
// LEARNING NOTE — one statement, no race
// The store inserts the attendance row with INSERT ... SELECT ... WHERE
// NOT EXISTS an open row for the same (event, worker). Two taps on the
// check-in button arrive as two requests; exactly one inserts and the
// other gets 409 "Already checked in".
func (s *Server) CheckIn(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.CheckIn"
	u := middleware.GetUser(r.Context())

	e, err := s.Store.Events.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if !e.HasWorker(u.ID) {
		s.fail(w, r, apperr.New(op, apperr.Permission, "You are not assigned to this event"))
		return
	}
	if e.Status != models.EventApproved {
		s.fail(w, r, apperr.New(op, apperr.Invalid, "This event is not open for check-in"))
		return
	}

	a, err := s.Store.Attendance.CheckIn(r.Context(), e.ID, u.ID, u.Name, e.Title, s.ShiftEarnings)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusCreated, a)
}

// CheckOut handles POST /api/worker/attendance/{id}/check-out
// Workers may only close their own records.
func (s *Server) CheckOut(w http.ResponseWriter, r *http.Request) {
	a, err := s.Store.Attendance.Get(r.Context(), r.PathValue("id"))
	if err == nil && a.WorkerID != middleware.GetUserID(r.Context()) {
		err = apperr.New("handlers.CheckOut", apperr.NotFound, "Attendance record not found")
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	a, err = s.Store.Attendance.CheckOut(r.Context(), a.ID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, a)
}

// MyAttendance handles GET /api/worker/attendance
func (s *Server) MyAttendance(w http.ResponseWriter, r *http.Request) {
	records, err := s.Store.Attendance.ListByWorker(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, records)
}

// Earnings handles GET /api/worker/earnings
func (s *Server) Earnings(w http.ResponseWriter, r *http.Request) {
	uid := middleware.GetUserID(r.Context())
	attendance, err := s.Store.Attendance.ListByWorker(r.Context(), uid)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	payments, err := s.Store.Payments.ListByWorker(r.Context(), uid)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, map[string]any{
		"summary":  models.SummarizeEarnings(attendance, payments),
		"payments": payments,
	})
}

// PaymentDetails handles GET /api/worker/payments/{id}
func (s *Server) PaymentDetails(w http.ResponseWriter, r *http.Request) {
	p, err := s.Store.Payments.Get(r.Context(), r.PathValue("id"))
	if err == nil && p.WorkerID != middleware.GetUserID(r.Context()) {
		err = apperr.New("handlers.PaymentDetails", apperr.NotFound, "Payment not found")
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, p)
}

// UpdateWorkerDetails handles PUT /api/worker/profile/details
func (s *Server) UpdateWorkerDetails(w http.ResponseWriter, r *http.Request) {
	var wd models.WorkerDetails
	if err := decode(r, &wd); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	u, err := s.Store.Workers.UpdateDetails(r.Context(), middleware.GetUserID(r.Context()), wd)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	middleware.GetSession(r.Context()).SetUser(u)
	respond(w, http.StatusOK, u)
}
