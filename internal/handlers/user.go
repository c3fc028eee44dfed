package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/izzacatering/backend/internal/apperr"
	"github.com/izzacatering/backend/internal/middleware"
	"github.com/izzacatering/backend/internal/models"
)

// recentLimit is how many events the dashboards list.
const recentLimit = 5

// notify sends a side notification. These follow a write that already
// succeeded, so a failure is logged and the request still succeeds.
func (s *Server) notify(ctx context.Context, recipientID, title, message string, typ models.NotificationType) {
	if _, err := s.Store.Notifications.Create(ctx, recipientID, title, message, typ); err != nil {
		s.Log.Warn("side notification failed", "recipient", recipientID, "type", typ, "err", err)
	}
}

// unreadCount is the dashboard badge. A failed count shows as zero
// instead of failing the whole dashboard.
func (s *Server) unreadCount(ctx context.Context, uid string) int {
	n, err := s.Store.Notifications.UnreadCount(ctx, uid)
	if err != nil {
		s.Log.Warn("unread count failed", "uid", uid, "err", err)
		return 0
	}
	return n
}

func recent(events []models.Event) []models.Event {
	if len(events) > recentLimit {
		return events[:recentLimit]
	}
	return events
}

// UserDashboard handles GET /api/user/dashboard
func (s *Server) UserDashboard(w http.ResponseWriter, r *http.Request) {
	u := middleware.GetUser(r.Context())
	events, err := s.Store.Events.ListByUser(r.Context(), u.ID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	unread := s.unreadCount(r.Context(), u.ID)
	respond(w, http.StatusOK, map[string]any{
		"user":         u,
		"counts":       models.CountByStatus(events),
		"recentEvents": recent(events),
		"unreadCount":  unread,
	})
}

// RequestEvent handles POST /api/user/events
func (s *Server) RequestEvent(w http.ResponseWriter, r *http.Request) {
	u := middleware.GetUser(r.Context())

	var form models.EventForm
	if err := decode(r, &form); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	form.Title = strings.TrimSpace(form.Title)
	form.Description = strings.TrimSpace(form.Description)
	form.Location = strings.TrimSpace(form.Location)
	if form.Title == "" || form.Description == "" || form.Location == "" || form.EventDate.IsZero() {
		respondError(w, http.StatusBadRequest, "Please fill in all fields")
		return
	}

	id, err := s.Store.Events.Create(r.Context(), u.ID, u.Name, form)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	e, err := s.Store.Events.Get(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusCreated, e)
}

// MyEvents handles GET /api/user/events
func (s *Server) MyEvents(w http.ResponseWriter, r *http.Request) {
	events, err := s.Store.Events.ListByUser(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, events)
}

// UserEventDetails handles GET /api/user/events/{id}
// Customers only see their own requests.
func (s *Server) UserEventDetails(w http.ResponseWriter, r *http.Request) {
	e, err := s.Store.Events.Get(r.Context(), r.PathValue("id"))
	if err == nil && e.UserID != middleware.GetUserID(r.Context()) {
		err = apperr.New("handlers.UserEventDetails", apperr.NotFound, "Event not found")
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, e)
}

// About handles GET /api/user/about
func (s *Server) About(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, map[string]any{
		"name":        "IZZA Catering",
		"description": "Catering for weddings, corporate events and private parties, staffed by our own trained team.",
		"services": []string{
			"Wedding receptions", "Corporate lunches and dinners",
			"Birthday parties", "Festival and community events",
		},
		"contact": map[string]string{
			"email": "hello@izzacatering.in",
			"phone": "+91 98765 43210",
		},
	})
}

// GetProfile handles GET /api/{user,worker}/profile
func (s *Server) GetProfile(w http.ResponseWriter, r *http.Request) {
	u, err := s.Store.Users.Get(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, u)
}

// UpdateProfile handles PATCH /api/{user,worker}/profile
func (s *Server) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var upd models.ProfileUpdate
	if err := decode(r, &upd); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	u, err := s.Store.Users.UpdateProfile(r.Context(), middleware.GetUserID(r.Context()), upd)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	middleware.GetSession(r.Context()).SetUser(u)
	respond(w, http.StatusOK, u)
}
