package handlers

import (
	"net/http"

	"github.com/izzacatering/backend/internal/apperr"
	"github.com/izzacatering/backend/internal/middleware"
	"github.com/izzacatering/backend/internal/models"
	"github.com/izzacatering/backend/internal/navigation"
	"github.com/izzacatering/backend/internal/session"
)

// sessionView renders a session the way the auth screens report it.
func sessionView(sess *session.Session, withToken bool) models.SessionResponse {
	st := sess.State()
	resp := models.SessionResponse{
		User:       st.User,
		Loading:    st.Loading,
		Error:      st.Err,
		Navigation: string(sess.Navigation()),
		Screens:    screenNames(sess.Navigation().Screens()),
		Tabs:       screenNames(sess.Navigation().Tabs()),
	}
	if withToken {
		resp.Token = sess.Token()
	}
	return resp
}

func screenNames(list []navigation.Screen) []string {
	out := make([]string, len(list))
	for i, sc := range list {
		out[i] = string(sc)
	}
	return out
}

// Register handles POST /api/auth/register
//
// The client gets a fresh session, which joins the registry only once
// it is signed in.
func (s *Server) Register(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	sess := s.Sessions.New()
	if _, err := sess.Register(r.Context(), req); err != nil {
		sess.Close()
		s.fail(w, r, err)
		return
	}
	s.Sessions.Add(sess)
	respond(w, http.StatusCreated, sessionView(sess, true))
}

// Login handles POST /api/auth/login
func (s *Server) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	sess := s.Sessions.New()
	if _, err := sess.Login(r.Context(), req.Email, req.Password); err != nil {
		sess.Close()
		s.fail(w, r, err)
		return
	}
	s.Sessions.Add(sess)
	respond(w, http.StatusOK, sessionView(sess, true))
}

// Logout handles POST /api/auth/logout (authenticated)
func (s *Server) Logout(w http.ResponseWriter, r *http.Request) {
	sess := middleware.GetSession(r.Context())
	if err := s.Sessions.Logout(r.Context(), sess); err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, sessionView(sess, false))
}

// SessionState handles GET /api/session
//
// It never fails: a missing or dead token simply reports the
// unauthenticated state, with the reason in "error".
func (s *Server) SessionState(w http.ResponseWriter, r *http.Request) {
	token := middleware.TokenFromRequest(r)
	if token == "" {
		respond(w, http.StatusOK, unauthenticatedView(""))
		return
	}
	sess, err := s.Sessions.Lookup(r.Context(), token)
	if err != nil {
		respond(w, http.StatusOK, unauthenticatedView(apperr.Message(err)))
		return
	}
	respond(w, http.StatusOK, sessionView(sess, false))
}

func unauthenticatedView(msg string) models.SessionResponse {
	return models.SessionResponse{
		Navigation: string(navigation.Unauthenticated),
		Screens:    screenNames(navigation.Unauthenticated.Screens()),
		Error:      msg,
	}
}
