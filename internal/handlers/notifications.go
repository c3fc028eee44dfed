package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/izzacatering/backend/internal/apperr"
	"github.com/izzacatering/backend/internal/middleware"
)

const (
	streamWriteWait  = 10 * time.Second
	streamPongWait   = 60 * time.Second
	streamPingPeriod = (streamPongWait * 9) / 10
)

// ListNotifications handles GET /api/{role}/notifications
// Newest first; includes broadcasts.
func (s *Server) ListNotifications(w http.ResponseWriter, r *http.Request) {
	list, err := s.Store.Notifications.ListForUser(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, list)
}

// UnreadCount handles GET /api/{role}/notifications/unread
func (s *Server) UnreadCount(w http.ResponseWriter, r *http.Request) {
	n, err := s.Store.Notifications.UnreadCount(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, map[string]int{"count": n})
}

// MarkNotificationRead handles PATCH /api/{role}/notifications/{id}/read
// A notification addressed to someone else is reported as missing.
func (s *Server) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	n, err := s.Store.Notifications.Get(r.Context(), r.PathValue("id"))
	if err == nil && !n.VisibleTo(middleware.GetUserID(r.Context())) {
		err = apperr.New("handlers.MarkNotificationRead", apperr.NotFound, "Notification not found")
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.Store.Notifications.MarkRead(r.Context(), n.ID); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// NotificationStream handles GET /api/{role}/notifications/stream
//
// LEARNING NOTE — the realtime listener
// The client upgrades to a WebSocket and receives every new notification
// visible to it as one JSON text frame. Browsers cannot set headers on a
// WebSocket, so the token may come as ?token=.
//
// The subscription is taken BEFORE the upgrade so nothing published
// between the handshake and the first read is missed. One goroutine
// reads (to answer pings and notice the client leaving); this one
// writes. gorilla/websocket allows one concurrent reader and one
// concurrent writer.
func (s *Server) NotificationStream(w http.ResponseWriter, r *http.Request) {
	if s.Hub == nil {
		respondError(w, http.StatusServiceUnavailable, "notifications stream unavailable")
		return
	}
	uid := middleware.GetUserID(r.Context())
	ch, cancel := s.Hub.Subscribe(uid)
	defer cancel()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already answered the client.
		s.Log.Debug("stream upgrade failed", "uid", uid, "err", err)
		return
	}
	defer conn.Close()
	s.Log.Debug("stream opened", "uid", uid)

	done := make(chan struct{})
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(streamPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(streamPongWait))
	})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(streamPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			s.Log.Debug("stream closed by client", "uid", uid)
			return
		case <-s.Closing:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(streamWriteWait))
			return
		case n, ok := <-ch:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteJSON(n); err != nil {
				s.Log.Debug("stream write failed", "uid", uid, "err", err)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
