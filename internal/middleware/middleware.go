// Package middleware provides HTTP middleware for the IZZA server.
//
// ────────────────────────────────────────────────────────────────────
// LEARNING NOTE — what is middleware?
// ────────────────────────────────────────────────────────────────────
// In HTTP servers, "middleware" is a function that wraps a handler to
// add behaviour before and/or after it runs. The pattern in Go is:
//
//   func MyMiddleware(next http.Handler) http.Handler {
//       return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
//           // do something before
//           next.ServeHTTP(w, r)  // call the real handler
//           // do something after
//       })
//   }
//
// Middleware can be chained: CORS(Authenticate(handler)) means CORS
// runs first, then Authenticate, then the handler.
//
// Authorisation here is by SCREEN, not by role: Authenticate attaches the
// caller's session, and RequireScreen asks the session's navigation state
// whether the screen behind the route is reachable. A role gets exactly
// the screens its navigation state owns.
package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/izzacatering/backend/internal/apperr"
	"github.com/izzacatering/backend/internal/models"
	"github.com/izzacatering/backend/internal/navigation"
	"github.com/izzacatering/backend/internal/session"
)

// Sessions resolves an identity token to its live session.
type Sessions interface {
	Lookup(ctx context.Context, token string) (*session.Session, error)
}

// TokenFromRequest reads the identity token from the
// "Authorization: Bearer <token>" header, or from the "token" query
// parameter for clients (browser WebSockets) that cannot set headers.
func TokenFromRequest(r *http.Request) string {
	if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}

// Authenticate is a middleware factory — it returns a middleware function
// configured with the session registry.
//
// Flow:
//  1. Read the token (header or query parameter).
//  2. Look up (or resume) the session behind it.
//  3. Store the session in the request context.
//  4. Call the next handler.
//
// If the token is missing, invalid or revoked, it responds with 401 and stops.
func Authenticate(sessions Sessions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := TokenFromRequest(r)
			if token == "" {
				writeError(w, http.StatusUnauthorized, "missing or invalid Authorization header")
				return
			}
			s, err := sessions.Lookup(r.Context(), token)
			if err != nil {
				writeError(w, http.StatusUnauthorized, apperr.Message(err))
				return
			}
			next.ServeHTTP(w, r.WithContext(session.WithSession(r.Context(), s)))
		})
	}
}

// RequireScreen returns a middleware that only lets a request through
// when its session's navigation state allows screen. Must be used after
// Authenticate.
func RequireScreen(screen navigation.Screen) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s, ok := session.FromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "Please sign in")
				return
			}
			if !s.Navigation().Allows(screen) {
				msg := "forbidden"
				if owner, ok := navigation.Owner(screen); ok && owner.IsRole() {
					msg = "This screen is only available to " + string(owner) + " accounts"
				}
				writeError(w, http.StatusForbidden, msg)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// CORS returns a middleware adding CORS headers for origin ("*" allows
// any origin) so the mobile/web client can call the API.
//
// LEARNING NOTE — what is CORS?
// Browsers enforce the Same-Origin Policy: a page at origin A cannot
// fetch from origin B unless B explicitly allows it via CORS headers.
// The OPTIONS preflight is a browser pre-check; we must reply 204 so
// the real request is allowed to proceed.
func CORS(origin string) func(http.Handler) http.Handler {
	if origin == "" {
		origin = "*"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if origin != "*" {
				w.Header().Add("Vary", "Origin")
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GetSession retrieves the request's session. It returns nil if
// Authenticate has not run.
func GetSession(ctx context.Context) *session.Session {
	s, _ := session.FromContext(ctx)
	return s
}

// GetUser retrieves the signed-in user of the request's session, or nil.
func GetUser(ctx context.Context) *models.User {
	if s := GetSession(ctx); s != nil {
		return s.User()
	}
	return nil
}

// GetUserID retrieves the signed-in user's id, or "".
func GetUserID(ctx context.Context) string {
	if u := GetUser(ctx); u != nil {
		return u.ID
	}
	return ""
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg}) //nolint:errcheck
}
