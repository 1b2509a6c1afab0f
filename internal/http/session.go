package http

import (
	"net/http"
	"strings"
	"time"

	"fintrack/internal/auth"
	"fintrack/internal/prefs"
)

const sessionCookie = "fintrack_session"

func (s *Server) setSession(w http.ResponseWriter, sess auth.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    sess.Token,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		MaxAge:   int(time.Until(sess.ExpiresAt).Seconds()),
		HttpOnly: true,
		Secure:   s.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearSession(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func sessionToken(r *http.Request) string {
	if c, err := r.Cookie(sessionCookie); err == nil {
		return c.Value
	}
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return ""
}

// resolveUser observes the session. Invalid, expired and revoked sessions
// read as signed out.
func (s *Server) resolveUser(r *http.Request) *auth.User {
	token := sessionToken(r)
	if token == "" || s.deps.Auth == nil {
		return nil
	}
	u, err := s.deps.Auth.CurrentUser(r.Context(), token)
	if err != nil {
		return nil
	}
	return &u
}

func (s *Server) appContext(next http.Handler) http.Handler {
	return prefs.Middleware(s.resolveUser)(next)
}

// requireUser sends signed-out browsers to the login page. API and
// websocket callers get 401.
func (s *Server) requireUser(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if prefs.FromContext(r.Context()).SignedIn() {
			next(w, r)
			return
		}
		if strings.HasPrefix(r.URL.Path, "/api/") || strings.HasPrefix(r.URL.Path, "/ws/") {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		NewReply().Navigate(r, "/login").Send(w)
	}
}

func currentUser(r *http.Request) auth.User {
	if u := prefs.FromContext(r.Context()).User; u != nil {
		return *u
	}
	return auth.User{}
}
