// Package prefs carries per-request application context: the signed-in
// user and the theme preference kept in a cookie.
package prefs

import (
	"context"
	"net/http"
	"time"

	"fintrack/internal/auth"
)

type Theme string

const (
	Dark  Theme = "dark"
	Light Theme = "light"

	ThemeCookie = "theme"
)

// ParseTheme falls back to Light for anything unknown.
func ParseTheme(s string) Theme {
	if Theme(s) == Dark {
		return Dark
	}
	return Light
}

func (t Theme) Toggle() Theme {
	if t == Dark {
		return Light
	}
	return Dark
}

func (t Theme) String() string { return string(t) }

// ThemeFromRequest reads the persisted theme.
func ThemeFromRequest(r *http.Request) Theme {
	c, err := r.Cookie(ThemeCookie)
	if err != nil {
		return Light
	}
	return ParseTheme(c.Value)
}

// SetTheme persists t for a year.
func SetTheme(w http.ResponseWriter, t Theme, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     ThemeCookie,
		Value:    t.String(),
		Path:     "/",
		Expires:  time.Now().AddDate(1, 0, 0),
		MaxAge:   365 * 24 * 60 * 60,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// AppContext is the state every page needs. User is nil when signed out.
type AppContext struct {
	User  *auth.User
	Theme Theme
}

func (a AppContext) SignedIn() bool { return a.User != nil }

type contextKey struct{}

func NewContext(ctx context.Context, app AppContext) context.Context {
	return context.WithValue(ctx, contextKey{}, app)
}

// FromContext returns the request's AppContext, or a signed-out light one.
func FromContext(ctx context.Context) AppContext {
	if app, ok := ctx.Value(contextKey{}).(AppContext); ok {
		return app
	}
	return AppContext{Theme: Light}
}

// Middleware builds the AppContext once per request. resolve returns the
// signed-in user or nil.
func Middleware(resolve func(*http.Request) *auth.User) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			app := AppContext{Theme: ThemeFromRequest(r)}
			if resolve != nil {
				app.User = resolve(r)
			}
			next.ServeHTTP(w, r.WithContext(NewContext(r.Context(), app)))
		})
	}
}
