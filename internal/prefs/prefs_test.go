package prefs

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"fintrack/internal/auth"
)

func TestParseThemeFallsBackToLight(t *testing.T) {
	assert.Equal(t, Dark, ParseTheme("dark"))
	assert.Equal(t, Light, ParseTheme("light"))
	assert.Equal(t, Light, ParseTheme("solarized"))
	assert.Equal(t, Light, Dark.Toggle())
	assert.Equal(t, Dark, Light.Toggle())
}

func TestThemeCookieRoundTrip(t *testing.T) {
	rec := httptest.NewRecorder()
	SetTheme(rec, Dark, false)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range rec.Result().Cookies() {
		req.AddCookie(c)
	}
	assert.Equal(t, Dark, ThemeFromRequest(req))
	assert.Equal(t, Light, ThemeFromRequest(httptest.NewRequest(http.MethodGet, "/", nil)))
}

func TestMiddlewareBuildsAppContext(t *testing.T) {
	user := &auth.User{ID: "u1", Email: "a@example.com"}
	var got AppContext
	h := Middleware(func(*http.Request) *auth.User { return user })(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { got = FromContext(r.Context()) }))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: ThemeCookie, Value: "dark"})
	h.ServeHTTP(httptest.NewRecorder(), req)

	assert.True(t, got.SignedIn())
	assert.Equal(t, "u1", got.User.ID)
	assert.Equal(t, Dark, got.Theme)
}

func TestFromContextDefault(t *testing.T) {
	app := FromContext(httptest.NewRequest(http.MethodGet, "/", nil).Context())
	assert.False(t, app.SignedIn())
	assert.Equal(t, Light, app.Theme)
}
