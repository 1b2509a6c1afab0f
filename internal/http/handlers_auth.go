package http

import (
	"errors"
	"html/template"
	"net/http"
	"strings"

	"fintrack/internal/auth"
	"fintrack/internal/log"
	"fintrack/internal/prefs"
)

// Login page modes.
const (
	modeLogin    = "login"
	modeRegister = "register"
	modeForgot   = "forgot"
)

type page struct {
	Title  string
	Active string
	App    prefs.AppContext
	Notice string
	Error  string
}

type loginPage struct {
	page
	Mode       string
	Email      string
	Unverified bool
}

type resetPage struct {
	page
	Token string
}

func (s *Server) newPage(r *http.Request, title, active string) page {
	return page{Title: title, Active: active, App: prefs.FromContext(r.Context())}
}

func (s *Server) loginPage(r *http.Request, mode string) loginPage {
	switch mode {
	case modeRegister, modeForgot:
	default:
		mode = modeLogin
	}
	return loginPage{page: s.newPage(r, "Sign in", ""), Mode: mode}
}

func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	if prefs.FromContext(r.Context()).SignedIn() {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	s.render(w, r, http.StatusOK, "login.html", s.loginPage(r, r.URL.Query().Get("mode")))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if resp := parseForm(r); resp != nil {
		resp.Send(w)
		return
	}
	email := sanitizeInput(r.PostForm.Get("email"))
	sess, err := s.deps.Auth.SignIn(r.Context(), email, r.PostForm.Get("password"))
	if err != nil {
		data := s.loginPage(r, modeLogin)
		data.Email = email
		data.Error = auth.Message(err)
		data.Unverified = errors.Is(err, auth.ErrEmailNotVerified)
		s.clearSession(w)
		s.render(w, r, http.StatusUnauthorized, "login.html", data)
		return
	}
	s.setSession(w, sess)
	NewReply().Navigate(r, "/").Send(w)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if resp := parseForm(r); resp != nil {
		resp.Send(w)
		return
	}
	email := sanitizeInput(r.PostForm.Get("email"))
	_, err := s.deps.Auth.Register(r.Context(), email, r.PostForm.Get("password"), r.PostForm.Get("confirm"))
	if err != nil {
		data := s.loginPage(r, modeRegister)
		data.Email = email
		data.Error = auth.Message(err)
		s.render(w, r, http.StatusUnprocessableEntity, "login.html", data)
		return
	}
	data := s.loginPage(r, modeLogin)
	data.Email = email
	data.Notice = "Account created. Check your email for the verification link, then sign in."
	s.render(w, r, http.StatusOK, "login.html", data)
}

func (s *Server) handleForgot(w http.ResponseWriter, r *http.Request) {
	if resp := parseForm(r); resp != nil {
		resp.Send(w)
		return
	}
	email := sanitizeInput(r.PostForm.Get("email"))
	if err := s.deps.Auth.SendPasswordReset(r.Context(), email); err != nil {
		data := s.loginPage(r, modeForgot)
		data.Email = email
		data.Error = auth.Message(err)
		s.render(w, r, http.StatusUnprocessableEntity, "login.html", data)
		return
	}
	data := s.loginPage(r, modeLogin)
	data.Email = email
	data.Notice = "Password reset email sent. Follow the link to choose a new password."
	s.render(w, r, http.StatusOK, "login.html", data)
}

func (s *Server) handleResendVerification(w http.ResponseWriter, r *http.Request) {
	if resp := parseForm(r); resp != nil {
		resp.Send(w)
		return
	}
	email := sanitizeInput(r.PostForm.Get("email"))
	data := s.loginPage(r, modeLogin)
	data.Email = email
	if err := s.deps.Auth.ResendVerification(r.Context(), email); err != nil {
		data.Error = auth.Message(err)
		s.render(w, r, http.StatusUnprocessableEntity, "login.html", data)
		return
	}
	data.Notice = "Verification email sent."
	s.render(w, r, http.StatusOK, "login.html", data)
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	data := s.loginPage(r, modeLogin)
	if err := s.deps.Auth.VerifyEmail(r.Context(), r.URL.Query().Get("token")); err != nil {
		data.Error = auth.Message(err)
		s.render(w, r, http.StatusBadRequest, "login.html", data)
		return
	}
	data.Notice = "Email verified. You can sign in now."
	s.render(w, r, http.StatusOK, "login.html", data)
}

func (s *Server) handleResetPage(w http.ResponseWriter, r *http.Request) {
	data := resetPage{page: s.newPage(r, "Reset password", ""), Token: r.URL.Query().Get("token")}
	if data.Token == "" {
		data.Error = auth.Message(auth.ErrInvalidToken)
		s.render(w, r, http.StatusBadRequest, "reset.html", data)
		return
	}
	s.render(w, r, http.StatusOK, "reset.html", data)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if resp := parseForm(r); resp != nil {
		resp.Send(w)
		return
	}
	token := r.PostForm.Get("token")
	err := s.deps.Auth.ResetPassword(r.Context(), token, r.PostForm.Get("password"), r.PostForm.Get("confirm"))
	if err != nil {
		data := resetPage{page: s.newPage(r, "Reset password", ""), Token: token}
		data.Error = auth.Message(err)
		s.render(w, r, http.StatusUnprocessableEntity, "reset.html", data)
		return
	}
	data := s.loginPage(r, modeLogin)
	data.Notice = "Password updated. Sign in with your new password."
	s.render(w, r, http.StatusOK, "login.html", data)
}

// handlePasswordStrength answers the registration form's live indicator.
func (s *Server) handlePasswordStrength(w http.ResponseWriter, r *http.Request) {
	if resp := parseForm(r); resp != nil {
		resp.Send(w)
		return
	}
	strength := auth.PasswordStrength(r.PostForm.Get("password")).String()
	NewReply().
		HTML(`<span class="strength strength-` + template.HTMLEscapeString(strings.ToLower(strength)) + `">` +
			template.HTMLEscapeString(strength) + `</span>`).
		Send(w)
}

// handleLogout revokes the session and closes the live feeds opened with it.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	token := sessionToken(r)
	if err := s.deps.Auth.SignOut(r.Context(), token); err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Sign-out failed", log.FieldError, err)
	}
	if n := s.feeds.end(token); n > 0 {
		log.FromContext(r.Context()).DebugContext(r.Context(), "Closed live feeds", log.FieldCount, n)
	}
	s.clearSession(w)
	NewReply().Navigate(r, "/login").Send(w)
}

func (s *Server) handleTheme(w http.ResponseWriter, r *http.Request) {
	next := prefs.ThemeFromRequest(r).Toggle()
	prefs.SetTheme(w, next, s.cfg.CookieSecure)
	NewReply().Navigate(r, safeReturnPath(r.Referer())).Send(w)
}
