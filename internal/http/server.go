package http

import (
	"context"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"sync"
	texttemplate "text/template"
	"time"

	"github.com/gorilla/websocket"

	"fintrack/internal/auth"
	"fintrack/internal/core"
	"fintrack/internal/livesync"
	"fintrack/internal/log"
	"fintrack/internal/middleware/ratelimit"
	"fintrack/internal/middleware/security"
	"fintrack/internal/middleware/trace"
	"fintrack/internal/services"
	"fintrack/internal/store"
	appweb "fintrack/web"
)

// Pages rendered inside the shared layout.
var pages = []string{
	"login.html", "reset.html", "dashboard.html", "history.html",
	"reports.html", "add.html", "calculator.html",
}

type Config struct {
	Addr            string
	BaseURL         string
	CookieSecure    bool
	CurrencySymbol  string
	CacheVersion    string
	RateLimitPerMin int
	SessionTTL      time.Duration
}

// Deps are the collaborators the handlers call. Pinger may be nil.
type Deps struct {
	Store        store.Querier
	Pinger       store.Pinger
	Auth         *auth.Service
	Hub          *livesync.Hub
	Transactions *services.TransactionService
	RateCounter  ratelimit.Counter
	Logger       *log.Logger
}

type Server struct {
	http.Server
	cfg    Config
	deps   Deps
	logger *log.Logger

	templates     map[string]*template.Template
	serviceWorker *texttemplate.Template
	upgrader      websocket.Upgrader
	feeds         *liveFeeds
	wsPing        time.Duration

	rateLimiter      *ratelimit.Limiter
	securityDetector *security.Detector
	tracer           *trace.Tracer

	now          func() time.Time
	started      time.Time
	shutdownOnce sync.Once
}

// NewServer parses the embedded templates and wires every route.
func NewServer(cfg Config, deps Deps) (*Server, error) {
	if deps.Logger == nil {
		deps.Logger = log.New(log.DefaultConfig())
	}
	if cfg.CurrencySymbol == "" {
		cfg.CurrencySymbol = "₹"
	}
	if cfg.CacheVersion == "" {
		cfg.CacheVersion = "fintrack-cache-v3"
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 7 * 24 * time.Hour
	}
	logger := deps.Logger.WithComponent(log.ComponentHTTP)

	s := &Server{
		cfg:              cfg,
		deps:             deps,
		logger:           logger,
		rateLimiter:      ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: cfg.RateLimitPerMin, Counter: deps.RateCounter}, deps.Logger),
		securityDetector: security.NewDetector(deps.Logger),
		now:              time.Now,
		started:          time.Now(),
		feeds:            newLiveFeeds(),
		wsPing:           wsPingPeriod,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}
	s.tracer = trace.NewTracer(s.securityDetector.ExtractClientIP, deps.Logger)

	if err := s.parseTemplates(); err != nil {
		s.rateLimiter.Stop()
		return nil, err
	}

	s.Server = http.Server{
		Addr:              cfg.Addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s, nil
}

func (s *Server) parseTemplates() error {
	funcs := templateFuncs(s.cfg.CurrencySymbol)
	s.templates = make(map[string]*template.Template, len(pages))
	for _, page := range pages {
		t, err := template.New(page).Funcs(funcs).ParseFS(appweb.TemplatesFS,
			"templates/layout.html", "templates/partials.html", "templates/"+page)
		if err != nil {
			return fmt.Errorf("parse template %s: %w", page, err)
		}
		s.templates[page] = t
	}

	sw, err := texttemplate.ParseFS(appweb.PWAFS, "pwa/service-worker.js.tmpl")
	if err != nil {
		return fmt.Errorf("parse service worker: %w", err)
	}
	s.serviceWorker = sw
	return nil
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("GET /static/", security.CacheFor(3600)(static))
	} else {
		s.logger.Warn("Failed to mount embedded static FS", log.FieldError, err)
	}

	// Offline shell and probes
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /service-worker.js", s.handleServiceWorker)
	mux.HandleFunc("GET /manifest.json", s.handleManifest)
	mux.HandleFunc("GET /offline.html", s.handleOffline)

	// Identity
	mux.HandleFunc("GET /login", s.handleLoginPage)
	mux.HandleFunc("POST /login", s.handleLogin)
	mux.HandleFunc("POST /register", s.handleRegister)
	mux.HandleFunc("POST /forgot", s.handleForgot)
	mux.HandleFunc("POST /verify/resend", s.handleResendVerification)
	mux.HandleFunc("GET /verify", s.handleVerify)
	mux.HandleFunc("GET /reset", s.handleResetPage)
	mux.HandleFunc("POST /reset", s.handleReset)
	mux.HandleFunc("POST /password-strength", s.handlePasswordStrength)
	mux.HandleFunc("POST /logout", s.requireUser(s.handleLogout))
	mux.HandleFunc("POST /theme", s.handleTheme)

	// Signed-in pages
	mux.HandleFunc("GET /{$}", s.requireUser(s.handleDashboard))
	mux.HandleFunc("GET /history", s.requireUser(s.handleHistory))
	mux.HandleFunc("GET /reports", s.requireUser(s.handleReports))
	mux.HandleFunc("GET /reports/pdf", s.requireUser(s.handleReportPDF))
	mux.HandleFunc("GET /add", s.requireUser(s.handleAddPage))
	mux.HandleFunc("POST /transactions", s.requireUser(s.handleCreateTransaction))
	mux.HandleFunc("GET /calculator", s.requireUser(s.handleCalculatorPage))
	mux.HandleFunc("POST /calculator", s.requireUser(s.handleCalculate))

	// Data feeds
	mux.HandleFunc("GET /api/transactions", s.requireUser(s.handleAPITransactions))
	mux.HandleFunc("GET /ws/transactions", s.requireUser(s.handleLiveFeed))

	var h http.Handler = mux
	h = s.appContext(h)
	h = s.limitWrites(h)
	h = s.tracer.Wrap(h)
	h = security.Headers(security.DefaultPolicy())(h)
	h = s.securityDetector.Middleware(h)
	return h
}

// limitWrites rate limits state-changing requests per client IP.
func (s *Server) limitWrites(next http.Handler) http.Handler {
	limited := s.rateLimiter.Middleware(s.securityDetector.ExtractClientIP)(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			limited.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Shutdown stops the rate limiter and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}

// records loads the user's collection. Documents that fail to map are
// logged and skipped.
func (s *Server) records(ctx context.Context, userID string) ([]core.Transaction, error) {
	docs, err := s.deps.Store.Query(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	records, bad := livesync.ToTransactions(docs)
	for _, e := range bad {
		log.FromContext(ctx).WarnContext(ctx, "Skipping unreadable transaction", log.FieldError, e)
	}
	return records, nil
}

// render executes page inside the layout.
func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, page string, data any) {
	t, ok := s.templates[page]
	if !ok {
		s.logger.ErrorContext(r.Context(), "Unknown template", "template", page)
		http.Error(w, "template not found", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := t.ExecuteTemplate(w, "layout", data); err != nil {
		s.logger.ErrorContext(r.Context(), "Template execution failed", "template", page, log.FieldError, err)
	}
}

// renderFragment executes a named partial without the layout.
func (s *Server) renderFragment(w http.ResponseWriter, r *http.Request, status int, page, name string, data any) {
	t, ok := s.templates[page]
	if !ok {
		http.Error(w, "template not found", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := t.ExecuteTemplate(w, name, data); err != nil {
		s.logger.ErrorContext(r.Context(), "Fragment execution failed", "template", name, log.FieldError, err)
	}
}
