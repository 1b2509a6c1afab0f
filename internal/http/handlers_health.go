package http

import (
	"context"
	"net/http"
	"time"

	"fintrack/internal/log"
	"fintrack/internal/middleware/security"
	appweb "fintrack/web"
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": s.now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	})
}

// handleReady reports 503 until the document store answers a ping.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status, code := "ready", http.StatusOK
	checks := map[string]any{
		"templates":    "ok",
		"rate_limiter": s.rateLimiter.Stats(),
		"requests":     s.tracer.Stats(),
		"suspicious":   s.securityDetector.Stats().Suspicious,
	}

	switch {
	case s.deps.Pinger == nil:
		checks["store"] = "not_checked"
	default:
		if err := s.deps.Pinger.Ping(ctx); err != nil {
			log.FromContext(ctx).WarnContext(ctx, "Readiness check failed", log.FieldError, err)
			checks["store"] = "failed: " + err.Error()
			status, code = "not_ready", http.StatusServiceUnavailable
		} else {
			checks["store"] = "ok"
		}
	}

	writeJSON(w, code, map[string]any{
		"status":    status,
		"timestamp": s.now().UTC().Format(time.RFC3339),
		"checks":    checks,
	})
}

// handleServiceWorker renders the worker script with the configured cache
// name so a new version evicts old caches on activation.
func (s *Server) handleServiceWorker(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
	w.Header().Set("Service-Worker-Allowed", "/")
	security.NoStore(w)
	data := struct {
		CacheName string
		Precache  []string
	}{
		CacheName: s.cfg.CacheVersion,
		Precache:  []string{"/", "/offline.html", "/manifest.json", "/static/icon.svg", "/static/app.css", "/static/app.js"},
	}
	if err := s.serviceWorker.Execute(w, data); err != nil {
		s.logger.ErrorContext(r.Context(), "Service worker render failed", log.FieldError, err)
	}
}

func (s *Server) handleManifest(w http.ResponseWriter, r *http.Request) {
	s.serveEmbedded(w, r, "pwa/manifest.json", "application/manifest+json")
}

func (s *Server) handleOffline(w http.ResponseWriter, r *http.Request) {
	s.serveEmbedded(w, r, "pwa/offline.html", "text/html; charset=utf-8")
}

func (s *Server) serveEmbedded(w http.ResponseWriter, r *http.Request, name, contentType string) {
	b, err := appweb.PWAFS.ReadFile(name)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Embedded asset missing", "asset", name, log.FieldError, err)
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "public, max-age=300")
	_, _ = w.Write(b)
}
