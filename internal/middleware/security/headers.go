// Package security sets response hardening headers and turns away requests
// that look like scans.
package security

import (
	"net/http"
	"strconv"
	"strings"
)

// Policy describes the hardening headers sent with every response.
type Policy struct {
	// ContentSecurity maps a CSP directive to its sources.
	ContentSecurity map[string]string
	// HSTSMaxAge is only sent on TLS requests. Zero disables it.
	HSTSMaxAge int
	Static     http.Header
}

// cspOrder keeps the rendered policy stable.
var cspOrder = []string{
	"default-src", "script-src", "style-src", "img-src", "connect-src",
	"worker-src", "manifest-src", "object-src", "frame-ancestors", "base-uri", "form-action",
}

// DefaultPolicy allows htmx from unpkg, inline styles and the live feed
// websocket.
func DefaultPolicy() Policy {
	return Policy{
		ContentSecurity: map[string]string{
			"default-src":     "'self'",
			"script-src":      "'self' https://unpkg.com",
			"style-src":       "'self' 'unsafe-inline'",
			"img-src":         "'self' data:",
			"connect-src":     "'self' ws: wss:",
			"worker-src":      "'self'",
			"manifest-src":    "'self'",
			"object-src":      "'none'",
			"frame-ancestors": "'none'",
			"base-uri":        "'self'",
			"form-action":     "'self'",
		},
		HSTSMaxAge: 365 * 24 * 60 * 60,
		Static: http.Header{
			"X-Content-Type-Options":       {"nosniff"},
			"X-Frame-Options":              {"DENY"},
			"Referrer-Policy":              {"strict-origin-when-cross-origin"},
			"Permissions-Policy":           {"geolocation=(), microphone=(), camera=(), payment=()"},
			"Cross-Origin-Opener-Policy":   {"same-origin"},
			"Cross-Origin-Resource-Policy": {"same-origin"},
		},
	}
}

func (p Policy) csp() string {
	parts := make([]string, 0, len(p.ContentSecurity))
	for _, d := range cspOrder {
		if src, ok := p.ContentSecurity[d]; ok {
			parts = append(parts, d+" "+src)
		}
	}
	return strings.Join(parts, "; ")
}

// Headers applies p to every response.
func Headers(p Policy) func(http.Handler) http.Handler {
	fixed := p.Static.Clone()
	if fixed == nil {
		fixed = http.Header{}
	}
	if csp := p.csp(); csp != "" {
		fixed.Set("Content-Security-Policy", csp)
	}
	hsts := ""
	if p.HSTSMaxAge > 0 {
		hsts = "max-age=" + strconv.Itoa(p.HSTSMaxAge) + "; includeSubDomains"
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			for k := range fixed {
				h.Set(k, fixed.Get(k))
			}
			if r.TLS != nil && hsts != "" {
				h.Set("Strict-Transport-Security", hsts)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// CacheFor marks responses as publicly cacheable for seconds.
func CacheFor(seconds int) func(http.Handler) http.Handler {
	value := "public, max-age=" + strconv.Itoa(seconds)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Cache-Control", value)
			next.ServeHTTP(w, r)
		})
	}
}

// NoStore marks a response that must never be cached.
func NoStore(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store")
}
