package security

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"fintrack/internal/log"
)

func TestExtractClientIP(t *testing.T) {
	d := NewDetector(log.Discard())
	tests := []struct {
		name   string
		remote string
		xff    string
		xri    string
		want   string
	}{
		{"direct public peer ignores headers", "203.0.113.7:5555", "1.2.3.4", "", "203.0.113.7"},
		{"trusted proxy uses first forwarded", "10.0.0.2:80", "198.51.100.1, 10.0.0.2", "", "198.51.100.1"},
		{"trusted proxy falls back to real ip", "127.0.0.1:80", "garbage", "198.51.100.9", "198.51.100.9"},
		{"trusted proxy without headers", "192.168.1.1:80", "", "", "192.168.1.1"},
		{"ipv6 loopback proxy", "[::1]:80", "2001:db8::5", "", "2001:db8::5"},
		{"unparseable remote", "not-an-addr", "", "", "not-an-addr"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remote
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xri != "" {
				r.Header.Set("X-Real-IP", tt.xri)
			}
			if got := d.ExtractClientIP(r); got != tt.want {
				t.Errorf("ExtractClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestInspect(t *testing.T) {
	d := NewDetector(log.Discard())
	tests := []struct {
		method string
		target string
		agent  string
		want   string
	}{
		{http.MethodGet, "/history?type=expense&search=coffee", "Mozilla/5.0", ""},
		{http.MethodPost, "/transactions", "Mozilla/5.0", ""},
		{http.MethodGet, "/.env", "Mozilla/5.0", "path or query probe"},
		{http.MethodGet, "/history?search=../../etc/passwd", "", "path or query probe"},
		{http.MethodGet, "/", "sqlmap/1.7", "scanner user agent"},
		{"TRACE", "/", "", "unusual method"},
		{http.MethodGet, "/history?search=" + strings.Repeat("a", 2100), "", "oversized url"},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(tt.method, tt.target, nil)
		r.Header.Set("User-Agent", tt.agent)
		if got := d.Inspect(r); got != tt.want {
			t.Errorf("%s %.40s: Inspect() = %q, want %q", tt.method, tt.target, got, tt.want)
		}
	}
}

func TestDetectorMiddleware(t *testing.T) {
	d := NewDetector(log.Discard())
	h := d.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for target, want := range map[string]int{
		"/reports?type=income": http.StatusOK,
		"/wp-login.php":        http.StatusBadRequest,
		"/.git/config":         http.StatusBadRequest,
	} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
		if rec.Code != want {
			t.Errorf("%s: status = %d, want %d", target, rec.Code, want)
		}
	}
	if got := d.Stats().Suspicious; got != 2 {
		t.Errorf("Suspicious = %d, want 2", got)
	}
}

func TestHeaders(t *testing.T) {
	h := Headers(DefaultPolicy())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Header().Get("X-Frame-Options") != "DENY" {
		t.Error("missing X-Frame-Options")
	}
	csp := rec.Header().Get("Content-Security-Policy")
	if !strings.HasPrefix(csp, "default-src 'self'; script-src 'self' https://unpkg.com") {
		t.Errorf("CSP = %q", csp)
	}
	if !strings.Contains(csp, "connect-src 'self' ws: wss:") {
		t.Errorf("CSP lacks websocket source: %q", csp)
	}
	if rec.Header().Get("Strict-Transport-Security") != "" {
		t.Error("HSTS must not be sent over plain HTTP")
	}

	tlsReq := httptest.NewRequest(http.MethodGet, "/", nil)
	tlsReq.TLS = &tls.ConnectionState{}
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, tlsReq)
	if rec.Header().Get("Strict-Transport-Security") != "max-age=31536000; includeSubDomains" {
		t.Errorf("HSTS = %q", rec.Header().Get("Strict-Transport-Security"))
	}
}

func TestCacheFor(t *testing.T) {
	rec := httptest.NewRecorder()
	CacheFor(3600)(http.NotFoundHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/static/app.css", nil))
	if got := rec.Header().Get("Cache-Control"); got != "public, max-age=3600" {
		t.Errorf("Cache-Control = %q", got)
	}
}
