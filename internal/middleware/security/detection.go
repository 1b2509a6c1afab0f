package security

import (
	"net/http"
	"net/netip"
	"slices"
	"strings"
	"sync/atomic"

	"fintrack/internal/log"
)

// probe is one heuristic for scanner traffic; reason ends up in the log.
type probe struct {
	reason string
	match  func(r *http.Request, path, query, agent string) bool
}

var (
	probeFragments = []string{
		"../", "..\\", ".env", ".git", ".ssh", "wp-admin", "wp-login",
		"phpmyadmin", ".php", "etc/passwd", "cmd.exe", "<script",
		"javascript:", "union select", "eval(",
	}
	scannerAgents = []string{"sqlmap", "nmap", "nikto", "gobuster", "dirb", "masscan", "zgrab", "nuclei"}
	oddMethods    = []string{"TRACE", "TRACK", "DEBUG", "CONNECT"}

	probes = []probe{
		{"path or query probe", func(_ *http.Request, path, query, _ string) bool {
			return slices.ContainsFunc(probeFragments, func(f string) bool {
				return strings.Contains(path, f) || strings.Contains(query, f)
			})
		}},
		{"scanner user agent", func(_ *http.Request, _, _, agent string) bool {
			return slices.ContainsFunc(scannerAgents, func(a string) bool { return strings.Contains(agent, a) })
		}},
		{"unusual method", func(r *http.Request, _, _, _ string) bool {
			return slices.Contains(oddMethods, r.Method)
		}},
		{"oversized url", func(r *http.Request, _, _, _ string) bool {
			return len(r.URL.RequestURI()) > 2048
		}},
		{"forwarding chain", func(r *http.Request, _, _, _ string) bool {
			return strings.Count(r.Header.Get("X-Forwarded-For"), ",") > 5
		}},
	}
)

var privateNets = []netip.Prefix{
	netip.MustParsePrefix("127.0.0.0/8"),
	netip.MustParsePrefix("::1/128"),
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("172.16.0.0/12"),
	netip.MustParsePrefix("192.168.0.0/16"),
	netip.MustParsePrefix("fc00::/7"),
}

// Detector rejects requests that look like scans and resolves the real
// client address when the peer is a private-network proxy.
type Detector struct {
	logger     *log.Logger
	trusted    []netip.Prefix
	suspicious atomic.Int64
}

type DetectorStats struct {
	Suspicious int64 `json:"suspicious"`
}

func NewDetector(logger *log.Logger) *Detector {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &Detector{logger: logger.WithComponent(log.ComponentSecurity), trusted: privateNets}
}

// Inspect returns why r looks hostile, or "" when it does not.
func (d *Detector) Inspect(r *http.Request) string {
	path := strings.ToLower(r.URL.Path)
	query := strings.ToLower(r.URL.RawQuery)
	agent := strings.ToLower(r.UserAgent())
	for _, p := range probes {
		if p.match(r, path, query, agent) {
			return p.reason
		}
	}
	return ""
}

func (d *Detector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reason := d.Inspect(r)
		if reason == "" {
			next.ServeHTTP(w, r)
			return
		}
		d.suspicious.Add(1)
		d.logger.WarnContext(r.Context(), "Suspicious request blocked",
			"reason", reason,
			log.FieldClientIP, d.ExtractClientIP(r),
			log.FieldMethod, r.Method,
			log.FieldPath, r.URL.Path,
			log.FieldUserAgent, r.UserAgent())
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
	})
}

// ExtractClientIP trusts X-Forwarded-For, then X-Real-IP, only when the
// direct peer is on a private network.
func (d *Detector) ExtractClientIP(r *http.Request) string {
	peer := r.RemoteAddr
	if ap, err := netip.ParseAddrPort(peer); err == nil {
		peer = ap.Addr().Unmap().String()
	}
	addr, err := netip.ParseAddr(peer)
	if err != nil || !d.isTrusted(addr) {
		return peer
	}

	if first, _, _ := strings.Cut(r.Header.Get("X-Forwarded-For"), ","); first != "" {
		if a, err := netip.ParseAddr(strings.TrimSpace(first)); err == nil {
			return a.String()
		}
	}
	if a, err := netip.ParseAddr(strings.TrimSpace(r.Header.Get("X-Real-IP"))); err == nil {
		return a.String()
	}
	return peer
}

func (d *Detector) isTrusted(a netip.Addr) bool {
	return slices.ContainsFunc(d.trusted, func(p netip.Prefix) bool { return p.Contains(a) })
}

func (d *Detector) Stats() DetectorStats {
	return DetectorStats{Suspicious: d.suspicious.Load()}
}
