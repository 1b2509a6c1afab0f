// Package trace tags every request with an id, puts a request-scoped logger
// in the context and logs the outcome.
package trace

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/http"
	"regexp"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"fintrack/internal/log"
)

type ctxKey struct{}

// HeaderRequestID carries the id in both directions.
const HeaderRequestID = "X-Request-ID"

// Ids from a proxy are reused when they look sane.
var inboundID = regexp.MustCompile(`^[A-Za-z0-9._-]{8,64}$`)

type Tracer struct {
	clientIP func(*http.Request) string
	logger   *log.Logger
	slog     *log.StructuredLogger

	requests     atomic.Int64
	inFlight     atomic.Int64
	serverErrors atomic.Int64
}

type Stats struct {
	Requests     int64 `json:"requests"`
	InFlight     int64 `json:"in_flight"`
	ServerErrors int64 `json:"server_errors"`
}

// NewTracer builds the middleware. clientIP may be nil.
func NewTracer(clientIP func(*http.Request) string, logger *log.Logger) *Tracer {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	logger = logger.WithComponent(log.ComponentHTTP)
	return &Tracer{clientIP: clientIP, logger: logger, slog: log.NewStructuredLogger(logger)}
}

func (t *Tracer) Wrap(next http.Handler) http.Handler {
	withLogger := log.Middleware(t.logger)(log.RequestIDMiddleware(func(r *http.Request) string {
		return RequestID(r.Context())
	})(next))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		t.requests.Add(1)
		t.inFlight.Add(1)
		defer t.inFlight.Add(-1)

		id := r.Header.Get(HeaderRequestID)
		if !inboundID.MatchString(id) {
			id = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), ctxKey{}, id)
		w.Header().Set(HeaderRequestID, id)

		ip := ""
		if t.clientIP != nil {
			ip = t.clientIP(r)
		}

		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		r = r.WithContext(ctx)
		withLogger.ServeHTTP(sw, r)

		if sw.status >= http.StatusInternalServerError {
			t.serverErrors.Add(1)
		}
		t.slog.LogHTTPEnd(ctx, r, sw.status, time.Since(start), ip, id)
	})
}

func (t *Tracer) Stats() Stats {
	return Stats{
		Requests:     t.requests.Load(),
		InFlight:     t.inFlight.Load(),
		ServerErrors: t.serverErrors.Load(),
	}
}

// RequestID returns the id assigned by the tracer, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// statusWriter records the first status written. It forwards Hijack and
// Flush so websocket upgrades work behind it.
type statusWriter struct {
	http.ResponseWriter
	status  int
	written bool
}

func (sw *statusWriter) WriteHeader(code int) {
	if !sw.written {
		sw.status, sw.written = code, true
	}
	sw.ResponseWriter.WriteHeader(code)
}

func (sw *statusWriter) Unwrap() http.ResponseWriter { return sw.ResponseWriter }

func (sw *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := sw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("hijacking not supported")
	}
	sw.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (sw *statusWriter) Flush() {
	if f, ok := sw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
