package ratelimit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"

	"fintrack/internal/log"
)

func newTestLimiter(t *testing.T, perMinute int) (*Limiter, *time.Time) {
	t.Helper()
	l := NewLimiter(Config{RequestsPerMinute: perMinute}, log.Discard())
	t.Cleanup(l.Stop)
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	l.memory.now = func() time.Time { return now }
	return l, &now
}

func TestAllowWithinWindow(t *testing.T) {
	l, now := newTestLimiter(t, 2)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if ok, _ := l.Allow(ctx, "1.1.1.1"); !ok {
			t.Fatalf("request %d should pass", i+1)
		}
	}
	if ok, resetIn := l.Allow(ctx, "1.1.1.1"); ok || resetIn != time.Minute {
		t.Fatalf("third request: ok=%v resetIn=%v", ok, resetIn)
	}
	if ok, _ := l.Allow(ctx, "2.2.2.2"); !ok {
		t.Fatal("other clients are independent")
	}

	*now = now.Add(time.Minute)
	if ok, _ := l.Allow(ctx, "1.1.1.1"); !ok {
		t.Fatal("window should reset after a minute")
	}
	if got := l.Stats().Rejected; got != 1 {
		t.Errorf("Rejected = %d, want 1", got)
	}
}

func TestSweepDropsIdleClients(t *testing.T) {
	l, now := newTestLimiter(t, 5)
	ctx := context.Background()
	l.Allow(ctx, "1.1.1.1")
	*now = now.Add(11 * time.Minute)
	l.Allow(ctx, "2.2.2.2")

	l.memory.Sweep()
	if got := l.Stats().Clients; got != 1 {
		t.Errorf("Clients = %d, want 1", got)
	}
}

func TestMiddlewareRejects(t *testing.T) {
	l, now := newTestLimiter(t, 1)
	h := l.Middleware(func(*http.Request) string { return "9.9.9.9" })(
		http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) }))

	first := httptest.NewRecorder()
	h.ServeHTTP(first, httptest.NewRequest(http.MethodPost, "/transactions", nil))
	if first.Code != http.StatusNoContent {
		t.Fatalf("first status = %d", first.Code)
	}

	*now = now.Add(15 * time.Second)
	second := httptest.NewRecorder()
	h.ServeHTTP(second, httptest.NewRequest(http.MethodPost, "/transactions", nil))
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("second status = %d", second.Code)
	}
	if got := second.Header().Get("Retry-After"); got != "45" {
		t.Errorf("Retry-After = %q, want 45", got)
	}
}

func TestRedisCounterSharesWindows(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	counter := NewRedisCounter(client, "test:rl:")
	a := NewLimiter(Config{RequestsPerMinute: 2, Counter: counter}, log.Discard())
	b := NewLimiter(Config{RequestsPerMinute: 2, Counter: counter}, log.Discard())
	t.Cleanup(a.Stop)
	t.Cleanup(b.Stop)
	ctx := context.Background()

	if ok, _ := a.Allow(ctx, "1.1.1.1"); !ok {
		t.Fatal("first hit rejected")
	}
	if ok, _ := b.Allow(ctx, "1.1.1.1"); !ok {
		t.Fatal("second hit rejected")
	}
	if ok, resetIn := a.Allow(ctx, "1.1.1.1"); ok || resetIn <= 0 || resetIn > time.Minute {
		t.Fatalf("third hit: ok=%v resetIn=%v", ok, resetIn)
	}
	if ttl := mr.TTL("test:rl:1.1.1.1"); ttl <= 0 {
		t.Errorf("window key has no expiry (ttl %v)", ttl)
	}

	mr.FastForward(time.Minute)
	if ok, _ := b.Allow(ctx, "1.1.1.1"); !ok {
		t.Fatal("window should reset once the key expires")
	}
	if got := a.Stats(); got.Clients != -1 || got.Rejected != 1 {
		t.Errorf("Stats() = %+v", got)
	}
}

func TestRedisCounterFailureAllows(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	l := NewLimiter(Config{RequestsPerMinute: 1, Counter: NewRedisCounter(client, "x:")}, log.Discard())
	t.Cleanup(l.Stop)

	mr.Close()
	if ok, _ := l.Allow(context.Background(), "1.1.1.1"); !ok {
		t.Error("a broken counter should not lock clients out")
	}
}

func TestStopIsIdempotent(t *testing.T) {
	l := NewLimiter(Config{}, log.Discard())
	l.Stop()
	l.Stop()
}
