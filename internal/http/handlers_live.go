package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"fintrack/internal/auth"
	"fintrack/internal/core"
	"fintrack/internal/filter"
	"fintrack/internal/livesync"
	"fintrack/internal/log"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10

	eventSnapshot = "snapshot"
)

var errSignedOut = errors.New("session ended")

// liveFeeds tracks the open feeds of each session token so that ending the
// session closes them.
type liveFeeds struct {
	mu    sync.Mutex
	seq   int
	feeds map[string]map[int]context.CancelCauseFunc
}

func newLiveFeeds() *liveFeeds {
	return &liveFeeds{feeds: make(map[string]map[int]context.CancelCauseFunc)}
}

// add registers cancel under token and returns its deregistration.
func (f *liveFeeds) add(token string, cancel context.CancelCauseFunc) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	id := f.seq
	if f.feeds[token] == nil {
		f.feeds[token] = make(map[int]context.CancelCauseFunc)
	}
	f.feeds[token][id] = cancel
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.feeds[token], id)
		if len(f.feeds[token]) == 0 {
			delete(f.feeds, token)
		}
	}
}

// end cancels every feed opened with token and reports how many there were.
func (f *liveFeeds) end(token string) int {
	f.mu.Lock()
	open := f.feeds[token]
	delete(f.feeds, token)
	f.mu.Unlock()
	for _, cancel := range open {
		cancel(errSignedOut)
	}
	return len(open)
}

func (f *liveFeeds) count(token string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.feeds[token])
}

type transactionJSON struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	Amount      string `json:"amount"`
	AmountCents int64  `json:"amount_cents"`
	Category    string `json:"category"`
	Description string `json:"description"`
	Date        string `json:"date"`
}

type totalsJSON struct {
	Income   string `json:"income"`
	Expenses string `json:"expenses"`
	Net      string `json:"net"`
}

type snapshotJSON struct {
	Transactions []transactionJSON `json:"transactions"`
	Totals       totalsJSON        `json:"totals"`
	Categories   []string          `json:"categories"`
	At           time.Time         `json:"at"`
}

// wsMessage is the envelope of every frame on the live feed.
type wsMessage struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

func toSnapshotJSON(records []core.Transaction, at time.Time) snapshotJSON {
	out := snapshotJSON{
		Transactions: make([]transactionJSON, 0, len(records)),
		Categories:   filter.Categories(records),
		At:           at.UTC(),
	}
	for _, t := range records {
		out.Transactions = append(out.Transactions, transactionJSON{
			ID:          t.ID,
			Type:        t.Type.String(),
			Amount:      t.Amount.String(),
			AmountCents: t.Amount.Cents,
			Category:    t.Category,
			Description: t.Description,
			Date:        t.Date,
		})
	}
	totals := core.Aggregate(records)
	out.Totals = totalsJSON{
		Income:   totals.Income.String(),
		Expenses: totals.Expenses.String(),
		Net:      signedDecimal(totals.Net),
	}
	return out
}

func signedDecimal(m core.Money) string {
	if m.Cents < 0 {
		return "-" + core.Money{Cents: -m.Cents}.String()
	}
	return m.String()
}

// handleAPITransactions returns the filtered collection as one snapshot.
func (s *Server) handleAPITransactions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := currentUser(r)
	records, err := s.records(ctx, user.ID)
	if err != nil {
		log.FromContext(ctx).ErrorContext(ctx, "API query failed", log.FieldUserID, user.ID, log.FieldError, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "could not load transactions"})
		return
	}
	matched := filter.Apply(records, ParseFilterQuery(r.URL.Query()).Spec())
	writeJSON(w, http.StatusOK, toSnapshotJSON(matched, s.now()))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// handleLiveFeed upgrades to a websocket and streams full snapshots of the
// signed-in user's collection until either side goes away or the session
// ends.
func (s *Server) handleLiveFeed(w http.ResponseWriter, r *http.Request) {
	if s.deps.Hub == nil {
		http.Error(w, "live updates unavailable", http.StatusServiceUnavailable)
		return
	}
	user := currentUser(r)
	token := sessionToken(r)
	logger := log.FromContext(r.Context()).WithComponent(log.ComponentLiveSync)

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.WarnContext(r.Context(), "Websocket upgrade failed", log.FieldError, err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancelCause(r.Context())
	defer cancel(nil)
	defer s.feeds.add(token, cancel)()

	session := livesync.NewSession(s.deps.Hub)
	defer session.End()
	sub, err := session.Bind(ctx, user.ID)
	if err != nil {
		logger.ErrorContext(ctx, "Live subscription failed", log.FieldUserID, user.ID, log.FieldError, err)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "subscription failed"),
			time.Now().Add(wsWriteWait))
		return
	}
	logger.DebugContext(ctx, "Live feed opened", log.FieldUserID, user.ID)

	go s.readPump(conn, cancel)
	s.writePump(ctx, conn, sub, token, cancel)
	if errors.Is(context.Cause(ctx), errSignedOut) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "signed out"),
			time.Now().Add(wsWriteWait))
	}
	logger.DebugContext(ctx, "Live feed closed", log.FieldUserID, user.ID)
}

// readPump drains client frames so control messages are processed, and
// cancels the feed when the client disconnects.
func (s *Server) readPump(conn *websocket.Conn, cancel context.CancelCauseFunc) {
	defer cancel(nil)
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump pings the client and re-checks the session on every tick, so
// expired or revoked sessions stop receiving snapshots.
func (s *Server) writePump(ctx context.Context, conn *websocket.Conn, sub *livesync.Subscription, token string, cancel context.CancelCauseFunc) {
	ticker := time.NewTicker(s.wsPing)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.Done():
			return
		case snap, ok := <-sub.C():
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			msg := wsMessage{Event: eventSnapshot, Data: toSnapshotJSON(snap.Transactions, snap.At)}
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			if !s.sessionAlive(ctx, token) {
				cancel(errSignedOut)
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// sessionAlive reports false once token no longer names a signed-in user.
// Lookup failures such as an unreachable revocation store keep the feed.
func (s *Server) sessionAlive(ctx context.Context, token string) bool {
	_, err := s.deps.Auth.CurrentUser(ctx, token)
	return !errors.Is(err, auth.ErrInvalidToken) && !errors.Is(err, auth.ErrEmailNotVerified)
}
