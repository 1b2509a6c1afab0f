// Package livesync delivers live, full-collection snapshots of a user's
// transactions. Every change produces a complete replacement list, never a
// delta; consumers read snapshots from a channel and always see the latest.
package livesync

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/store"
)

var ErrNoUser = errors.New("livesync: user id required")

// Snapshot is the complete ordered collection at one point in time.
type Snapshot struct {
	UserID       string
	Transactions []core.Transaction
	At           time.Time
}

// Hub fans store changes out to per-user subscriptions.
type Hub struct {
	source store.Querier
	logger *log.Logger
	now    func() time.Time

	mu    sync.Mutex
	subs  map[string]map[*Subscription]struct{}
	locks map[string]*sync.Mutex
}

func NewHub(source store.Querier, logger *log.Logger) *Hub {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &Hub{
		source: source,
		logger: logger.WithComponent(log.ComponentLiveSync),
		now:    time.Now,
		subs:   make(map[string]map[*Subscription]struct{}),
		locks:  make(map[string]*sync.Mutex),
	}
}

// Subscribe opens a subscription to userID's collection. The current
// snapshot is available on C immediately. The subscription ends when ctx is
// done or Close is called.
func (h *Hub) Subscribe(ctx context.Context, userID string) (*Subscription, error) {
	if userID == "" {
		return nil, ErrNoUser
	}
	lock := h.userLock(userID)
	lock.Lock()
	snap, err := h.snapshot(ctx, userID)
	if err != nil {
		lock.Unlock()
		return nil, err
	}
	sub := newSubscription(userID, h.remove)
	h.mu.Lock()
	if h.subs[userID] == nil {
		h.subs[userID] = make(map[*Subscription]struct{})
	}
	h.subs[userID][sub] = struct{}{}
	h.mu.Unlock()
	sub.deliver(snap)
	lock.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			sub.Close()
		case <-sub.Done():
		}
	}()

	h.logger.DebugContext(ctx, "Subscription opened", log.FieldUserID, userID)
	return sub, nil
}

// Notify re-reads userID's collection and pushes the snapshot to every open
// subscription of that user. Read failures are logged and dropped; the next
// change produces a fresh snapshot.
func (h *Hub) Notify(ctx context.Context, userID string) {
	if h.Subscribers(userID) == 0 {
		return
	}
	lock := h.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	subs := h.subscribers(userID)
	if len(subs) == 0 {
		return
	}
	snap, err := h.snapshot(ctx, userID)
	if err != nil {
		h.logger.WarnContext(ctx, "Snapshot query failed", log.FieldUserID, userID, log.FieldError, err)
		return
	}
	for _, s := range subs {
		s.deliver(Snapshot{UserID: snap.UserID, Transactions: slices.Clone(snap.Transactions), At: snap.At})
	}
}

// Subscribers returns the number of open subscriptions for userID.
func (h *Hub) Subscribers(userID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[userID])
}

// Close ends every open subscription.
func (h *Hub) Close() {
	h.mu.Lock()
	var all []*Subscription
	for _, set := range h.subs {
		for s := range set {
			all = append(all, s)
		}
	}
	h.mu.Unlock()
	for _, s := range all {
		s.Close()
	}
}

func (h *Hub) snapshot(ctx context.Context, userID string) (Snapshot, error) {
	docs, err := h.source.Query(ctx, userID)
	if err != nil {
		return Snapshot{}, fmt.Errorf("query %s: %w", userID, err)
	}
	records, errs := ToTransactions(docs)
	for _, e := range errs {
		h.logger.WarnContext(ctx, "Skipping unreadable document", log.FieldUserID, userID, log.FieldError, e)
	}
	return Snapshot{UserID: userID, Transactions: records, At: h.now().UTC()}, nil
}

func (h *Hub) subscribers(userID string) []*Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*Subscription, 0, len(h.subs[userID]))
	for s := range h.subs[userID] {
		out = append(out, s)
	}
	return out
}

func (h *Hub) remove(s *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.subs[s.userID]
	delete(set, s)
	if len(set) == 0 {
		delete(h.subs, s.userID)
	}
}

func (h *Hub) userLock(userID string) *sync.Mutex {
	h.mu.Lock()
	defer h.mu.Unlock()
	l, ok := h.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		h.locks[userID] = l
	}
	return l
}

// Subscription is a cancellable stream of snapshots. Only the most recent
// undelivered snapshot is kept.
type Subscription struct {
	userID  string
	c       chan Snapshot
	done    chan struct{}
	onClose func(*Subscription)

	mu     sync.Mutex
	closed bool
	once   sync.Once
}

func newSubscription(userID string, onClose func(*Subscription)) *Subscription {
	return &Subscription{
		userID:  userID,
		c:       make(chan Snapshot, 1),
		done:    make(chan struct{}),
		onClose: onClose,
	}
}

// C yields snapshots until the subscription is closed.
func (s *Subscription) C() <-chan Snapshot { return s.c }

// Done is closed once the subscription has ended.
func (s *Subscription) Done() <-chan struct{} { return s.done }

func (s *Subscription) UserID() string { return s.userID }

// Close releases the subscription. Safe to call any number of times.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.c)
		close(s.done)
		s.mu.Unlock()
		if s.onClose != nil {
			s.onClose(s)
		}
	})
}

func (s *Subscription) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Subscription) deliver(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case <-s.c:
	default:
	}
	s.c <- snap
}
