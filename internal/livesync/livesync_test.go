package livesync

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fintrack/internal/core"
	"fintrack/internal/store"
	"fintrack/internal/store/memory"
)

func add(t *testing.T, s *memory.Store, userID, date string, cents int64) {
	t.Helper()
	_, err := s.Add(context.Background(), userID, core.Transaction{
		Type: core.Expense, Amount: core.Money{Cents: cents}, Category: "Travel", Description: "ticket", Date: date,
	})
	require.NoError(t, err)
}

func next(t *testing.T, sub *Subscription) Snapshot {
	t.Helper()
	select {
	case snap, ok := <-sub.C():
		require.True(t, ok, "subscription closed unexpectedly")
		return snap
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for snapshot")
		return Snapshot{}
	}
}

func TestToTransactionNormalisesTimestamps(t *testing.T) {
	ts := time.Date(2024, 1, 10, 8, 5, 3, 120_000_000, time.FixedZone("IST", 19800))
	doc := store.Document{ID: "x", Fields: map[string]any{
		store.FieldType:        "expense",
		store.FieldAmountCents: int64(40000),
		store.FieldCategory:    "Food & Dining",
		store.FieldDescription: "Groceries",
		store.FieldDate:        ts,
	}}
	got, err := ToTransaction(doc)
	require.NoError(t, err)
	assert.Equal(t, "2024-01-10T02:35:03.120Z", got.Date)
	assert.Equal(t, core.Expense, got.Type)
	assert.Equal(t, int64(40000), got.Amount.Cents)
	assert.Equal(t, "x", got.ID)
}

func TestToTransactionStringDatePassesThrough(t *testing.T) {
	doc := store.Document{ID: "y", Fields: map[string]any{
		store.FieldType:        "income",
		store.FieldAmountCents: 100,
		store.FieldDate:        "2024-01-05",
	}}
	got, err := ToTransaction(doc)
	require.NoError(t, err)
	assert.Equal(t, "2024-01-05", got.Date)
}

func TestToTransactionsSkipsBadDocuments(t *testing.T) {
	docs := []store.Document{
		{ID: "ok", Fields: map[string]any{store.FieldType: "income", store.FieldAmountCents: int64(1)}},
		{ID: "bad", Fields: map[string]any{store.FieldType: "transfer", store.FieldAmountCents: int64(1)}},
	}
	got, errs := ToTransactions(docs)
	assert.Len(t, got, 1)
	assert.Len(t, errs, 1)
}

func TestSubscribeDeliversInitialAndFullSnapshots(t *testing.T) {
	src := memory.New()
	add(t, src, "u1", "2024-01-05", 100)
	hub := NewHub(src, nil)

	sub, err := hub.Subscribe(context.Background(), "u1")
	require.NoError(t, err)
	defer sub.Close()

	first := next(t, sub)
	assert.Len(t, first.Transactions, 1)

	add(t, src, "u1", "2024-01-15", 200)
	hub.Notify(context.Background(), "u1")
	second := next(t, sub)
	require.Len(t, second.Transactions, 2)
	assert.Equal(t, "2024-01-15", second.Transactions[0].Date)
	assert.Equal(t, "2024-01-05", second.Transactions[1].Date)
}

func TestSlowConsumerSeesLatestSnapshot(t *testing.T) {
	src := memory.New()
	hub := NewHub(src, nil)
	sub, err := hub.Subscribe(context.Background(), "u1")
	require.NoError(t, err)
	defer sub.Close()

	for i := 1; i <= 3; i++ {
		add(t, src, "u1", "2024-01-0"+string(rune('0'+i)), int64(i))
		hub.Notify(context.Background(), "u1")
	}
	snap := next(t, sub)
	assert.Len(t, snap.Transactions, 3)
	select {
	case <-sub.C():
		t.Fatal("stale snapshots must be replaced, not queued")
	default:
	}
}

func TestNotifyIsScopedPerUser(t *testing.T) {
	src := memory.New()
	hub := NewHub(src, nil)
	a, err := hub.Subscribe(context.Background(), "a")
	require.NoError(t, err)
	defer a.Close()
	next(t, a)

	add(t, src, "b", "2024-01-01", 1)
	hub.Notify(context.Background(), "b")
	select {
	case <-a.C():
		t.Fatal("user a must not receive user b's changes")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	hub := NewHub(memory.New(), nil)
	sub, err := hub.Subscribe(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, hub.Subscribers("u1"))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sub.Close()
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, hub.Subscribers("u1"))

	hub.Notify(context.Background(), "u1")
	_, ok := <-sub.C()
	if ok {
		_, ok = <-sub.C()
	}
	assert.False(t, ok)
}

func TestContextCancellationClosesSubscription(t *testing.T) {
	hub := NewHub(memory.New(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	sub, err := hub.Subscribe(ctx, "u1")
	require.NoError(t, err)
	cancel()
	select {
	case <-sub.Done():
	case <-time.After(time.Second):
		t.Fatal("subscription should end with its context")
	}
	assert.Equal(t, 0, hub.Subscribers("u1"))
}

func TestSubscribeRequiresUser(t *testing.T) {
	_, err := NewHub(memory.New(), nil).Subscribe(context.Background(), "")
	assert.ErrorIs(t, err, ErrNoUser)
}

type failingSource struct{}

func (failingSource) Query(context.Context, string) ([]store.Document, error) {
	return nil, errors.New("offline")
}

func TestSubscribeSurfacesQueryFailure(t *testing.T) {
	_, err := NewHub(failingSource{}, nil).Subscribe(context.Background(), "u1")
	assert.Error(t, err)
}

func TestSessionRebindTearsDownPrevious(t *testing.T) {
	hub := NewHub(memory.New(), nil)
	sess := NewSession(hub)

	first, err := sess.Bind(context.Background(), "alice")
	require.NoError(t, err)
	same, err := sess.Bind(context.Background(), "alice")
	require.NoError(t, err)
	assert.Same(t, first, same)

	second, err := sess.Bind(context.Background(), "bob")
	require.NoError(t, err)
	select {
	case <-first.Done():
	default:
		t.Fatal("previous subscription must be closed before the new one is used")
	}
	assert.Equal(t, 0, hub.Subscribers("alice"))
	assert.Equal(t, 1, hub.Subscribers("bob"))
	assert.Same(t, second, sess.Current())

	sess.End()
	sess.End()
	assert.Nil(t, sess.Current())
	assert.Equal(t, 0, hub.Subscribers("bob"))
}
