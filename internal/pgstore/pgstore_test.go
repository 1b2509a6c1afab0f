package pgstore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/store"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("FINTRACK_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("FINTRACK_TEST_DATABASE_URL not set")
	}
	s, err := Open(context.Background(), url, log.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestMigrateURL(t *testing.T) {
	assert.Equal(t, "pgx5://u:p@h/db", migrateURL("postgres://u:p@h/db"))
	assert.Equal(t, "pgx5://h/db", migrateURL("postgresql://h/db"))
	assert.Equal(t, "pgx5://h/db", migrateURL("pgx5://h/db"))
}

func TestPostgresRoundTripAndNotify(t *testing.T) {
	s := openTestStore(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	userID := uuid.NewString()

	changed := make(chan string, 4)
	go s.Listen(ctx, time.Second, func(_ context.Context, id string) { changed <- id })
	time.Sleep(200 * time.Millisecond)

	doc, err := s.Add(ctx, userID, core.Transaction{
		Type: core.Expense, Amount: core.Money{Cents: 1250}, Category: "Travel", Description: "Bus", Date: "2024-01-10",
	})
	require.NoError(t, err)

	select {
	case got := <-changed:
		assert.Equal(t, userID, got)
	case <-ctx.Done():
		t.Fatal("no notification received")
	}

	docs, err := s.Query(ctx, userID)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, doc.ID, docs[0].ID)
	_, isTime := docs[0].Fields[store.FieldDate].(time.Time)
	assert.True(t, isTime)

	_, err = s.Get(ctx, uuid.NewString(), doc.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestPostgresUsers(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	id := uuid.NewString()
	email := id + "@example.com"

	require.NoError(t, s.CreateUser(ctx, store.User{ID: id, Email: email, PasswordHash: "h"}))
	assert.ErrorIs(t, s.CreateUser(ctx, store.User{ID: uuid.NewString(), Email: email, PasswordHash: "h"}), store.ErrDuplicate)
	require.NoError(t, s.SetVerified(ctx, id))
	u, err := s.UserByEmail(ctx, email)
	require.NoError(t, err)
	assert.True(t, u.Verified)

	require.NoError(t, s.SaveToken(ctx, store.Token{Value: id, UserID: id, Purpose: "reset", ExpiresAt: time.Now().Add(time.Hour)}))
	_, err = s.ConsumeToken(ctx, id, "reset")
	require.NoError(t, err)
	_, err = s.ConsumeToken(ctx, id, "reset")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
