package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/store"
)

func TestMemoryStoreAddAndQuery(t *testing.T) {
	ctx := context.Background()
	fixed := time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC)
	s := New().WithClock(func() time.Time { return fixed })

	for _, d := range []string{"2024-01-05T00:00:00.000Z", "2024-01-15T00:00:00.000Z", "2024-01-10T00:00:00.000Z"} {
		_, err := s.Add(ctx, "u1", core.Transaction{Type: core.Income, Amount: core.Money{Cents: 1}, Category: "c", Description: "d", Date: d})
		if err != nil {
			t.Fatalf("add: %v", err)
		}
	}
	if _, err := s.Add(ctx, "u2", core.Transaction{Type: core.Expense, Amount: core.Money{Cents: 1}, Category: "c", Description: "d", Date: "2024-01-01"}); err != nil {
		t.Fatalf("add other user: %v", err)
	}

	docs, err := s.Query(ctx, "u1")
	if err != nil || len(docs) != 3 {
		t.Fatalf("unexpected query: %v err=%v", docs, err)
	}
	want := []string{"2024-01-15T00:00:00.000Z", "2024-01-10T00:00:00.000Z", "2024-01-05T00:00:00.000Z"}
	for i, d := range docs {
		if d.Fields[store.FieldDate] != want[i] {
			t.Fatalf("doc %d date = %v", i, d.Fields[store.FieldDate])
		}
		if d.Fields[store.FieldCreatedAt] != fixed {
			t.Fatalf("doc %d created_at = %v", i, d.Fields[store.FieldCreatedAt])
		}
		if d.ID == "" {
			t.Fatalf("doc %d missing id", i)
		}
	}

	got, err := s.Get(ctx, "u1", docs[0].ID)
	if err != nil || got.ID != docs[0].ID {
		t.Fatalf("get: %v %v", got, err)
	}
	if _, err := s.Get(ctx, "u2", docs[0].ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found across users, got %v", err)
	}
}

func TestMemoryStoreRejectsInvalid(t *testing.T) {
	s := New()
	if _, err := s.Add(context.Background(), "u1", core.Transaction{Type: core.Income, Category: "c"}); err == nil {
		t.Fatalf("expected validation error")
	}
	docs, _ := s.Query(context.Background(), "u1")
	if len(docs) != 0 {
		t.Fatalf("invalid record must not be stored")
	}
}

func TestMemoryStoreUsersAndTokens(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := New().WithClock(func() time.Time { return now })

	if err := s.CreateUser(ctx, store.User{ID: "u1", Email: "A@Example.com"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.CreateUser(ctx, store.User{ID: "u2", Email: "a@example.com "}); !errors.Is(err, store.ErrDuplicate) {
		t.Fatalf("expected duplicate, got %v", err)
	}
	u, err := s.UserByEmail(ctx, "a@example.com")
	if err != nil || u.ID != "u1" {
		t.Fatalf("by email: %v %v", u, err)
	}
	if err := s.SetVerified(ctx, "u1"); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if u, _ := s.UserByID(ctx, "u1"); !u.Verified {
		t.Fatalf("expected verified")
	}

	_ = s.SaveToken(ctx, store.Token{Value: "t1", UserID: "u1", Purpose: "verify", ExpiresAt: now.Add(time.Hour)})
	if _, err := s.ConsumeToken(ctx, "t1", "reset"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("wrong purpose must not match, got %v", err)
	}
	if tok, err := s.ConsumeToken(ctx, "t1", "verify"); err != nil || tok.UserID != "u1" {
		t.Fatalf("consume: %v %v", tok, err)
	}
	if _, err := s.ConsumeToken(ctx, "t1", "verify"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("token must be single use")
	}

	_ = s.SaveToken(ctx, store.Token{Value: "old", UserID: "u1", Purpose: "verify", ExpiresAt: now.Add(-time.Minute)})
	if _, err := s.ConsumeToken(ctx, "old", "verify"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expired token must not be consumed")
	}
}
