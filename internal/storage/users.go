package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"fintrack/internal/core"
	"fintrack/internal/store"
)

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func (r *SQLiteRepository) CreateUser(ctx context.Context, u store.User) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = r.now()
	}
	email := normalizeEmail(u.Email)
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, email, password_hash, verified, created_at) VALUES (?, ?, ?, ?, ?)`,
		u.ID, email, u.PasswordHash, u.Verified, core.FormatISO(u.CreatedAt))
	if isUniqueViolation(err) {
		return fmt.Errorf("user %s: %w", email, store.ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) UserByEmail(ctx context.Context, email string) (store.User, error) {
	return r.user(ctx, `WHERE email = ?`, normalizeEmail(email))
}

func (r *SQLiteRepository) UserByID(ctx context.Context, id string) (store.User, error) {
	return r.user(ctx, `WHERE id = ?`, id)
}

func (r *SQLiteRepository) user(ctx context.Context, where string, arg any) (store.User, error) {
	var (
		u       store.User
		created string
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, email, password_hash, verified, created_at FROM users `+where, arg).
		Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Verified, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return store.User{}, store.ErrNotFound
	}
	if err != nil {
		return store.User{}, fmt.Errorf("get user: %w", err)
	}
	u.CreatedAt, _ = core.ParseISODate(created)
	return u, nil
}

func (r *SQLiteRepository) SetVerified(ctx context.Context, userID string) error {
	return r.updateUser(ctx, `UPDATE users SET verified = 1 WHERE id = ?`, userID)
}

func (r *SQLiteRepository) SetPasswordHash(ctx context.Context, userID, hash string) error {
	return r.updateUser(ctx, `UPDATE users SET password_hash = ? WHERE id = ?`, hash, userID)
}

func (r *SQLiteRepository) updateUser(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) SaveToken(ctx context.Context, t store.Token) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO auth_tokens (value, user_id, purpose, expires_at) VALUES (?, ?, ?, ?)`,
		t.Value, t.UserID, t.Purpose, core.FormatISO(t.ExpiresAt))
	if err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	return nil
}

// ConsumeToken deletes the token in the same transaction that reads it, so
// a token can be redeemed once.
func (r *SQLiteRepository) ConsumeToken(ctx context.Context, value, purpose string) (store.Token, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return store.Token{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var (
		t       store.Token
		expires string
	)
	err = tx.QueryRowContext(ctx,
		`SELECT value, user_id, purpose, expires_at FROM auth_tokens WHERE value = ? AND purpose = ?`,
		value, purpose).Scan(&t.Value, &t.UserID, &t.Purpose, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Token{}, store.ErrNotFound
	}
	if err != nil {
		return store.Token{}, fmt.Errorf("get token: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM auth_tokens WHERE value = ?`, value); err != nil {
		return store.Token{}, fmt.Errorf("delete token: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return store.Token{}, fmt.Errorf("commit: %w", err)
	}

	t.ExpiresAt, _ = core.ParseISODate(expires)
	if r.now().After(t.ExpiresAt) {
		return store.Token{}, store.ErrNotFound
	}
	return t, nil
}
