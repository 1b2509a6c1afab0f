// Package pgstore is the PostgreSQL backend. Writes publish a notification
// on NotifyChannel so every server process can refresh its live feeds.
package pgstore

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/store"
)

// NotifyChannel carries the user id whose collection changed.
const NotifyChannel = "fintrack_transactions"

//go:embed migrations/*.sql
var migrationsFS embed.FS

var (
	_ store.TransactionStore = (*Store)(nil)
	_ store.UserStore        = (*Store)(nil)
	_ store.Pinger           = (*Store)(nil)
)

type Store struct {
	pool   *pgxpool.Pool
	logger *log.Logger
	now    func() time.Time
}

// Open connects to databaseURL and applies pending migrations.
func Open(ctx context.Context, databaseURL string, logger *log.Logger) (*Store, error) {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	if err := RunMigrations(databaseURL); err != nil {
		return nil, err
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{pool: pool, logger: logger.WithComponent(log.ComponentStorage), now: time.Now}, nil
}

// RunMigrations applies the embedded schema to databaseURL.
func RunMigrations(databaseURL string) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create iofs source: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, migrateURL(databaseURL))
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	defer m.Close()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

func migrateURL(databaseURL string) string {
	for _, prefix := range []string{"postgres://", "postgresql://"} {
		if strings.HasPrefix(databaseURL, prefix) {
			return "pgx5://" + strings.TrimPrefix(databaseURL, prefix)
		}
	}
	return databaseURL
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Add inserts t and notifies listeners in the same transaction.
func (s *Store) Add(ctx context.Context, userID string, t core.Transaction) (store.Document, error) {
	if err := t.Validate(); err != nil {
		return store.Document{}, err
	}
	date, ok := t.Time()
	if !ok {
		return store.Document{}, fmt.Errorf("transaction date %q: %w", t.Date, core.ErrInvalidDate)
	}

	id := uuid.NewString()
	var created time.Time
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO transactions (id, user_id, type, amount_cents, category, description, date)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING created_at`,
			id, userID, t.Type.String(), t.Amount.Cents, t.Category, t.Description, date.UTC()).Scan(&created)
		if err != nil {
			return fmt.Errorf("insert transaction: %w", err)
		}
		if _, err := tx.Exec(ctx, `SELECT pg_notify($1, $2)`, NotifyChannel, userID); err != nil {
			return fmt.Errorf("notify: %w", err)
		}
		return nil
	})
	if err != nil {
		return store.Document{}, err
	}
	s.logger.DebugContext(ctx, "Transaction saved to Postgres", log.FieldTransactionID, id, log.FieldUserID, userID)
	return store.NewDocument(id, t, date.UTC(), created.UTC()), nil
}

const selectTransaction = `SELECT id::text, type, amount_cents, category, description, date, created_at FROM transactions`

func (s *Store) Query(ctx context.Context, userID string) ([]store.Document, error) {
	rows, err := s.pool.Query(ctx, selectTransaction+` WHERE user_id = $1 ORDER BY date DESC, created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	docs, err := pgx.CollectRows(rows, scanDocument)
	if err != nil {
		return nil, fmt.Errorf("collect transactions: %w", err)
	}
	return docs, nil
}

func (s *Store) Get(ctx context.Context, userID, id string) (store.Document, error) {
	if _, err := uuid.Parse(id); err != nil {
		return store.Document{}, fmt.Errorf("transaction %s: %w", id, store.ErrNotFound)
	}
	rows, err := s.pool.Query(ctx, selectTransaction+` WHERE user_id = $1 AND id = $2`, userID, id)
	if err != nil {
		return store.Document{}, fmt.Errorf("get transaction: %w", err)
	}
	doc, err := pgx.CollectExactlyOneRow(rows, scanDocument)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.Document{}, fmt.Errorf("transaction %s: %w", id, store.ErrNotFound)
	}
	return doc, err
}

func scanDocument(row pgx.CollectableRow) (store.Document, error) {
	var (
		id, typ, category, description string
		cents                          int64
		date, created                  time.Time
	)
	if err := row.Scan(&id, &typ, &cents, &category, &description, &date, &created); err != nil {
		return store.Document{}, err
	}
	return store.Document{
		ID: id,
		Fields: map[string]any{
			store.FieldType:        typ,
			store.FieldAmountCents: cents,
			store.FieldCategory:    category,
			store.FieldDescription: description,
			store.FieldDate:        date.UTC(),
			store.FieldCreatedAt:   created.UTC(),
		},
	}, nil
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func (s *Store) CreateUser(ctx context.Context, u store.User) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = s.now()
	}
	email := normalizeEmail(u.Email)
	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (id, email, password_hash, verified, created_at) VALUES ($1, $2, $3, $4, $5)`,
		u.ID, email, u.PasswordHash, u.Verified, u.CreatedAt.UTC())
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("user %s: %w", email, store.ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *Store) UserByEmail(ctx context.Context, email string) (store.User, error) {
	return s.user(ctx, `email = $1`, normalizeEmail(email))
}

func (s *Store) UserByID(ctx context.Context, id string) (store.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return store.User{}, store.ErrNotFound
	}
	return s.user(ctx, `id = $1`, id)
}

func (s *Store) user(ctx context.Context, where string, arg any) (store.User, error) {
	var u store.User
	err := s.pool.QueryRow(ctx,
		`SELECT id::text, email, password_hash, verified, created_at FROM users WHERE `+where, arg).
		Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Verified, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.User{}, store.ErrNotFound
	}
	if err != nil {
		return store.User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (s *Store) SetVerified(ctx context.Context, userID string) error {
	return s.updateUser(ctx, `UPDATE users SET verified = TRUE WHERE id = $1`, userID)
}

func (s *Store) SetPasswordHash(ctx context.Context, userID, hash string) error {
	return s.updateUser(ctx, `UPDATE users SET password_hash = $2 WHERE id = $1`, userID, hash)
}

func (s *Store) updateUser(ctx context.Context, query string, userID string, args ...any) error {
	if _, err := uuid.Parse(userID); err != nil {
		return store.ErrNotFound
	}
	tag, err := s.pool.Exec(ctx, query, append([]any{userID}, args...)...)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) SaveToken(ctx context.Context, t store.Token) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO auth_tokens (value, user_id, purpose, expires_at) VALUES ($1, $2, $3, $4)
		ON CONFLICT (value) DO UPDATE SET user_id = EXCLUDED.user_id, purpose = EXCLUDED.purpose, expires_at = EXCLUDED.expires_at`,
		t.Value, t.UserID, t.Purpose, t.ExpiresAt.UTC())
	if err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	return nil
}

func (s *Store) ConsumeToken(ctx context.Context, value, purpose string) (store.Token, error) {
	var t store.Token
	err := s.pool.QueryRow(ctx, `
		DELETE FROM auth_tokens WHERE value = $1 AND purpose = $2
		RETURNING value, user_id::text, purpose, expires_at`, value, purpose).
		Scan(&t.Value, &t.UserID, &t.Purpose, &t.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.Token{}, store.ErrNotFound
	}
	if err != nil {
		return store.Token{}, fmt.Errorf("consume token: %w", err)
	}
	if s.now().After(t.ExpiresAt) {
		return store.Token{}, store.ErrNotFound
	}
	return t, nil
}
