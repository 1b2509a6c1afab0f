// Package storage is the SQLite backend: per-user transaction collections,
// accounts, auth tokens and the outbound mirror queue.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/store"
)

var (
	_ store.TransactionStore = (*SQLiteRepository)(nil)
	_ store.UserStore        = (*SQLiteRepository)(nil)
	_ store.Pinger           = (*SQLiteRepository)(nil)
)

// Mirror states of a stored transaction.
const (
	MirrorPending  = "pending"
	MirrorDone     = "mirrored"
	MirrorFailed   = "error"
	maxMirrorTries = 5
)

type SQLiteRepository struct {
	db     *sql.DB
	logger *log.Logger
	now    func() time.Time
}

// PendingMirror identifies a record that has not reached the spreadsheet.
type PendingMirror struct {
	ID        string
	UserID    string
	Attempts  int
	CreatedAt time.Time
}

func dsn(path string) string {
	if path == ":memory:" || strings.HasPrefix(path, "file:") {
		return path
	}
	return path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
}

func NewSQLiteRepository(dbPath string, logger *log.Logger) (*SQLiteRepository, error) {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		db:     db,
		logger: logger.WithComponent(log.ComponentStorage),
		now:    time.Now,
	}, nil
}

// WithClock replaces the server timestamp source.
func (r *SQLiteRepository) WithClock(now func() time.Time) *SQLiteRepository {
	r.now = now
	return r
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Add stores t and returns it as the backend sees it, with a timestamp date.
func (r *SQLiteRepository) Add(ctx context.Context, userID string, t core.Transaction) (store.Document, error) {
	if err := t.Validate(); err != nil {
		return store.Document{}, err
	}
	date, ok := t.Time()
	if !ok {
		return store.Document{}, fmt.Errorf("transaction date %q: %w", t.Date, core.ErrInvalidDate)
	}
	id := uuid.NewString()
	created := r.now().UTC()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO transactions (id, user_id, type, amount_cents, category, description, date, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, userID, t.Type.String(), t.Amount.Cents, t.Category, t.Description,
		core.FormatISO(date), core.FormatISO(created))
	if err != nil {
		return store.Document{}, fmt.Errorf("insert transaction: %w", err)
	}

	r.logger.DebugContext(ctx, "Transaction saved to SQLite",
		log.FieldTransactionID, id,
		log.FieldUserID, userID,
		log.FieldAmountCents, t.Amount.Cents)
	return store.NewDocument(id, t, date.UTC(), created), nil
}

func (r *SQLiteRepository) Query(ctx context.Context, userID string) ([]store.Document, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, type, amount_cents, category, description, date, created_at
		FROM transactions WHERE user_id = ?
		ORDER BY date DESC, created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	var out []store.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return out, nil
}

func (r *SQLiteRepository) Get(ctx context.Context, userID, id string) (store.Document, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, type, amount_cents, category, description, date, created_at
		FROM transactions WHERE user_id = ? AND id = ?`, userID, id)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Document{}, fmt.Errorf("transaction %s: %w", id, store.ErrNotFound)
	}
	return doc, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(s scanner) (store.Document, error) {
	var (
		id, typ, category, description, date, created string
		cents                                         int64
	)
	if err := s.Scan(&id, &typ, &cents, &category, &description, &date, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Document{}, err
		}
		return store.Document{}, fmt.Errorf("scan transaction: %w", err)
	}
	var dateValue any = date
	if tm, ok := core.ParseISODate(date); ok {
		dateValue = tm.UTC()
	}
	createdAt, _ := core.ParseISODate(created)
	return store.Document{
		ID: id,
		Fields: map[string]any{
			store.FieldType:        typ,
			store.FieldAmountCents: cents,
			store.FieldCategory:    category,
			store.FieldDescription: description,
			store.FieldDate:        dateValue,
			store.FieldCreatedAt:   createdAt.UTC(),
		},
	}, nil
}

// PendingMirrors returns up to limit records still waiting for the
// spreadsheet mirror, oldest first. Records that failed too often are left
// out.
func (r *SQLiteRepository) PendingMirrors(ctx context.Context, limit int) ([]PendingMirror, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, mirror_attempts, created_at FROM transactions
		WHERE mirror_status != ? AND mirror_attempts < ?
		ORDER BY created_at ASC LIMIT ?`, MirrorDone, maxMirrorTries, limit)
	if err != nil {
		return nil, fmt.Errorf("get pending mirrors: %w", err)
	}
	defer rows.Close()

	var out []PendingMirror
	for rows.Next() {
		var (
			p       PendingMirror
			created string
		)
		if err := rows.Scan(&p.ID, &p.UserID, &p.Attempts, &created); err != nil {
			return nil, fmt.Errorf("scan pending mirror: %w", err)
		}
		p.CreatedAt, _ = core.ParseISODate(created)
		out = append(out, p)
	}
	return out, rows.Err()
}

// MarkMirrored records a successful spreadsheet append.
func (r *SQLiteRepository) MarkMirrored(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE transactions SET mirror_status = ?, mirrored_at = ? WHERE id = ?`,
		MirrorDone, core.FormatISO(r.now()), id)
	if err != nil {
		return fmt.Errorf("mark transaction mirrored: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("transaction %s: %w", id, store.ErrNotFound)
	}
	r.logger.DebugContext(ctx, "Transaction marked as mirrored", log.FieldTransactionID, id)
	return nil
}

// MarkMirrorFailed counts a failed attempt.
func (r *SQLiteRepository) MarkMirrorFailed(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE transactions SET mirror_status = ?, mirror_attempts = mirror_attempts + 1 WHERE id = ?`,
		MirrorFailed, id)
	if err != nil {
		return fmt.Errorf("mark transaction mirror error: %w", err)
	}
	r.logger.WarnContext(ctx, "Transaction marked with mirror error", log.FieldTransactionID, id)
	return nil
}

// IsMirrored reports whether the spreadsheet mirror already has id.
func (r *SQLiteRepository) IsMirrored(ctx context.Context, id string) (bool, error) {
	var status string
	err := r.db.QueryRowContext(ctx, `SELECT mirror_status FROM transactions WHERE id = ?`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("transaction %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return false, fmt.Errorf("lookup mirror status: %w", err)
	}
	return status == MirrorDone, nil
}

// UserIDOf returns the owner of a transaction. The mirror worker receives
// only ids from the queue.
func (r *SQLiteRepository) UserIDOf(ctx context.Context, id string) (string, error) {
	var userID string
	err := r.db.QueryRowContext(ctx, `SELECT user_id FROM transactions WHERE id = ?`, id).Scan(&userID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("transaction %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("lookup transaction owner: %w", err)
	}
	return userID, nil
}
