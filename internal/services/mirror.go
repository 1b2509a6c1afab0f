package services

import (
	"context"
	"fmt"
	"sync"

	"fintrack/internal/livesync"
	"fintrack/internal/log"
	"fintrack/internal/sheets"
	"fintrack/internal/storage"
	"fintrack/internal/store"
)

// MirrorQueue is the bookkeeping side of the spreadsheet mirror.
type MirrorQueue interface {
	store.Getter
	PendingMirrors(ctx context.Context, limit int) ([]storage.PendingMirror, error)
	IsMirrored(ctx context.Context, id string) (bool, error)
	MarkMirrored(ctx context.Context, id string) error
	MarkMirrorFailed(ctx context.Context, id string) error
}

// Mirror copies stored transactions into the spreadsheet, once each.
type Mirror struct {
	queue    MirrorQueue
	appender sheets.RowAppender
	logger   *log.Logger

	mu       sync.Mutex
	inflight map[string]struct{}
}

func NewMirror(queue MirrorQueue, appender sheets.RowAppender, logger *log.Logger) *Mirror {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &Mirror{
		queue:    queue,
		appender: appender,
		logger:   logger.WithComponent(log.ComponentMirror),
		inflight: make(map[string]struct{}),
	}
}

// MirrorOne appends transaction id of userID unless it is already mirrored
// or being mirrored. Append failures count an attempt against the record.
func (m *Mirror) MirrorOne(ctx context.Context, userID, id string) error {
	if !m.claim(id) {
		return nil
	}
	defer m.release(id)

	done, err := m.queue.IsMirrored(ctx, id)
	if err != nil {
		return err
	}
	if done {
		return nil
	}

	doc, err := m.queue.Get(ctx, userID, id)
	if err != nil {
		return fmt.Errorf("get transaction %s: %w", id, err)
	}
	t, err := livesync.ToTransaction(doc)
	if err != nil {
		return fmt.Errorf("map transaction %s: %w", id, err)
	}

	ref, err := m.appender.Append(ctx, sheets.NewRow(userID, t))
	if err != nil {
		if markErr := m.queue.MarkMirrorFailed(ctx, id); markErr != nil {
			m.logger.ErrorContext(ctx, "Failed to mark mirror error", log.FieldTransactionID, id, log.FieldError, markErr)
		}
		return fmt.Errorf("append to sheet: %w", err)
	}

	if err := m.queue.MarkMirrored(ctx, id); err != nil {
		m.logger.ErrorContext(ctx, "Failed to mark as mirrored", log.FieldTransactionID, id, log.FieldError, err)
	}
	m.logger.InfoContext(ctx, "Transaction mirrored",
		log.FieldTransactionID, id, log.FieldUserID, userID, "sheets_ref", ref)
	return nil
}

// ProcessPending mirrors up to limit pending records, oldest first.
func (m *Mirror) ProcessPending(ctx context.Context, limit int) (synced, failed int, err error) {
	pending, err := m.queue.PendingMirrors(ctx, limit)
	if err != nil {
		return 0, 0, fmt.Errorf("get pending mirrors: %w", err)
	}
	for _, p := range pending {
		if ctx.Err() != nil {
			return synced, failed, ctx.Err()
		}
		if err := m.MirrorOne(ctx, p.UserID, p.ID); err != nil {
			m.logger.WarnContext(ctx, "Mirror attempt failed",
				log.FieldTransactionID, p.ID, "attempt", p.Attempts+1, log.FieldError, err)
			failed++
			continue
		}
		synced++
	}
	return synced, failed, nil
}

// Reconcile marks pending records whose id is already in the sheet as
// mirrored, so a crash between append and bookkeeping does not produce a
// duplicate row. It is a no-op when the appender cannot list ids.
func (m *Mirror) Reconcile(ctx context.Context, limit int) (int, error) {
	lister, ok := m.appender.(sheets.IDLister)
	if !ok {
		return 0, nil
	}
	pending, err := m.queue.PendingMirrors(ctx, limit)
	if err != nil || len(pending) == 0 {
		return 0, err
	}
	ids, err := lister.MirroredIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("list mirrored ids: %w", err)
	}
	n := 0
	for _, p := range pending {
		if _, found := ids[p.ID]; !found {
			continue
		}
		if err := m.queue.MarkMirrored(ctx, p.ID); err != nil {
			return n, err
		}
		n++
	}
	if n > 0 {
		m.logger.InfoContext(ctx, "Reconciled mirrored transactions", log.FieldCount, n)
	}
	return n, nil
}

func (m *Mirror) claim(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, busy := m.inflight[id]; busy {
		return false
	}
	m.inflight[id] = struct{}{}
	return true
}

func (m *Mirror) release(id string) {
	m.mu.Lock()
	delete(m.inflight, id)
	m.mu.Unlock()
}
