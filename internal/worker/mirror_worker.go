package worker

import (
	"context"
	"fmt"

	"fintrack/internal/amqp"
	"fintrack/internal/log"
	"fintrack/internal/services"
)

// MirrorWorker mirrors transactions announced on the message queue.
type MirrorWorker struct {
	mirror    *services.Mirror
	batchSize int
	logger    *log.Logger
}

func NewMirrorWorker(mirror *services.Mirror, batchSize int, logger *log.Logger) *MirrorWorker {
	if batchSize <= 0 {
		batchSize = 10
	}
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &MirrorWorker{
		mirror:    mirror,
		batchSize: batchSize,
		logger:    logger.WithComponent(log.ComponentWorker),
	}
}

// HandleEvent processes a single transaction.created message.
func (w *MirrorWorker) HandleEvent(ctx context.Context, msg *amqp.TransactionEvent) error {
	w.logger.DebugContext(ctx, "Processing transaction event",
		log.FieldTransactionID, msg.ID,
		log.FieldUserID, msg.UserID)

	if err := w.mirror.MirrorOne(ctx, msg.UserID, msg.ID); err != nil {
		return fmt.Errorf("mirror transaction: %w", err)
	}
	return nil
}

// StartupSyncCheck reconciles against the sheet and mirrors what was
// missed while the worker was down.
func (w *MirrorWorker) StartupSyncCheck(ctx context.Context) error {
	limit := w.batchSize * 5
	if _, err := w.mirror.Reconcile(ctx, limit); err != nil {
		w.logger.WarnContext(ctx, "Startup reconcile failed", log.FieldError, err)
	}

	synced, failed, err := w.mirror.ProcessPending(ctx, limit)
	if err != nil {
		return fmt.Errorf("startup sync: %w", err)
	}
	if synced+failed == 0 {
		w.logger.InfoContext(ctx, "No pending transactions found on startup")
		return nil
	}
	w.logger.InfoContext(ctx, "Startup sync completed",
		"synced", synced,
		"errors", failed)
	return nil
}
