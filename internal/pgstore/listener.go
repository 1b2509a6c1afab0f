package pgstore

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"fintrack/internal/log"
)

// Listen blocks until ctx is done, calling onChange with the user id of every
// notification on NotifyChannel. Lost connections are re-established after
// retry.
func (s *Store) Listen(ctx context.Context, retry time.Duration, onChange func(ctx context.Context, userID string)) error {
	if retry <= 0 {
		retry = 5 * time.Second
	}
	logger := s.logger.WithComponent(log.ComponentLiveSync)
	for {
		err := s.listenOnce(ctx, onChange)
		if ctx.Err() != nil {
			return nil
		}
		logger.WarnContext(ctx, "Notification listener disconnected", log.FieldError, err)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(retry):
		}
	}
}

func (s *Store) listenOnce(ctx context.Context, onChange func(context.Context, string)) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire listener connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{NotifyChannel}.Sanitize()); err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}
		onChange(ctx, n.Payload)
	}
}
