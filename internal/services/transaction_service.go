package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fintrack/internal/amqp"
	"fintrack/internal/core"
	"fintrack/internal/livesync"
	"fintrack/internal/log"
	"fintrack/internal/store"
)

var ErrNoUser = errors.New("no signed-in user")

type (
	// Notifier is told when a user's collection changed.
	Notifier interface {
		Notify(ctx context.Context, userID string)
	}

	EventPublisher interface {
		PublishTransactionCreated(ctx context.Context, ev amqp.TransactionEvent) error
	}
)

// TransactionService is the creation flow: validate, store, notify and
// announce.
type TransactionService struct {
	store      store.Adder
	notifier   Notifier
	publisher  EventPublisher
	instanceID string
	slog       *log.StructuredLogger
	now        func() time.Time
}

// NewTransactionService wires the creation flow. notifier and publisher may
// be nil.
func NewTransactionService(st store.Adder, notifier Notifier, publisher EventPublisher, instanceID string, logger *log.Logger) *TransactionService {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	logger = logger.WithComponent(log.ComponentTransaction)
	return &TransactionService{
		store:      st,
		notifier:   notifier,
		publisher:  publisher,
		instanceID: instanceID,
		slog:       log.NewStructuredLogger(logger),
		now:        time.Now,
	}
}

func (s *TransactionService) WithClock(now func() time.Time) *TransactionService {
	s.now = now
	return s
}

// Create validates d and stores it dated now. An invalid draft returns the
// validation error with nothing stored, notified or published. Publishing
// failures are logged only; the record is already stored.
func (s *TransactionService) Create(ctx context.Context, userID string, d core.Draft) (core.Transaction, error) {
	if userID == "" {
		return core.Transaction{}, ErrNoUser
	}
	t, err := d.Transaction(s.now().UTC())
	if err != nil {
		return core.Transaction{}, err
	}

	doc, err := s.store.Add(ctx, userID, t)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("save transaction: %w", err)
	}
	saved, err := livesync.ToTransaction(doc)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("read back transaction: %w", err)
	}

	s.slog.LogTransactionCreated(ctx, userID, saved.ID, saved.Type.String(), saved.Amount.Cents, saved.Category)

	if s.notifier != nil {
		s.notifier.Notify(ctx, userID)
	}
	if s.publisher != nil {
		ev := amqp.NewTransactionEvent(saved.ID, userID, s.instanceID)
		if err := s.publisher.PublishTransactionCreated(ctx, *ev); err != nil {
			s.slog.LogError(ctx, "Failed to publish transaction event", err, log.ComponentAMQP, log.OpCreate,
				log.NewFields().WithUser(userID).WithTransaction(saved.ID, saved.Type.String(), saved.Amount.Cents, saved.Category))
		}
	}
	return saved, nil
}
