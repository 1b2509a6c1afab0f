package auth

import (
	"context"

	"fintrack/internal/log"
)

// Mailer delivers account emails.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// LogMailer writes messages to the log instead of sending them.
type LogMailer struct {
	logger *log.Logger
}

func NewLogMailer(logger *log.Logger) *LogMailer {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &LogMailer{logger: logger.WithComponent(log.ComponentAuth)}
}

func (m *LogMailer) Send(ctx context.Context, to, subject, body string) error {
	m.logger.InfoContext(ctx, "Outgoing email", log.FieldEmail, to, "subject", subject, "body", body)
	return nil
}
