package dispatcher

import (
	"context"
	"time"

	"github.com/blockedby/outreach/internal/mailer"
	"github.com/blockedby/outreach/internal/models"
)

// Session sends messages over one open transport connection.
type Session interface {
	Send(ctx context.Context, msg *models.Message) error
	Close() error
}

// Transport opens sessions with the mail server.
type Transport interface {
	Open(ctx context.Context) (Session, error)
}

// Tracker is the delivery history consulted for duplicate suppression.
type Tracker interface {
	IsRecent(address string, window time.Duration) bool
	MarkSent(ctx context.Context, address string, at time.Time) error
}

// EventPublisher receives delivery events. Implementations must not block
// for long; failures are logged and never affect a send.
type EventPublisher interface {
	PublishSent(ctx context.Context, event SentEvent) error
	PublishFailed(ctx context.Context, event FailureEvent) error
	PublishBatchCompleted(ctx context.Context, event BatchCompletedEvent) error
}

// SMTP adapts a mailer to Transport.
func SMTP(m *mailer.Mailer) Transport {
	return smtpTransport{m: m}
}

type smtpTransport struct {
	m *mailer.Mailer
}

func (t smtpTransport) Open(ctx context.Context) (Session, error) {
	s, err := t.m.Open(ctx)
	if err != nil {
		return nil, err
	}
	return s, nil
}
