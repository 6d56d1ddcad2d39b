// Package mailer sends messages through an SMTP server. A Session is opened
// once per batch and reused for every message in it.
package mailer

import (
	"context"
	"crypto/tls"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/mail.v2"

	"github.com/blockedby/outreach/internal/logger"
	"github.com/blockedby/outreach/internal/models"
)

// Config holds the SMTP connection and sender identity.
type Config struct {
	Host          string
	Port          int
	Username      string
	Password      string
	SenderAddress string
	SenderName    string
	// SSL forces implicit TLS. Port 465 implies it.
	SSL     bool
	Timeout time.Duration
}

// dialer is the part of mail.Dialer the mailer uses.
type dialer interface {
	Dial() (mail.SendCloser, error)
}

// Mailer opens SMTP sessions.
type Mailer struct {
	cfg    Config
	dialer dialer
	log    *logger.Logger
}

// New creates a mailer for the given server.
func New(cfg Config, log *logger.Logger) *Mailer {
	d := mail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	if cfg.SSL {
		d.SSL = true
	}
	if cfg.Timeout > 0 {
		d.Timeout = cfg.Timeout
	}
	d.TLSConfig = &tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12}
	if !d.SSL {
		d.StartTLSPolicy = mail.MandatoryStartTLS
	}

	return &Mailer{cfg: cfg, dialer: d, log: log.WithComponent("mailer")}
}

// Open connects and authenticates. Failures wrap ErrAuth or ErrConnect.
func (m *Mailer) Open(ctx context.Context) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnect, err)
	}

	sc, err := m.dialer.Dial()
	if err != nil {
		err = classifyDialError(err)
		m.log.Error().Err(err).
			Str("host", m.cfg.Host).
			Int("port", m.cfg.Port).
			Msg("smtp session failed")
		return nil, err
	}

	m.log.Debug().Str("host", m.cfg.Host).Int("port", m.cfg.Port).Msg("smtp session opened")
	return &Session{sc: sc, dialer: m.dialer, cfg: m.cfg, log: m.log}, nil
}

// Ping opens and closes a session to check connectivity and credentials.
func (m *Mailer) Ping(ctx context.Context) error {
	s, err := m.Open(ctx)
	if err != nil {
		return err
	}
	return s.Close()
}

// Session is one authenticated SMTP connection. After a failed send the
// connection is dropped and the next Send dials a fresh one, so a rejected
// recipient never leaves a half-open transaction behind.
type Session struct {
	mu     sync.Mutex
	sc     mail.SendCloser // nil after a failed send
	dialer dialer
	cfg    Config
	log    *logger.Logger
	closed bool
}

// Send delivers one message. Failures wrap ErrTransport.
func (s *Session) Send(ctx context.Context, msg *models.Message) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}

	if s.sc == nil {
		sc, err := s.dialer.Dial()
		if err != nil {
			return fmt.Errorf("%w: %s: reconnect: %w", ErrTransport, msg.To, classifyDialError(err))
		}
		s.log.Debug().Str("host", s.cfg.Host).Msg("smtp session reopened")
		s.sc = sc
	}

	m := BuildMessage(s.cfg.SenderAddress, s.cfg.SenderName, msg)
	if err := mail.Send(s.sc, m); err != nil {
		// the server may still hold the transaction open
		if cerr := s.sc.Close(); cerr != nil {
			s.log.Debug().Err(cerr).Msg("close failed smtp session")
		}
		s.sc = nil
		return fmt.Errorf("%w: %s: %w", ErrTransport, msg.To, err)
	}

	s.log.Debug().Str("email", msg.To).Str("subject", msg.Subject).Msg("message sent")
	return nil
}

// Close ends the session. Safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.sc == nil {
		return nil
	}
	return s.sc.Close()
}

// BuildMessage renders msg as a MIME message from the given sender. A text
// body with an HTML part becomes multipart/alternative; attachments keep
// their base file name.
func BuildMessage(fromAddr, fromName string, msg *models.Message) *mail.Message {
	m := mail.NewMessage()
	m.SetAddressHeader("From", fromAddr, fromName)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetDateHeader("Date", time.Now())

	switch {
	case msg.TextBody != "" && msg.HTMLBody != "":
		m.SetBody("text/plain", msg.TextBody)
		m.AddAlternative("text/html", msg.HTMLBody)
	case msg.HTMLBody != "":
		m.SetBody("text/html", msg.HTMLBody)
	default:
		m.SetBody("text/plain", msg.TextBody)
	}

	for _, path := range msg.Attachments {
		m.Attach(path, mail.Rename(filepath.Base(path)))
	}
	return m
}
