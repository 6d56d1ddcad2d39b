package mailer

import (
	"errors"
	"fmt"
	"net"
	"net/textproto"
	"strings"
)

var (
	// ErrAuth is returned by Open when the server rejects the credentials.
	ErrAuth = errors.New("smtp authentication failed")
	// ErrConnect is returned by Open when no session could be established.
	ErrConnect = errors.New("smtp connection failed")
	// ErrTransport is returned by Session.Send when one message fails.
	ErrTransport = errors.New("smtp send failed")
	// ErrSessionClosed is returned when sending through a closed session.
	ErrSessionClosed = errors.New("smtp session closed")

	// ErrAttachmentNotFound is returned when an attachment path does not exist.
	ErrAttachmentNotFound = errors.New("attachment not found")
	// ErrInvalidAttachment is returned when an attachment's content does not
	// match an accepted format.
	ErrInvalidAttachment = errors.New("invalid attachment format")
)

// classifyDialError maps a dial failure to ErrAuth or ErrConnect.
func classifyDialError(err error) error {
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) && (tpErr.Code == 535 || tpErr.Code == 534 || tpErr.Code == 530) {
		return fmt.Errorf("%w: %w", ErrAuth, err)
	}
	return fmt.Errorf("%w: %w", ErrConnect, err)
}

// IsRetryable reports whether a send failure is transient: SMTP 4xx replies,
// timeouts and dropped connections.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var tpErr *textproto.Error
	if errors.As(err, &tpErr) {
		return tpErr.Code >= 400 && tpErr.Code < 500
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "timeout") || strings.Contains(msg, "connection")
}
