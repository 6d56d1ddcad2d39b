package dispatcher

import (
	"time"

	"github.com/blockedby/outreach/internal/models"
)

// Event subjects.
const (
	SubjectSent           = "outreach.sent"
	SubjectFailed         = "outreach.failed"
	SubjectBatchCompleted = "outreach.batch.completed"
)

// SentEvent is published after each successful send.
type SentEvent struct {
	RunID   string    `json:"run_id"`
	Kind    string    `json:"kind"`
	Email   string    `json:"email"`
	Subject string    `json:"subject"`
	SentAt  time.Time `json:"sent_at"`
}

// FailureEvent is published for every record counted as failed.
type FailureEvent struct {
	RunID     string    `json:"run_id"`
	Kind      string    `json:"kind"`
	Email     string    `json:"email,omitempty"`
	Error     string    `json:"error"`
	Retryable bool      `json:"retryable"`
	FailedAt  time.Time `json:"failed_at"`
}

// BatchCompletedEvent is published when a batch run finishes.
type BatchCompletedEvent struct {
	RunID string            `json:"run_id"`
	Kind  string            `json:"kind"`
	Stats models.BatchStats `json:"stats"`
}
