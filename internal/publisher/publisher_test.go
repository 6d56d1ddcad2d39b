package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/blockedby/outreach/internal/dispatcher"
	"github.com/blockedby/outreach/internal/models"
)

// MockNATSClient mocks the nats client operations we need
type MockNATSClient struct {
	PublishedSubject string
	PublishedData    []byte
	PublishError     error
}

func (m *MockNATSClient) Publish(subject string, data []byte) error {
	m.PublishedSubject = subject
	m.PublishedData = data
	return m.PublishError
}

func TestNATSPublisher_PublishSent(t *testing.T) {
	mock := &MockNATSClient{}
	pub := &NATSPublisher{nc: mock}

	event := dispatcher.SentEvent{
		RunID:   "run-1",
		Kind:    dispatcher.KindOutreach,
		Email:   "a@x.com",
		Subject: "Hello",
		SentAt:  time.Now(),
	}

	if err := pub.PublishSent(context.Background(), event); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if mock.PublishedSubject != "outreach.sent" {
		t.Errorf("subject = %s, want outreach.sent", mock.PublishedSubject)
	}

	var decoded dispatcher.SentEvent
	if err := json.Unmarshal(mock.PublishedData, &decoded); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if decoded.Email != "a@x.com" {
		t.Errorf("email = %s, want a@x.com", decoded.Email)
	}
}

func TestNATSPublisher_PublishFailed(t *testing.T) {
	mock := &MockNATSClient{}
	pub := &NATSPublisher{nc: mock}

	err := pub.PublishFailed(context.Background(), dispatcher.FailureEvent{Email: "a@x.com", Error: "550", Retryable: false})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mock.PublishedSubject != "outreach.failed" {
		t.Errorf("subject = %s, want outreach.failed", mock.PublishedSubject)
	}
}

func TestNATSPublisher_PublishBatchCompleted(t *testing.T) {
	mock := &MockNATSClient{}
	pub := &NATSPublisher{nc: mock}

	err := pub.PublishBatchCompleted(context.Background(), dispatcher.BatchCompletedEvent{
		RunID: "run-1",
		Kind:  dispatcher.KindApplication,
		Stats: models.BatchStats{Total: 3, Sent: 2, Skipped: 1},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mock.PublishedSubject != "outreach.batch.completed" {
		t.Errorf("subject = %s, want outreach.batch.completed", mock.PublishedSubject)
	}
	if len(mock.PublishedData) == 0 {
		t.Error("payload should not be empty")
	}
}

func TestNATSPublisher_PublishError(t *testing.T) {
	mock := &MockNATSClient{PublishError: errors.New("nats: connection closed")}
	pub := &NATSPublisher{nc: mock}

	err := pub.PublishSent(context.Background(), dispatcher.SentEvent{Email: "a@x.com"})
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestNATSPublisher_ImplementsEventPublisher(t *testing.T) {
	var _ dispatcher.EventPublisher = (*NATSPublisher)(nil)
}
