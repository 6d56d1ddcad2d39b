// Package publisher emits delivery events to NATS.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/blockedby/outreach/internal/dispatcher"
)

// NATSClient interface to allow mocking
type NATSClient interface {
	Publish(subject string, data []byte) error
}

// NATSPublisher implements dispatcher.EventPublisher
type NATSPublisher struct {
	nc   NATSClient
	conn *nats.Conn
}

// Connect dials the NATS server at url and returns a publisher on it.
func Connect(url string) (*NATSPublisher, error) {
	conn, err := nats.Connect(url, nats.Name("outreach"))
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	return NewNATSPublisher(conn), nil
}

// NewNATSPublisher creates a publisher over an existing connection.
func NewNATSPublisher(conn *nats.Conn) *NATSPublisher {
	return &NATSPublisher{nc: conn, conn: conn}
}

// PublishSent publishes a successful delivery.
func (p *NATSPublisher) PublishSent(_ context.Context, event dispatcher.SentEvent) error {
	return p.publish(dispatcher.SubjectSent, event)
}

// PublishFailed publishes a failed delivery.
func (p *NATSPublisher) PublishFailed(_ context.Context, event dispatcher.FailureEvent) error {
	return p.publish(dispatcher.SubjectFailed, event)
}

// PublishBatchCompleted publishes the statistics of a finished batch.
func (p *NATSPublisher) PublishBatchCompleted(_ context.Context, event dispatcher.BatchCompletedEvent) error {
	return p.publish(dispatcher.SubjectBatchCompleted, event)
}

// Close drains and closes the connection if the publisher owns one.
func (p *NATSPublisher) Close() {
	if p.conn != nil {
		_ = p.conn.Drain()
	}
}

func (p *NATSPublisher) publish(subject string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	if err := p.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}

	return nil
}
