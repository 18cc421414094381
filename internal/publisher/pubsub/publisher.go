// Package pubsub publishes record events to Google Cloud Pub/Sub.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"

	"github.com/JakeFAU/vehicle-listing-crawler/internal/listing"
	"github.com/JakeFAU/vehicle-listing-crawler/internal/publisher"
)

// Publisher sends one JSON message per record to a topic.
type Publisher struct {
	client *pubsub.Client
	topic  *pubsub.Topic
	now    func() time.Time
}

// New connects to projectID with Application Default Credentials and checks
// that topicID exists.
func New(ctx context.Context, projectID, topicID string) (*Publisher, error) {
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	pub, err := NewWithClient(ctx, client, topicID)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	return pub, nil
}

// NewWithClient builds a Publisher on an existing client. The publisher owns
// the client from then on.
func NewWithClient(ctx context.Context, client *pubsub.Client, topicID string) (*Publisher, error) {
	if client == nil {
		return nil, fmt.Errorf("pubsub client is required")
	}
	if topicID == "" {
		return nil, fmt.Errorf("pubsub topic is required")
	}
	topic := client.Topic(topicID)
	exists, err := topic.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("check pubsub topic %q: %w", topicID, err)
	}
	if !exists {
		return nil, fmt.Errorf("pubsub topic %q does not exist", topicID)
	}
	return &Publisher{client: client, topic: topic, now: time.Now}, nil
}

// Mirror publishes the event for rec and waits for the server ack.
func (p *Publisher) Mirror(ctx context.Context, runID string, rec listing.Record) error {
	_, err := p.Publish(ctx, publisher.NewRecordEvent(runID, rec, p.now()))
	return err
}

// Publish marshals evt to JSON and publishes it, returning the message ID.
func (p *Publisher) Publish(ctx context.Context, evt publisher.RecordEvent) (string, error) {
	if p == nil || p.topic == nil {
		return "", fmt.Errorf("pubsub publisher is not configured")
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return "", fmt.Errorf("marshal record event: %w", err)
	}
	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: evt.Attributes(),
	})
	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish record event: %w", err)
	}
	return id, nil
}

// Name identifies the mirror in logs.
func (p *Publisher) Name() string {
	return "pubsub"
}

// Close flushes pending messages and closes the client.
func (p *Publisher) Close() error {
	if p == nil || p.client == nil {
		return nil
	}
	p.topic.Stop()
	if err := p.client.Close(); err != nil {
		return fmt.Errorf("close pubsub client: %w", err)
	}
	return nil
}
