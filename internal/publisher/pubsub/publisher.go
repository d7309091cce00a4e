// Package pubsub implements a Google Cloud Pub/Sub publisher.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	gpubsub "cloud.google.com/go/pubsub"

	"github.com/pagelens/pagelens/internal/publisher"
)

// Publisher wraps a Pub/Sub topic.
type Publisher struct {
	topic *gpubsub.Topic
}

// New creates a Publisher for the provided topic.
func New(topic *gpubsub.Topic) *Publisher {
	return &Publisher{topic: topic}
}

// Publish marshals the event to JSON and publishes it to the topic. The
// task ID and status ride along as attributes so subscribers can filter
// without decoding the body.
func (p *Publisher) Publish(ctx context.Context, _ string, event publisher.Event) (string, error) {
	if p.topic == nil {
		return "", fmt.Errorf("pubsub topic is not configured")
	}
	data, err := json.Marshal(event)
	if err != nil {
		return "", fmt.Errorf("marshal event: %w", err)
	}

	result := p.topic.Publish(ctx, &gpubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"task_id": event.TaskID,
			"status":  event.Status,
		},
	})
	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish message: %w", err)
	}
	return id, nil
}
