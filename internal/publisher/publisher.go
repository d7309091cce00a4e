// Package publisher defines the task completion notification contract.
package publisher

import (
	"context"
	"time"
)

// Event is the notification emitted after a task finishes. Consumers use it
// to react to completed extractions without polling the history API.
type Event struct {
	TaskID      string    `json:"task_id"`
	URL         string    `json:"url"`
	Status      string    `json:"status"`
	Modes       []string  `json:"modes"`
	FailedModes []string  `json:"failed_modes"`
	FinishedAt  time.Time `json:"finished_at"`
}

// Publisher emits task completion events to interested consumers.
type Publisher interface {
	// Publish sends the event to the topic and returns the message ID.
	Publish(ctx context.Context, topic string, event Event) (string, error)
}
