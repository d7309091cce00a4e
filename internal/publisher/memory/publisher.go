// Package memory records task completion events in memory, backing tests
// and deployments that run without a broker.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/pagelens/pagelens/internal/publisher"
)

// Publisher keeps every published task event for inspection.
type Publisher struct {
	mu     sync.RWMutex
	events []PublishedEvent
}

// PublishedEvent is one recorded publish call.
type PublishedEvent struct {
	Topic string
	Event publisher.Event
}

// New returns a memory Publisher.
func New() *Publisher {
	return &Publisher{}
}

// Publish records the event and returns a pseudo message ID.
func (p *Publisher) Publish(_ context.Context, topic string, event publisher.Event) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, PublishedEvent{Topic: topic, Event: event})
	return fmt.Sprintf("memory-%d", len(p.events)), nil
}

// Events returns the recorded publishes in publish order.
func (p *Publisher) Events() []PublishedEvent {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]PublishedEvent, len(p.events))
	copy(out, p.events)
	return out
}

// EventsFor returns the recorded events of one task.
func (p *Publisher) EventsFor(taskID string) []publisher.Event {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []publisher.Event
	for _, e := range p.events {
		if e.Event.TaskID == taskID {
			out = append(out, e.Event)
		}
	}
	return out
}
