package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pagelens/pagelens/internal/publisher"
)

func TestPublisherRecordsEvents(t *testing.T) {
	t.Parallel()

	p := New()
	id, err := p.Publish(context.Background(), "task-complete", publisher.Event{
		TaskID: "t1",
		URL:    "https://example.com",
		Status: "completed",
		Modes:  []string{"content_summary"},
	})
	require.NoError(t, err)
	require.Equal(t, "memory-1", id)

	id, err = p.Publish(context.Background(), "task-complete", publisher.Event{
		TaskID:      "t2",
		Status:      "completed",
		FailedModes: []string{"key_points"},
	})
	require.NoError(t, err)
	require.Equal(t, "memory-2", id)

	events := p.Events()
	require.Len(t, events, 2)
	require.Equal(t, "task-complete", events[0].Topic)
	require.Equal(t, "t1", events[0].Event.TaskID)
	require.Equal(t, []string{"key_points"}, events[1].Event.FailedModes)
}

func TestPublisherEventsFor(t *testing.T) {
	t.Parallel()

	p := New()
	for _, taskID := range []string{"t1", "t2", "t1"} {
		_, err := p.Publish(context.Background(), "task-complete", publisher.Event{TaskID: taskID})
		require.NoError(t, err)
	}

	require.Len(t, p.EventsFor("t1"), 2)
	require.Len(t, p.EventsFor("t2"), 1)
	require.Empty(t, p.EventsFor("t3"))
}
