package audit

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classattend/internal/queue"
)

func TestQueuePublisherRoundTrip(t *testing.T) {
	q := queue.NewInMemory(4)
	pub := NewQueuePublisher(q)

	evt := Event{
		Type:      TypeSubmission,
		SessionID: "sess-1",
		StudentID: "stud-1",
		Outcome:   "present",
		At:        time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC),
	}
	require.NoError(t, pub.Publish(context.Background(), evt))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	msgs, err := q.Consume(ctx)
	require.NoError(t, err)

	msg := <-msgs
	assert.Equal(t, TypeSubmission, msg.Type)

	var got Event
	require.NoError(t, json.Unmarshal(msg.Body, &got))
	assert.Equal(t, evt, got)
}
