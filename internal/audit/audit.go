package audit

import (
	"context"
	"encoding/json"
	"time"

	"classattend/internal/queue"
)

// TypeSubmission marks events emitted after an attendance write commits.
const TypeSubmission = "attendance.submission"

// Event is one audit entry. Emitted post-commit by the pipeline and consumed
// asynchronously by the worker; it never gates a submission.
type Event struct {
	Type      string    `json:"type"`
	SessionID string    `json:"session_id"`
	StudentID string    `json:"student_id"`
	Outcome   string    `json:"outcome"`
	Detail    string    `json:"detail,omitempty"`
	At        time.Time `json:"at"`
}

// Publisher emits audit events.
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
}

// QueuePublisher ships events over the shared queue.
type QueuePublisher struct {
	q queue.Queue
}

// NewQueuePublisher wraps a queue backend.
func NewQueuePublisher(q queue.Queue) *QueuePublisher {
	return &QueuePublisher{q: q}
}

// Publish marshals and enqueues the event.
func (p *QueuePublisher) Publish(ctx context.Context, evt Event) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return p.q.Publish(ctx, queue.Message{Type: evt.Type, Body: body})
}
