package queue

import "context"

// Job consumes messages of a single Type. Register implementations with
// RegisterJob before Start; the queue routes each message by Type.
type Job interface {
	// Name identifies the job in logs and on the dead letter queue.
	Name() string

	// Type is the message type this job subscribes to.
	Type() string

	// Handle processes one payload. A returned error re-queues the message
	// until the configured retry limit is exhausted.
	Handle(ctx context.Context, payload interface{}) error
}
