package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// QueueService is the producer side of the queue; consumers implement Job.
type QueueService interface {
	PublishMessage(ctx context.Context, msgType string, payload interface{}) error
}

// QueueConfig sizes the consumer side.
type QueueConfig struct {
	Workers    int           // concurrent job goroutines
	RetryLimit int           // attempts before a message parks in the dead list
	RetryDelay time.Duration // delay before a failed message becomes due again
}

// Message is the wire form stored in Redis. Payload survives as
// json.RawMessage on the consumer side; jobs decode it with ParsePayload.
type Message struct {
	ID        string
	Type      string
	Payload   interface{}
	Attempts  int
	Timestamp time.Time
}

// ParsePayload decodes a message payload into T regardless of whether it
// arrived in memory (T or *T) or from Redis (raw JSON or generic maps).
func ParsePayload[T any](payload interface{}) (*T, error) {
	switch p := payload.(type) {
	case *T:
		return p, nil
	case T:
		return &p, nil
	case json.RawMessage:
		return decodePayload[T](p)
	case map[string]interface{}, []interface{}:
		// The payload went through a generic JSON decode somewhere along
		// the way; re-marshal to recover the typed form.
		b, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("remarshal payload: %w", err)
		}
		return decodePayload[T](b)
	default:
		return nil, fmt.Errorf("unsupported payload type %T", payload)
	}
}

func decodePayload[T any](b []byte) (*T, error) {
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return &v, nil
}
