// Package notify delivers outbox events to external observers.
package notify

import (
	"context"
	"encoding/json"

	"github.com/bytedance/sonic"

	"github.com/example/slotmint/internal/domain/booking"
)

// Publisher is one delivery target of the relay. Publish must be safe to
// repeat for the same event; delivery is at-least-once.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, e booking.Event) error
}

// Envelope is the wire form shared by the message sinks.
type Envelope struct {
	ID        int64             `json:"id"`
	Kind      booking.EventKind `json:"kind"`
	CreatedAt int64             `json:"created_at"`
	Payload   json.RawMessage   `json:"payload"`
}

func Encode(e booking.Event) ([]byte, error) {
	return sonic.Marshal(Envelope{
		ID:        e.ID,
		Kind:      e.Kind,
		CreatedAt: e.CreatedAt.Unix(),
		Payload:   json.RawMessage(e.Payload),
	})
}
