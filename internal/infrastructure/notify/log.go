package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/example/slotmint/internal/domain/booking"
)

type LogPublisher struct {
	Log *zap.Logger
}

func (p LogPublisher) Name() string { return "log" }

func (p LogPublisher) Publish(ctx context.Context, e booking.Event) error {
	if p.Log == nil {
		return nil
	}
	p.Log.Info("booking event",
		zap.Int64("id", e.ID),
		zap.String("kind", string(e.Kind)),
		zap.Time("created_at", e.CreatedAt),
		zap.ByteString("payload", e.Payload),
	)
	return nil
}
