package notify

import (
	"context"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/example/slotmint/internal/domain/booking"
)

// RedisPublisher appends events to a Redis stream.
type RedisPublisher struct {
	Client redis.Cmdable
	Stream string
	// MaxLen trims the stream approximately. Zero keeps everything.
	MaxLen int64
}

func (p RedisPublisher) Name() string { return "redis" }

func (p RedisPublisher) Publish(ctx context.Context, e booking.Event) error {
	return p.Client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.Stream,
		MaxLen: p.MaxLen,
		Approx: p.MaxLen > 0,
		Values: map[string]any{
			"id":         strconv.FormatInt(e.ID, 10),
			"kind":       string(e.Kind),
			"created_at": strconv.FormatInt(e.CreatedAt.Unix(), 10),
			"payload":    string(e.Payload),
		},
	}).Err()
}
