// Package relay forwards committed outbox events to the configured
// publishers.
package relay

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/example/slotmint/internal/infrastructure/notify"
	"github.com/example/slotmint/internal/store"
)

const (
	DefaultInterval    = 2 * time.Second
	DefaultBatchSize   = 50
	DefaultMaxAttempts = 10
)

// Relay polls the outbox and hands each pending event to every publisher.
// An event is marked published once all publishers accepted it; otherwise its
// attempt counter grows until MaxAttempts, after which it is left alone.
type Relay struct {
	Outbox      store.Outbox
	Publishers  []notify.Publisher
	Interval    time.Duration
	BatchSize   int
	MaxAttempts int
	Log         *zap.Logger

	mu sync.Mutex
}

func (r *Relay) Run(ctx context.Context) error {
	interval := r.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	r.Tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			r.Tick(ctx)
		}
	}
}

// Tick processes one batch and returns how many events were published.
func (r *Relay) Tick(ctx context.Context) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	log := r.Log
	if log == nil {
		log = zap.NewNop()
	}
	batch, maxAttempts := r.BatchSize, r.MaxAttempts
	if batch <= 0 {
		batch = DefaultBatchSize
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	events, err := r.Outbox.PendingEvents(ctx, batch, maxAttempts)
	if err != nil {
		log.Error("relay: pending events query failed", zap.Error(err))
		return 0
	}

	published := 0
	for _, e := range events {
		var errs []error
		for _, p := range r.Publishers {
			if err := p.Publish(ctx, e); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
			}
		}
		if err := errors.Join(errs...); err != nil {
			log.Warn("relay: publish failed",
				zap.Int64("event", e.ID),
				zap.String("kind", string(e.Kind)),
				zap.Int("attempt", e.Attempts+1),
				zap.Error(err),
			)
			if err := r.Outbox.MarkFailed(ctx, e.ID, truncate(err.Error(), 500)); err != nil {
				log.Error("relay: mark failed", zap.Int64("event", e.ID), zap.Error(err))
			}
			continue
		}
		if err := r.Outbox.MarkPublished(ctx, e.ID); err != nil {
			log.Error("relay: mark published", zap.Int64("event", e.ID), zap.Error(err))
			continue
		}
		published++
	}
	return published
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", "; ")
	if len(s) <= n {
		return s
	}
	return s[:n]
}
