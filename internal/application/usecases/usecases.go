// Package usecases holds the booking operations. Every mutating operation is
// one store transaction that re-reads and re-validates its preconditions.
package usecases

import (
	"context"
	"errors"
	"slices"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/example/slotmint/internal/domain/booking"
	"github.com/example/slotmint/internal/store"
)

var tracer = otel.Tracer("github.com/example/slotmint/internal/application/usecases")

func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// endSpan records err on span unless it is an expected booking outcome.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		var be *booking.Error
		if !errors.As(err, &be) {
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetAttributes(attribute.String("booking.error_code", be.Code))
		}
	}
	span.End()
}

func clock(now func() time.Time) time.Time {
	if now == nil {
		now = time.Now
	}
	return booking.Truncate(now())
}

func logger(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}

// missing maps store.ErrNotFound to kind and passes other errors through.
func missing(err, kind error) error {
	if errors.Is(err, store.ErrNotFound) {
		return kind
	}
	return err
}

func emit(ctx context.Context, tx store.Tx, kind booking.EventKind, payload any, at time.Time) error {
	ev, err := booking.NewEvent(kind, payload, at)
	if err != nil {
		return err
	}
	return tx.Emit(ctx, ev)
}

func sortedUnique(addrs []string) []string {
	out := slices.Clone(addrs)
	slices.Sort(out)
	return slices.Compact(out)
}
