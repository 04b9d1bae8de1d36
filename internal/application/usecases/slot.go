package usecases

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/example/slotmint/internal/address"
	"github.com/example/slotmint/internal/domain/booking"
	"github.com/example/slotmint/internal/store"
)

const DefaultMaxSlots = 256

type SlotManager struct {
	Store store.Store
	Log   *zap.Logger
	Now   func() time.Time
	// MaxSlots bounds the slots of one experience so the overlap scan stays
	// small. Zero means DefaultMaxSlots.
	MaxSlots int
}

// AddTimeSlot opens a bookable window on an experience. Only the organiser
// may add slots and a new window may not intersect an existing one.
func (m SlotManager) AddTimeSlot(ctx context.Context, organiser, experience string, start, end time.Time, price uint64) (s booking.TimeSlot, err error) {
	ctx, span := startSpan(ctx, "slot.add",
		attribute.String("experience", experience),
		attribute.Int64("start_time", start.Unix()),
	)
	defer func() { endSpan(span, err) }()

	start, end = booking.Truncate(start), booking.Truncate(end)
	if err := booking.ValidatePrice(price); err != nil {
		return booking.TimeSlot{}, err
	}
	if err := booking.ValidateSlotWindow(start, end, clock(m.Now)); err != nil {
		return booking.TimeSlot{}, err
	}
	limit := m.MaxSlots
	if limit <= 0 {
		limit = DefaultMaxSlots
	}

	err = m.Store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		exp, err := tx.LockExperience(ctx, experience)
		if err != nil {
			return missing(err, booking.ErrInvalidExperience)
		}
		if exp.Organiser != organiser {
			return booking.ErrUnauthorized
		}

		s = booking.TimeSlot{
			Address:    address.Slot(exp.Address, start),
			Experience: exp.Address,
			StartTime:  start,
			EndTime:    end,
			Price:      price,
		}
		if _, err := tx.Slot(ctx, s.Address); err == nil {
			return booking.ErrAlreadyExists
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}

		siblings, err := tx.SlotsByExperience(ctx, exp.Address)
		if err != nil {
			return err
		}
		if len(siblings) >= limit {
			return booking.ErrTooManySlots
		}
		for _, sib := range siblings {
			if sib.Overlaps(start, end) {
				return booking.ErrOverlappingTimeSlot
			}
		}
		return tx.CreateSlot(ctx, s)
	})
	if err != nil {
		return booking.TimeSlot{}, fmt.Errorf("add time slot: %w", err)
	}

	logger(m.Log).Info("time slot added",
		zap.String("experience", experience),
		zap.String("slot", s.Address),
		zap.Time("start", start),
		zap.Time("end", end),
	)
	return s, nil
}

func (m SlotManager) Get(ctx context.Context, experience string, start time.Time) (booking.TimeSlot, error) {
	return m.Store.Slot(ctx, address.Slot(experience, start))
}

func (m SlotManager) ListByExperience(ctx context.Context, experience string) ([]booking.TimeSlot, error) {
	return m.Store.SlotsByExperience(ctx, experience)
}
