package usecases

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/example/slotmint/internal/address"
	"github.com/example/slotmint/internal/domain/booking"
	"github.com/example/slotmint/internal/store"
)

type CreateExperienceParams struct {
	Title                  string
	Location               string
	Description            string
	Price                  uint64
	CancellationFeePercent uint8
}

type ExperienceManager struct {
	Store store.Store
	Log   *zap.Logger
	Now   func() time.Time
}

// Create publishes a new experience owned by organiser. A second call with
// the same organiser and title fails with booking.ErrAlreadyExists.
func (m ExperienceManager) Create(ctx context.Context, organiser string, p CreateExperienceParams) (e booking.Experience, err error) {
	ctx, span := startSpan(ctx, "experience.create", attribute.String("organiser", organiser))
	defer func() { endSpan(span, err) }()

	if organiser == "" {
		return booking.Experience{}, booking.ErrUnauthorized
	}
	if err := booking.ValidateExperience(p.Title, p.Location, p.Description, p.Price, p.CancellationFeePercent); err != nil {
		return booking.Experience{}, err
	}

	now := clock(m.Now)
	e = booking.Experience{
		Address:                address.Experience(organiser, p.Title),
		Organiser:              organiser,
		Title:                  p.Title,
		Description:            p.Description,
		Location:               p.Location,
		Price:                  p.Price,
		CancellationFeePercent: p.CancellationFeePercent,
		CreatedAt:              now,
	}

	err = m.Store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.CreateExperience(ctx, e); err != nil {
			return err
		}
		return emit(ctx, tx, booking.EventExperienceCreated, booking.ExperienceCreated{
			Organiser:  organiser,
			Experience: e.Address,
			Title:      e.Title,
		}, now)
	})
	if err != nil {
		return booking.Experience{}, fmt.Errorf("create experience: %w", err)
	}

	logger(m.Log).Info("experience created",
		zap.String("experience", e.Address),
		zap.String("organiser", organiser),
		zap.String("title", e.Title),
	)
	return e, nil
}

func (m ExperienceManager) Get(ctx context.Context, experience string) (booking.Experience, error) {
	return m.Store.Experience(ctx, experience)
}

func (m ExperienceManager) ListByOrganiser(ctx context.Context, organiser string) ([]booking.Experience, error) {
	return m.Store.ExperiencesByOrganiser(ctx, organiser)
}
