package memstore

import (
	"context"
	"time"

	"github.com/example/slotmint/internal/domain/booking"
	"github.com/example/slotmint/internal/store"
)

type tx struct {
	*state
	now func() time.Time
}

var _ store.Tx = (*tx)(nil)

func (t *tx) Experience(ctx context.Context, address string) (booking.Experience, error) {
	return t.experience(address)
}

func (t *tx) LockExperience(ctx context.Context, address string) (booking.Experience, error) {
	return t.experience(address)
}

func (t *tx) ExperiencesByOrganiser(ctx context.Context, organiser string) ([]booking.Experience, error) {
	return t.experiencesByOrganiser(organiser), nil
}

func (t *tx) Slot(ctx context.Context, address string) (booking.TimeSlot, error) {
	return t.slot(address)
}

func (t *tx) SlotsByExperience(ctx context.Context, experience string) ([]booking.TimeSlot, error) {
	return t.slotsByExperience(experience), nil
}

func (t *tx) Reservation(ctx context.Context, address string) (booking.Reservation, error) {
	return t.reservation(address)
}

func (t *tx) ReservationsByExperience(ctx context.Context, experience string) ([]booking.Reservation, error) {
	return t.reservationsWhere(func(r booking.Reservation) bool { return r.Experience == experience }), nil
}

func (t *tx) ReservationsByUser(ctx context.Context, user string) ([]booking.Reservation, error) {
	return t.reservationsWhere(func(r booking.Reservation) bool { return r.User == user }), nil
}

func (t *tx) Token(ctx context.Context, mint string) (booking.Token, error) {
	return t.token(mint)
}

func (t *tx) TokensByOwner(ctx context.Context, owner string) ([]booking.Token, error) {
	return t.tokensByOwner(owner), nil
}

func (t *tx) Metadata(ctx context.Context, mint string) (booking.TokenMetadata, error) {
	return t.meta(mint)
}

func (t *tx) Balance(ctx context.Context, account string) (uint64, error) {
	return t.balances[account], nil
}

func (t *tx) CreateExperience(ctx context.Context, e booking.Experience) error {
	if _, ok := t.experiences[e.Address]; ok {
		return booking.ErrAlreadyExists
	}
	t.experiences[e.Address] = e
	return nil
}

func (t *tx) CreateSlot(ctx context.Context, s booking.TimeSlot) error {
	if _, ok := t.slots[s.Address]; ok {
		return booking.ErrAlreadyExists
	}
	t.slots[s.Address] = s
	return nil
}

func (t *tx) UpdateSlot(ctx context.Context, s booking.TimeSlot) error {
	if _, ok := t.slots[s.Address]; !ok {
		return store.ErrNotFound
	}
	t.slots[s.Address] = s
	return nil
}

func (t *tx) PutReservation(ctx context.Context, r booking.Reservation) error {
	t.reservations[r.Address] = r
	return nil
}

func (t *tx) DeleteReservation(ctx context.Context, address string) error {
	if _, ok := t.reservations[address]; !ok {
		return store.ErrNotFound
	}
	delete(t.reservations, address)
	return nil
}

func (t *tx) CreateToken(ctx context.Context, tok booking.Token) error {
	if _, ok := t.tokens[tok.Mint]; ok {
		return booking.ErrAlreadyExists
	}
	t.tokens[tok.Mint] = tok
	return nil
}

func (t *tx) UpdateToken(ctx context.Context, tok booking.Token) error {
	if _, ok := t.tokens[tok.Mint]; !ok {
		return store.ErrNotFound
	}
	t.tokens[tok.Mint] = tok
	return nil
}

func (t *tx) CreateMetadata(ctx context.Context, m booking.TokenMetadata) error {
	if _, ok := t.metadata[m.Mint]; ok {
		return booking.ErrAlreadyExists
	}
	t.metadata[m.Mint] = m
	return nil
}

func (t *tx) Transfer(ctx context.Context, from, to string, amount uint64) error {
	if amount == 0 {
		return nil
	}
	if t.balances[from] < amount {
		return booking.ErrInsufficientFunds
	}
	if from == to {
		return nil
	}
	if t.balances[to] > MaxBalance-amount {
		return booking.ErrInvalidAmount
	}
	t.balances[from] -= amount
	t.balances[to] += amount
	return nil
}

func (t *tx) Emit(ctx context.Context, e booking.Event) error {
	e.ID = t.nextEventID
	t.nextEventID++
	if e.CreatedAt.IsZero() {
		e.CreatedAt = t.now()
	}
	t.events = append(t.events, e)
	return nil
}
