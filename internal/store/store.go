// Package store defines the key-addressed record store the booking core runs
// on. A transaction applies all of its writes or none of them, and a create
// aimed at an occupied key fails with booking.ErrAlreadyExists.
package store

import (
	"context"

	"github.com/example/slotmint/internal/domain/booking"
	"github.com/example/slotmint/internal/internaltypes"
)

var (
	ErrNotFound = internaltypes.ErrNotFound
	// ErrConflict is returned when the store rejected a transaction because a
	// concurrent one touched the same records. Callers retry with fresh state.
	ErrConflict = internaltypes.ErrConflict
)

// Records is the read side. Inside a Tx, single-record reads lock the record
// until the transaction ends.
type Records interface {
	Experience(ctx context.Context, address string) (booking.Experience, error)
	ExperiencesByOrganiser(ctx context.Context, organiser string) ([]booking.Experience, error)
	Slot(ctx context.Context, address string) (booking.TimeSlot, error)
	SlotsByExperience(ctx context.Context, experience string) ([]booking.TimeSlot, error)
	Reservation(ctx context.Context, address string) (booking.Reservation, error)
	ReservationsByExperience(ctx context.Context, experience string) ([]booking.Reservation, error)
	ReservationsByUser(ctx context.Context, user string) ([]booking.Reservation, error)
	Token(ctx context.Context, mint string) (booking.Token, error)
	TokensByOwner(ctx context.Context, owner string) ([]booking.Token, error)
	Metadata(ctx context.Context, mint string) (booking.TokenMetadata, error)
	// Balance returns 0 for unknown accounts.
	Balance(ctx context.Context, account string) (uint64, error)
}

type Tx interface {
	Records

	// LockExperience is Experience with an exclusive lock, used to serialise
	// changes to the set of slots of one experience.
	LockExperience(ctx context.Context, address string) (booking.Experience, error)

	CreateExperience(ctx context.Context, e booking.Experience) error
	CreateSlot(ctx context.Context, s booking.TimeSlot) error
	UpdateSlot(ctx context.Context, s booking.TimeSlot) error
	// PutReservation inserts or overwrites the reservation at r.Address.
	PutReservation(ctx context.Context, r booking.Reservation) error
	DeleteReservation(ctx context.Context, address string) error
	CreateToken(ctx context.Context, t booking.Token) error
	UpdateToken(ctx context.Context, t booking.Token) error
	CreateMetadata(ctx context.Context, m booking.TokenMetadata) error
	// Transfer moves amount between balances, failing with
	// booking.ErrInsufficientFunds if from cannot cover it and with
	// booking.ErrInvalidAmount if to would exceed the balance ceiling.
	Transfer(ctx context.Context, from, to string, amount uint64) error
	// Emit queues an advisory notification that becomes visible to the
	// outbox only if the transaction commits.
	Emit(ctx context.Context, e booking.Event) error
}

type Outbox interface {
	// PendingEvents returns unpublished events in id order. A shared store
	// may claim the returned rows so concurrent relays do not see them
	// again until MarkFailed releases them or the claim lapses.
	PendingEvents(ctx context.Context, limit, maxAttempts int) ([]booking.Event, error)
	MarkPublished(ctx context.Context, id int64) error
	MarkFailed(ctx context.Context, id int64, reason string) error
}

type Store interface {
	Records
	Outbox

	// InTx runs fn in a transaction. If fn returns an error nothing it wrote
	// is kept and the error is returned unchanged.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	Deposit(ctx context.Context, account string, amount uint64) error
}
