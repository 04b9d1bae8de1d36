// Package memstore is an in-process store.Store. Transactions are serialised
// by a single mutex and run against a copy of the state that replaces the
// live state only when the transaction function succeeds.
package memstore

import (
	"cmp"
	"context"
	"maps"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/example/slotmint/internal/domain/booking"
	"github.com/example/slotmint/internal/store"
)

// MaxBalance is the largest balance an account may hold, the range of the
// Postgres BIGINT column.
const MaxBalance = uint64(math.MaxInt64)

type state struct {
	experiences  map[string]booking.Experience
	slots        map[string]booking.TimeSlot
	reservations map[string]booking.Reservation
	tokens       map[string]booking.Token
	metadata     map[string]booking.TokenMetadata
	balances     map[string]uint64
	events       []booking.Event
	nextEventID  int64
}

func newState() *state {
	return &state{
		experiences:  map[string]booking.Experience{},
		slots:        map[string]booking.TimeSlot{},
		reservations: map[string]booking.Reservation{},
		tokens:       map[string]booking.Token{},
		metadata:     map[string]booking.TokenMetadata{},
		balances:     map[string]uint64{},
		nextEventID:  1,
	}
}

func (s *state) clone() *state {
	return &state{
		experiences:  maps.Clone(s.experiences),
		slots:        maps.Clone(s.slots),
		reservations: maps.Clone(s.reservations),
		tokens:       maps.Clone(s.tokens),
		metadata:     maps.Clone(s.metadata),
		balances:     maps.Clone(s.balances),
		events:       slices.Clone(s.events),
		nextEventID:  s.nextEventID,
	}
}

type Store struct {
	mu  sync.Mutex
	st  *state
	now func() time.Time
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{st: newState(), now: time.Now}
}

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	t := &tx{state: s.st.clone(), now: s.now}
	if err := fn(ctx, t); err != nil {
		return err
	}
	s.st = t.state
	return nil
}

func (s *Store) Deposit(ctx context.Context, account string, amount uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if amount == 0 || amount > MaxBalance || s.st.balances[account] > MaxBalance-amount {
		return booking.ErrInvalidAmount
	}
	next := s.st.clone()
	next.balances[account] += amount
	s.st = next
	return nil
}

func (s *Store) read() *state {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st
}

// Committed states are never mutated in place, so reads can use the snapshot
// returned by read() without holding the lock.

func (s *Store) Experience(ctx context.Context, address string) (booking.Experience, error) {
	return s.read().experience(address)
}

func (s *Store) ExperiencesByOrganiser(ctx context.Context, organiser string) ([]booking.Experience, error) {
	return s.read().experiencesByOrganiser(organiser), nil
}

func (s *Store) Slot(ctx context.Context, address string) (booking.TimeSlot, error) {
	return s.read().slot(address)
}

func (s *Store) SlotsByExperience(ctx context.Context, experience string) ([]booking.TimeSlot, error) {
	return s.read().slotsByExperience(experience), nil
}

func (s *Store) Reservation(ctx context.Context, address string) (booking.Reservation, error) {
	return s.read().reservation(address)
}

func (s *Store) ReservationsByExperience(ctx context.Context, experience string) ([]booking.Reservation, error) {
	return s.read().reservationsWhere(func(r booking.Reservation) bool { return r.Experience == experience }), nil
}

func (s *Store) ReservationsByUser(ctx context.Context, user string) ([]booking.Reservation, error) {
	return s.read().reservationsWhere(func(r booking.Reservation) bool { return r.User == user }), nil
}

func (s *Store) Token(ctx context.Context, mint string) (booking.Token, error) {
	return s.read().token(mint)
}

func (s *Store) TokensByOwner(ctx context.Context, owner string) ([]booking.Token, error) {
	return s.read().tokensByOwner(owner), nil
}

func (s *Store) Metadata(ctx context.Context, mint string) (booking.TokenMetadata, error) {
	return s.read().meta(mint)
}

func (s *Store) Balance(ctx context.Context, account string) (uint64, error) {
	return s.read().balances[account], nil
}

func (s *Store) PendingEvents(ctx context.Context, limit, maxAttempts int) ([]booking.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []booking.Event
	for _, e := range s.st.events {
		if len(out) >= limit {
			break
		}
		if e.Attempts < maxAttempts {
			out = append(out, e)
		}
	}
	return out, nil
}

// MarkPublished drops the entry; memstore keeps no delivery history.
func (s *Store) MarkPublished(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.st.clone()
	next.events = slices.DeleteFunc(next.events, func(e booking.Event) bool { return e.ID == id })
	s.st = next
	return nil
}

func (s *Store) MarkFailed(ctx context.Context, id int64, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.st.clone()
	for i := range next.events {
		if next.events[i].ID == id {
			next.events[i].Attempts++
			next.events[i].LastError = reason
		}
	}
	s.st = next
	return nil
}

func (s *state) experience(address string) (booking.Experience, error) {
	e, ok := s.experiences[address]
	if !ok {
		return booking.Experience{}, store.ErrNotFound
	}
	return e, nil
}

func (s *state) experiencesByOrganiser(organiser string) []booking.Experience {
	var out []booking.Experience
	for _, e := range s.experiences {
		if e.Organiser == organiser {
			out = append(out, e)
		}
	}
	slices.SortFunc(out, func(a, b booking.Experience) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), cmp.Compare(a.Title, b.Title))
	})
	return out
}

func (s *state) slot(address string) (booking.TimeSlot, error) {
	sl, ok := s.slots[address]
	if !ok {
		return booking.TimeSlot{}, store.ErrNotFound
	}
	return sl, nil
}

func (s *state) slotsByExperience(experience string) []booking.TimeSlot {
	var out []booking.TimeSlot
	for _, sl := range s.slots {
		if sl.Experience == experience {
			out = append(out, sl)
		}
	}
	slices.SortFunc(out, func(a, b booking.TimeSlot) int { return a.StartTime.Compare(b.StartTime) })
	return out
}

func (s *state) reservation(address string) (booking.Reservation, error) {
	r, ok := s.reservations[address]
	if !ok {
		return booking.Reservation{}, store.ErrNotFound
	}
	return r, nil
}

func (s *state) reservationsWhere(match func(booking.Reservation) bool) []booking.Reservation {
	var out []booking.Reservation
	for _, r := range s.reservations {
		if match(r) {
			out = append(out, r)
		}
	}
	slices.SortFunc(out, func(a, b booking.Reservation) int {
		return cmp.Or(a.StartTime.Compare(b.StartTime), cmp.Compare(a.Address, b.Address))
	})
	return out
}

func (s *state) token(mint string) (booking.Token, error) {
	t, ok := s.tokens[mint]
	if !ok {
		return booking.Token{}, store.ErrNotFound
	}
	return t, nil
}

func (s *state) tokensByOwner(owner string) []booking.Token {
	var out []booking.Token
	for _, t := range s.tokens {
		if t.Owner == owner {
			out = append(out, t)
		}
	}
	slices.SortFunc(out, func(a, b booking.Token) int {
		return cmp.Or(a.MintedAt.Compare(b.MintedAt), cmp.Compare(a.Mint, b.Mint))
	})
	return out
}

func (s *state) meta(mint string) (booking.TokenMetadata, error) {
	m, ok := s.metadata[mint]
	if !ok {
		return booking.TokenMetadata{}, store.ErrNotFound
	}
	return m, nil
}
