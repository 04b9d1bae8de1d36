package usecases

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/slotmint/internal/address"
	"github.com/example/slotmint/internal/domain/booking"
	"github.com/example/slotmint/internal/infrastructure/mint"
	"github.com/example/slotmint/internal/store"
	"github.com/example/slotmint/internal/store/memstore"
)

const (
	price   = uint64(1_000_000_000)
	organis = "organiser"
)

var (
	slotA = time.Unix(1680000000, 0).UTC()
	slotB = time.Unix(1680010000, 0).UTC()
)

type fixture struct {
	store  *memstore.Store
	now    time.Time
	exps   ExperienceManager
	slots  SlotManager
	engine ReservationEngine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{store: memstore.New(), now: time.Unix(1679000000, 0).UTC()}
	clock := func() time.Time { return f.now }
	f.exps = ExperienceManager{Store: f.store, Now: clock}
	f.slots = SlotManager{Store: f.store, Now: clock}
	f.engine = ReservationEngine{
		Store:  f.store,
		Minter: &mint.Minter{BaseURL: "https://tokens.example.test", Now: clock},
		Now:    clock,
	}
	return f
}

func (f *fixture) surfCamp(t *testing.T, feePercent uint8) booking.Experience {
	t.Helper()
	e, err := f.exps.Create(context.Background(), organis, CreateExperienceParams{
		Title:                  "Surf Camp",
		Location:               "Goa",
		Description:            "Three hours on the water",
		Price:                  price,
		CancellationFeePercent: feePercent,
	})
	require.NoError(t, err)
	return e
}

func (f *fixture) addSlot(t *testing.T, exp booking.Experience, start time.Time, p uint64) booking.TimeSlot {
	t.Helper()
	s, err := f.slots.AddTimeSlot(context.Background(), organis, exp.Address, start, start.Add(time.Hour), p)
	require.NoError(t, err)
	return s
}

func (f *fixture) fund(t *testing.T, account string, amount uint64) {
	t.Helper()
	require.NoError(t, f.engine.Deposit(context.Background(), account, amount))
}

func (f *fixture) balance(t *testing.T, account string) uint64 {
	t.Helper()
	b, err := f.engine.Balance(context.Background(), account)
	require.NoError(t, err)
	return b
}

func (f *fixture) slot(t *testing.T, exp booking.Experience, start time.Time) booking.TimeSlot {
	t.Helper()
	s, err := f.slots.Get(context.Background(), exp.Address, start)
	require.NoError(t, err)
	return s
}

func TestSurfCampScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	exp := f.surfCamp(t, 0)
	_, err := f.slots.AddTimeSlot(ctx, organis, exp.Address, slotA, time.Unix(1680003600, 0), price)
	require.NoError(t, err)
	f.fund(t, "bob", price)

	res, tok, err := f.engine.BookSlot(ctx, "bob", exp.Address, slotA)
	require.NoError(t, err)
	assert.True(t, res.Active)
	assert.Equal(t, address.Reservation(exp.Address, slotA), res.Address)
	assert.Equal(t, tok.Mint, res.TokenMint)

	s := f.slot(t, exp, slotA)
	assert.True(t, s.Booked)
	assert.Equal(t, "bob", s.Booker)

	tokens, err := f.engine.TokensByOwner(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, tokens, 1)
	assert.Equal(t, res.Address, tokens[0].Reservation)

	meta, err := f.engine.Metadata(ctx, tok.Mint)
	require.NoError(t, err)
	assert.Equal(t, "Surf Camp", meta.Name)
	assert.Equal(t, "Goa", meta.Symbol)
	assert.Equal(t, "https://tokens.example.test/"+tok.Mint+".json", meta.URI)

	assert.Equal(t, uint64(0), f.balance(t, "bob"))
	assert.Equal(t, price, f.balance(t, organis))

	f.fund(t, organis, price)
	_, _, err = f.engine.BookSlot(ctx, organis, exp.Address, slotA)
	assert.ErrorIs(t, err, booking.ErrUnauthorized)
}

func TestBookSlot_ConcurrentAtMostOneWins(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	exp := f.surfCamp(t, 0)
	f.addSlot(t, exp, slotA, price)

	const n = 16
	for i := range n {
		f.fund(t, fmt.Sprintf("user-%d", i), price)
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners []string
		losers  int
	)
	for i := range n {
		wg.Add(1)
		go func(u string) {
			defer wg.Done()
			_, _, err := f.engine.BookSlot(ctx, u, exp.Address, slotA)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners = append(winners, u)
			case errors.Is(err, booking.ErrAlreadyBooked):
				losers++
			default:
				t.Errorf("unexpected error for %s: %v", u, err)
			}
		}(fmt.Sprintf("user-%d", i))
	}
	wg.Wait()

	require.Len(t, winners, 1)
	assert.Equal(t, n-1, losers)
	assert.Equal(t, winners[0], f.slot(t, exp, slotA).Booker)
	assert.Equal(t, price, f.balance(t, organis))
}

func TestBookCancelRebook(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	exp := f.surfCamp(t, 10)
	f.addSlot(t, exp, slotA, price)
	f.fund(t, "bob", price)
	f.fund(t, "carol", price)

	_, bobTok, err := f.engine.BookSlot(ctx, "bob", exp.Address, slotA)
	require.NoError(t, err)

	out, err := f.engine.CancelReservation(ctx, "bob", exp.Address, slotA)
	require.NoError(t, err)
	assert.Equal(t, uint64(100_000_000), out.Fee)
	assert.Equal(t, uint64(900_000_000), out.Refund)
	assert.False(t, out.Reservation.Active)
	assert.False(t, f.slot(t, exp, slotA).Booked)
	assert.Equal(t, uint64(900_000_000), f.balance(t, "bob"))
	assert.Equal(t, uint64(100_000_000), f.balance(t, organis))

	res, carolTok, err := f.engine.BookSlot(ctx, "carol", exp.Address, slotA)
	require.NoError(t, err)
	assert.Equal(t, "carol", res.User)
	assert.Equal(t, "carol", f.slot(t, exp, slotA).Booker)
	assert.NotEqual(t, bobTok.Mint, carolTok.Mint)

	bobTokens, err := f.engine.TokensByOwner(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, bobTokens, 1, "cancelled booking keeps its token")

	bobRes, err := f.engine.ListByBooker(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, bobRes, 1, "cancelled reservation survives the rebooking")
	assert.False(t, bobRes[0].Active)
	assert.Equal(t, bobTok.Mint, bobRes[0].TokenMint)
	assert.Equal(t, address.ArchivedReservation(exp.Address, slotA, bobTok.Mint), bobRes[0].Address)

	pointed, err := f.store.Reservation(ctx, bobTokens[0].Reservation)
	require.NoError(t, err)
	assert.Equal(t, "bob", pointed.User)
	assert.Equal(t, bobTok.Mint, pointed.TokenMint)

	current, err := f.engine.Get(ctx, exp.Address, slotA)
	require.NoError(t, err)
	assert.Equal(t, "carol", current.User)
	assert.Equal(t, carolTok.Mint, current.TokenMint)

	byExp, err := f.engine.ListByExperience(ctx, exp.Address)
	require.NoError(t, err)
	require.Len(t, byExp, 2)
	active := 0
	for _, r := range byExp {
		if r.Active {
			active++
			assert.Equal(t, "carol", r.User)
		}
	}
	assert.Equal(t, 1, active)
}

func TestBookCancelRebook_RepeatedCancellationsKeepHistory(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	exp := f.surfCamp(t, 0)
	f.addSlot(t, exp, slotA, price)
	f.fund(t, "bob", 3*price)

	var mints []string
	for range 3 {
		_, tok, err := f.engine.BookSlot(ctx, "bob", exp.Address, slotA)
		require.NoError(t, err)
		_, err = f.engine.CancelReservation(ctx, "bob", exp.Address, slotA)
		require.NoError(t, err)
		mints = append(mints, tok.Mint)
	}

	list, err := f.engine.ListByBooker(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, list, 3)
	seen := map[string]bool{}
	for _, r := range list {
		assert.False(t, r.Active)
		seen[r.TokenMint] = true
	}
	for _, m := range mints {
		assert.True(t, seen[m], "reservation for token %s kept", m)
	}
}

func TestCancelReservation_Errors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	exp := f.surfCamp(t, 10)
	f.addSlot(t, exp, slotA, price)
	f.fund(t, "bob", price)

	_, err := f.engine.CancelReservation(ctx, "bob", exp.Address, slotA)
	assert.ErrorIs(t, err, booking.ErrInvalidReservation)

	_, _, err = f.engine.BookSlot(ctx, "bob", exp.Address, slotA)
	require.NoError(t, err)

	_, err = f.engine.CancelReservation(ctx, "mallory", exp.Address, slotA)
	assert.ErrorIs(t, err, booking.ErrInvalidReservation)
	_, err = f.engine.CancelReservation(ctx, organis, exp.Address, slotA)
	assert.ErrorIs(t, err, booking.ErrInvalidReservation)

	saved := f.now
	f.now = slotA.Add(-time.Hour)
	_, err = f.engine.CancelReservation(ctx, "bob", exp.Address, slotA)
	assert.ErrorIs(t, err, booking.ErrTooLateToCancel)
	f.now = saved

	_, err = f.engine.CancelReservation(ctx, "bob", exp.Address, slotA)
	require.NoError(t, err)
	_, err = f.engine.CancelReservation(ctx, "bob", exp.Address, slotA)
	assert.ErrorIs(t, err, booking.ErrAlreadyCancelled)
}

func TestCancelReservation_CustomCutoff(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.engine.CancelCutoff = time.Minute
	exp := f.surfCamp(t, 0)
	f.addSlot(t, exp, slotA, price)
	f.fund(t, "bob", price)
	_, _, err := f.engine.BookSlot(ctx, "bob", exp.Address, slotA)
	require.NoError(t, err)

	f.now = slotA.Add(-time.Hour)
	out, err := f.engine.CancelReservation(ctx, "bob", exp.Address, slotA)
	require.NoError(t, err)
	assert.Equal(t, price, out.Refund)
}

func TestUpdateReservation_MovesToNewSlot(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	exp := f.surfCamp(t, 0)
	f.addSlot(t, exp, slotA, price)
	b := f.addSlot(t, exp, slotB, price+500)
	f.fund(t, "bob", price+1000)

	orig, tok, err := f.engine.BookSlot(ctx, "bob", exp.Address, slotA)
	require.NoError(t, err)

	moved, err := f.engine.UpdateReservation(ctx, "bob", exp.Address, slotA, slotB)
	require.NoError(t, err)

	assert.False(t, f.slot(t, exp, slotA).Booked)
	assert.Empty(t, f.slot(t, exp, slotA).Booker)
	assert.True(t, f.slot(t, exp, slotB).Booked)
	assert.Equal(t, "bob", f.slot(t, exp, slotB).Booker)

	assert.Equal(t, address.Reservation(exp.Address, slotB), moved.Address)
	assert.Equal(t, b.StartTime, moved.StartTime)
	assert.Equal(t, b.EndTime, moved.EndTime)
	assert.Equal(t, tok.Mint, moved.TokenMint)
	assert.True(t, moved.Active)

	_, err = f.engine.Get(ctx, exp.Address, slotA)
	assert.ErrorIs(t, err, store.ErrNotFound)
	got, err := f.engine.Get(ctx, exp.Address, slotB)
	require.NoError(t, err)
	assert.Equal(t, orig.CreatedAt, got.CreatedAt)

	tokens, err := f.engine.TokensByOwner(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, tokens, 1)
	assert.Equal(t, moved.Address, tokens[0].Reservation)

	assert.Equal(t, uint64(500), f.balance(t, "bob"))
	assert.Equal(t, price+500, f.balance(t, organis))

	_, err = f.engine.CancelReservation(ctx, "bob", exp.Address, slotB)
	require.NoError(t, err)
	assert.False(t, f.slot(t, exp, slotB).Booked)
}

func TestUpdateReservation_OntoCancelledSlotKeepsHistory(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	exp := f.surfCamp(t, 0)
	f.addSlot(t, exp, slotA, price)
	f.addSlot(t, exp, slotB, price)
	f.fund(t, "bob", price)
	f.fund(t, "carol", price)

	_, carolTok, err := f.engine.BookSlot(ctx, "carol", exp.Address, slotB)
	require.NoError(t, err)
	_, err = f.engine.CancelReservation(ctx, "carol", exp.Address, slotB)
	require.NoError(t, err)

	_, bobTok, err := f.engine.BookSlot(ctx, "bob", exp.Address, slotA)
	require.NoError(t, err)
	moved, err := f.engine.UpdateReservation(ctx, "bob", exp.Address, slotA, slotB)
	require.NoError(t, err)
	assert.Equal(t, address.Reservation(exp.Address, slotB), moved.Address)
	assert.Equal(t, bobTok.Mint, moved.TokenMint)

	carolRes, err := f.engine.ListByBooker(ctx, "carol")
	require.NoError(t, err)
	require.Len(t, carolRes, 1)
	assert.False(t, carolRes[0].Active)
	assert.Equal(t, carolTok.Mint, carolRes[0].TokenMint)

	carolTokens, err := f.engine.TokensByOwner(ctx, "carol")
	require.NoError(t, err)
	require.Len(t, carolTokens, 1)
	pointed, err := f.store.Reservation(ctx, carolTokens[0].Reservation)
	require.NoError(t, err)
	assert.Equal(t, "carol", pointed.User)
	assert.Equal(t, carolTok.Mint, pointed.TokenMint)

	bobTokens, err := f.engine.TokensByOwner(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, bobTokens, 1)
	assert.Equal(t, moved.Address, bobTokens[0].Reservation)
}

func TestUpdateReservation_Errors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	exp := f.surfCamp(t, 0)
	f.addSlot(t, exp, slotA, price)
	f.addSlot(t, exp, slotB, price)
	f.fund(t, "bob", price)
	f.fund(t, "carol", price)

	_, err := f.engine.UpdateReservation(ctx, "bob", exp.Address, slotA, slotB)
	assert.ErrorIs(t, err, booking.ErrInvalidReservation)

	_, _, err = f.engine.BookSlot(ctx, "bob", exp.Address, slotA)
	require.NoError(t, err)
	_, _, err = f.engine.BookSlot(ctx, "carol", exp.Address, slotB)
	require.NoError(t, err)

	_, err = f.engine.UpdateReservation(ctx, "carol", exp.Address, slotA, slotB)
	assert.ErrorIs(t, err, booking.ErrUnauthorized)
	_, err = f.engine.UpdateReservation(ctx, "bob", exp.Address, slotA, slotB)
	assert.ErrorIs(t, err, booking.ErrAlreadyBooked)
	_, err = f.engine.UpdateReservation(ctx, "bob", exp.Address, slotA, slotA)
	assert.ErrorIs(t, err, booking.ErrAlreadyBooked)
	_, err = f.engine.UpdateReservation(ctx, "bob", exp.Address, slotA, slotA.Add(30*time.Minute))
	assert.ErrorIs(t, err, booking.ErrInvalidTimeSlot)

	_, err = f.engine.CancelReservation(ctx, "bob", exp.Address, slotA)
	require.NoError(t, err)
	_, err = f.engine.UpdateReservation(ctx, "bob", exp.Address, slotA, slotB)
	assert.ErrorIs(t, err, booking.ErrAlreadyCancelled)

	s := f.slot(t, exp, slotB)
	assert.Equal(t, "carol", s.Booker)
}

func TestBookSlot_Errors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	exp := f.surfCamp(t, 0)
	f.addSlot(t, exp, slotA, price)
	f.fund(t, "bob", price)

	_, _, err := f.engine.BookSlot(ctx, "bob", exp.Address, slotB)
	assert.ErrorIs(t, err, booking.ErrInvalidTimeSlot)
	_, _, err = f.engine.BookSlot(ctx, "bob", "missing", slotA)
	assert.ErrorIs(t, err, booking.ErrInvalidExperience)

	f.now = slotA
	_, _, err = f.engine.BookSlot(ctx, "bob", exp.Address, slotA)
	assert.ErrorIs(t, err, booking.ErrInvalidTimeSlot)
}

func TestBookSlot_InsufficientFundsLeavesNoWrites(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	exp := f.surfCamp(t, 0)
	f.addSlot(t, exp, slotA, price)
	f.fund(t, "bob", price-1)

	before, err := f.store.PendingEvents(ctx, 100, 10)
	require.NoError(t, err)

	_, _, err = f.engine.BookSlot(ctx, "bob", exp.Address, slotA)
	require.ErrorIs(t, err, booking.ErrInsufficientFunds)

	assert.False(t, f.slot(t, exp, slotA).Booked)
	_, err = f.engine.Get(ctx, exp.Address, slotA)
	assert.ErrorIs(t, err, store.ErrNotFound)
	tokens, _ := f.engine.TokensByOwner(ctx, "bob")
	assert.Empty(t, tokens)
	assert.Equal(t, price-1, f.balance(t, "bob"))
	after, _ := f.store.PendingEvents(ctx, 100, 10)
	assert.Len(t, after, len(before))
}

type failingMinter struct{ err error }

func (m failingMinter) Mint(context.Context, store.Tx, booking.MintRequest) (booking.Token, booking.TokenMetadata, error) {
	return booking.Token{}, booking.TokenMetadata{}, m.err
}

func TestBookSlot_MintFailureAbortsBooking(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	exp := f.surfCamp(t, 0)
	f.addSlot(t, exp, slotA, price)
	f.fund(t, "bob", price)
	cause := errors.New("metadata service unavailable")
	f.engine.Minter = failingMinter{err: cause}

	_, _, err := f.engine.BookSlot(ctx, "bob", exp.Address, slotA)
	require.ErrorIs(t, err, booking.ErrMetadataCreationFailed)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "METADATA_CREATION_FAILED", booking.Code(err))

	assert.False(t, f.slot(t, exp, slotA).Booked)
	_, err = f.engine.Get(ctx, exp.Address, slotA)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Equal(t, price, f.balance(t, "bob"))
	assert.Equal(t, uint64(0), f.balance(t, organis))
}

func TestBookSlot_MintConflictStaysRetryable(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	exp := f.surfCamp(t, 0)
	f.addSlot(t, exp, slotA, price)
	f.fund(t, "bob", price)
	f.engine.Minter = failingMinter{err: fmt.Errorf("%w: deadlock detected", store.ErrConflict)}

	_, _, err := f.engine.BookSlot(ctx, "bob", exp.Address, slotA)
	require.ErrorIs(t, err, store.ErrConflict)
	assert.NotErrorIs(t, err, booking.ErrMetadataCreationFailed)
	assert.Equal(t, price, f.balance(t, "bob"))
}

func TestBookSlot_EmitsReservationCreated(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	exp := f.surfCamp(t, 0)
	f.addSlot(t, exp, slotA, price)
	f.fund(t, "bob", price)

	res, tok, err := f.engine.BookSlot(ctx, "bob", exp.Address, slotA)
	require.NoError(t, err)

	events, err := f.store.PendingEvents(ctx, 100, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, booking.EventExperienceCreated, events[0].Kind)
	assert.Equal(t, booking.EventReservationCreated, events[1].Kind)

	var payload booking.ReservationCreated
	require.NoError(t, events[1].Decode(&payload))
	assert.Equal(t, "bob", payload.User)
	assert.Equal(t, res.Address, payload.Reservation)
	assert.Equal(t, tok.Mint, payload.TokenMint)
	assert.Equal(t, slotA.Unix(), payload.StartTime)
	assert.Equal(t, tok.Mint, payload.Metadata.Mint)
}

func TestDeposit_Validation(t *testing.T) {
	f := newFixture(t)
	assert.ErrorIs(t, f.engine.Deposit(context.Background(), "bob", 0), booking.ErrInvalidAmount)
	assert.ErrorIs(t, f.engine.Deposit(context.Background(), "", 10), booking.ErrUnauthorized)
}
