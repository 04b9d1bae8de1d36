package postgres_test

import (
	"context"
	"errors"
	"math"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/slotmint/internal/application/usecases"
	"github.com/example/slotmint/internal/db"
	"github.com/example/slotmint/internal/domain/booking"
	"github.com/example/slotmint/internal/domain/user"
	"github.com/example/slotmint/internal/infrastructure/mint"
	"github.com/example/slotmint/internal/infrastructure/postgres"
	"github.com/example/slotmint/internal/internaltypes"
	"github.com/example/slotmint/internal/migrate"
	"github.com/example/slotmint/internal/store"
)

// openDB connects to DATABASE_URL and resets every table. The tests only run
// with INTEGRATION_TEST=true.
func openDB(t *testing.T) *db.DB {
	t.Helper()
	if os.Getenv("INTEGRATION_TEST") != "true" {
		t.Skip("set INTEGRATION_TEST=true and DATABASE_URL to run")
	}
	ctx := context.Background()
	d, err := db.Open(ctx, os.Getenv("DATABASE_URL"), 8)
	require.NoError(t, err)
	t.Cleanup(d.Close)

	_, err = migrate.Up(ctx, d)
	require.NoError(t, err)
	require.NoError(t, d.Exec(ctx, `TRUNCATE users, experiences, time_slots, reservations, tokens, token_metadata, balances, outbox RESTART IDENTITY`))
	return d
}

func TestStore_BookCancelRoundTrip(t *testing.T) {
	ctx := context.Background()
	st := postgres.NewStore(openDB(t))
	now := time.Now().UTC()
	clock := func() time.Time { return now }

	exps := usecases.ExperienceManager{Store: st, Now: clock}
	slots := usecases.SlotManager{Store: st, Now: clock}
	eng := usecases.ReservationEngine{Store: st, Minter: &mint.Minter{BaseURL: "http://localhost/tokens", Now: clock}, Now: clock}

	e, err := exps.Create(ctx, "organiser", usecases.CreateExperienceParams{
		Title: "Surf Camp", Location: "Goa", Description: "Waves", Price: 1000, CancellationFeePercent: 10,
	})
	require.NoError(t, err)
	_, err = exps.Create(ctx, "organiser", usecases.CreateExperienceParams{
		Title: "Surf Camp", Location: "Goa", Description: "Again", Price: 1000,
	})
	assert.ErrorIs(t, err, booking.ErrAlreadyExists)

	start := booking.Truncate(now.Add(72 * time.Hour))
	_, err = slots.AddTimeSlot(ctx, "organiser", e.Address, start, start.Add(time.Hour), 1000)
	require.NoError(t, err)
	_, err = slots.AddTimeSlot(ctx, "organiser", e.Address, start.Add(30*time.Minute), start.Add(2*time.Hour), 1000)
	assert.ErrorIs(t, err, booking.ErrOverlappingTimeSlot)

	require.NoError(t, eng.Deposit(ctx, "alice", 5000))
	res, tok, err := eng.BookSlot(ctx, "alice", e.Address, start)
	require.NoError(t, err)
	assert.Equal(t, tok.Mint, res.TokenMint)

	meta, err := eng.Metadata(ctx, tok.Mint)
	require.NoError(t, err)
	assert.Equal(t, start, meta.StartTime.UTC())

	out, err := eng.CancelReservation(ctx, "alice", e.Address, start)
	require.NoError(t, err)
	assert.Equal(t, uint64(900), out.Refund)

	bal, err := eng.Balance(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, uint64(4900), bal)
	bal, err = eng.Balance(ctx, "organiser")
	require.NoError(t, err)
	assert.Equal(t, uint64(100), bal)

	pending, err := st.PendingEvents(ctx, 10, 5)
	require.NoError(t, err)
	require.Len(t, pending, 3)
	assert.Equal(t, booking.EventExperienceCreated, pending[0].Kind)
	require.NoError(t, st.MarkPublished(ctx, pending[0].ID))
	for _, e := range pending[1:] {
		require.NoError(t, st.MarkFailed(ctx, e.ID, "sink down"))
	}
	pending, err = st.PendingEvents(ctx, 10, 5)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, 1, pending[0].Attempts)
	assert.Equal(t, "sink down", pending[0].LastError)
}

func TestStore_PendingEventsAreClaimedOnce(t *testing.T) {
	ctx := context.Background()
	d := openDB(t)
	first := postgres.NewStore(d)
	second := postgres.NewStore(d)

	require.NoError(t, first.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		for range 4 {
			if err := tx.Emit(ctx, booking.Event{Kind: booking.EventReservationCreated, Payload: []byte(`{}`)}); err != nil {
				return err
			}
		}
		return nil
	}))

	var wg sync.WaitGroup
	batches := make([][]booking.Event, 2)
	for i, st := range []*postgres.Store{first, second} {
		wg.Add(1)
		go func(i int, st *postgres.Store) {
			defer wg.Done()
			var err error
			batches[i], err = st.PendingEvents(ctx, 10, 5)
			assert.NoError(t, err)
		}(i, st)
	}
	wg.Wait()

	seen := map[int64]int{}
	for _, b := range batches {
		for _, e := range b {
			seen[e.ID]++
		}
	}
	assert.Len(t, seen, 4)
	for id, n := range seen {
		assert.Equal(t, 1, n, "event %d handed to both relays", id)
	}

	again, err := second.PendingEvents(ctx, 10, 5)
	require.NoError(t, err)
	assert.Empty(t, again)

	released := append(batches[0], batches[1]...)[0]
	require.NoError(t, first.MarkFailed(ctx, released.ID, "retry"))
	again, err = second.PendingEvents(ctx, 10, 5)
	require.NoError(t, err)
	require.Len(t, again, 1)
	assert.Equal(t, released.ID, again[0].ID)
}

func TestStore_ExpiredClaimIsRetaken(t *testing.T) {
	ctx := context.Background()
	st := postgres.NewStore(openDB(t))
	st.ClaimTTL = 50 * time.Millisecond

	require.NoError(t, st.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.Emit(ctx, booking.Event{Kind: booking.EventReservationCancelled, Payload: []byte(`{}`)})
	}))
	got, err := st.PendingEvents(ctx, 10, 5)
	require.NoError(t, err)
	require.Len(t, got, 1)

	require.Eventually(t, func() bool {
		again, err := st.PendingEvents(ctx, 10, 5)
		return err == nil && len(again) == 1
	}, 2*time.Second, 20*time.Millisecond)
}

func TestStore_RebookKeepsCancelledReservation(t *testing.T) {
	ctx := context.Background()
	st := postgres.NewStore(openDB(t))
	now := time.Now().UTC()
	clock := func() time.Time { return now }

	exps := usecases.ExperienceManager{Store: st, Now: clock}
	slots := usecases.SlotManager{Store: st, Now: clock}
	eng := usecases.ReservationEngine{Store: st, Minter: &mint.Minter{BaseURL: "http://localhost/tokens", Now: clock}, Now: clock}

	e, err := exps.Create(ctx, "organiser", usecases.CreateExperienceParams{
		Title: "Kayak", Location: "Fjord", Description: "Calm", Price: 100,
	})
	require.NoError(t, err)
	start := booking.Truncate(now.Add(72 * time.Hour))
	_, err = slots.AddTimeSlot(ctx, "organiser", e.Address, start, start.Add(time.Hour), 100)
	require.NoError(t, err)
	require.NoError(t, eng.Deposit(ctx, "bob", 100))
	require.NoError(t, eng.Deposit(ctx, "carol", 100))

	_, bobTok, err := eng.BookSlot(ctx, "bob", e.Address, start)
	require.NoError(t, err)
	_, err = eng.CancelReservation(ctx, "bob", e.Address, start)
	require.NoError(t, err)
	_, _, err = eng.BookSlot(ctx, "carol", e.Address, start)
	require.NoError(t, err)

	list, err := eng.ListByBooker(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.False(t, list[0].Active)
	assert.Equal(t, bobTok.Mint, list[0].TokenMint)

	tokens, err := eng.TokensByOwner(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, tokens, 1)
	pointed, err := st.Reservation(ctx, tokens[0].Reservation)
	require.NoError(t, err)
	assert.Equal(t, "bob", pointed.User)
	assert.Equal(t, bobTok.Mint, pointed.TokenMint)
}

func TestStore_ConcurrentBookingHasOneWinner(t *testing.T) {
	ctx := context.Background()
	st := postgres.NewStore(openDB(t))
	now := time.Now().UTC()
	clock := func() time.Time { return now }

	exps := usecases.ExperienceManager{Store: st, Now: clock}
	slots := usecases.SlotManager{Store: st, Now: clock}
	eng := usecases.ReservationEngine{Store: st, Minter: &mint.Minter{BaseURL: "http://localhost/tokens", Now: clock}, Now: clock}

	e, err := exps.Create(ctx, "organiser", usecases.CreateExperienceParams{
		Title: "Dive", Location: "Reef", Description: "Deep", Price: 10,
	})
	require.NoError(t, err)
	start := booking.Truncate(now.Add(48 * time.Hour))
	_, err = slots.AddTimeSlot(ctx, "organiser", e.Address, start, start.Add(time.Hour), 10)
	require.NoError(t, err)

	users := []string{"u1", "u2", "u3", "u4", "u5", "u6"}
	for _, u := range users {
		require.NoError(t, eng.Deposit(ctx, u, 10))
	}

	var wg sync.WaitGroup
	errs := make([]error, len(users))
	for i, u := range users {
		wg.Add(1)
		go func(i int, u string) {
			defer wg.Done()
			_, _, errs[i] = eng.BookSlot(ctx, u, e.Address, start)
		}(i, u)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.True(t, errors.Is(err, booking.ErrAlreadyBooked) || errors.Is(err, store.ErrConflict), err)
	}
	assert.Equal(t, 1, wins)
}

func TestStore_DepositRejectsOverflow(t *testing.T) {
	ctx := context.Background()
	st := postgres.NewStore(openDB(t))

	require.NoError(t, st.Deposit(ctx, "whale", 1<<62))
	assert.ErrorIs(t, st.Deposit(ctx, "whale", 1<<62), booking.ErrInvalidAmount)
	assert.ErrorIs(t, st.Deposit(ctx, "whale", 0), booking.ErrInvalidAmount)
}

func TestStore_TransferRejectsCreditOverflow(t *testing.T) {
	ctx := context.Background()
	st := postgres.NewStore(openDB(t))

	require.NoError(t, st.Deposit(ctx, "org", math.MaxInt64))
	require.NoError(t, st.Deposit(ctx, "alice", 10))
	err := st.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.Transfer(ctx, "alice", "org", 1)
	})
	assert.ErrorIs(t, err, booking.ErrInvalidAmount)

	bal, err := st.Balance(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, uint64(10), bal)
}

func TestUserRepo(t *testing.T) {
	ctx := context.Background()
	d := openDB(t)
	repo := postgres.NewUserRepo(d.Pool())

	u, err := usecases.NewUser("alice", "correct horse")
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, u))
	assert.ErrorIs(t, repo.Create(ctx, u), user.ErrUsernameTaken)

	got, err := repo.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	_, err = repo.GetByUsername(ctx, "nobody")
	assert.ErrorIs(t, err, internaltypes.ErrNotFound)
}
