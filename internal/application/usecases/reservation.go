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

const DefaultCancelCutoff = 24 * time.Hour

// Minter issues the ownership token of a booking inside the booking's
// transaction.
type Minter interface {
	Mint(ctx context.Context, tx store.Tx, req booking.MintRequest) (booking.Token, booking.TokenMetadata, error)
}

// ReservationEngine books, cancels and relocates reservations.
//
// Each operation locks experience, then slots, then reservations, always in
// that order and slots/reservations sorted by address, so concurrent
// operations on overlapping records serialise instead of deadlocking.
type ReservationEngine struct {
	Store  store.Store
	Minter Minter
	Log    *zap.Logger
	Now    func() time.Time
	// CancelCutoff is how long before a slot starts cancellation closes.
	// Zero means DefaultCancelCutoff; negative disables the cutoff.
	CancelCutoff time.Duration
}

type CancelResult struct {
	Reservation booking.Reservation `json:"reservation"`
	Fee         uint64              `json:"cancellation_fee"`
	Refund      uint64              `json:"refunded_amount"`
}

func (e ReservationEngine) cutoff() time.Duration {
	switch {
	case e.CancelCutoff == 0:
		return DefaultCancelCutoff
	case e.CancelCutoff < 0:
		return 0
	}
	return e.CancelCutoff
}

// BookSlot reserves the slot of experience starting at start for user. The
// payment, the token mint, the reservation record and the slot mutation
// commit together or not at all.
func (e ReservationEngine) BookSlot(ctx context.Context, user, experience string, start time.Time) (res booking.Reservation, tok booking.Token, err error) {
	start = booking.Truncate(start)
	ctx, span := startSpan(ctx, "reservation.book",
		attribute.String("experience", experience),
		attribute.Int64("start_time", start.Unix()),
	)
	defer func() { endSpan(span, err) }()

	if user == "" {
		return booking.Reservation{}, booking.Token{}, booking.ErrUnauthorized
	}
	now := clock(e.Now)

	err = e.Store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		exp, err := tx.Experience(ctx, experience)
		if err != nil {
			return missing(err, booking.ErrInvalidExperience)
		}
		slot, err := tx.Slot(ctx, address.Slot(exp.Address, start))
		if err != nil {
			return missing(err, booking.ErrInvalidTimeSlot)
		}
		if user == exp.Organiser {
			return booking.ErrUnauthorized
		}
		if slot.Booked {
			return booking.ErrAlreadyBooked
		}
		if !slot.StartTime.After(now) {
			return booking.ErrInvalidTimeSlot
		}

		resAddr := address.Reservation(exp.Address, start)
		prev, err := tx.Reservation(ctx, resAddr)
		switch {
		case err == nil && prev.Active:
			return booking.ErrAlreadyBooked
		case err == nil:
			if err := archiveReservation(ctx, tx, prev); err != nil {
				return err
			}
		case !errors.Is(err, store.ErrNotFound):
			return err
		}

		if err := tx.Transfer(ctx, user, exp.Organiser, slot.Price); err != nil {
			return err
		}

		var meta booking.TokenMetadata
		tok, meta, err = e.Minter.Mint(ctx, tx, booking.MintRequest{
			Owner:       user,
			Reservation: resAddr,
			Experience:  exp,
			Slot:        slot,
			At:          now,
		})
		if errors.Is(err, store.ErrConflict) {
			return err
		}
		if err != nil {
			return fmt.Errorf("%w: %w", booking.ErrMetadataCreationFailed, err)
		}

		res = booking.Reservation{
			Address:    resAddr,
			Experience: exp.Address,
			User:       user,
			SlotStart:  slot.StartTime,
			TokenMint:  tok.Mint,
			StartTime:  slot.StartTime,
			EndTime:    slot.EndTime,
			Active:     true,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := tx.PutReservation(ctx, res); err != nil {
			return err
		}
		slot.Booked, slot.Booker = true, user
		if err := tx.UpdateSlot(ctx, slot); err != nil {
			return err
		}

		return emit(ctx, tx, booking.EventReservationCreated, booking.ReservationCreated{
			User:        user,
			Reservation: resAddr,
			TokenMint:   tok.Mint,
			StartTime:   start.Unix(),
			Metadata:    meta,
		}, now)
	})
	if err != nil {
		return booking.Reservation{}, booking.Token{}, fmt.Errorf("book slot: %w", err)
	}

	logger(e.Log).Info("slot booked",
		zap.String("experience", experience),
		zap.String("reservation", res.Address),
		zap.String("user", user),
		zap.String("mint", tok.Mint),
	)
	return res, tok, nil
}

// CancelReservation deactivates the caller's reservation, releases its slot
// and refunds the slot price minus the experience's cancellation fee. The
// ownership token stays with the user.
func (e ReservationEngine) CancelReservation(ctx context.Context, user, experience string, start time.Time) (out CancelResult, err error) {
	start = booking.Truncate(start)
	ctx, span := startSpan(ctx, "reservation.cancel",
		attribute.String("experience", experience),
		attribute.Int64("start_time", start.Unix()),
	)
	defer func() { endSpan(span, err) }()

	now := clock(e.Now)

	err = e.Store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		exp, err := tx.Experience(ctx, experience)
		if err != nil {
			return missing(err, booking.ErrInvalidReservation)
		}
		slot, err := tx.Slot(ctx, address.Slot(exp.Address, start))
		if err != nil {
			return missing(err, booking.ErrInvalidReservation)
		}
		res, err := tx.Reservation(ctx, address.Reservation(exp.Address, start))
		if err != nil {
			return missing(err, booking.ErrInvalidReservation)
		}
		if user == "" || res.User != user {
			return booking.ErrInvalidReservation
		}
		if !res.Active {
			return booking.ErrAlreadyCancelled
		}
		if slot.StartTime.Sub(now) < e.cutoff() {
			return booking.ErrTooLateToCancel
		}

		fee := booking.CancellationFee(slot.Price, exp.CancellationFeePercent)
		refund := slot.Price - fee
		if err := tx.Transfer(ctx, exp.Organiser, user, refund); err != nil {
			return err
		}

		res.Active = false
		res.UpdatedAt = now
		if err := tx.PutReservation(ctx, res); err != nil {
			return err
		}
		slot.Booked, slot.Booker = false, ""
		if err := tx.UpdateSlot(ctx, slot); err != nil {
			return err
		}

		out = CancelResult{Reservation: res, Fee: fee, Refund: refund}
		return emit(ctx, tx, booking.EventReservationCancelled, booking.ReservationCancelled{
			User:            user,
			Reservation:     res.Address,
			CancellationFee: fee,
			RefundedAmount:  refund,
		}, now)
	})
	if err != nil {
		return CancelResult{}, fmt.Errorf("cancel reservation: %w", err)
	}

	logger(e.Log).Info("reservation cancelled",
		zap.String("reservation", out.Reservation.Address),
		zap.String("user", user),
		zap.Uint64("fee", out.Fee),
		zap.Uint64("refund", out.Refund),
	)
	return out, nil
}

// UpdateReservation moves the caller's reservation from the slot at
// currentStart to the free slot at newStart of the same experience. The
// record moves to the address of the new slot and keeps its token; any
// price difference between the slots is settled with the organiser.
func (e ReservationEngine) UpdateReservation(ctx context.Context, user, experience string, currentStart, newStart time.Time) (res booking.Reservation, err error) {
	currentStart, newStart = booking.Truncate(currentStart), booking.Truncate(newStart)
	ctx, span := startSpan(ctx, "reservation.update",
		attribute.String("experience", experience),
		attribute.Int64("start_time", currentStart.Unix()),
		attribute.Int64("new_start_time", newStart.Unix()),
	)
	defer func() { endSpan(span, err) }()

	now := clock(e.Now)

	err = e.Store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		exp, err := tx.Experience(ctx, experience)
		if err != nil {
			return missing(err, booking.ErrInvalidReservation)
		}

		oldSlotAddr := address.Slot(exp.Address, currentStart)
		newSlotAddr := address.Slot(exp.Address, newStart)
		slots, err := lockSlots(ctx, tx, oldSlotAddr, newSlotAddr)
		if err != nil {
			return err
		}

		oldResAddr := address.Reservation(exp.Address, currentStart)
		newResAddr := address.Reservation(exp.Address, newStart)
		reservations, err := lockReservations(ctx, tx, oldResAddr, newResAddr)
		if err != nil {
			return err
		}

		cur, ok := reservations[oldResAddr]
		if !ok {
			return booking.ErrInvalidReservation
		}
		if user == "" || cur.User != user {
			return booking.ErrUnauthorized
		}
		if !cur.Active {
			return booking.ErrAlreadyCancelled
		}
		oldSlot, ok := slots[oldSlotAddr]
		if !ok {
			return booking.ErrInvalidReservation
		}
		newSlot, ok := slots[newSlotAddr]
		if !ok {
			return booking.ErrInvalidTimeSlot
		}
		if newSlot.Booked {
			return booking.ErrAlreadyBooked
		}
		target, occupied := reservations[newResAddr]
		if occupied && target.Active {
			return booking.ErrAlreadyBooked
		}
		if !newSlot.StartTime.After(now) {
			return booking.ErrInvalidTimeSlot
		}

		switch {
		case newSlot.Price > oldSlot.Price:
			err = tx.Transfer(ctx, user, exp.Organiser, newSlot.Price-oldSlot.Price)
		case newSlot.Price < oldSlot.Price:
			err = tx.Transfer(ctx, exp.Organiser, user, oldSlot.Price-newSlot.Price)
		}
		if err != nil {
			return err
		}

		oldSlot.Booked, oldSlot.Booker = false, ""
		newSlot.Booked, newSlot.Booker = true, user
		if err := tx.UpdateSlot(ctx, oldSlot); err != nil {
			return err
		}
		if err := tx.UpdateSlot(ctx, newSlot); err != nil {
			return err
		}

		res = cur
		res.Address = newResAddr
		res.SlotStart = newSlot.StartTime
		res.StartTime = newSlot.StartTime
		res.EndTime = newSlot.EndTime
		res.UpdatedAt = now
		if occupied {
			if err := archiveReservation(ctx, tx, target); err != nil {
				return err
			}
		}
		if err := tx.DeleteReservation(ctx, oldResAddr); err != nil {
			return err
		}
		if err := tx.PutReservation(ctx, res); err != nil {
			return err
		}

		tok, err := tx.Token(ctx, res.TokenMint)
		if err != nil {
			return fmt.Errorf("load token %s: %w", res.TokenMint, err)
		}
		tok.Reservation = res.Address
		if err := tx.UpdateToken(ctx, tok); err != nil {
			return err
		}

		return emit(ctx, tx, booking.EventReservationUpdated, booking.ReservationUpdated{
			User:         user,
			Reservation:  res.Address,
			NewStartTime: newStart.Unix(),
		}, now)
	})
	if err != nil {
		return booking.Reservation{}, fmt.Errorf("update reservation: %w", err)
	}

	logger(e.Log).Info("reservation relocated",
		zap.String("user", user),
		zap.String("from", address.Reservation(experience, currentStart)),
		zap.String("to", res.Address),
	)
	return res, nil
}

// archiveReservation moves a cancelled reservation off its slot address so
// the address can be booked again. The record keeps its booker and token,
// and the token is repointed at the archived key.
func archiveReservation(ctx context.Context, tx store.Tx, r booking.Reservation) error {
	from := r.Address
	r.Address = address.ArchivedReservation(r.Experience, r.SlotStart, r.TokenMint)
	if err := tx.DeleteReservation(ctx, from); err != nil {
		return err
	}
	if err := tx.PutReservation(ctx, r); err != nil {
		return err
	}
	tok, err := tx.Token(ctx, r.TokenMint)
	if err != nil {
		return fmt.Errorf("load token %s: %w", r.TokenMint, err)
	}
	tok.Reservation = r.Address
	return tx.UpdateToken(ctx, tok)
}

// lockSlots reads the given slots in address order. Missing slots are left
// out of the result.
func lockSlots(ctx context.Context, tx store.Tx, addrs ...string) (map[string]booking.TimeSlot, error) {
	out := map[string]booking.TimeSlot{}
	for _, a := range sortedUnique(addrs) {
		s, err := tx.Slot(ctx, a)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out[a] = s
	}
	return out, nil
}

func lockReservations(ctx context.Context, tx store.Tx, addrs ...string) (map[string]booking.Reservation, error) {
	out := map[string]booking.Reservation{}
	for _, a := range sortedUnique(addrs) {
		r, err := tx.Reservation(ctx, a)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out[a] = r
	}
	return out, nil
}

func (e ReservationEngine) Get(ctx context.Context, experience string, start time.Time) (booking.Reservation, error) {
	return e.Store.Reservation(ctx, address.Reservation(experience, start))
}

func (e ReservationEngine) ListByExperience(ctx context.Context, experience string) ([]booking.Reservation, error) {
	return e.Store.ReservationsByExperience(ctx, experience)
}

func (e ReservationEngine) ListByBooker(ctx context.Context, user string) ([]booking.Reservation, error) {
	return e.Store.ReservationsByUser(ctx, user)
}

func (e ReservationEngine) TokensByOwner(ctx context.Context, owner string) ([]booking.Token, error) {
	return e.Store.TokensByOwner(ctx, owner)
}

func (e ReservationEngine) Metadata(ctx context.Context, mint string) (booking.TokenMetadata, error) {
	return e.Store.Metadata(ctx, mint)
}

func (e ReservationEngine) Balance(ctx context.Context, account string) (uint64, error) {
	return e.Store.Balance(ctx, account)
}

func (e ReservationEngine) Deposit(ctx context.Context, account string, amount uint64) error {
	if account == "" {
		return booking.ErrUnauthorized
	}
	if err := e.Store.Deposit(ctx, account, amount); err != nil {
		return fmt.Errorf("deposit: %w", err)
	}
	logger(e.Log).Info("account funded", zap.String("account", account), zap.Uint64("amount", amount))
	return nil
}
