package postgres

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/example/slotmint/internal/db"
	"github.com/example/slotmint/internal/domain/booking"
	"github.com/example/slotmint/internal/store"
)

const (
	codeUniqueViolation      = "23505"
	codeNumericOutOfRange    = "22003"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type scanner interface {
	Scan(dest ...any) error
}

// DefaultClaimTTL bounds how long a relay holds outbox rows it fetched.
const DefaultClaimTTL = time.Minute

// Store keeps booking records in Postgres. Single-record reads inside InTx
// take row locks that are held until commit.
type Store struct {
	records
	db  *db.DB
	now func() time.Time

	// ClaimTTL is how long PendingEvents hides the rows it returned from
	// other relays. Zero means DefaultClaimTTL.
	ClaimTTL time.Duration
}

var _ store.Store = (*Store)(nil)

func NewStore(d *db.DB) *Store {
	return &Store{records: records{q: d.Pool()}, db: d, now: time.Now}
}

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	err := s.db.InTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(ptx pgx.Tx) error {
		return fn(ctx, &tx{records: records{q: ptx, lock: " FOR UPDATE", share: " FOR SHARE"}, now: s.now})
	})
	return mapErr(err)
}

func (s *Store) Deposit(ctx context.Context, account string, amount uint64) error {
	if amount == 0 || amount > math.MaxInt64 {
		return booking.ErrInvalidAmount
	}
	_, err := s.db.Pool().Exec(ctx, `
		INSERT INTO balances (account, amount) VALUES ($1, $2)
		ON CONFLICT (account) DO UPDATE SET amount = balances.amount + EXCLUDED.amount
	`, account, int64(amount))
	return mapErr(err)
}

// PendingEvents claims up to limit unpublished events for ClaimTTL. Rows
// claimed by another relay are skipped until their claim lapses.
func (s *Store) PendingEvents(ctx context.Context, limit, maxAttempts int) ([]booking.Event, error) {
	ttl := s.ClaimTTL
	if ttl <= 0 {
		ttl = DefaultClaimTTL
	}
	now := s.now().UTC()
	rows, err := s.q.Query(ctx, `
		WITH claimed AS (
			UPDATE outbox SET claimed_until = $3
			WHERE id IN (
				SELECT id FROM outbox
				WHERE published_at IS NULL AND attempts < $2
					AND (claimed_until IS NULL OR claimed_until <= $4)
				ORDER BY id
				LIMIT $1
				FOR UPDATE SKIP LOCKED
			)
			RETURNING id, kind, payload, created_at, attempts, last_error
		)
		SELECT id, kind, payload, created_at, attempts, last_error FROM claimed ORDER BY id
	`, limit, maxAttempts, now.Add(ttl), now)
	if err != nil {
		return nil, mapErr(err)
	}
	return collect(rows, func(sc scanner) (booking.Event, error) {
		var e booking.Event
		var kind string
		if err := sc.Scan(&e.ID, &kind, &e.Payload, &e.CreatedAt, &e.Attempts, &e.LastError); err != nil {
			return e, err
		}
		e.Kind = booking.EventKind(kind)
		e.CreatedAt = e.CreatedAt.UTC()
		return e, nil
	})
}

func (s *Store) MarkPublished(ctx context.Context, id int64) error {
	_, err := s.q.Exec(ctx, `UPDATE outbox SET published_at=$2 WHERE id=$1`, id, s.now().UTC())
	return err
}

func (s *Store) MarkFailed(ctx context.Context, id int64, reason string) error {
	_, err := s.q.Exec(ctx, `UPDATE outbox SET attempts=attempts+1, last_error=$2, claimed_until=NULL WHERE id=$1`, id, reason)
	return err
}

func mapErr(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case codeSerializationFailure, codeDeadlockDetected:
		return fmt.Errorf("%w: %s", store.ErrConflict, pgErr.Message)
	case codeUniqueViolation:
		return booking.ErrAlreadyExists
	case codeNumericOutOfRange:
		return booking.ErrInvalidAmount
	}
	return err
}

type records struct {
	q     querier
	lock  string
	share string
}

const experienceColumns = `address, organiser, title, description, location, price, cancellation_fee_percent, created_at`

func scanExperience(sc scanner) (booking.Experience, error) {
	var e booking.Experience
	var price int64
	var fee int16
	if err := sc.Scan(&e.Address, &e.Organiser, &e.Title, &e.Description, &e.Location, &price, &fee, &e.CreatedAt); err != nil {
		return e, err
	}
	e.Price = uint64(price)
	e.CancellationFeePercent = uint8(fee)
	e.CreatedAt = e.CreatedAt.UTC()
	return e, nil
}

func (r records) experience(ctx context.Context, address, lock string) (booking.Experience, error) {
	e, err := scanExperience(r.q.QueryRow(ctx, `SELECT `+experienceColumns+` FROM experiences WHERE address=$1`+lock, address))
	return e, db.WrapNotFound(err)
}

func (r records) Experience(ctx context.Context, address string) (booking.Experience, error) {
	return r.experience(ctx, address, r.share)
}

func (r records) ExperiencesByOrganiser(ctx context.Context, organiser string) ([]booking.Experience, error) {
	rows, err := r.q.Query(ctx, `SELECT `+experienceColumns+` FROM experiences WHERE organiser=$1 ORDER BY created_at, title`, organiser)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanExperience)
}

const slotColumns = `address, experience, start_time, end_time, price, booked, booker`

func scanSlot(sc scanner) (booking.TimeSlot, error) {
	var s booking.TimeSlot
	var price int64
	if err := sc.Scan(&s.Address, &s.Experience, &s.StartTime, &s.EndTime, &price, &s.Booked, &s.Booker); err != nil {
		return s, err
	}
	s.Price = uint64(price)
	s.StartTime, s.EndTime = s.StartTime.UTC(), s.EndTime.UTC()
	return s, nil
}

func (r records) Slot(ctx context.Context, address string) (booking.TimeSlot, error) {
	s, err := scanSlot(r.q.QueryRow(ctx, `SELECT `+slotColumns+` FROM time_slots WHERE address=$1`+r.lock, address))
	return s, db.WrapNotFound(err)
}

func (r records) SlotsByExperience(ctx context.Context, experience string) ([]booking.TimeSlot, error) {
	rows, err := r.q.Query(ctx, `SELECT `+slotColumns+` FROM time_slots WHERE experience=$1 ORDER BY start_time`, experience)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanSlot)
}

const reservationColumns = `address, experience, user_name, slot_start, token_mint, start_time, end_time, active, created_at, updated_at`

func scanReservation(sc scanner) (booking.Reservation, error) {
	var r booking.Reservation
	if err := sc.Scan(&r.Address, &r.Experience, &r.User, &r.SlotStart, &r.TokenMint, &r.StartTime, &r.EndTime, &r.Active, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return r, err
	}
	r.SlotStart, r.StartTime, r.EndTime = r.SlotStart.UTC(), r.StartTime.UTC(), r.EndTime.UTC()
	r.CreatedAt, r.UpdatedAt = r.CreatedAt.UTC(), r.UpdatedAt.UTC()
	return r, nil
}

func (r records) Reservation(ctx context.Context, address string) (booking.Reservation, error) {
	res, err := scanReservation(r.q.QueryRow(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE address=$1`+r.lock, address))
	return res, db.WrapNotFound(err)
}

func (r records) ReservationsByExperience(ctx context.Context, experience string) ([]booking.Reservation, error) {
	rows, err := r.q.Query(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE experience=$1 ORDER BY start_time, address`, experience)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanReservation)
}

func (r records) ReservationsByUser(ctx context.Context, user string) ([]booking.Reservation, error) {
	rows, err := r.q.Query(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE user_name=$1 ORDER BY start_time, address`, user)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanReservation)
}

const tokenColumns = `mint, owner, reservation, experience, minted_at`

func scanToken(sc scanner) (booking.Token, error) {
	var t booking.Token
	if err := sc.Scan(&t.Mint, &t.Owner, &t.Reservation, &t.Experience, &t.MintedAt); err != nil {
		return t, err
	}
	t.MintedAt = t.MintedAt.UTC()
	return t, nil
}

func (r records) Token(ctx context.Context, mint string) (booking.Token, error) {
	t, err := scanToken(r.q.QueryRow(ctx, `SELECT `+tokenColumns+` FROM tokens WHERE mint=$1`+r.lock, mint))
	return t, db.WrapNotFound(err)
}

func (r records) TokensByOwner(ctx context.Context, owner string) ([]booking.Token, error) {
	rows, err := r.q.Query(ctx, `SELECT `+tokenColumns+` FROM tokens WHERE owner=$1 ORDER BY minted_at, mint`, owner)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanToken)
}

func (r records) Metadata(ctx context.Context, mint string) (booking.TokenMetadata, error) {
	var m booking.TokenMetadata
	err := r.q.QueryRow(ctx, `
		SELECT mint, name, symbol, uri, experience, start_time, end_time
		FROM token_metadata WHERE mint=$1
	`, mint).Scan(&m.Mint, &m.Name, &m.Symbol, &m.URI, &m.Experience, &m.StartTime, &m.EndTime)
	m.StartTime, m.EndTime = m.StartTime.UTC(), m.EndTime.UTC()
	return m, db.WrapNotFound(err)
}

func (r records) Balance(ctx context.Context, account string) (uint64, error) {
	var amount int64
	err := r.q.QueryRow(ctx, `SELECT amount FROM balances WHERE account=$1`+r.lock, account).Scan(&amount)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return uint64(amount), nil
}

type tx struct {
	records
	now func() time.Time
}

var _ store.Tx = (*tx)(nil)

func (t *tx) LockExperience(ctx context.Context, address string) (booking.Experience, error) {
	return t.experience(ctx, address, t.lock)
}

func (t *tx) CreateExperience(ctx context.Context, e booking.Experience) error {
	_, err := t.q.Exec(ctx, `INSERT INTO experiences (`+experienceColumns+`) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		e.Address, e.Organiser, e.Title, e.Description, e.Location, int64(e.Price), int16(e.CancellationFeePercent), e.CreatedAt)
	return mapErr(err)
}

func (t *tx) CreateSlot(ctx context.Context, s booking.TimeSlot) error {
	_, err := t.q.Exec(ctx, `INSERT INTO time_slots (`+slotColumns+`) VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		s.Address, s.Experience, s.StartTime, s.EndTime, int64(s.Price), s.Booked, s.Booker)
	return mapErr(err)
}

func (t *tx) UpdateSlot(ctx context.Context, s booking.TimeSlot) error {
	tag, err := t.q.Exec(ctx, `UPDATE time_slots SET end_time=$2, price=$3, booked=$4, booker=$5 WHERE address=$1`,
		s.Address, s.EndTime, int64(s.Price), s.Booked, s.Booker)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (t *tx) PutReservation(ctx context.Context, r booking.Reservation) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO reservations (`+reservationColumns+`) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (address) DO UPDATE SET
			user_name=EXCLUDED.user_name, slot_start=EXCLUDED.slot_start, token_mint=EXCLUDED.token_mint,
			start_time=EXCLUDED.start_time, end_time=EXCLUDED.end_time, active=EXCLUDED.active,
			created_at=EXCLUDED.created_at, updated_at=EXCLUDED.updated_at
	`, r.Address, r.Experience, r.User, r.SlotStart, r.TokenMint, r.StartTime, r.EndTime, r.Active, r.CreatedAt, r.UpdatedAt)
	return mapErr(err)
}

func (t *tx) DeleteReservation(ctx context.Context, address string) error {
	tag, err := t.q.Exec(ctx, `DELETE FROM reservations WHERE address=$1`, address)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (t *tx) CreateToken(ctx context.Context, tok booking.Token) error {
	_, err := t.q.Exec(ctx, `INSERT INTO tokens (`+tokenColumns+`) VALUES ($1,$2,$3,$4,$5)`,
		tok.Mint, tok.Owner, tok.Reservation, tok.Experience, tok.MintedAt)
	return mapErr(err)
}

func (t *tx) UpdateToken(ctx context.Context, tok booking.Token) error {
	tag, err := t.q.Exec(ctx, `UPDATE tokens SET owner=$2, reservation=$3 WHERE mint=$1`, tok.Mint, tok.Owner, tok.Reservation)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (t *tx) CreateMetadata(ctx context.Context, m booking.TokenMetadata) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO token_metadata (mint, name, symbol, uri, experience, start_time, end_time)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, m.Mint, m.Name, m.Symbol, m.URI, m.Experience, m.StartTime, m.EndTime)
	return mapErr(err)
}

// Transfer locks both balance rows in account order so two transfers between
// the same pair cannot deadlock.
func (t *tx) Transfer(ctx context.Context, from, to string, amount uint64) error {
	if amount == 0 {
		return nil
	}
	if amount > math.MaxInt64 {
		return booking.ErrInsufficientFunds
	}
	accounts := []string{from, to}
	slices.Sort(accounts)
	accounts = slices.Compact(accounts)

	if _, err := t.q.Exec(ctx, `
		INSERT INTO balances (account, amount) SELECT unnest($1::text[]), 0
		ON CONFLICT (account) DO NOTHING
	`, accounts); err != nil {
		return mapErr(err)
	}
	rows, err := t.q.Query(ctx, `SELECT account, amount FROM balances WHERE account = ANY($1) ORDER BY account FOR UPDATE`, accounts)
	if err != nil {
		return mapErr(err)
	}
	held := map[string]int64{}
	for rows.Next() {
		var acct string
		var amt int64
		if err := rows.Scan(&acct, &amt); err != nil {
			rows.Close()
			return err
		}
		held[acct] = amt
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return mapErr(err)
	}
	if uint64(held[from]) < amount {
		return booking.ErrInsufficientFunds
	}
	if from == to {
		return nil
	}
	if held[to] > math.MaxInt64-int64(amount) {
		return booking.ErrInvalidAmount
	}

	if _, err := t.q.Exec(ctx, `UPDATE balances SET amount = amount - $2 WHERE account=$1`, from, int64(amount)); err != nil {
		return mapErr(err)
	}
	_, err = t.q.Exec(ctx, `UPDATE balances SET amount = amount + $2 WHERE account=$1`, to, int64(amount))
	return mapErr(err)
}

func (t *tx) Emit(ctx context.Context, e booking.Event) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = t.now().UTC()
	}
	_, err := t.q.Exec(ctx, `INSERT INTO outbox (kind, payload, created_at) VALUES ($1,$2,$3)`,
		string(e.Kind), e.Payload, e.CreatedAt)
	return mapErr(err)
}

func collect[T any](rows pgx.Rows, scan func(scanner) (T, error)) ([]T, error) {
	defer rows.Close()
	var out []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
