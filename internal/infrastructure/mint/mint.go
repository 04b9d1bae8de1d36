// Package mint issues ownership tokens for bookings. Tokens and their
// metadata are written through the caller's transaction so they exist only if
// the booking commits.
package mint

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/slotmint/internal/domain/booking"
	"github.com/example/slotmint/internal/store"
)

var ErrNoBaseURL = errors.New("mint: metadata base URL is not configured")

type Minter struct {
	BaseURL string
	NewID   func() string
	Now     func() time.Time
}

func New(baseURL string) *Minter {
	return &Minter{BaseURL: baseURL}
}

// URI is where the public metadata document of mint is served.
func (m *Minter) URI(mint string) string {
	return strings.TrimRight(m.BaseURL, "/") + "/" + mint + ".json"
}

func (m *Minter) Mint(ctx context.Context, tx store.Tx, req booking.MintRequest) (booking.Token, booking.TokenMetadata, error) {
	if m.BaseURL == "" {
		return booking.Token{}, booking.TokenMetadata{}, ErrNoBaseURL
	}
	newID := m.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	at := req.At
	if at.IsZero() {
		now := m.Now
		if now == nil {
			now = time.Now
		}
		at = booking.Truncate(now())
	}

	tok := booking.Token{
		Mint:        newID(),
		Owner:       req.Owner,
		Reservation: req.Reservation,
		Experience:  req.Experience.Address,
		MintedAt:    at,
	}
	meta := booking.TokenMetadata{
		Mint:       tok.Mint,
		Name:       req.Experience.Title,
		Symbol:     req.Experience.Location,
		URI:        m.URI(tok.Mint),
		Experience: req.Experience.Address,
		StartTime:  req.Slot.StartTime,
		EndTime:    req.Slot.EndTime,
	}

	if err := tx.CreateToken(ctx, tok); err != nil {
		return booking.Token{}, booking.TokenMetadata{}, fmt.Errorf("mint: create token: %w", err)
	}
	if err := tx.CreateMetadata(ctx, meta); err != nil {
		return booking.Token{}, booking.TokenMetadata{}, fmt.Errorf("mint: create metadata: %w", err)
	}
	return tok, meta, nil
}
