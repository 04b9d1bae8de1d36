package booking

import "time"

type Experience struct {
	Address                string    `json:"address"`
	Organiser              string    `json:"organiser"`
	Title                  string    `json:"title"`
	Description            string    `json:"description"`
	Location               string    `json:"location"`
	Price                  uint64    `json:"price"`
	CancellationFeePercent uint8     `json:"cancellation_fee_percent"`
	CreatedAt              time.Time `json:"created_at"`
}

// TimeSlot is a bookable window of an experience. Booker is empty while the
// slot is open.
type TimeSlot struct {
	Address    string    `json:"address"`
	Experience string    `json:"experience"`
	StartTime  time.Time `json:"start_time"`
	EndTime    time.Time `json:"end_time"`
	Price      uint64    `json:"price"`
	Booked     bool      `json:"booked"`
	Booker     string    `json:"booker,omitempty"`
}

// Overlaps reports whether [start,end) intersects the slot's window.
func (s TimeSlot) Overlaps(start, end time.Time) bool {
	return start.Before(s.EndTime) && s.StartTime.Before(end)
}

// Reservation is a user's claim on one slot. SlotStart references the slot;
// StartTime and EndTime are cached copies of its window.
type Reservation struct {
	Address    string    `json:"address"`
	Experience string    `json:"experience"`
	User       string    `json:"user"`
	SlotStart  time.Time `json:"slot_start"`
	TokenMint  string    `json:"token_mint"`
	StartTime  time.Time `json:"start_time"`
	EndTime    time.Time `json:"end_time"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Token is the ownership token minted once per booking.
type Token struct {
	Mint        string    `json:"mint"`
	Owner       string    `json:"owner"`
	Reservation string    `json:"reservation"`
	Experience  string    `json:"experience"`
	MintedAt    time.Time `json:"minted_at"`
}

type TokenMetadata struct {
	Mint       string    `json:"mint"`
	Name       string    `json:"name"`
	Symbol     string    `json:"symbol"`
	URI        string    `json:"uri"`
	Experience string    `json:"experience"`
	StartTime  time.Time `json:"start_time"`
	EndTime    time.Time `json:"end_time"`
}

// MintRequest is what the minting collaborator needs to issue a token for a
// booking.
type MintRequest struct {
	Owner       string
	Reservation string
	Experience  Experience
	Slot        TimeSlot
	At          time.Time
}

// Truncate normalises t to whole seconds in UTC, the precision records are
// addressed and stored with.
func Truncate(t time.Time) time.Time {
	return time.Unix(t.Unix(), 0).UTC()
}
