package booking

import (
	"time"

	"github.com/bytedance/sonic"
)

type EventKind string

const (
	EventExperienceCreated    EventKind = "ExperienceCreated"
	EventReservationCreated   EventKind = "ReservationCreated"
	EventReservationCancelled EventKind = "ReservationCancelled"
	EventReservationUpdated   EventKind = "ReservationUpdated"
)

// Event is an advisory notification queued in the outbox alongside the
// records it describes. The records stay authoritative.
type Event struct {
	ID        int64
	Kind      EventKind
	Payload   []byte
	CreatedAt time.Time
	Attempts  int
	LastError string
}

type ExperienceCreated struct {
	Organiser  string `json:"organiser"`
	Experience string `json:"experience"`
	Title      string `json:"title"`
}

type ReservationCreated struct {
	User        string        `json:"user"`
	Reservation string        `json:"reservation"`
	TokenMint   string        `json:"token_mint"`
	StartTime   int64         `json:"start_time"`
	Metadata    TokenMetadata `json:"metadata"`
}

type ReservationCancelled struct {
	User            string `json:"user"`
	Reservation     string `json:"reservation"`
	CancellationFee uint64 `json:"cancellation_fee"`
	RefundedAmount  uint64 `json:"refunded_amount"`
}

type ReservationUpdated struct {
	User         string `json:"user"`
	Reservation  string `json:"reservation"`
	NewStartTime int64  `json:"new_start_time"`
}

// NewEvent encodes payload into an outbox entry of the given kind.
func NewEvent(kind EventKind, payload any, at time.Time) (Event, error) {
	b, err := sonic.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{Kind: kind, Payload: b, CreatedAt: at}, nil
}

// Decode unmarshals the event payload into v.
func (e Event) Decode(v any) error {
	return sonic.Unmarshal(e.Payload, v)
}
