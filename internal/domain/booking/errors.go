package booking

import "errors"

// Error is a booking failure with a stable machine-readable code.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string { return e.Message }

func newError(code, msg string) *Error { return &Error{Code: code, Message: msg} }

// validation
var (
	ErrTitleEmpty          = newError("TITLE_EMPTY", "title cannot be empty")
	ErrTitleTooLong        = newError("TITLE_TOO_LONG", "title is too long")
	ErrLocationEmpty       = newError("LOCATION_EMPTY", "location cannot be empty")
	ErrLocationTooLong     = newError("LOCATION_TOO_LONG", "location is too long")
	ErrDescriptionEmpty    = newError("DESCRIPTION_EMPTY", "description cannot be empty")
	ErrDescriptionTooLong  = newError("DESCRIPTION_TOO_LONG", "description is too long")
	ErrInvalidPrice        = newError("INVALID_PRICE", "invalid price: must be greater than 0")
	ErrInvalidAmount       = newError("INVALID_AMOUNT", "invalid amount: must be greater than 0")
	ErrInvalidFeePercent   = newError("INVALID_FEE_PERCENT", "cancellation fee percent must be between 0 and 100")
	ErrInvalidTimeSlot     = newError("INVALID_TIME_SLOT", "invalid time slot")
	ErrOverlappingTimeSlot = newError("OVERLAPPING_TIME_SLOT", "time slot overlaps with existing slots")
	ErrTooManySlots        = newError("TOO_MANY_SLOTS", "experience has reached its time slot limit")
)

// authorization
var (
	ErrUnauthorized = newError("UNAUTHORIZED", "unauthorized")
)

// state conflicts
var (
	ErrAlreadyExists      = newError("ALREADY_EXISTS", "record already exists")
	ErrInvalidExperience  = newError("INVALID_EXPERIENCE", "experience does not exist")
	ErrAlreadyBooked      = newError("ALREADY_BOOKED", "the time slot is already booked")
	ErrAlreadyCancelled   = newError("ALREADY_CANCELLED", "reservation already cancelled")
	ErrInvalidReservation = newError("INVALID_RESERVATION", "invalid reservation")
	ErrTooLateToCancel    = newError("TOO_LATE_TO_CANCEL", "too late to cancel reservation")
)

// collaborator failures
var (
	ErrMetadataCreationFailed = newError("METADATA_CREATION_FAILED", "failed to create token metadata")
	ErrInsufficientFunds      = newError("INSUFFICIENT_FUNDS", "insufficient funds")
)

// Code returns the code of the first *Error in err's chain, or "INTERNAL_ERROR".
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return "INTERNAL_ERROR"
}
