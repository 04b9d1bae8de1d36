package booking

import (
	"math"
	"math/bits"
	"time"
	"unicode/utf8"
)

const (
	MaxTitleLen       = 24
	MaxLocationLen    = 48
	MaxDescriptionLen = 200
	MaxFeePercent     = 100
)

// ValidateExperience checks the fields an organiser supplies when publishing
// an experience. Lengths are counted in runes.
func ValidateExperience(title, location, description string, price uint64, feePercent uint8) error {
	switch n := utf8.RuneCountInString(title); {
	case n == 0:
		return ErrTitleEmpty
	case n > MaxTitleLen:
		return ErrTitleTooLong
	}
	switch n := utf8.RuneCountInString(location); {
	case n == 0:
		return ErrLocationEmpty
	case n > MaxLocationLen:
		return ErrLocationTooLong
	}
	switch n := utf8.RuneCountInString(description); {
	case n == 0:
		return ErrDescriptionEmpty
	case n > MaxDescriptionLen:
		return ErrDescriptionTooLong
	}
	if err := ValidatePrice(price); err != nil {
		return err
	}
	if feePercent > MaxFeePercent {
		return ErrInvalidFeePercent
	}
	return nil
}

// ValidatePrice rejects zero and anything that does not fit a signed 64-bit
// column.
func ValidatePrice(price uint64) error {
	if price == 0 || price > math.MaxInt64 {
		return ErrInvalidPrice
	}
	return nil
}

// ValidateSlotWindow requires start < end and a start strictly after now.
func ValidateSlotWindow(start, end, now time.Time) error {
	if !start.Before(end) {
		return ErrInvalidTimeSlot
	}
	if !start.After(now) {
		return ErrInvalidTimeSlot
	}
	return nil
}

// CancellationFee returns floor(price * percent / 100). The product is
// computed in 128 bits so large prices cannot overflow.
func CancellationFee(price uint64, percent uint8) uint64 {
	p := uint64(percent)
	if p > MaxFeePercent {
		p = MaxFeePercent
	}
	hi, lo := bits.Mul64(price, p)
	q, _ := bits.Div64(hi, lo, 100)
	return q
}
