package web

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/example/slotmint/internal/domain/booking"
	"github.com/example/slotmint/internal/domain/user"
	"github.com/example/slotmint/internal/internaltypes"
)

type Response struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorInfo `json:"error,omitempty"`
}

type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

const (
	codeBadRequest      = "BAD_REQUEST"
	codeUnauthenticated = "UNAUTHENTICATED"
	codeNotFound        = "NOT_FOUND"
	codeConflict        = "CONFLICT"
	codeInternal        = "INTERNAL_ERROR"
)

var statusByCode = map[string]int{
	booking.ErrTitleEmpty.Code:             http.StatusBadRequest,
	booking.ErrTitleTooLong.Code:           http.StatusBadRequest,
	booking.ErrLocationEmpty.Code:          http.StatusBadRequest,
	booking.ErrLocationTooLong.Code:        http.StatusBadRequest,
	booking.ErrDescriptionEmpty.Code:       http.StatusBadRequest,
	booking.ErrDescriptionTooLong.Code:     http.StatusBadRequest,
	booking.ErrInvalidPrice.Code:           http.StatusBadRequest,
	booking.ErrInvalidAmount.Code:          http.StatusBadRequest,
	booking.ErrInvalidFeePercent.Code:      http.StatusBadRequest,
	booking.ErrInvalidTimeSlot.Code:        http.StatusBadRequest,
	booking.ErrOverlappingTimeSlot.Code:    http.StatusConflict,
	booking.ErrTooManySlots.Code:           http.StatusUnprocessableEntity,
	booking.ErrUnauthorized.Code:           http.StatusForbidden,
	booking.ErrAlreadyExists.Code:          http.StatusConflict,
	booking.ErrInvalidExperience.Code:      http.StatusNotFound,
	booking.ErrAlreadyBooked.Code:          http.StatusConflict,
	booking.ErrAlreadyCancelled.Code:       http.StatusConflict,
	booking.ErrInvalidReservation.Code:     http.StatusNotFound,
	booking.ErrTooLateToCancel.Code:        http.StatusUnprocessableEntity,
	booking.ErrMetadataCreationFailed.Code: http.StatusBadGateway,
	booking.ErrInsufficientFunds.Code:      http.StatusPaymentRequired,
}

func ok(c *gin.Context, status int, data any) {
	c.JSON(status, Response{Success: true, Data: data})
}

func fail(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, Response{Error: &ErrorInfo{Code: code, Message: msg}})
}

// respondErr maps err to a status and error code. Booking errors keep their
// own code so clients can tell "slot already booked" from "title too long".
func (s *Server) respondErr(c *gin.Context, err error) {
	var be *booking.Error
	switch {
	case errors.Is(err, internaltypes.ErrConflict):
		fail(c, http.StatusConflict, codeConflict, err.Error())
	case errors.As(err, &be):
		status, found := statusByCode[be.Code]
		if !found {
			status = http.StatusBadRequest
		}
		fail(c, status, be.Code, be.Message)
	case errors.Is(err, internaltypes.ErrNotFound):
		fail(c, http.StatusNotFound, codeNotFound, "not found")
	case errors.Is(err, internaltypes.ErrInvalidCredentials):
		fail(c, http.StatusUnauthorized, codeUnauthenticated, err.Error())
	case errors.Is(err, user.ErrUsernameTaken):
		fail(c, http.StatusConflict, codeConflict, err.Error())
	case errors.Is(err, user.ErrInvalidUsername), errors.Is(err, user.ErrWeakPassword):
		fail(c, http.StatusBadRequest, codeBadRequest, err.Error())
	default:
		s.logger().Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		fail(c, http.StatusInternalServerError, codeInternal, "internal error")
	}
}
