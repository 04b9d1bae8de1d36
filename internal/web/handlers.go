package web

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/example/slotmint/internal/application/usecases"
	"github.com/example/slotmint/internal/domain/booking"
	"github.com/example/slotmint/internal/internaltypes"
)

type credentialsRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type loginResponse struct {
	Username  string `json:"username"`
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expires_at"`
}

type createExperienceRequest struct {
	Title                  string `json:"title"`
	Location               string `json:"location"`
	Description            string `json:"description"`
	Price                  uint64 `json:"price"`
	CancellationFeePercent uint8  `json:"cancellation_fee_percent"`
}

// Times are unix seconds.
type addSlotRequest struct {
	StartTime int64 `json:"start_time" binding:"required"`
	EndTime   int64 `json:"end_time" binding:"required"`
	// Price defaults to the experience's base price when zero.
	Price uint64 `json:"price"`
}

type updateReservationRequest struct {
	NewStartTime int64 `json:"new_start_time" binding:"required"`
}

type depositRequest struct {
	Amount uint64 `json:"amount"`
}

type balanceResponse struct {
	Account string `json:"account"`
	Balance uint64 `json:"balance"`
}

type bookResponse struct {
	Reservation booking.Reservation `json:"reservation"`
	Token       booking.Token       `json:"token"`
}

func (s *Server) handleHealth(c *gin.Context) {
	if s.Health != nil {
		if err := s.Health(c.Request.Context()); err != nil {
			fail(c, http.StatusServiceUnavailable, "UNAVAILABLE", err.Error())
			return
		}
	}
	ok(c, http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleRegister(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, codeBadRequest, "username and password are required")
		return
	}
	u, err := s.Users.Register(c.Request.Context(), strings.TrimSpace(req.Username), req.Password)
	if err != nil {
		s.respondErr(c, err)
		return
	}
	ok(c, http.StatusCreated, gin.H{"username": u.Username})
}

func (s *Server) handleLogin(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, codeBadRequest, "username and password are required")
		return
	}
	u, err := s.Users.VerifyPassword(c.Request.Context(), strings.TrimSpace(req.Username), req.Password)
	if err != nil {
		s.respondErr(c, err)
		return
	}
	if err := s.Auth.SetSession(c.Writer, c.Request, u.Username); err != nil {
		s.respondErr(c, err)
		return
	}
	tok, exp, err := s.Auth.IssueToken(u.Username)
	if err != nil {
		s.respondErr(c, err)
		return
	}
	ok(c, http.StatusOK, loginResponse{Username: u.Username, Token: tok, ExpiresAt: exp.Unix()})
}

func (s *Server) handleLogout(c *gin.Context) {
	s.Auth.ClearSession(c.Writer)
	ok(c, http.StatusOK, nil)
}

func (s *Server) handleCreateExperience(c *gin.Context) {
	var req createExperienceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, codeBadRequest, "invalid request body")
		return
	}
	e, err := s.Experiences.Create(c.Request.Context(), currentUser(c), usecases.CreateExperienceParams{
		Title:                  req.Title,
		Location:               req.Location,
		Description:            req.Description,
		Price:                  req.Price,
		CancellationFeePercent: req.CancellationFeePercent,
	})
	if err != nil {
		s.respondErr(c, err)
		return
	}
	ok(c, http.StatusCreated, e)
}

func (s *Server) handleListExperiences(c *gin.Context) {
	organiser := c.Query("organiser")
	if organiser == "" {
		organiser = currentUser(c)
	}
	if organiser == "" {
		fail(c, http.StatusBadRequest, codeBadRequest, "organiser is required")
		return
	}
	list, err := s.Experiences.ListByOrganiser(c.Request.Context(), organiser)
	if err != nil {
		s.respondErr(c, err)
		return
	}
	ok(c, http.StatusOK, nonNil(list))
}

func (s *Server) handleGetExperience(c *gin.Context) {
	e, err := s.Experiences.Get(c.Request.Context(), c.Param("exp"))
	if err != nil {
		s.respondErr(c, err)
		return
	}
	ok(c, http.StatusOK, e)
}

func (s *Server) handleAddSlot(c *gin.Context) {
	var req addSlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, codeBadRequest, "start_time and end_time are required")
		return
	}
	ctx := c.Request.Context()
	exp := c.Param("exp")
	price := req.Price
	if price == 0 {
		e, err := s.Experiences.Get(ctx, exp)
		if err != nil {
			s.respondErr(c, missingExperience(err))
			return
		}
		price = e.Price
	}
	slot, err := s.Slots.AddTimeSlot(ctx, currentUser(c), exp, unix(req.StartTime), unix(req.EndTime), price)
	if err != nil {
		s.respondErr(c, err)
		return
	}
	ok(c, http.StatusCreated, slot)
}

func (s *Server) handleListSlots(c *gin.Context) {
	list, err := s.Slots.ListByExperience(c.Request.Context(), c.Param("exp"))
	if err != nil {
		s.respondErr(c, err)
		return
	}
	ok(c, http.StatusOK, nonNil(list))
}

func (s *Server) handleBook(c *gin.Context) {
	start, valid := startParam(c)
	if !valid {
		return
	}
	res, tok, err := s.Reservations.BookSlot(c.Request.Context(), currentUser(c), c.Param("exp"), start)
	if err != nil {
		s.respondErr(c, err)
		return
	}
	ok(c, http.StatusCreated, bookResponse{Reservation: res, Token: tok})
}

func (s *Server) handleCancel(c *gin.Context) {
	start, valid := startParam(c)
	if !valid {
		return
	}
	out, err := s.Reservations.CancelReservation(c.Request.Context(), currentUser(c), c.Param("exp"), start)
	if err != nil {
		s.respondErr(c, err)
		return
	}
	ok(c, http.StatusOK, out)
}

func (s *Server) handleUpdate(c *gin.Context) {
	start, valid := startParam(c)
	if !valid {
		return
	}
	var req updateReservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, codeBadRequest, "new_start_time is required")
		return
	}
	res, err := s.Reservations.UpdateReservation(c.Request.Context(), currentUser(c), c.Param("exp"), start, unix(req.NewStartTime))
	if err != nil {
		s.respondErr(c, err)
		return
	}
	ok(c, http.StatusOK, res)
}

func (s *Server) handleListReservations(c *gin.Context) {
	list, err := s.Reservations.ListByExperience(c.Request.Context(), c.Param("exp"))
	if err != nil {
		s.respondErr(c, err)
		return
	}
	ok(c, http.StatusOK, nonNil(list))
}

func (s *Server) handleMyReservations(c *gin.Context) {
	list, err := s.Reservations.ListByBooker(c.Request.Context(), currentUser(c))
	if err != nil {
		s.respondErr(c, err)
		return
	}
	ok(c, http.StatusOK, nonNil(list))
}

func (s *Server) handleMyTokens(c *gin.Context) {
	list, err := s.Reservations.TokensByOwner(c.Request.Context(), currentUser(c))
	if err != nil {
		s.respondErr(c, err)
		return
	}
	ok(c, http.StatusOK, nonNil(list))
}

func (s *Server) handleMyBalance(c *gin.Context) {
	u := currentUser(c)
	bal, err := s.Reservations.Balance(c.Request.Context(), u)
	if err != nil {
		s.respondErr(c, err)
		return
	}
	ok(c, http.StatusOK, balanceResponse{Account: u, Balance: bal})
}

func (s *Server) handleDeposit(c *gin.Context) {
	var req depositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, codeBadRequest, "invalid request body")
		return
	}
	ctx := c.Request.Context()
	u := currentUser(c)
	if err := s.Reservations.Deposit(ctx, u, req.Amount); err != nil {
		s.respondErr(c, err)
		return
	}
	bal, err := s.Reservations.Balance(ctx, u)
	if err != nil {
		s.respondErr(c, err)
		return
	}
	ok(c, http.StatusOK, balanceResponse{Account: u, Balance: bal})
}

// handleMetadata serves the public metadata document a token's URI points
// at. It is written bare, without the response envelope.
func (s *Server) handleMetadata(c *gin.Context) {
	mint := strings.TrimSuffix(c.Param("file"), ".json")
	meta, err := s.Reservations.Metadata(c.Request.Context(), mint)
	if err != nil {
		s.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, meta.Document())
}

func startParam(c *gin.Context) (time.Time, bool) {
	sec, err := strconv.ParseInt(c.Param("start"), 10, 64)
	if err != nil {
		fail(c, http.StatusBadRequest, codeBadRequest, "start must be unix seconds")
		return time.Time{}, false
	}
	return unix(sec), true
}

func unix(sec int64) time.Time { return time.Unix(sec, 0).UTC() }

func missingExperience(err error) error {
	if errors.Is(err, internaltypes.ErrNotFound) {
		return booking.ErrInvalidExperience
	}
	return err
}

func nonNil[T any](list []T) []T {
	if list == nil {
		return []T{}
	}
	return list
}
