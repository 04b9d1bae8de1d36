// Package web exposes the booking operations over a JSON HTTP API.
package web

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/example/slotmint/internal/application/usecases"
	"github.com/example/slotmint/internal/auth"
)

type Server struct {
	Auth         *auth.Store
	Users        usecases.AuthService
	Experiences  usecases.ExperienceManager
	Slots        usecases.SlotManager
	Reservations usecases.ReservationEngine

	Log *zap.Logger

	// Health reports whether backing services are reachable. Nil means always healthy.
	Health      func(context.Context) error
	ServiceName string
}

func (s *Server) logger() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}

func (s *Server) Routes() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	name := s.ServiceName
	if name == "" {
		name = "slotmint"
	}
	r.Use(otelgin.Middleware(name))
	r.Use(s.requestLog())
	r.Use(s.identify())

	r.GET("/healthz", s.handleHealth)
	r.GET("/tokens/:file", s.handleMetadata)

	api := r.Group("/api")
	api.POST("/register", s.handleRegister)
	api.POST("/login", s.handleLogin)
	api.POST("/logout", s.handleLogout)

	api.GET("/experiences", s.handleListExperiences)
	api.GET("/experiences/:exp", s.handleGetExperience)
	api.GET("/experiences/:exp/slots", s.handleListSlots)
	api.GET("/experiences/:exp/reservations", s.handleListReservations)

	authed := api.Group("", s.requireUser)
	authed.POST("/experiences", s.handleCreateExperience)
	authed.POST("/experiences/:exp/slots", s.handleAddSlot)
	authed.POST("/experiences/:exp/slots/:start/book", s.handleBook)
	authed.POST("/experiences/:exp/reservations/:start/cancel", s.handleCancel)
	authed.PUT("/experiences/:exp/reservations/:start", s.handleUpdate)
	authed.GET("/me/reservations", s.handleMyReservations)
	authed.GET("/me/tokens", s.handleMyTokens)
	authed.GET("/me/balance", s.handleMyBalance)
	authed.POST("/me/deposit", s.handleDeposit)

	return r
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger().Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("elapsed", time.Since(start)),
		)
	}
}

// identify attaches the caller's username, if any, to the request context.
func (s *Server) identify() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.Auth != nil {
			if u, ok := s.Auth.Identify(c.Request); ok {
				c.Request = c.Request.WithContext(auth.WithUser(c.Request.Context(), u))
			}
		}
		c.Next()
	}
}

func (s *Server) requireUser(c *gin.Context) {
	if _, ok := auth.UserFromContext(c.Request.Context()); !ok {
		fail(c, http.StatusUnauthorized, codeUnauthenticated, "authentication required")
		return
	}
	c.Next()
}

func currentUser(c *gin.Context) string {
	u, _ := auth.UserFromContext(c.Request.Context())
	return u
}

// Start serves h on addr until ctx is cancelled, then shuts down gracefully.
func Start(ctx context.Context, addr string, h http.Handler, log *zap.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	log.Info("listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
