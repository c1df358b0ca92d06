// Package sandbox is an in-memory rental API that speaks the same wire format
// as the production backend and enforces the same lifecycle rules. It backs
// local development and end-to-end tests.
package sandbox

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"rentflow/auth"
	"rentflow/booking"
	"rentflow/lease"
	"rentflow/lifecycle"
	"rentflow/maintenance"
	"rentflow/notify"
	"rentflow/payment"
	"rentflow/property"
)

// APIPrefix is where the API is mounted.
const APIPrefix = "/api/v1"

// Publisher receives a nudge whenever a payment settles.
type Publisher interface {
	Publish(n notify.Nudge) error
}

// Options configures a Server.
type Options struct {
	JWTSecret string
	Location  *time.Location
	Now       func() time.Time
	Logger    *zap.Logger
	Publisher Publisher
}

// Server holds every aggregate in memory behind one mutex.
type Server struct {
	echo      *echo.Echo
	auth      *auth.Service
	engine    *lifecycle.Engine
	logger    *zap.Logger
	publisher Publisher

	mu          sync.Mutex
	properties  map[string]*property.Property
	bookings    map[string]*booking.Booking
	leases      map[string]*lease.Lease
	payments    map[string]*payment.Payment
	repairs     map[string]*maintenance.Request
	idempotency map[string]idempotencyEntry
	unread      map[string]int

	propertyOrder []string
	bookingOrder  []string
	leaseOrder    []string
	paymentOrder  []string
	repairOrder   []string
}

type idempotencyEntry struct {
	leaseID   string
	paymentID string
}

// New builds a Server with its routes registered.
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	secret := opts.JWTSecret
	if secret == "" {
		secret = "rentflow-sandbox-secret"
	}

	s := &Server{
		auth:        auth.NewService(auth.NewMemoryRepository(), secret).WithClock(now),
		engine:      lifecycle.NewEngine(opts.Location).WithClock(now),
		logger:      logger,
		publisher:   opts.Publisher,
		properties:  make(map[string]*property.Property),
		bookings:    make(map[string]*booking.Booking),
		leases:      make(map[string]*lease.Lease),
		payments:    make(map[string]*payment.Payment),
		repairs:     make(map[string]*maintenance.Request),
		idempotency: make(map[string]idempotencyEntry),
		unread:      make(map[string]int),
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(s.requestLogger)
	s.routes(e.Group(APIPrefix))
	s.echo = e
	return s
}

func (s *Server) routes(api *echo.Group) {
	api.POST("/auth/login", s.handleLogin)
	api.POST("/auth/register", s.handleRegister)
	api.POST("/auth/logout", s.handleLogout)
	api.POST("/sandbox/payments/:id/settle", s.handleSettle)

	authed := api.Group("", s.requireAuth)
	authed.GET("/users/me", s.handleMe)
	authed.GET("/notifications/unread-count", s.handleUnreadCount)

	authed.GET("/properties", s.handleListProperties)
	authed.POST("/properties", s.handleCreateProperty)
	authed.GET("/properties/:id", s.handleGetProperty)

	authed.GET("/bookings", s.handleListBookings)
	authed.POST("/bookings", s.handleCreateBooking)
	authed.GET("/bookings/:id", s.handleGetBooking)
	authed.POST("/bookings/:id/:action", s.handleBookingAction)

	authed.GET("/leases", s.handleListLeases)
	authed.POST("/leases", s.handleCreateLease)
	authed.GET("/leases/:id", s.handleGetLease)
	authed.POST("/leases/:id/sign", s.handleSignLease)
	authed.POST("/leases/:id/terminate", s.handleTerminateLease)

	authed.GET("/payments/leases/:id", s.handleListPayments)
	authed.POST("/payments/leases/:id", s.handleCreatePayment)
	authed.GET("/payments/:id", s.handleGetPayment)
	authed.POST("/payments/:id/refund", s.handleRefund)

	authed.GET("/maintenance", s.handleListMaintenance)
	authed.POST("/maintenance", s.handleCreateMaintenance)
	authed.GET("/maintenance/:id", s.handleGetMaintenance)
	authed.PATCH("/maintenance/:id", s.handleUpdateMaintenance)
	authed.PATCH("/maintenance/:id/status", s.handleMaintenanceStatus)
	authed.POST("/maintenance/:id/feedback", s.handleMaintenanceFeedback)
}

// Handler exposes the server for httptest or a custom listener.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start listens on addr until Shutdown.
func (s *Server) Start(addr string) error {
	s.logger.Info("sandbox listening", zap.String("addr", addr), zap.String("prefix", APIPrefix))
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the listener gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) now() time.Time {
	return s.engine.Now().UTC()
}

const actorKey = "actor"

func (s *Server) requireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		token := bearer(c.Request())
		if token == "" {
			return writeError(c, http.StatusUnauthorized, "authentication required")
		}
		claims, err := s.auth.VerifyToken(token)
		if err != nil {
			return writeError(c, http.StatusUnauthorized, "invalid or expired token")
		}
		if _, err := s.auth.GetUserByID(c.Request().Context(), claims.UserID); err != nil {
			return writeError(c, http.StatusUnauthorized, "unknown user")
		}
		c.Set(actorKey, lifecycle.Actor{UserID: claims.UserID, Role: claims.Role})
		return next(c)
	}
}

func actorOf(c echo.Context) lifecycle.Actor {
	a, _ := c.Get(actorKey).(lifecycle.Actor)
	return a
}

func bearer(r *http.Request) string {
	h := r.Header.Get(echo.HeaderAuthorization)
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

func (s *Server) requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		started := time.Now()
		err := next(c)
		if err != nil {
			c.Error(err)
		}
		s.logger.Debug("sandbox request",
			zap.String("method", c.Request().Method),
			zap.String("path", c.Request().URL.Path),
			zap.Int("status", c.Response().Status),
			zap.Duration("elapsed", time.Since(started)),
		)
		return nil
	}
}
