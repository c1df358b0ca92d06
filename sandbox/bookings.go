package sandbox

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"rentflow/booking"
	"rentflow/fault"
	"rentflow/lifecycle"
	"rentflow/property"
)

type createPropertyRequest struct {
	Title   string          `json:"title"`
	Price   decimal.Decimal `json:"price"`
	Deposit decimal.Decimal `json:"deposit"`
	Address string          `json:"address"`
	City    string          `json:"city"`
}

type createBookingRequest struct {
	PropertyID  string    `json:"property_id"`
	RequestedAt time.Time `json:"requested_at"`
	Note        string    `json:"note"`
}

type bookingActionRequest struct {
	Reason string `json:"reason"`
}

var bookingActions = map[string]lifecycle.BookingAction{
	"approve": lifecycle.ActionConfirm,
	"reject":  lifecycle.ActionReject,
	"cancel":  lifecycle.ActionCancel,
}

func (s *Server) handleListProperties(c echo.Context) error {
	status := property.Status(c.QueryParam("status"))

	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]property.Property, 0, len(s.propertyOrder))
	for _, id := range s.propertyOrder {
		p := s.properties[id]
		if status != "" && p.Status != status {
			continue
		}
		out = append(out, *p)
	}
	return c.JSON(http.StatusOK, paginate(c, out))
}

func (s *Server) handleCreateProperty(c echo.Context) error {
	const op = "property.create"
	actor := actorOf(c)
	if actor.Role != lifecycle.RoleLandlord {
		return fail(c, fault.Authorization(op, "only landlords can list properties"))
	}
	var req createPropertyRequest
	if err := bind(c, &req); err != nil {
		return writeError(c, http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Title) == "" {
		return fail(c, fault.Validation(op, "title is required"))
	}
	if !req.Price.IsPositive() {
		return fail(c, fault.Validation(op, "price must be positive"))
	}

	p := &property.Property{
		ID:         uuid.NewString(),
		Title:      strings.TrimSpace(req.Title),
		LandlordID: actor.UserID,
		Status:     property.StatusAvailable,
		Price:      req.Price,
		Deposit:    req.Deposit,
		Address:    req.Address,
		City:       req.City,
		CreatedAt:  s.now(),
	}

	s.mu.Lock()
	s.properties[p.ID] = p
	s.propertyOrder = append(s.propertyOrder, p.ID)
	out := *p
	s.mu.Unlock()

	return c.JSON(http.StatusCreated, out)
}

func (s *Server) handleGetProperty(c echo.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.properties[c.Param("id")]
	if !ok {
		return fail(c, notFound("property", c.Param("id")))
	}
	return c.JSON(http.StatusOK, *p)
}

// partyFilter reports whether actor sees an aggregate with the given parties
// under the role query parameter.
func partyFilter(actor lifecycle.Actor, role, tenantID, landlordID string) bool {
	switch lifecycle.Party(role) {
	case lifecycle.PartyTenant:
		return actor.UserID == tenantID
	case lifecycle.PartyLandlord:
		return actor.UserID == landlordID
	default:
		return lifecycle.CanRead(actor, tenantID, landlordID)
	}
}

func (s *Server) handleListBookings(c echo.Context) error {
	actor := actorOf(c)
	role := c.QueryParam("role")
	status := lifecycle.BookingStatus(c.QueryParam("status"))

	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]booking.Booking, 0)
	for _, id := range s.bookingOrder {
		b := s.bookings[id]
		if !partyFilter(actor, role, b.TenantID, b.LandlordID) {
			continue
		}
		if status != "" && b.Status != status {
			continue
		}
		out = append(out, *b)
	}
	return c.JSON(http.StatusOK, paginate(c, out))
}

func (s *Server) handleCreateBooking(c echo.Context) error {
	const op = "booking.create"
	actor := actorOf(c)
	var req createBookingRequest
	if err := bind(c, &req); err != nil {
		return writeError(c, http.StatusBadRequest, "invalid request body")
	}
	if req.PropertyID == "" {
		return fail(c, fault.Validation(op, "property_id is required"))
	}
	if err := s.engine.AuthorizeBookingCreation(actor, req.RequestedAt); err != nil {
		return fail(c, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.properties[req.PropertyID]
	if !ok {
		return fail(c, notFound("property", req.PropertyID))
	}
	if !p.Bookable() {
		return fail(c, fault.Conflict(op, "property %s is %s and cannot be booked", p.ID, p.Status))
	}

	now := s.now()
	b := &booking.Booking{
		ID:          uuid.NewString(),
		PropertyID:  p.ID,
		TenantID:    actor.UserID,
		LandlordID:  p.LandlordID,
		RequestedAt: req.RequestedAt.UTC(),
		Note:        strings.TrimSpace(req.Note),
		Status:      lifecycle.BookingPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.bookings[b.ID] = b
	s.bookingOrder = append(s.bookingOrder, b.ID)
	s.notify(b.LandlordID)

	s.logger.Info("sandbox booking created", zap.String("booking_id", b.ID), zap.String("property_id", p.ID))
	return c.JSON(http.StatusCreated, *b)
}

func (s *Server) handleGetBooking(c echo.Context) error {
	actor := actorOf(c)

	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[c.Param("id")]
	if !ok || !lifecycle.CanRead(actor, b.TenantID, b.LandlordID) {
		return fail(c, notFound("booking", c.Param("id")))
	}
	return c.JSON(http.StatusOK, *b)
}

func (s *Server) handleBookingAction(c echo.Context) error {
	actor := actorOf(c)
	action, ok := bookingActions[c.Param("action")]
	if !ok {
		return writeError(c, http.StatusNotFound, "unknown booking action")
	}
	var req bookingActionRequest
	if err := bind(c, &req); err != nil {
		return writeError(c, http.StatusBadRequest, "invalid request body")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[c.Param("id")]
	if !ok || !lifecycle.CanRead(actor, b.TenantID, b.LandlordID) {
		return fail(c, notFound("booking", c.Param("id")))
	}
	next, err := s.engine.AuthorizeBookingTransition(actor, b.Facts(), action)
	if err != nil {
		return fail(c, err)
	}

	b.Status = next
	b.Reason = strings.TrimSpace(req.Reason)
	b.UpdatedAt = s.now()
	if actor.UserID == b.TenantID {
		s.notify(b.LandlordID)
	} else {
		s.notify(b.TenantID)
	}
	return c.JSON(http.StatusOK, *b)
}
