package sandbox

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"rentflow/fault"
	"rentflow/lease"
	"rentflow/lifecycle"
)

type createLeaseRequest struct {
	BookingID          string          `json:"booking_id"`
	PropertyID         string          `json:"property_id"`
	TenantID           string          `json:"tenant_id"`
	StartDate          lifecycle.Date  `json:"start_date"`
	EndDate            lifecycle.Date  `json:"end_date"`
	RentAmount         decimal.Decimal `json:"rent_amount"`
	DepositAmount      decimal.Decimal `json:"deposit_amount"`
	PaymentDueDay      int             `json:"payment_due_day"`
	TermsAndConditions string          `json:"terms_and_conditions"`
}

type signLeaseRequest struct {
	Party lifecycle.Party `json:"party"`
}

type terminateLeaseRequest struct {
	Reason            string         `json:"reason"`
	TerminationDate   lifecycle.Date `json:"termination_date"`
	IsMutualAgreement bool           `json:"is_mutual_agreement"`
}

// present returns a copy of l carrying its status as of today.
func (s *Server) present(l *lease.Lease) lease.Lease {
	out := *l
	out.Status = s.engine.LeaseStatus(out.Facts())
	return out
}

// visibleLease returns the lease only when actor is one of its parties.
// Callers hold s.mu.
func (s *Server) visibleLease(actor lifecycle.Actor, id string) (*lease.Lease, error) {
	l, ok := s.leases[id]
	if !ok || !lifecycle.CanRead(actor, l.TenantID, l.LandlordID) {
		return nil, notFound("lease", id)
	}
	return l, nil
}

func (s *Server) handleListLeases(c echo.Context) error {
	actor := actorOf(c)
	role := c.QueryParam("role")
	bookingID := c.QueryParam("booking_id")
	status := lifecycle.LeaseStatus(c.QueryParam("status"))

	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]lease.Lease, 0)
	for _, id := range s.leaseOrder {
		l := s.leases[id]
		if bookingID != "" && l.BookingID != bookingID {
			continue
		}
		if !partyFilter(actor, role, l.TenantID, l.LandlordID) {
			continue
		}
		view := s.present(l)
		if status != "" && view.Status != status {
			continue
		}
		out = append(out, view)
	}
	return c.JSON(http.StatusOK, paginate(c, out))
}

func (s *Server) handleCreateLease(c echo.Context) error {
	const op = "lease.create"
	actor := actorOf(c)
	var req createLeaseRequest
	if err := bind(c, &req); err != nil {
		return writeError(c, http.StatusBadRequest, "invalid request body")
	}
	terms := lifecycle.LeaseTerms{
		StartDate:       req.StartDate,
		EndDate:         req.EndDate,
		MonthlyRent:     req.RentAmount,
		SecurityDeposit: req.DepositAmount,
		PaymentDueDay:   req.PaymentDueDay,
	}
	if err := lifecycle.ValidateLeaseTerms(terms); err != nil {
		return fail(c, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[req.BookingID]
	if !ok || !lifecycle.CanRead(actor, b.TenantID, b.LandlordID) {
		return fail(c, notFound("booking", req.BookingID))
	}
	if err := s.engine.AuthorizeLeaseCreation(actor, b.Facts()); err != nil {
		return fail(c, err)
	}
	for _, l := range s.leases {
		if l.BookingID == b.ID {
			return fail(c, fault.Conflict(op, "booking %s already has lease %s", b.ID, l.ID))
		}
	}

	now := s.now()
	l := &lease.Lease{
		ID:                 uuid.NewString(),
		BookingID:          b.ID,
		PropertyID:         b.PropertyID,
		TenantID:           b.TenantID,
		LandlordID:         b.LandlordID,
		StartDate:          req.StartDate,
		EndDate:            req.EndDate,
		RentAmount:         req.RentAmount,
		DepositAmount:      req.DepositAmount,
		PaymentDueDay:      req.PaymentDueDay,
		Status:             lifecycle.LeasePendingSignature,
		TermsAndConditions: strings.TrimSpace(req.TermsAndConditions),
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	s.leases[l.ID] = l
	s.leaseOrder = append(s.leaseOrder, l.ID)
	s.notify(l.TenantID)

	s.logger.Info("sandbox lease created", zap.String("lease_id", l.ID), zap.String("booking_id", b.ID))
	return c.JSON(http.StatusCreated, s.present(l))
}

func (s *Server) handleGetLease(c echo.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, err := s.visibleLease(actorOf(c), c.Param("id"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, s.present(l))
}

func (s *Server) handleSignLease(c echo.Context) error {
	actor := actorOf(c)
	var req signLeaseRequest
	if err := bind(c, &req); err != nil {
		return writeError(c, http.StatusBadRequest, "invalid request body")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	l, err := s.visibleLease(actor, c.Param("id"))
	if err != nil {
		return fail(c, err)
	}
	already, err := s.engine.AuthorizeSign(actor, l.Facts(), req.Party)
	if err != nil {
		return fail(c, err)
	}
	if already {
		return c.JSON(http.StatusOK, s.present(l))
	}

	now := s.now()
	if req.Party == lifecycle.PartyTenant {
		l.TenantSignedAt = &now
		s.notify(l.LandlordID)
	} else {
		l.LandlordSignedAt = &now
		s.notify(l.TenantID)
	}
	if l.Facts().FullySigned() {
		l.Status = lifecycle.LeaseActive
	}
	l.UpdatedAt = now
	return c.JSON(http.StatusOK, s.present(l))
}

func (s *Server) handleTerminateLease(c echo.Context) error {
	const op = "lease.terminate"
	actor := actorOf(c)
	var req terminateLeaseRequest
	if err := bind(c, &req); err != nil {
		return writeError(c, http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Reason) == "" {
		return fail(c, fault.Validation(op, "reason is required"))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	l, err := s.visibleLease(actor, c.Param("id"))
	if err != nil {
		return fail(c, err)
	}
	if err := s.engine.AuthorizeTermination(actor, l.Facts()); err != nil {
		return fail(c, err)
	}

	l.Status = lifecycle.LeaseTerminated
	l.UpdatedAt = s.now()
	if actor.UserID == l.TenantID {
		s.notify(l.LandlordID)
	} else {
		s.notify(l.TenantID)
	}
	s.logger.Info("sandbox lease terminated",
		zap.String("lease_id", l.ID),
		zap.String("reason", strings.TrimSpace(req.Reason)),
		zap.Bool("mutual", req.IsMutualAgreement),
	)
	return c.JSON(http.StatusOK, s.present(l))
}
