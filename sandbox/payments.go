package sandbox

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"rentflow/fault"
	"rentflow/lifecycle"
	"rentflow/notify"
	"rentflow/payment"
	"rentflow/resource"
)

type createPaymentRequest struct {
	Amount      decimal.Decimal         `json:"amount"`
	Method      lifecycle.PaymentMethod `json:"payment_method"`
	Description string                  `json:"description"`
}

type refundPaymentRequest struct {
	PaymentID string `json:"payment_id"`
	Reason    string `json:"reason"`
}

// SettleRequest drives a payment through the simulated gateway.
type SettleRequest struct {
	Status        lifecycle.PaymentStatus `json:"status"`
	TransactionID string                  `json:"transaction_id,omitempty"`
}

func (s *Server) handleListPayments(c echo.Context) error {
	actor := actorOf(c)

	s.mu.Lock()
	defer s.mu.Unlock()
	l, err := s.visibleLease(actor, c.Param("id"))
	if err != nil {
		return fail(c, err)
	}
	out := make([]payment.Payment, 0)
	for _, id := range s.paymentOrder {
		if p := s.payments[id]; p.LeaseID == l.ID {
			out = append(out, *p)
		}
	}
	return c.JSON(http.StatusOK, paginate(c, out))
}

func (s *Server) handleCreatePayment(c echo.Context) error {
	const op = "payment.create"
	actor := actorOf(c)
	var req createPaymentRequest
	if err := bind(c, &req); err != nil {
		return writeError(c, http.StatusBadRequest, "invalid request body")
	}
	if err := lifecycle.ValidatePayment(req.Amount, req.Method); err != nil {
		return fail(c, err)
	}
	key := strings.TrimSpace(c.Request().Header.Get(resource.HeaderIdempotencyKey))

	s.mu.Lock()
	defer s.mu.Unlock()
	l, err := s.visibleLease(actor, c.Param("id"))
	if err != nil {
		return fail(c, err)
	}
	if key != "" {
		if prior, ok := s.idempotency[key]; ok {
			if prior.leaseID != l.ID {
				return fail(c, fault.Conflict(op, "idempotency key was used for another lease"))
			}
			return c.JSON(http.StatusOK, *s.payments[prior.paymentID])
		}
	}
	if err := s.engine.AuthorizePayment(actor, l.Facts()); err != nil {
		return fail(c, err)
	}

	now := s.now()
	p := &payment.Payment{
		ID:             uuid.NewString(),
		LeaseID:        l.ID,
		TenantID:       actor.UserID,
		Amount:         req.Amount,
		Method:         req.Method,
		Status:         lifecycle.PaymentPending,
		IdempotencyKey: key,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if d := strings.TrimSpace(req.Description); d != "" {
		p.Description = &d
	}
	s.payments[p.ID] = p
	s.paymentOrder = append(s.paymentOrder, p.ID)
	if key != "" {
		s.idempotency[key] = idempotencyEntry{leaseID: l.ID, paymentID: p.ID}
	}
	s.notify(l.LandlordID)

	s.logger.Info("sandbox payment created",
		zap.String("payment_id", p.ID),
		zap.String("lease_id", l.ID),
		zap.String("amount", p.Amount.String()),
	)
	return c.JSON(http.StatusCreated, *p)
}

func (s *Server) handleGetPayment(c echo.Context) error {
	actor := actorOf(c)

	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[c.Param("id")]
	if !ok {
		return fail(c, notFound("payment", c.Param("id")))
	}
	if _, err := s.visibleLease(actor, p.LeaseID); err != nil {
		return fail(c, notFound("payment", p.ID))
	}
	return c.JSON(http.StatusOK, *p)
}

func (s *Server) handleRefund(c echo.Context) error {
	const op = "payment.refund"
	actor := actorOf(c)
	var req refundPaymentRequest
	if err := bind(c, &req); err != nil {
		return writeError(c, http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Reason) == "" {
		return fail(c, fault.Validation(op, "reason is required"))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[c.Param("id")]
	if !ok {
		return fail(c, notFound("payment", c.Param("id")))
	}
	l, err := s.visibleLease(actor, p.LeaseID)
	if err != nil {
		return fail(c, notFound("payment", p.ID))
	}
	if err := s.engine.AuthorizeRefund(actor, l.LandlordID, p.Status); err != nil {
		return fail(c, err)
	}

	p.Status = lifecycle.PaymentRefunded
	p.UpdatedAt = s.now()
	s.notify(p.TenantID)
	return c.JSON(http.StatusOK, *p)
}

// handleSettle stands in for the payment gateway callback. It moves a payment
// forward to the requested status and publishes a nudge.
func (s *Server) handleSettle(c echo.Context) error {
	const op = "payment.settle"
	var req SettleRequest
	if err := bind(c, &req); err != nil {
		return writeError(c, http.StatusBadRequest, "invalid request body")
	}
	if req.Status == "" {
		req.Status = lifecycle.PaymentSuccessful
	}

	s.mu.Lock()
	p, ok := s.payments[c.Param("id")]
	if !ok {
		s.mu.Unlock()
		return fail(c, notFound("payment", c.Param("id")))
	}
	if !lifecycle.PaymentReachable(p.Status, req.Status) || req.Status == lifecycle.PaymentRefunded {
		current := p.Status
		s.mu.Unlock()
		return fail(c, fault.InvalidState(op, current, "cannot settle a %s payment as %s", current, req.Status))
	}

	now := s.now()
	p.Status = req.Status
	p.UpdatedAt = now
	if req.Status == lifecycle.PaymentSuccessful {
		txn := req.TransactionID
		if txn == "" {
			txn = "txn-" + uuid.NewString()
		}
		p.TransactionID = &txn
		p.PaidAt = &now
	}
	if req.Status.Settled() {
		s.notify(p.TenantID)
	}
	out := *p
	s.mu.Unlock()

	if s.publisher != nil {
		if err := s.publisher.Publish(notify.Nudge{PaymentID: out.ID, Status: out.Status}); err != nil {
			s.logger.Warn("settlement nudge not published", zap.String("payment_id", out.ID), zap.Error(err))
		}
	}
	s.logger.Info("sandbox payment settled",
		zap.String("payment_id", out.ID),
		zap.String("status", out.Status.String()),
	)
	return c.JSON(http.StatusOK, out)
}
