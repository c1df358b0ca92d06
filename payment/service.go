// Package payment submits rent payments against active leases and reflects
// the gateway's verdict as reported by the server.
package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"rentflow/fault"
	"rentflow/journal"
	"rentflow/lease"
	"rentflow/lifecycle"
	"rentflow/resource"
)

// Remote is the /payments collection.
type Remote interface {
	Get(ctx context.Context, id string) (Payment, error)
	ListAt(ctx context.Context, q resource.Query, sub ...string) (resource.Page[Payment], error)
	CreateAt(ctx context.Context, body any, sub []string, opts ...resource.RequestOption) (Payment, error)
	Act(ctx context.Context, id, action string, body any, opts ...resource.RequestOption) (Payment, error)
}

// LeaseReader resolves the lease a payment belongs to.
type LeaseReader interface {
	Get(ctx context.Context, id string) (lease.Lease, error)
}

// NewRemote returns the /payments collection of api.
func NewRemote(api *resource.Client) Remote {
	return resource.NewCollection[Payment](api, "/payments")
}

type Service struct {
	remote    Remote
	leases    LeaseReader
	principal lifecycle.Principal
	engine    *lifecycle.Engine
	ledger    journal.Ledger
	timeline  journal.Recorder
	logger    *zap.Logger
	newKey    func() string
}

func NewService(remote Remote, leases LeaseReader, principal lifecycle.Principal, engine *lifecycle.Engine, logger *zap.Logger) *Service {
	if engine == nil {
		engine = lifecycle.NewEngine(nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		remote:    remote,
		leases:    leases,
		principal: principal,
		engine:    engine,
		logger:    logger,
		newKey:    uuid.NewString,
	}
}

// WithLedger remembers idempotency keys so a retried submission returns the
// payment it already created.
func (s *Service) WithLedger(l journal.Ledger) *Service {
	s.ledger = l
	return s
}

// WithTimeline records successful mutations on r.
func (s *Service) WithTimeline(r journal.Recorder) *Service {
	s.timeline = r
	return s
}

// Create submits a payment against an active lease. The result is pending or
// processing; settlement arrives later through Refresh or AwaitSettlement.
func (s *Service) Create(ctx context.Context, params CreateParams) (Payment, error) {
	const op = "payment.create"
	if params.LeaseID == "" {
		return Payment{}, fault.Validation(op, "lease id is required")
	}
	if err := lifecycle.ValidatePayment(params.Amount, params.Method); err != nil {
		return Payment{}, err
	}
	actor, err := s.principal.Actor()
	if err != nil {
		return Payment{}, err
	}

	l, err := s.leases.Get(ctx, params.LeaseID)
	if err != nil {
		return Payment{}, fmt.Errorf("payment: create: %w", err)
	}

	// a key already bound to a payment answers with that payment, whatever
	// the lease has become since
	key := strings.TrimSpace(params.IdempotencyKey)
	if key == "" {
		key = s.newKey()
	}
	if prior, ok, err := s.replay(ctx, key, l.ID); err != nil || ok {
		return prior, err
	}
	if err := s.engine.AuthorizePayment(actor, l.Facts()); err != nil {
		return Payment{}, err
	}

	created, err := s.remote.CreateAt(ctx, createRequest{
		Amount:      params.Amount,
		Method:      params.Method,
		Description: strings.TrimSpace(params.Description),
	}, []string{"leases", l.ID}, resource.WithIdempotencyKey(key))
	if err != nil {
		return Payment{}, fmt.Errorf("payment: create: %w", err)
	}
	created.IdempotencyKey = key

	if s.ledger != nil {
		if err := s.ledger.Bind(ctx, key, created.ID); err != nil {
			s.logger.Error("idempotency key not bound",
				zap.String("payment_id", created.ID),
				zap.Error(err),
			)
		}
	}

	s.logger.Info("payment submitted",
		zap.String("payment_id", created.ID),
		zap.String("lease_id", l.ID),
		zap.String("amount", created.Amount.String()),
		zap.String("method", string(created.Method)),
		zap.String("status", created.Status.String()),
	)
	journal.Append(ctx, s.timeline, s.logger, journal.Event{
		AggregateType: journal.AggregatePayment,
		AggregateID:   created.ID,
		Type:          journal.EventPaymentCreated,
		ActorID:       actor.UserID,
		Status:        created.Status.String(),
		Payload: map[string]any{
			"lease_id":        l.ID,
			"amount":          created.Amount.String(),
			"method":          created.Method,
			"idempotency_key": key,
		},
	})
	return created, nil
}

// replay reserves key for the lease. When the key already names a payment,
// that payment is returned instead of submitting again. An unbound key is
// resubmitted under the same header so the server can deduplicate.
func (s *Service) replay(ctx context.Context, key, leaseID string) (Payment, bool, error) {
	const op = "payment.create"
	if s.ledger == nil {
		return Payment{}, false, nil
	}
	rec, existed, err := s.ledger.Reserve(ctx, key, ledgerScope(leaseID))
	if errors.Is(err, journal.ErrKeyScopeMismatch) {
		return Payment{}, false, fault.Conflict(op, "idempotency key %s belongs to %s", key, rec.Scope)
	}
	if err != nil {
		return Payment{}, false, fmt.Errorf("payment: reserve key: %w", err)
	}
	if !existed || rec.ResourceID == "" {
		return Payment{}, false, nil
	}

	prior, err := s.remote.Get(ctx, rec.ResourceID)
	if err != nil {
		return Payment{}, false, fmt.Errorf("payment: replay %s: %w", rec.ResourceID, err)
	}
	prior.IdempotencyKey = key
	s.logger.Info("payment replayed from idempotency key",
		zap.String("payment_id", prior.ID),
		zap.String("status", prior.Status.String()),
	)
	return prior, true, nil
}

// Get returns a payment the caller may read: its tenant, or the landlord of
// its lease.
func (s *Service) Get(ctx context.Context, id string) (Payment, error) {
	const op = "payment.get"
	actor, err := s.principal.Actor()
	if err != nil {
		return Payment{}, err
	}
	p, err := s.remote.Get(ctx, id)
	if err != nil {
		return Payment{}, fmt.Errorf("payment: get: %w", err)
	}
	if actor.UserID != "" && actor.UserID == p.TenantID {
		return p, nil
	}
	l, err := s.leases.Get(ctx, p.LeaseID)
	if errors.Is(err, fault.ErrNotFound) {
		return Payment{}, fault.NotFound(op, "payment %s not found", id)
	}
	if err != nil {
		return Payment{}, fmt.Errorf("payment: get: %w", err)
	}
	if !lifecycle.CanRead(actor, l.TenantID, l.LandlordID) {
		return Payment{}, fault.NotFound(op, "payment %s not found", id)
	}
	return p, nil
}

// ListByLease returns one page of a lease's payments.
func (s *Service) ListByLease(ctx context.Context, leaseID string, q resource.Query) (resource.Page[Payment], error) {
	const op = "payment.list"
	actor, err := s.principal.Actor()
	if err != nil {
		return resource.Page[Payment]{}, err
	}
	l, err := s.leases.Get(ctx, leaseID)
	if err != nil {
		return resource.Page[Payment]{}, fmt.Errorf("payment: list: %w", err)
	}
	if !lifecycle.CanRead(actor, l.TenantID, l.LandlordID) {
		return resource.Page[Payment]{}, fault.NotFound(op, "lease %s not found", leaseID)
	}
	page, err := s.remote.ListAt(ctx, q, "leases", leaseID)
	if err != nil {
		return resource.Page[Payment]{}, fmt.Errorf("payment: list: %w", err)
	}
	return page, nil
}

// Refund asks the server to refund a successful payment. Only the landlord
// of the lease may do so; the resulting status is whatever the server says.
func (s *Service) Refund(ctx context.Context, id, reason string) (Payment, error) {
	const op = "payment.refund"
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return Payment{}, fault.Validation(op, "refund reason is required")
	}
	actor, err := s.principal.Actor()
	if err != nil {
		return Payment{}, err
	}

	p, err := s.remote.Get(ctx, id)
	if err != nil {
		return Payment{}, fmt.Errorf("payment: refund: %w", err)
	}
	l, err := s.leases.Get(ctx, p.LeaseID)
	if err != nil {
		return Payment{}, fmt.Errorf("payment: refund: %w", err)
	}
	if err := s.engine.AuthorizeRefund(actor, l.LandlordID, p.Status); err != nil {
		return Payment{}, err
	}

	refunded, err := s.remote.Act(ctx, id, "refund", refundRequest{PaymentID: id, Reason: reason})
	if err != nil {
		return Payment{}, fmt.Errorf("payment: refund: %w", err)
	}

	s.logger.Info("payment refunded",
		zap.String("payment_id", refunded.ID),
		zap.String("status", refunded.Status.String()),
	)
	journal.Append(ctx, s.timeline, s.logger, journal.Event{
		AggregateType: journal.AggregatePayment,
		AggregateID:   refunded.ID,
		Type:          journal.EventPaymentRefunded,
		ActorID:       actor.UserID,
		Status:        refunded.Status.String(),
		Payload:       map[string]any{"reason": reason, "from": p.Status},
	})
	return refunded, nil
}

// Refresh re-reads known from the server, keeping known when the response is
// stale.
func (s *Service) Refresh(ctx context.Context, known Payment) (Payment, error) {
	latest, err := s.Get(ctx, known.ID)
	if err != nil {
		return known, err
	}
	next := Newer(known, latest)
	if next.IdempotencyKey == "" {
		next.IdempotencyKey = known.IdempotencyKey
	}
	return next, nil
}

// AwaitSettlement polls a payment every interval until the gateway reaches a
// verdict. A payment id received on nudges triggers an immediate check.
// Transport failures are retried on the next tick; every other error ends
// the wait. Abandoning the wait says nothing about the payment.
func (s *Service) AwaitSettlement(ctx context.Context, id string, interval time.Duration, nudges <-chan string) (Payment, error) {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	known := Payment{ID: id}
	for {
		next, err := s.Refresh(ctx, known)
		switch {
		case err == nil:
			known = next
			if known.Status.Settled() {
				s.settled(ctx, known)
				return known, nil
			}
		case fault.Retryable(err) && ctx.Err() == nil:
			s.logger.Warn("settlement poll failed", zap.String("payment_id", id), zap.Error(err))
		default:
			return known, err
		}

	wait:
		for {
			select {
			case <-ctx.Done():
				return known, fmt.Errorf("payment: await %s: %w", id, ctx.Err())
			case <-ticker.C:
				break wait
			case nudged, ok := <-nudges:
				if !ok {
					nudges = nil
					continue
				}
				if nudged == id {
					break wait
				}
			}
		}
	}
}

func (s *Service) settled(ctx context.Context, p Payment) {
	s.logger.Info("payment settled",
		zap.String("payment_id", p.ID),
		zap.String("status", p.Status.String()),
	)
	journal.Append(ctx, s.timeline, s.logger, journal.Event{
		AggregateType: journal.AggregatePayment,
		AggregateID:   p.ID,
		Type:          journal.EventPaymentSettled,
		Status:        p.Status.String(),
		Payload:       map[string]any{"transaction_id": p.TransactionID},
	})
}
