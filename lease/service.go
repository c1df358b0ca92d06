// Package lease drafts, signs and terminates occupancy contracts. Status is
// recomputed from the validity window on every read.
package lease

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"rentflow/booking"
	"rentflow/fault"
	"rentflow/journal"
	"rentflow/lifecycle"
	"rentflow/resource"
)

// Remote is the /leases collection.
type Remote interface {
	Get(ctx context.Context, id string) (Lease, error)
	List(ctx context.Context, q resource.Query) (resource.Page[Lease], error)
	Create(ctx context.Context, body any, opts ...resource.RequestOption) (Lease, error)
	Act(ctx context.Context, id, action string, body any, opts ...resource.RequestOption) (Lease, error)
}

// BookingReader resolves the booking a lease is drafted from.
type BookingReader interface {
	Get(ctx context.Context, id string) (booking.Booking, error)
}

// NewRemote returns the /leases collection of api.
func NewRemote(api *resource.Client) Remote {
	return resource.NewCollection[Lease](api, "/leases")
}

type Service struct {
	remote    Remote
	bookings  BookingReader
	principal lifecycle.Principal
	engine    *lifecycle.Engine
	timeline  journal.Recorder
	logger    *zap.Logger
}

func NewService(remote Remote, bookings BookingReader, principal lifecycle.Principal, engine *lifecycle.Engine, logger *zap.Logger) *Service {
	if engine == nil {
		engine = lifecycle.NewEngine(nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		remote:    remote,
		bookings:  bookings,
		principal: principal,
		engine:    engine,
		logger:    logger,
	}
}

// WithTimeline records successful mutations on r.
func (s *Service) WithTimeline(r journal.Recorder) *Service {
	s.timeline = r
	return s
}

// derive replaces the stored status with the one that holds today.
func (s *Service) derive(l Lease) Lease {
	l.Status = s.engine.LeaseStatus(l.Facts())
	return l
}

// CreateFromBooking drafts a lease from a confirmed booking. A booking has at
// most one lease.
func (s *Service) CreateFromBooking(ctx context.Context, params CreateParams) (Lease, error) {
	const op = "lease.create"
	if params.BookingID == "" {
		return Lease{}, fault.Validation(op, "booking id is required")
	}
	if err := lifecycle.ValidateLeaseTerms(params.Terms); err != nil {
		return Lease{}, err
	}
	actor, err := s.principal.Actor()
	if err != nil {
		return Lease{}, err
	}

	b, err := s.bookings.Get(ctx, params.BookingID)
	if err != nil {
		return Lease{}, fmt.Errorf("lease: create: %w", err)
	}
	if err := s.engine.AuthorizeLeaseCreation(actor, b.Facts()); err != nil {
		return Lease{}, err
	}

	existing, err := s.remote.List(ctx, resource.Query{PerPage: 1}.With("booking_id", b.ID))
	if err != nil {
		return Lease{}, fmt.Errorf("lease: create: %w", err)
	}
	if len(existing.Data) > 0 {
		return Lease{}, fault.Conflict(op, "booking %s already has lease %s", b.ID, existing.Data[0].ID)
	}

	t := params.Terms
	created, err := s.remote.Create(ctx, createRequest{
		BookingID:          b.ID,
		PropertyID:         b.PropertyID,
		TenantID:           b.TenantID,
		StartDate:          t.StartDate,
		EndDate:            t.EndDate,
		RentAmount:         t.MonthlyRent,
		DepositAmount:      t.SecurityDeposit,
		PaymentDueDay:      t.PaymentDueDay,
		TermsAndConditions: strings.TrimSpace(params.TermsAndConditions),
	})
	if err != nil {
		return Lease{}, fmt.Errorf("lease: create: %w", err)
	}
	created = s.derive(created)

	s.logger.Info("lease created",
		zap.String("lease_id", created.ID),
		zap.String("booking_id", b.ID),
		zap.String("status", created.Status.String()),
	)
	journal.Append(ctx, s.timeline, s.logger, journal.Event{
		AggregateType: journal.AggregateLease,
		AggregateID:   created.ID,
		Type:          journal.EventLeaseCreated,
		ActorID:       actor.UserID,
		Status:        created.Status.String(),
		Payload: map[string]any{
			"booking_id": b.ID,
			"start_date": created.StartDate.String(),
			"end_date":   created.EndDate.String(),
		},
	})
	return created, nil
}

// Sign records party's signature. Signing again as the same party returns
// the lease unchanged without contacting the server.
func (s *Service) Sign(ctx context.Context, id string, party lifecycle.Party) (Lease, error) {
	const op = "lease.sign"
	if id == "" {
		return Lease{}, fault.Validation(op, "lease id is required")
	}
	actor, err := s.principal.Actor()
	if err != nil {
		return Lease{}, err
	}

	current, err := s.remote.Get(ctx, id)
	if err != nil {
		return Lease{}, fmt.Errorf("lease: sign: %w", err)
	}
	already, err := s.engine.AuthorizeSign(actor, current.Facts(), party)
	if err != nil {
		return Lease{}, err
	}
	if already {
		return s.derive(current), nil
	}

	signed, err := s.remote.Act(ctx, id, "sign", signRequest{Party: party})
	if err != nil {
		return Lease{}, fmt.Errorf("lease: sign: %w", err)
	}
	signed = s.derive(signed)

	s.logger.Info("lease signed",
		zap.String("lease_id", signed.ID),
		zap.String("party", string(party)),
		zap.String("status", signed.Status.String()),
	)
	journal.Append(ctx, s.timeline, s.logger, journal.Event{
		AggregateType: journal.AggregateLease,
		AggregateID:   signed.ID,
		Type:          journal.EventLeaseSigned,
		ActorID:       actor.UserID,
		Status:        signed.Status.String(),
		Payload:       map[string]any{"party": party},
	})
	return signed, nil
}

// Terminate ends a lease early by mutual agreement, effective today.
func (s *Service) Terminate(ctx context.Context, id, reason string) (Lease, error) {
	const op = "lease.terminate"
	if id == "" {
		return Lease{}, fault.Validation(op, "lease id is required")
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return Lease{}, fault.Validation(op, "termination reason is required")
	}
	actor, err := s.principal.Actor()
	if err != nil {
		return Lease{}, err
	}

	current, err := s.remote.Get(ctx, id)
	if err != nil {
		return Lease{}, fmt.Errorf("lease: terminate: %w", err)
	}
	if err := s.engine.AuthorizeTermination(actor, current.Facts()); err != nil {
		return Lease{}, err
	}

	ended, err := s.remote.Act(ctx, id, "terminate", terminateRequest{
		Reason:            reason,
		TerminationDate:   s.engine.Today(),
		IsMutualAgreement: true,
	})
	if err != nil {
		return Lease{}, fmt.Errorf("lease: terminate: %w", err)
	}
	ended = s.derive(ended)

	s.logger.Info("lease terminated",
		zap.String("lease_id", ended.ID),
		zap.String("status", ended.Status.String()),
	)
	journal.Append(ctx, s.timeline, s.logger, journal.Event{
		AggregateType: journal.AggregateLease,
		AggregateID:   ended.ID,
		Type:          journal.EventLeaseTerminated,
		ActorID:       actor.UserID,
		Status:        ended.Status.String(),
		Payload:       map[string]any{"reason": reason, "from": s.engine.LeaseStatus(current.Facts())},
	})
	return ended, nil
}

// Get returns a lease the caller is party to, with its status as of today.
func (s *Service) Get(ctx context.Context, id string) (Lease, error) {
	actor, err := s.principal.Actor()
	if err != nil {
		return Lease{}, err
	}
	l, err := s.remote.Get(ctx, id)
	if err != nil {
		return Lease{}, fmt.Errorf("lease: get: %w", err)
	}
	if !lifecycle.CanRead(actor, l.TenantID, l.LandlordID) {
		return Lease{}, fault.NotFound("lease.get", "lease %s not found", id)
	}
	return s.derive(l), nil
}

// List returns one page of the caller's leases. When params.Status is set,
// leases whose derived status differs are dropped from the page.
func (s *Service) List(ctx context.Context, params ListParams) (resource.Page[Lease], error) {
	actor, err := s.principal.Actor()
	if err != nil {
		return resource.Page[Lease]{}, err
	}
	as := params.As
	if as == "" {
		as = lifecycle.PartyTenant
		if actor.Role == lifecycle.RoleLandlord {
			as = lifecycle.PartyLandlord
		}
	}
	page, err := s.remote.List(ctx, params.Query.With("role", string(as)))
	if err != nil {
		return resource.Page[Lease]{}, fmt.Errorf("lease: list: %w", err)
	}

	kept := page.Data[:0]
	for _, l := range page.Data {
		l = s.derive(l)
		if params.Status != "" && l.Status != params.Status {
			continue
		}
		kept = append(kept, l)
	}
	page.Data = kept
	if params.Status != "" {
		page.Meta.From, page.Meta.To = nil, nil
	}
	return page, nil
}
