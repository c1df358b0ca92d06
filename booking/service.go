// Package booking creates and transitions viewing requests.
package booking

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"rentflow/fault"
	"rentflow/journal"
	"rentflow/lifecycle"
	"rentflow/property"
	"rentflow/resource"
)

// Remote is the /bookings collection.
type Remote interface {
	Get(ctx context.Context, id string) (Booking, error)
	List(ctx context.Context, q resource.Query) (resource.Page[Booking], error)
	Create(ctx context.Context, body any, opts ...resource.RequestOption) (Booking, error)
	Act(ctx context.Context, id, action string, body any, opts ...resource.RequestOption) (Booking, error)
}

// PropertyReader resolves the property a booking targets.
type PropertyReader interface {
	Get(ctx context.Context, id string) (property.Property, error)
}

// NewRemote returns the /bookings collection of api.
func NewRemote(api *resource.Client) Remote {
	return resource.NewCollection[Booking](api, "/bookings")
}

type Service struct {
	remote     Remote
	properties PropertyReader
	principal  lifecycle.Principal
	engine     *lifecycle.Engine
	timeline   journal.Recorder
	logger     *zap.Logger
}

func NewService(remote Remote, properties PropertyReader, principal lifecycle.Principal, engine *lifecycle.Engine, logger *zap.Logger) *Service {
	if engine == nil {
		engine = lifecycle.NewEngine(nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		remote:     remote,
		properties: properties,
		principal:  principal,
		engine:     engine,
		logger:     logger,
	}
}

// WithTimeline records successful mutations on r.
func (s *Service) WithTimeline(r journal.Recorder) *Service {
	s.timeline = r
	return s
}

// Create requests a viewing of params.PropertyID for the calling tenant.
func (s *Service) Create(ctx context.Context, params CreateParams) (Booking, error) {
	const op = "booking.create"
	if strings.TrimSpace(params.PropertyID) == "" {
		return Booking{}, fault.Validation(op, "property id is required")
	}
	actor, err := s.principal.Actor()
	if err != nil {
		return Booking{}, err
	}
	if err := s.engine.AuthorizeBookingCreation(actor, params.RequestedAt); err != nil {
		return Booking{}, err
	}

	prop, err := s.properties.Get(ctx, params.PropertyID)
	if err != nil {
		return Booking{}, fmt.Errorf("booking: create: %w", err)
	}
	if !prop.Bookable() {
		return Booking{}, fault.Conflict(op, "property %s is %s and cannot be booked", prop.ID, prop.Status)
	}

	created, err := s.remote.Create(ctx, createRequest{
		PropertyID:  params.PropertyID,
		RequestedAt: params.RequestedAt.UTC(),
		Note:        strings.TrimSpace(params.Note),
	})
	if err != nil {
		return Booking{}, fmt.Errorf("booking: create: %w", err)
	}

	s.logger.Info("booking created",
		zap.String("booking_id", created.ID),
		zap.String("property_id", created.PropertyID),
		zap.String("status", created.Status.String()),
	)
	journal.Append(ctx, s.timeline, s.logger, journal.Event{
		AggregateType: journal.AggregateBooking,
		AggregateID:   created.ID,
		Type:          journal.EventBookingCreated,
		ActorID:       actor.UserID,
		Status:        created.Status.String(),
		Payload: map[string]any{
			"property_id":  created.PropertyID,
			"landlord_id":  prop.LandlordID,
			"requested_at": created.RequestedAt,
		},
	})
	return created, nil
}

// Transition applies confirm, reject or cancel. The returned booking is the
// server's view after the change; nothing is assumed when the call fails.
func (s *Service) Transition(ctx context.Context, params TransitionParams) (Booking, error) {
	const op = "booking.transition"
	if params.BookingID == "" {
		return Booking{}, fault.Validation(op, "booking id is required")
	}
	endpoint, ok := endpoints[params.Action]
	if !ok {
		return Booking{}, fault.Validation(op, "unknown action %q", params.Action)
	}
	actor, err := s.principal.Actor()
	if err != nil {
		return Booking{}, err
	}

	current, err := s.remote.Get(ctx, params.BookingID)
	if err != nil {
		return Booking{}, fmt.Errorf("booking: transition: %w", err)
	}
	if _, err := s.engine.AuthorizeBookingTransition(actor, current.Facts(), params.Action); err != nil {
		return Booking{}, err
	}

	body := transitionRequest{Reason: strings.TrimSpace(params.Reason)}
	updated, err := s.remote.Act(ctx, params.BookingID, endpoint, body)
	if err != nil {
		return Booking{}, fmt.Errorf("booking: %s: %w", params.Action, err)
	}

	s.logger.Info("booking transitioned",
		zap.String("booking_id", updated.ID),
		zap.String("action", string(params.Action)),
		zap.String("from", current.Status.String()),
		zap.String("to", updated.Status.String()),
	)
	journal.Append(ctx, s.timeline, s.logger, journal.Event{
		AggregateType: journal.AggregateBooking,
		AggregateID:   updated.ID,
		Type:          events[params.Action],
		ActorID:       actor.UserID,
		Status:        updated.Status.String(),
		Payload:       map[string]any{"from": current.Status, "reason": params.Reason},
	})
	return updated, nil
}

// Confirm is Transition with the confirm action.
func (s *Service) Confirm(ctx context.Context, id string) (Booking, error) {
	return s.Transition(ctx, TransitionParams{BookingID: id, Action: lifecycle.ActionConfirm})
}

// Reject is Transition with the reject action.
func (s *Service) Reject(ctx context.Context, id, reason string) (Booking, error) {
	return s.Transition(ctx, TransitionParams{BookingID: id, Action: lifecycle.ActionReject, Reason: reason})
}

// Cancel is Transition with the cancel action.
func (s *Service) Cancel(ctx context.Context, id, reason string) (Booking, error) {
	return s.Transition(ctx, TransitionParams{BookingID: id, Action: lifecycle.ActionCancel, Reason: reason})
}

// Get returns a booking the caller is party to.
func (s *Service) Get(ctx context.Context, id string) (Booking, error) {
	actor, err := s.principal.Actor()
	if err != nil {
		return Booking{}, err
	}
	b, err := s.remote.Get(ctx, id)
	if err != nil {
		return Booking{}, fmt.Errorf("booking: get: %w", err)
	}
	if !lifecycle.CanRead(actor, b.TenantID, b.LandlordID) {
		return Booking{}, fault.NotFound("booking.get", "booking %s not found", id)
	}
	return b, nil
}

// List returns one page of the caller's bookings.
func (s *Service) List(ctx context.Context, params ListParams) (resource.Page[Booking], error) {
	actor, err := s.principal.Actor()
	if err != nil {
		return resource.Page[Booking]{}, err
	}
	as := params.As
	if as == "" {
		as = lifecycle.PartyTenant
		if actor.Role == lifecycle.RoleLandlord {
			as = lifecycle.PartyLandlord
		}
	}
	q := params.Query.With("role", string(as))
	if params.Status != "" {
		q = q.With("status", string(params.Status))
	}
	page, err := s.remote.List(ctx, q)
	if err != nil {
		return resource.Page[Booking]{}, fmt.Errorf("booking: list: %w", err)
	}
	return page, nil
}
