// Package maintenance files and tracks repair requests raised under a
// running lease.
package maintenance

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"rentflow/fault"
	"rentflow/journal"
	"rentflow/lease"
	"rentflow/lifecycle"
	"rentflow/resource"
)

// Remote is the /maintenance collection.
type Remote interface {
	Get(ctx context.Context, id string) (Request, error)
	List(ctx context.Context, q resource.Query) (resource.Page[Request], error)
	Create(ctx context.Context, body any, opts ...resource.RequestOption) (Request, error)
	Patch(ctx context.Context, body any, sub ...string) (Request, error)
	Act(ctx context.Context, id, action string, body any, opts ...resource.RequestOption) (Request, error)
}

// LeaseReader resolves a lease with its derived status.
type LeaseReader interface {
	Get(ctx context.Context, id string) (lease.Lease, error)
}

// NewRemote returns the /maintenance collection of api.
func NewRemote(api *resource.Client) Remote {
	return resource.NewCollection[Request](api, "/maintenance")
}

type Service struct {
	remote    Remote
	leases    LeaseReader
	principal lifecycle.Principal
	engine    *lifecycle.Engine
	timeline  journal.Recorder
	logger    *zap.Logger
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
	}
}

// WithTimeline records successful mutations on r.
func (s *Service) WithTimeline(r journal.Recorder) *Service {
	s.timeline = r
	return s
}

// Create files a repair request against the caller's active lease.
func (s *Service) Create(ctx context.Context, params CreateParams) (Request, error) {
	const op = "maintenance.request"
	if strings.TrimSpace(params.LeaseID) == "" {
		return Request{}, fault.Validation(op, "lease id is required")
	}
	details := lifecycle.MaintenanceDetails{
		Title:       strings.TrimSpace(params.Title),
		Description: strings.TrimSpace(params.Description),
		Type:        params.Type,
		Priority:    params.Priority,
	}
	if details.Priority == "" {
		details.Priority = lifecycle.PriorityMedium
	}
	if err := lifecycle.ValidateMaintenanceDetails(details); err != nil {
		return Request{}, err
	}
	actor, err := s.principal.Actor()
	if err != nil {
		return Request{}, err
	}

	l, err := s.leases.Get(ctx, params.LeaseID)
	if err != nil {
		return Request{}, fmt.Errorf("maintenance: create: %w", err)
	}
	if err := s.engine.AuthorizeMaintenanceRequest(actor, l.Facts()); err != nil {
		return Request{}, err
	}

	created, err := s.remote.Create(ctx, createRequest{
		LeaseID:     l.ID,
		PropertyID:  l.PropertyID,
		Title:       details.Title,
		Description: details.Description,
		Type:        details.Type,
		Priority:    details.Priority,
		Images:      params.Images,
	})
	if err != nil {
		return Request{}, fmt.Errorf("maintenance: create: %w", err)
	}

	s.logger.Info("maintenance requested",
		zap.String("request_id", created.ID),
		zap.String("lease_id", l.ID),
		zap.String("type", string(created.Type)),
		zap.String("priority", string(created.Priority)),
	)
	journal.Append(ctx, s.timeline, s.logger, journal.Event{
		AggregateType: journal.AggregateMaintenance,
		AggregateID:   created.ID,
		Type:          journal.EventMaintenanceRequested,
		ActorID:       actor.UserID,
		Status:        created.Status.String(),
		Payload: map[string]any{
			"lease_id":    l.ID,
			"property_id": l.PropertyID,
			"priority":    created.Priority,
		},
	})
	return created, nil
}

// Get returns a request the caller is party to.
func (s *Service) Get(ctx context.Context, id string) (Request, error) {
	actor, err := s.principal.Actor()
	if err != nil {
		return Request{}, err
	}
	r, err := s.remote.Get(ctx, id)
	if err != nil {
		return Request{}, fmt.Errorf("maintenance: get: %w", err)
	}
	if !lifecycle.CanRead(actor, r.TenantID, r.LandlordID) {
		return Request{}, fault.NotFound("maintenance.get", "maintenance request %s not found", id)
	}
	return r, nil
}

// List returns one page of the caller's requests.
func (s *Service) List(ctx context.Context, params ListParams) (resource.Page[Request], error) {
	actor, err := s.principal.Actor()
	if err != nil {
		return resource.Page[Request]{}, err
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
	if params.PropertyID != "" {
		q = q.With("property_id", params.PropertyID)
	}
	if params.LeaseID != "" {
		q = q.With("lease_id", params.LeaseID)
	}
	page, err := s.remote.List(ctx, q)
	if err != nil {
		return resource.Page[Request]{}, fmt.Errorf("maintenance: list: %w", err)
	}
	return page, nil
}

// Update edits the description of a request the landlord has not acted on.
func (s *Service) Update(ctx context.Context, params UpdateParams) (Request, error) {
	const op = "maintenance.update"
	if params.RequestID == "" {
		return Request{}, fault.Validation(op, "request id is required")
	}
	actor, err := s.principal.Actor()
	if err != nil {
		return Request{}, err
	}
	current, err := s.Get(ctx, params.RequestID)
	if err != nil {
		return Request{}, err
	}
	if err := s.engine.AuthorizeMaintenanceEdit(actor, current.Facts()); err != nil {
		return Request{}, err
	}

	body := updateRequest{Images: params.Images}
	next := current.Details()
	if params.Title != nil {
		t := strings.TrimSpace(*params.Title)
		body.Title, next.Title = &t, t
	}
	if params.Description != nil {
		d := strings.TrimSpace(*params.Description)
		body.Description, next.Description = &d, d
	}
	if params.Type != nil {
		body.Type, next.Type = params.Type, *params.Type
	}
	if params.Priority != nil {
		body.Priority, next.Priority = params.Priority, *params.Priority
	}
	if err := lifecycle.ValidateMaintenanceDetails(next); err != nil {
		return Request{}, err
	}

	updated, err := s.remote.Patch(ctx, body, current.ID)
	if err != nil {
		return Request{}, fmt.Errorf("maintenance: update: %w", err)
	}
	s.logger.Info("maintenance request edited", zap.String("request_id", updated.ID))
	journal.Append(ctx, s.timeline, s.logger, journal.Event{
		AggregateType: journal.AggregateMaintenance,
		AggregateID:   updated.ID,
		Type:          journal.EventMaintenanceUpdated,
		ActorID:       actor.UserID,
		Status:        updated.Status.String(),
	})
	return updated, nil
}

// UpdateStatus moves a request along its workflow. Completing it stamps
// today's date.
func (s *Service) UpdateStatus(ctx context.Context, params StatusParams) (Request, error) {
	const op = "maintenance.status"
	if params.RequestID == "" {
		return Request{}, fault.Validation(op, "request id is required")
	}
	actor, err := s.principal.Actor()
	if err != nil {
		return Request{}, err
	}
	current, err := s.Get(ctx, params.RequestID)
	if err != nil {
		return Request{}, err
	}
	change := lifecycle.MaintenanceChange{
		To:            params.Status,
		ScheduledDate: params.ScheduledDate,
		Cost:          params.Cost,
	}
	if err := s.engine.AuthorizeMaintenanceStatus(actor, current.Facts(), change); err != nil {
		return Request{}, err
	}

	body := statusRequest{
		Status: params.Status,
		Cost:   params.Cost,
		Notes:  strings.TrimSpace(params.Notes),
	}
	if params.Status == lifecycle.MaintenanceScheduled {
		d := params.ScheduledDate
		body.ScheduledDate = &d
	}
	if params.Status == lifecycle.MaintenanceCompleted {
		today := s.engine.Today()
		body.CompletedDate = &today
	}

	updated, err := s.remote.Patch(ctx, body, current.ID, "status")
	if err != nil {
		return Request{}, fmt.Errorf("maintenance: %s: %w", params.Status, err)
	}
	s.logger.Info("maintenance request moved",
		zap.String("request_id", updated.ID),
		zap.String("from", current.Status.String()),
		zap.String("to", updated.Status.String()),
	)
	journal.Append(ctx, s.timeline, s.logger, journal.Event{
		AggregateType: journal.AggregateMaintenance,
		AggregateID:   updated.ID,
		Type:          journal.EventMaintenanceMoved,
		ActorID:       actor.UserID,
		Status:        updated.Status.String(),
		Payload:       map[string]any{"from": current.Status, "notes": body.Notes},
	})
	return updated, nil
}

// Feedback records the tenant's rating of completed work.
func (s *Service) Feedback(ctx context.Context, params FeedbackParams) (Request, error) {
	const op = "maintenance.feedback"
	if params.RequestID == "" {
		return Request{}, fault.Validation(op, "request id is required")
	}
	actor, err := s.principal.Actor()
	if err != nil {
		return Request{}, err
	}
	current, err := s.Get(ctx, params.RequestID)
	if err != nil {
		return Request{}, err
	}
	if err := s.engine.AuthorizeMaintenanceFeedback(actor, current.Facts(), params.Rating); err != nil {
		return Request{}, err
	}

	rated, err := s.remote.Act(ctx, current.ID, "feedback", feedbackRequest{
		Rating:   params.Rating,
		Feedback: strings.TrimSpace(params.Feedback),
	})
	if err != nil {
		return Request{}, fmt.Errorf("maintenance: feedback: %w", err)
	}
	s.logger.Info("maintenance rated", zap.String("request_id", rated.ID), zap.Int("rating", params.Rating))
	journal.Append(ctx, s.timeline, s.logger, journal.Event{
		AggregateType: journal.AggregateMaintenance,
		AggregateID:   rated.ID,
		Type:          journal.EventMaintenanceRated,
		ActorID:       actor.UserID,
		Status:        rated.Status.String(),
		Payload:       map[string]any{"rating": params.Rating},
	})
	return rated, nil
}
