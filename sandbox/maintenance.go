package sandbox

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"rentflow/lifecycle"
	"rentflow/maintenance"
)

type createMaintenanceRequest struct {
	LeaseID     string                        `json:"lease_id"`
	Title       string                        `json:"title"`
	Description string                        `json:"description"`
	Type        lifecycle.MaintenanceType     `json:"type"`
	Priority    lifecycle.MaintenancePriority `json:"priority"`
	Images      []string                      `json:"images"`
}

type updateMaintenanceRequest struct {
	Title       *string                        `json:"title"`
	Description *string                        `json:"description"`
	Type        *lifecycle.MaintenanceType     `json:"type"`
	Priority    *lifecycle.MaintenancePriority `json:"priority"`
	Images      []string                       `json:"images"`
}

type maintenanceStatusRequest struct {
	Status        lifecycle.MaintenanceStatus `json:"status"`
	ScheduledDate lifecycle.Date              `json:"scheduled_date"`
	Cost          *decimal.Decimal            `json:"cost"`
	Notes         string                      `json:"notes"`
}

type maintenanceFeedbackRequest struct {
	Rating   int    `json:"rating"`
	Feedback string `json:"feedback"`
}

// visibleRepair returns the request only when actor is one of its parties.
// Callers hold s.mu.
func (s *Server) visibleRepair(actor lifecycle.Actor, id string) (*maintenance.Request, error) {
	r, ok := s.repairs[id]
	if !ok || !lifecycle.CanRead(actor, r.TenantID, r.LandlordID) {
		return nil, notFound("maintenance request", id)
	}
	return r, nil
}

func (s *Server) handleListMaintenance(c echo.Context) error {
	actor := actorOf(c)
	role := c.QueryParam("role")
	status := lifecycle.MaintenanceStatus(c.QueryParam("status"))
	propertyID := c.QueryParam("property_id")
	leaseID := c.QueryParam("lease_id")

	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]maintenance.Request, 0)
	for _, id := range s.repairOrder {
		r := s.repairs[id]
		if !partyFilter(actor, role, r.TenantID, r.LandlordID) {
			continue
		}
		if status != "" && r.Status != status {
			continue
		}
		if propertyID != "" && r.PropertyID != propertyID {
			continue
		}
		if leaseID != "" && r.LeaseID != leaseID {
			continue
		}
		out = append(out, *r)
	}
	return c.JSON(http.StatusOK, paginate(c, out))
}

func (s *Server) handleCreateMaintenance(c echo.Context) error {
	actor := actorOf(c)
	var req createMaintenanceRequest
	if err := bind(c, &req); err != nil {
		return writeError(c, http.StatusBadRequest, "invalid request body")
	}
	if req.Priority == "" {
		req.Priority = lifecycle.PriorityMedium
	}
	details := lifecycle.MaintenanceDetails{
		Title:       strings.TrimSpace(req.Title),
		Description: strings.TrimSpace(req.Description),
		Type:        req.Type,
		Priority:    req.Priority,
	}
	if err := lifecycle.ValidateMaintenanceDetails(details); err != nil {
		return fail(c, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	l, err := s.visibleLease(actor, req.LeaseID)
	if err != nil {
		return fail(c, err)
	}
	if err := s.engine.AuthorizeMaintenanceRequest(actor, l.Facts()); err != nil {
		return fail(c, err)
	}

	now := s.now()
	r := &maintenance.Request{
		ID:          uuid.NewString(),
		LeaseID:     l.ID,
		PropertyID:  l.PropertyID,
		TenantID:    l.TenantID,
		LandlordID:  l.LandlordID,
		Title:       details.Title,
		Description: details.Description,
		Type:        details.Type,
		Priority:    details.Priority,
		Status:      lifecycle.MaintenancePending,
		Images:      req.Images,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.repairs[r.ID] = r
	s.repairOrder = append(s.repairOrder, r.ID)
	s.notify(r.LandlordID)

	s.logger.Info("sandbox maintenance requested", zap.String("request_id", r.ID), zap.String("lease_id", l.ID))
	return c.JSON(http.StatusCreated, *r)
}

func (s *Server) handleGetMaintenance(c echo.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, err := s.visibleRepair(actorOf(c), c.Param("id"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, *r)
}

func (s *Server) handleUpdateMaintenance(c echo.Context) error {
	actor := actorOf(c)
	var req updateMaintenanceRequest
	if err := bind(c, &req); err != nil {
		return writeError(c, http.StatusBadRequest, "invalid request body")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	r, err := s.visibleRepair(actor, c.Param("id"))
	if err != nil {
		return fail(c, err)
	}
	if err := s.engine.AuthorizeMaintenanceEdit(actor, r.Facts()); err != nil {
		return fail(c, err)
	}

	next := r.Details()
	if req.Title != nil {
		next.Title = strings.TrimSpace(*req.Title)
	}
	if req.Description != nil {
		next.Description = strings.TrimSpace(*req.Description)
	}
	if req.Type != nil {
		next.Type = *req.Type
	}
	if req.Priority != nil {
		next.Priority = *req.Priority
	}
	if err := lifecycle.ValidateMaintenanceDetails(next); err != nil {
		return fail(c, err)
	}

	r.Title, r.Description, r.Type, r.Priority = next.Title, next.Description, next.Type, next.Priority
	if req.Images != nil {
		r.Images = req.Images
	}
	r.UpdatedAt = s.now()
	s.notify(r.LandlordID)
	return c.JSON(http.StatusOK, *r)
}

func (s *Server) handleMaintenanceStatus(c echo.Context) error {
	actor := actorOf(c)
	var req maintenanceStatusRequest
	if err := bind(c, &req); err != nil {
		return writeError(c, http.StatusBadRequest, "invalid request body")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	r, err := s.visibleRepair(actor, c.Param("id"))
	if err != nil {
		return fail(c, err)
	}
	change := lifecycle.MaintenanceChange{To: req.Status, ScheduledDate: req.ScheduledDate, Cost: req.Cost}
	if err := s.engine.AuthorizeMaintenanceStatus(actor, r.Facts(), change); err != nil {
		return fail(c, err)
	}

	r.Status = req.Status
	switch req.Status {
	case lifecycle.MaintenanceScheduled:
		d := req.ScheduledDate
		r.ScheduledDate = &d
	case lifecycle.MaintenanceCompleted:
		today := s.engine.Today()
		r.CompletedDate = &today
	}
	if req.Cost != nil {
		r.Cost = req.Cost
	}
	if notes := strings.TrimSpace(req.Notes); notes != "" {
		r.Notes = notes
	}
	r.UpdatedAt = s.now()
	if actor.UserID == r.TenantID {
		s.notify(r.LandlordID)
	} else {
		s.notify(r.TenantID)
	}
	return c.JSON(http.StatusOK, *r)
}

func (s *Server) handleMaintenanceFeedback(c echo.Context) error {
	actor := actorOf(c)
	var req maintenanceFeedbackRequest
	if err := bind(c, &req); err != nil {
		return writeError(c, http.StatusBadRequest, "invalid request body")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	r, err := s.visibleRepair(actor, c.Param("id"))
	if err != nil {
		return fail(c, err)
	}
	if err := s.engine.AuthorizeMaintenanceFeedback(actor, r.Facts(), req.Rating); err != nil {
		return fail(c, err)
	}

	rating := req.Rating
	r.TenantRating = &rating
	r.TenantFeedback = strings.TrimSpace(req.Feedback)
	r.UpdatedAt = s.now()
	s.notify(r.LandlordID)
	return c.JSON(http.StatusOK, *r)
}
