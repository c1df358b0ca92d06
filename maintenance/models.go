package maintenance

import (
	"time"

	"github.com/shopspring/decimal"

	"rentflow/lifecycle"
	"rentflow/resource"
)

// Request is a tenant's report of something to repair in a rented property.
type Request struct {
	ID             string                        `json:"id"`
	LeaseID        string                        `json:"lease_id"`
	PropertyID     string                        `json:"property_id"`
	TenantID       string                        `json:"tenant_id"`
	LandlordID     string                        `json:"landlord_id"`
	Title          string                        `json:"title"`
	Description    string                        `json:"description"`
	Type           lifecycle.MaintenanceType     `json:"type"`
	Priority       lifecycle.MaintenancePriority `json:"priority"`
	Status         lifecycle.MaintenanceStatus   `json:"status"`
	Images         []string                      `json:"images,omitempty"`
	ScheduledDate  *lifecycle.Date               `json:"scheduled_date,omitempty"`
	CompletedDate  *lifecycle.Date               `json:"completed_date,omitempty"`
	Cost           *decimal.Decimal              `json:"cost,omitempty"`
	Notes          string                        `json:"notes,omitempty"`
	TenantRating   *int                          `json:"tenant_rating,omitempty"`
	TenantFeedback string                        `json:"tenant_feedback,omitempty"`
	CreatedAt      time.Time                     `json:"created_at"`
	UpdatedAt      time.Time                     `json:"updated_at"`
}

// Facts returns what the lifecycle rules need from r.
func (r Request) Facts() lifecycle.MaintenanceFacts {
	return lifecycle.MaintenanceFacts{
		Status:     r.Status,
		TenantID:   r.TenantID,
		LandlordID: r.LandlordID,
		Rated:      r.TenantRating != nil,
	}
}

// Details returns the tenant-editable part of r.
func (r Request) Details() lifecycle.MaintenanceDetails {
	return lifecycle.MaintenanceDetails{
		Title:       r.Title,
		Description: r.Description,
		Type:        r.Type,
		Priority:    r.Priority,
	}
}

type CreateParams struct {
	LeaseID     string
	Title       string
	Description string
	Type        lifecycle.MaintenanceType
	Priority    lifecycle.MaintenancePriority
	Images      []string
}

// UpdateParams edits a pending request. Nil fields are left as they are.
type UpdateParams struct {
	RequestID   string
	Title       *string
	Description *string
	Type        *lifecycle.MaintenanceType
	Priority    *lifecycle.MaintenancePriority
	Images      []string
}

type StatusParams struct {
	RequestID     string
	Status        lifecycle.MaintenanceStatus
	ScheduledDate lifecycle.Date
	Cost          *decimal.Decimal
	Notes         string
}

type FeedbackParams struct {
	RequestID string
	Rating    int
	Feedback  string
}

// ListParams filters the caller's requests. As selects the side the caller
// lists from; empty means the caller's own role.
type ListParams struct {
	As         lifecycle.Party
	Status     lifecycle.MaintenanceStatus
	PropertyID string
	LeaseID    string
	Query      resource.Query
}

type createRequest struct {
	LeaseID     string                        `json:"lease_id"`
	PropertyID  string                        `json:"property_id"`
	Title       string                        `json:"title"`
	Description string                        `json:"description"`
	Type        lifecycle.MaintenanceType     `json:"type"`
	Priority    lifecycle.MaintenancePriority `json:"priority"`
	Images      []string                      `json:"images,omitempty"`
}

type updateRequest struct {
	Title       *string                        `json:"title,omitempty"`
	Description *string                        `json:"description,omitempty"`
	Type        *lifecycle.MaintenanceType     `json:"type,omitempty"`
	Priority    *lifecycle.MaintenancePriority `json:"priority,omitempty"`
	Images      []string                       `json:"images,omitempty"`
}

type statusRequest struct {
	Status        lifecycle.MaintenanceStatus `json:"status"`
	ScheduledDate *lifecycle.Date             `json:"scheduled_date,omitempty"`
	CompletedDate *lifecycle.Date             `json:"completed_date,omitempty"`
	Cost          *decimal.Decimal            `json:"cost,omitempty"`
	Notes         string                      `json:"notes,omitempty"`
}

type feedbackRequest struct {
	Rating   int    `json:"rating"`
	Feedback string `json:"feedback"`
}
