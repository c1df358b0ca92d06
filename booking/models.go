package booking

import (
	"time"

	"rentflow/journal"
	"rentflow/lifecycle"
	"rentflow/resource"
)

// Booking is a tenant's request to view a property.
type Booking struct {
	ID          string                  `json:"id"`
	PropertyID  string                  `json:"property_id"`
	TenantID    string                  `json:"tenant_id"`
	LandlordID  string                  `json:"landlord_id"`
	RequestedAt time.Time               `json:"requested_at"`
	Note        string                  `json:"note,omitempty"`
	Reason      string                  `json:"reason,omitempty"`
	Status      lifecycle.BookingStatus `json:"status"`
	CreatedAt   time.Time               `json:"created_at"`
	UpdatedAt   time.Time               `json:"updated_at"`
}

// Facts returns what the lifecycle rules need from b.
func (b Booking) Facts() lifecycle.BookingFacts {
	return lifecycle.BookingFacts{Status: b.Status, TenantID: b.TenantID, LandlordID: b.LandlordID}
}

type CreateParams struct {
	PropertyID  string
	RequestedAt time.Time
	Note        string
}

type TransitionParams struct {
	BookingID string
	Action    lifecycle.BookingAction
	Reason    string
}

// ListParams filters the caller's bookings. As selects which side of the
// booking the caller is listing from; empty means the caller's own role.
type ListParams struct {
	As     lifecycle.Party
	Status lifecycle.BookingStatus
	Query  resource.Query
}

type createRequest struct {
	PropertyID  string    `json:"property_id"`
	RequestedAt time.Time `json:"requested_at"`
	Note        string    `json:"note,omitempty"`
}

type transitionRequest struct {
	Reason string `json:"reason,omitempty"`
}

// endpoints maps actions onto the remote path segment.
var endpoints = map[lifecycle.BookingAction]string{
	lifecycle.ActionConfirm: "approve",
	lifecycle.ActionReject:  "reject",
	lifecycle.ActionCancel:  "cancel",
}

var events = map[lifecycle.BookingAction]string{
	lifecycle.ActionConfirm: journal.EventBookingConfirmed,
	lifecycle.ActionReject:  journal.EventBookingRejected,
	lifecycle.ActionCancel:  journal.EventBookingCancelled,
}
