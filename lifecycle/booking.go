package lifecycle

import (
	"time"

	"rentflow/fault"
)

// BookingStatus is the state of a viewing request.
type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingConfirmed BookingStatus = "confirmed"
	BookingRejected  BookingStatus = "rejected"
	BookingCancelled BookingStatus = "cancelled"
)

func (s BookingStatus) String() string { return string(s) }

// Terminal reports whether no transition leaves s.
func (s BookingStatus) Terminal() bool {
	return s == BookingConfirmed || s == BookingRejected || s == BookingCancelled
}

// BookingAction is a command that moves a pending booking.
type BookingAction string

const (
	ActionConfirm BookingAction = "confirm"
	ActionReject  BookingAction = "reject"
	ActionCancel  BookingAction = "cancel"
)

// BookingTransition is one allowed edge in the booking state machine.
type BookingTransition struct {
	From   BookingStatus
	To     BookingStatus
	Action BookingAction
	By     Party
}

var bookingTransitions = []BookingTransition{
	{From: BookingPending, To: BookingConfirmed, Action: ActionConfirm, By: PartyLandlord},
	{From: BookingPending, To: BookingRejected, Action: ActionReject, By: PartyLandlord},
	{From: BookingPending, To: BookingCancelled, Action: ActionCancel, By: PartyTenant},
}

// BookingTransitionFor returns the edge triggered by action.
func BookingTransitionFor(action BookingAction) (BookingTransition, bool) {
	for _, tr := range bookingTransitions {
		if tr.Action == action {
			return tr, true
		}
	}
	return BookingTransition{}, false
}

// BookingFacts is the subset of a booking the rules look at.
type BookingFacts struct {
	Status     BookingStatus
	TenantID   string
	LandlordID string
}

// AuthorizeBookingCreation checks that actor may request a viewing for
// requestedAt. Only tenants book, and only for a moment strictly in the future.
func (e *Engine) AuthorizeBookingCreation(actor Actor, requestedAt time.Time) error {
	const op = "booking.create"
	if err := requireActor(op, actor); err != nil {
		return err
	}
	if actor.Role != RoleTenant {
		return fault.Authorization(op, "only tenants can request viewings")
	}
	if requestedAt.IsZero() || !requestedAt.After(e.now()) {
		return fault.Validation(op, "requested time must be in the future")
	}
	return nil
}

// AuthorizeBookingTransition checks actor may apply action to b and returns
// the status the booking will hold afterwards.
func (e *Engine) AuthorizeBookingTransition(actor Actor, b BookingFacts, action BookingAction) (BookingStatus, error) {
	const op = "booking.transition"
	tr, ok := BookingTransitionFor(action)
	if !ok {
		return "", fault.Validation(op, "unknown action %q", action)
	}
	if err := requireActor(op, actor); err != nil {
		return "", err
	}

	switch tr.By {
	case PartyLandlord:
		if actor.UserID != b.LandlordID {
			return "", fault.Authorization(op, "only the property's landlord can %s this booking", action)
		}
	case PartyTenant:
		if actor.UserID != b.TenantID {
			return "", fault.Authorization(op, "only the requesting tenant can %s this booking", action)
		}
	}

	if b.Status != tr.From {
		return "", fault.InvalidState(op, b.Status, "cannot %s a %s booking", action, b.Status)
	}
	return tr.To, nil
}
