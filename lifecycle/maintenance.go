package lifecycle

import (
	"strings"

	"github.com/shopspring/decimal"

	"rentflow/fault"
)

// MaintenanceStatus is the state of a repair request.
type MaintenanceStatus string

const (
	MaintenancePending    MaintenanceStatus = "pending"
	MaintenanceApproved   MaintenanceStatus = "approved"
	MaintenanceScheduled  MaintenanceStatus = "scheduled"
	MaintenanceInProgress MaintenanceStatus = "in_progress"
	MaintenanceCompleted  MaintenanceStatus = "completed"
	MaintenanceCancelled  MaintenanceStatus = "cancelled"
	MaintenanceRejected   MaintenanceStatus = "rejected"
)

func (s MaintenanceStatus) String() string { return string(s) }

// Terminal reports whether no transition leaves s.
func (s MaintenanceStatus) Terminal() bool {
	return s == MaintenanceCompleted || s == MaintenanceCancelled || s == MaintenanceRejected
}

type MaintenancePriority string

const (
	PriorityLow       MaintenancePriority = "low"
	PriorityMedium    MaintenancePriority = "medium"
	PriorityHigh      MaintenancePriority = "high"
	PriorityEmergency MaintenancePriority = "emergency"
)

func (p MaintenancePriority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityEmergency:
		return true
	}
	return false
}

type MaintenanceType string

const (
	MaintenancePlumbing    MaintenanceType = "plumbing"
	MaintenanceElectrical  MaintenanceType = "electrical"
	MaintenanceHVAC        MaintenanceType = "hvac"
	MaintenanceAppliance   MaintenanceType = "appliance"
	MaintenanceStructural  MaintenanceType = "structural"
	MaintenancePestControl MaintenanceType = "pest_control"
	MaintenanceCleaning    MaintenanceType = "cleaning"
	MaintenanceOther       MaintenanceType = "other"
)

func (t MaintenanceType) Valid() bool {
	switch t {
	case MaintenancePlumbing, MaintenanceElectrical, MaintenanceHVAC, MaintenanceAppliance,
		MaintenanceStructural, MaintenancePestControl, MaintenanceCleaning, MaintenanceOther:
		return true
	}
	return false
}

// MaintenanceTransition is one allowed edge in the repair workflow.
type MaintenanceTransition struct {
	From MaintenanceStatus
	To   MaintenanceStatus
	By   Party
}

var maintenanceTransitions = []MaintenanceTransition{
	{From: MaintenancePending, To: MaintenanceApproved, By: PartyLandlord},
	{From: MaintenancePending, To: MaintenanceRejected, By: PartyLandlord},
	{From: MaintenancePending, To: MaintenanceCancelled, By: PartyTenant},
	{From: MaintenanceApproved, To: MaintenanceScheduled, By: PartyLandlord},
	{From: MaintenanceApproved, To: MaintenanceInProgress, By: PartyLandlord},
	{From: MaintenanceApproved, To: MaintenanceCancelled, By: PartyTenant},
	{From: MaintenanceScheduled, To: MaintenanceScheduled, By: PartyLandlord},
	{From: MaintenanceScheduled, To: MaintenanceInProgress, By: PartyLandlord},
	{From: MaintenanceScheduled, To: MaintenanceCancelled, By: PartyTenant},
	{From: MaintenanceInProgress, To: MaintenanceCompleted, By: PartyLandlord},
}

// MaintenanceTransitionFor returns the edge from -> to, if one exists.
func MaintenanceTransitionFor(from, to MaintenanceStatus) (MaintenanceTransition, bool) {
	for _, tr := range maintenanceTransitions {
		if tr.From == from && tr.To == to {
			return tr, true
		}
	}
	return MaintenanceTransition{}, false
}

// maintenanceMover returns the party that moves a request into to. Every
// edge into the same status belongs to the same party.
func maintenanceMover(to MaintenanceStatus) (Party, bool) {
	for _, tr := range maintenanceTransitions {
		if tr.To == to {
			return tr.By, true
		}
	}
	return "", false
}

// MaintenanceFacts is the subset of a repair request the rules look at.
type MaintenanceFacts struct {
	Status     MaintenanceStatus
	TenantID   string
	LandlordID string
	Rated      bool
}

// MaintenanceDetails is the tenant-editable description of a request.
type MaintenanceDetails struct {
	Title       string
	Description string
	Type        MaintenanceType
	Priority    MaintenancePriority
}

// ValidateMaintenanceDetails checks a new or edited request description.
func ValidateMaintenanceDetails(d MaintenanceDetails) error {
	const op = "maintenance.request"
	if strings.TrimSpace(d.Title) == "" {
		return fault.Validation(op, "title is required")
	}
	if strings.TrimSpace(d.Description) == "" {
		return fault.Validation(op, "description is required")
	}
	if !d.Type.Valid() {
		return fault.Validation(op, "unknown maintenance type %q", d.Type)
	}
	if !d.Priority.Valid() {
		return fault.Validation(op, "unknown priority %q", d.Priority)
	}
	return nil
}

// AuthorizeMaintenanceRequest checks that actor may report a repair under
// the lease f. Only the tenant of record asks, and only while the lease runs.
func (e *Engine) AuthorizeMaintenanceRequest(actor Actor, f LeaseFacts) error {
	const op = "maintenance.request"
	if err := requireActor(op, actor); err != nil {
		return err
	}
	if actor.UserID != f.TenantID {
		return fault.Authorization(op, "only the lease tenant can request maintenance")
	}
	if current := e.LeaseStatus(f); current != LeaseActive {
		return fault.InvalidState(op, current, "maintenance requires an active lease")
	}
	return nil
}

// AuthorizeMaintenanceEdit checks that actor may change the description of
// m. Edits stop once the landlord has acted.
func (e *Engine) AuthorizeMaintenanceEdit(actor Actor, m MaintenanceFacts) error {
	const op = "maintenance.update"
	if err := requireActor(op, actor); err != nil {
		return err
	}
	if actor.UserID != m.TenantID {
		return fault.Authorization(op, "only the requesting tenant can edit this request")
	}
	if m.Status != MaintenancePending {
		return fault.InvalidState(op, m.Status, "cannot edit a %s request", m.Status)
	}
	return nil
}

// MaintenanceChange is a requested status move with its side data.
type MaintenanceChange struct {
	To            MaintenanceStatus
	ScheduledDate Date
	Cost          *decimal.Decimal
}

// AuthorizeMaintenanceStatus checks that actor may apply c to m.
func (e *Engine) AuthorizeMaintenanceStatus(actor Actor, m MaintenanceFacts, c MaintenanceChange) error {
	const op = "maintenance.status"
	by, ok := maintenanceMover(c.To)
	if !ok {
		return fault.Validation(op, "cannot move a request to %q", c.To)
	}
	if err := requireActor(op, actor); err != nil {
		return err
	}
	switch by {
	case PartyLandlord:
		if actor.UserID != m.LandlordID {
			return fault.Authorization(op, "only the landlord can mark a request %s", c.To)
		}
	case PartyTenant:
		if actor.UserID != m.TenantID {
			return fault.Authorization(op, "only the requesting tenant can mark a request %s", c.To)
		}
	}

	if c.To == MaintenanceScheduled {
		if c.ScheduledDate.IsZero() {
			return fault.Validation(op, "scheduled date is required")
		}
		if c.ScheduledDate.Before(e.Today()) {
			return fault.Validation(op, "scheduled date must not be in the past")
		}
	}
	if c.Cost != nil && c.Cost.IsNegative() {
		return fault.Validation(op, "cost must not be negative")
	}

	if _, ok := MaintenanceTransitionFor(m.Status, c.To); !ok {
		return fault.InvalidState(op, m.Status, "cannot move a %s request to %s", m.Status, c.To)
	}
	return nil
}

// AuthorizeMaintenanceFeedback checks that actor may rate the finished work
// on m. A request is rated at most once.
func (e *Engine) AuthorizeMaintenanceFeedback(actor Actor, m MaintenanceFacts, rating int) error {
	const op = "maintenance.feedback"
	if rating < 1 || rating > 5 {
		return fault.Validation(op, "rating must be between 1 and 5")
	}
	if err := requireActor(op, actor); err != nil {
		return err
	}
	if actor.UserID != m.TenantID {
		return fault.Authorization(op, "only the requesting tenant can rate this request")
	}
	if m.Status != MaintenanceCompleted {
		return fault.InvalidState(op, m.Status, "only completed requests can be rated")
	}
	if m.Rated {
		return fault.Conflict(op, "request already has feedback")
	}
	return nil
}
