package lease

import (
	"time"

	"github.com/shopspring/decimal"

	"rentflow/lifecycle"
	"rentflow/resource"
)

// Lease mirrors the remote lease resource. Status holds the derived value
// once it has passed through the service.
type Lease struct {
	ID                 string                `json:"id"`
	BookingID          string                `json:"booking_id,omitempty"`
	PropertyID         string                `json:"property_id"`
	TenantID           string                `json:"tenant_id"`
	LandlordID         string                `json:"landlord_id"`
	StartDate          lifecycle.Date        `json:"start_date"`
	EndDate            lifecycle.Date        `json:"end_date"`
	RentAmount         decimal.Decimal       `json:"rent_amount"`
	DepositAmount      decimal.Decimal       `json:"deposit_amount"`
	PaymentDueDay      int                   `json:"payment_due_day"`
	Status             lifecycle.LeaseStatus `json:"status"`
	TenantSignedAt     *time.Time            `json:"tenant_signed_at,omitempty"`
	LandlordSignedAt   *time.Time            `json:"landlord_signed_at,omitempty"`
	DocumentURL        *string               `json:"document_url,omitempty"`
	TermsAndConditions string                `json:"terms_and_conditions,omitempty"`
	CreatedAt          time.Time             `json:"created_at"`
	UpdatedAt          time.Time             `json:"updated_at"`
}

// Facts returns what the lifecycle rules need from l.
func (l Lease) Facts() lifecycle.LeaseFacts {
	return lifecycle.LeaseFacts{
		Status:           l.Status,
		TenantID:         l.TenantID,
		LandlordID:       l.LandlordID,
		StartDate:        l.StartDate,
		EndDate:          l.EndDate,
		TenantSignedAt:   l.TenantSignedAt,
		LandlordSignedAt: l.LandlordSignedAt,
	}
}

type CreateParams struct {
	BookingID          string
	Terms              lifecycle.LeaseTerms
	TermsAndConditions string
}

// ListParams filters the caller's leases. Status matches the derived status.
type ListParams struct {
	As lifecycle.Party
	// Status keeps only leases whose derived status matches. It filters the
	// fetched page: Total, LastPage and the links still describe the whole
	// collection, so paging goes on with HasNext. From and To are cleared.
	Status lifecycle.LeaseStatus
	Query  resource.Query
}

type createRequest struct {
	BookingID          string          `json:"booking_id"`
	PropertyID         string          `json:"property_id"`
	TenantID           string          `json:"tenant_id"`
	StartDate          lifecycle.Date  `json:"start_date"`
	EndDate            lifecycle.Date  `json:"end_date"`
	RentAmount         decimal.Decimal `json:"rent_amount"`
	DepositAmount      decimal.Decimal `json:"deposit_amount"`
	PaymentDueDay      int             `json:"payment_due_day"`
	TermsAndConditions string          `json:"terms_and_conditions,omitempty"`
}

type signRequest struct {
	Party lifecycle.Party `json:"party"`
}

type terminateRequest struct {
	Reason            string         `json:"reason"`
	TerminationDate   lifecycle.Date `json:"termination_date"`
	IsMutualAgreement bool           `json:"is_mutual_agreement"`
}
