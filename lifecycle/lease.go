package lifecycle

import (
	"time"

	"github.com/shopspring/decimal"

	"rentflow/fault"
)

// LeaseStatus is the state of a rental agreement.
type LeaseStatus string

const (
	LeasePendingSignature LeaseStatus = "pending_signature"
	LeaseActive           LeaseStatus = "active"
	LeaseExpired          LeaseStatus = "expired"
	LeaseTerminated       LeaseStatus = "terminated"
)

func (s LeaseStatus) String() string { return string(s) }

// LeaseFacts is the subset of a lease the rules look at.
type LeaseFacts struct {
	Status           LeaseStatus
	TenantID         string
	LandlordID       string
	StartDate        Date
	EndDate          Date
	TenantSignedAt   *time.Time
	LandlordSignedAt *time.Time
}

// FullySigned reports whether both parties have signed.
func (f LeaseFacts) FullySigned() bool {
	return f.TenantSignedAt != nil && f.LandlordSignedAt != nil
}

// SignedBy reports whether party has already signed.
func (f LeaseFacts) SignedBy(p Party) bool {
	switch p {
	case PartyTenant:
		return f.TenantSignedAt != nil
	case PartyLandlord:
		return f.LandlordSignedAt != nil
	}
	return false
}

// DeriveLeaseStatus returns the status a lease holds on today given its
// stored status, date window and signatures. It never reports active outside
// [start, end] and never reports active without both signatures.
func DeriveLeaseStatus(stored LeaseStatus, start, end Date, tenantSigned, landlordSigned bool, today Date) LeaseStatus {
	switch stored {
	case LeaseTerminated, LeaseExpired:
		return stored
	}

	signed := tenantSigned && landlordSigned
	if stored == LeaseActive || signed {
		if !end.IsZero() && today.After(end) {
			return LeaseExpired
		}
		if !signed {
			return LeasePendingSignature
		}
		if !start.IsZero() && today.Before(start) {
			return LeasePendingSignature
		}
		return LeaseActive
	}
	return LeasePendingSignature
}

// LeaseStatus derives the current status of f.
func (e *Engine) LeaseStatus(f LeaseFacts) LeaseStatus {
	return DeriveLeaseStatus(f.Status, f.StartDate, f.EndDate, f.TenantSignedAt != nil, f.LandlordSignedAt != nil, e.Today())
}

// LeaseTerms are the commercial terms proposed for a new lease.
type LeaseTerms struct {
	StartDate       Date
	EndDate         Date
	MonthlyRent     decimal.Decimal
	SecurityDeposit decimal.Decimal
	PaymentDueDay   int
}

// ValidateLeaseTerms checks lease terms before any request is made.
func ValidateLeaseTerms(t LeaseTerms) error {
	const op = "lease.create"
	if t.StartDate.IsZero() || t.EndDate.IsZero() {
		return fault.Validation(op, "start and end dates are required")
	}
	if !t.StartDate.Before(t.EndDate) {
		return fault.Validation(op, "start date must be before end date")
	}
	if !t.MonthlyRent.IsPositive() {
		return fault.Validation(op, "monthly rent must be positive")
	}
	if t.SecurityDeposit.IsNegative() {
		return fault.Validation(op, "security deposit must not be negative")
	}
	if t.PaymentDueDay < 1 || t.PaymentDueDay > 31 {
		return fault.Validation(op, "payment due day must be between 1 and 31")
	}
	return nil
}

// AuthorizeLeaseCreation checks that actor may draft a lease from b.
func (e *Engine) AuthorizeLeaseCreation(actor Actor, b BookingFacts) error {
	const op = "lease.create"
	if err := requireActor(op, actor); err != nil {
		return err
	}
	if actor.UserID != b.LandlordID {
		return fault.Authorization(op, "only the booking's landlord can create a lease")
	}
	if b.Status != BookingConfirmed {
		return fault.InvalidState(op, b.Status, "lease requires a confirmed booking")
	}
	return nil
}

// AuthorizeSign checks that actor may sign f as party. It reports
// alreadySigned when that party's signature is on record, in which case the
// caller returns the lease unchanged.
func (e *Engine) AuthorizeSign(actor Actor, f LeaseFacts, party Party) (alreadySigned bool, err error) {
	const op = "lease.sign"
	if !party.Valid() {
		return false, fault.Validation(op, "unknown signing party %q", party)
	}
	if err := requireActor(op, actor); err != nil {
		return false, err
	}
	ofRecord := f.TenantID
	if party == PartyLandlord {
		ofRecord = f.LandlordID
	}
	if actor.UserID != ofRecord {
		return false, fault.Authorization(op, "caller is not the lease %s", party)
	}
	if f.SignedBy(party) {
		return true, nil
	}
	if current := e.LeaseStatus(f); current != LeasePendingSignature {
		return false, fault.InvalidState(op, current, "lease is not awaiting signatures")
	}
	return false, nil
}

// AuthorizeTermination checks that actor may end f early.
func (e *Engine) AuthorizeTermination(actor Actor, f LeaseFacts) error {
	const op = "lease.terminate"
	if err := requireActor(op, actor); err != nil {
		return err
	}
	if actor.UserID != f.TenantID && actor.UserID != f.LandlordID {
		return fault.Authorization(op, "only the lease parties can terminate it")
	}
	switch current := e.LeaseStatus(f); current {
	case LeasePendingSignature, LeaseActive:
		return nil
	default:
		return fault.InvalidState(op, current, "cannot terminate a %s lease", current)
	}
}
