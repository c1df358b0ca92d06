package payment

import (
	"time"

	"github.com/shopspring/decimal"

	"rentflow/lifecycle"
)

// Payment mirrors the remote payment resource. Its status is always the
// server's; this client never advances it locally.
type Payment struct {
	ID             string                  `json:"id"`
	LeaseID        string                  `json:"lease_id"`
	TenantID       string                  `json:"tenant_id"`
	Amount         decimal.Decimal         `json:"amount"`
	Method         lifecycle.PaymentMethod `json:"payment_method"`
	Status         lifecycle.PaymentStatus `json:"status"`
	Description    *string                 `json:"description,omitempty"`
	TransactionID  *string                 `json:"transaction_id,omitempty"`
	PaidAt         *time.Time              `json:"paid_at,omitempty"`
	IdempotencyKey string                  `json:"idempotency_key,omitempty"`
	CreatedAt      time.Time               `json:"created_at"`
	UpdatedAt      time.Time               `json:"updated_at"`
}

// CreateParams describes a rent payment. IdempotencyKey is generated when
// empty; reuse the returned Payment.IdempotencyKey to retry safely.
type CreateParams struct {
	LeaseID        string
	Amount         decimal.Decimal
	Method         lifecycle.PaymentMethod
	Description    string
	IdempotencyKey string
}

type createRequest struct {
	Amount      decimal.Decimal         `json:"amount"`
	Method      lifecycle.PaymentMethod `json:"payment_method"`
	Description string                  `json:"description,omitempty"`
}

type refundRequest struct {
	PaymentID string `json:"payment_id"`
	Reason    string `json:"reason"`
}

// Newer picks between a payment already known and a later response for the
// same id. A response is stale when its status cannot follow the known one,
// or when it carries the same status with an older update time.
func Newer(known, latest Payment) Payment {
	switch {
	case known.Status == "":
		return latest
	case latest.Status == known.Status:
		if latest.UpdatedAt.Before(known.UpdatedAt) {
			return known
		}
		return latest
	case lifecycle.PaymentReachable(known.Status, latest.Status):
		return latest
	default:
		return known
	}
}

func ledgerScope(leaseID string) string {
	return "lease:" + leaseID
}
