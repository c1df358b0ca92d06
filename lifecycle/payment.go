package lifecycle

import (
	"github.com/shopspring/decimal"

	"rentflow/fault"
)

// PaymentStatus is the settlement state of a payment.
type PaymentStatus string

const (
	PaymentPending    PaymentStatus = "pending"
	PaymentProcessing PaymentStatus = "processing"
	PaymentSuccessful PaymentStatus = "successful"
	PaymentFailed     PaymentStatus = "failed"
	PaymentRefunded   PaymentStatus = "refunded"
)

func (s PaymentStatus) String() string { return string(s) }

// Settled reports whether the gateway has reached a verdict for s.
func (s PaymentStatus) Settled() bool {
	return s == PaymentSuccessful || s == PaymentFailed || s == PaymentRefunded
}

var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentPending:    {PaymentProcessing},
	PaymentProcessing: {PaymentSuccessful, PaymentFailed},
	PaymentSuccessful: {PaymentRefunded},
}

// PaymentTransitionAllowed reports whether a payment may move from one status to another.
func PaymentTransitionAllowed(from, to PaymentStatus) bool {
	for _, next := range paymentTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// PaymentReachable reports whether to can follow from through one or more
// legal transitions. An observer polling the server may skip intermediate
// states, so this is what decides whether a newer response moves forward.
func PaymentReachable(from, to PaymentStatus) bool {
	seen := map[PaymentStatus]bool{from: true}
	queue := []PaymentStatus{from}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range paymentTransitions[cur] {
			if next == to {
				return true
			}
			if !seen[next] {
				seen[next] = true
				queue = append(queue, next)
			}
		}
	}
	return false
}

// PaymentMethod is a gateway accepted by the backend.
type PaymentMethod string

const (
	MethodWeChatPay    PaymentMethod = "wechat_pay"
	MethodAlipay       PaymentMethod = "alipay"
	MethodCreditCard   PaymentMethod = "credit_card"
	MethodBankTransfer PaymentMethod = "bank_transfer"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodWeChatPay, MethodAlipay, MethodCreditCard, MethodBankTransfer:
		return true
	default:
		return false
	}
}

// ValidatePayment checks amount and method before any request is made.
func ValidatePayment(amount decimal.Decimal, method PaymentMethod) error {
	const op = "payment.create"
	if !amount.IsPositive() {
		return fault.Validation(op, "amount must be greater than zero")
	}
	if !method.Valid() {
		return fault.Validation(op, "unsupported payment method %q", method)
	}
	return nil
}

// AuthorizePayment checks that actor may pay against f. The lease must be
// active on today and the caller must be its tenant of record.
func (e *Engine) AuthorizePayment(actor Actor, f LeaseFacts) error {
	const op = "payment.create"
	if err := requireActor(op, actor); err != nil {
		return err
	}
	if actor.UserID != f.TenantID {
		return fault.Authorization(op, "only the lease tenant can pay")
	}
	if current := e.LeaseStatus(f); current != LeaseActive {
		return fault.InvalidState(op, current, "payments require an active lease")
	}
	return nil
}

// AuthorizeRefund checks that actor may refund a payment of status current on
// a lease whose landlord of record is landlordID.
func (e *Engine) AuthorizeRefund(actor Actor, landlordID string, current PaymentStatus) error {
	const op = "payment.refund"
	if err := requireActor(op, actor); err != nil {
		return err
	}
	if actor.UserID != landlordID {
		return fault.Authorization(op, "only the lease landlord can refund")
	}
	if !PaymentTransitionAllowed(current, PaymentRefunded) {
		return fault.InvalidState(op, current, "only successful payments can be refunded")
	}
	return nil
}

// CanRead reports whether actor is a party to an aggregate owned by tenantID
// and landlordID.
func CanRead(actor Actor, tenantID, landlordID string) bool {
	if actor.UserID == "" {
		return false
	}
	return actor.UserID == tenantID || actor.UserID == landlordID
}
