// Package journal records what this client did against the remote API: the
// idempotency keys of submitted payments and a timeline of successful
// transitions. It is local bookkeeping, never a source of truth for status.
package journal

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrDuplicateIdempotencyKey signals the key was already reserved.
	ErrDuplicateIdempotencyKey = errors.New("journal: duplicate idempotency key")
	// ErrKeyScopeMismatch signals a key reused for a different target.
	ErrKeyScopeMismatch = errors.New("journal: idempotency key belongs to another scope")
	// ErrKeyNotFound is returned when no reservation exists for a key.
	ErrKeyNotFound = errors.New("journal: idempotency key not found")
)

// Aggregate types.
const (
	AggregateBooking     = "booking"
	AggregateLease       = "lease"
	AggregatePayment     = "payment"
	AggregateMaintenance = "maintenance"
)

// Event types.
const (
	EventBookingCreated   = "BOOKING_CREATED"
	EventBookingConfirmed = "BOOKING_CONFIRMED"
	EventBookingRejected  = "BOOKING_REJECTED"
	EventBookingCancelled = "BOOKING_CANCELLED"
	EventLeaseCreated     = "LEASE_CREATED"
	EventLeaseSigned      = "LEASE_SIGNED"
	EventLeaseTerminated  = "LEASE_TERMINATED"
	EventPaymentCreated   = "PAYMENT_CREATED"
	EventPaymentRefunded  = "PAYMENT_REFUNDED"
	EventPaymentSettled   = "PAYMENT_SETTLED"

	EventMaintenanceRequested = "MAINTENANCE_REQUESTED"
	EventMaintenanceUpdated   = "MAINTENANCE_UPDATED"
	EventMaintenanceMoved     = "MAINTENANCE_STATUS_CHANGED"
	EventMaintenanceRated     = "MAINTENANCE_RATED"
)

// Event is one timeline entry.
type Event struct {
	ID            int64
	AggregateType string
	AggregateID   string
	Type          string
	ActorID       string
	Status        string
	Payload       map[string]any
	OccurredAt    time.Time
}

// IdempotencyRecord is a reserved key and, once known, the resource it created.
type IdempotencyRecord struct {
	Key        string
	Scope      string
	ResourceID string
	CreatedAt  time.Time
	BoundAt    *time.Time
}

// Ledger reserves submission keys and binds them to created resources.
type Ledger interface {
	// Reserve claims key for scope. When the key was reserved before it
	// returns the earlier record; ResourceID is empty if that submission
	// never reported back.
	Reserve(ctx context.Context, key, scope string) (IdempotencyRecord, bool, error)
	Bind(ctx context.Context, key, resourceID string) error
}

// Recorder appends timeline events.
type Recorder interface {
	Record(ctx context.Context, ev Event) error
}

// Reader lists the timeline of one aggregate, oldest first.
type Reader interface {
	Timeline(ctx context.Context, aggregateType, aggregateID string) ([]Event, error)
}
