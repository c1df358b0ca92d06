package property

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is the listing state of a property.
type Status string

const (
	StatusAvailable   Status = "available"
	StatusRented      Status = "rented"
	StatusPending     Status = "pending"
	StatusMaintenance Status = "maintenance"
	StatusInactive    Status = "inactive"
)

func (s Status) String() string { return string(s) }

// Property is the subset of a listing the rental workflow needs.
type Property struct {
	ID         string          `json:"id"`
	Title      string          `json:"title"`
	LandlordID string          `json:"landlord_id"`
	Status     Status          `json:"status"`
	Price      decimal.Decimal `json:"price"`
	Deposit    decimal.Decimal `json:"deposit"`
	Address    string          `json:"address,omitempty"`
	City       string          `json:"city,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Bookable reports whether tenants may request viewings.
func (p Property) Bookable() bool {
	return p.Status == StatusAvailable
}
