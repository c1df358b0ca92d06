package oracles

import (
	"context"
	"fmt"

	"rentflow/app"
	"rentflow/lease"
	"rentflow/lifecycle"
	"rentflow/payment"
	"rentflow/resource"
)

// Snapshot is what the landlord can see of one booking at one moment.
type Snapshot struct {
	BookingID string
	Leases    []lease.Lease
	Payments  []payment.Payment
}

// Oracle inspects a snapshot against everything observed before it and
// returns a description of the first violation, or "".
type Oracle struct {
	Name  string
	Check func(s *Snapshot, h *History) string
}

// History carries what earlier snapshots showed.
type History struct {
	payments map[string]lifecycle.PaymentStatus
	signed   map[string]bool
}

func NewHistory() *History {
	return &History{
		payments: make(map[string]lifecycle.PaymentStatus),
		signed:   make(map[string]bool),
	}
}

func (h *History) remember(s *Snapshot) {
	for _, p := range s.Payments {
		h.payments[p.ID] = p.Status
	}
	for _, l := range s.Leases {
		if l.TenantSignedAt != nil {
			h.signed[signature(l.ID, lifecycle.PartyTenant)] = true
		}
		if l.LandlordSignedAt != nil {
			h.signed[signature(l.ID, lifecycle.PartyLandlord)] = true
		}
	}
}

func signature(leaseID string, p lifecycle.Party) string {
	return leaseID + "/" + string(p)
}

func All() []Oracle {
	return []Oracle{
		{
			Name: "O1_single_lease_per_booking",
			Check: func(s *Snapshot, _ *History) string {
				if len(s.Leases) > 1 {
					return fmt.Sprintf("booking %s has %d leases", s.BookingID, len(s.Leases))
				}
				return ""
			},
		},
		{
			Name: "O2_payment_needs_signed_lease",
			Check: func(s *Snapshot, _ *History) string {
				signed := make(map[string]bool, len(s.Leases))
				for _, l := range s.Leases {
					signed[l.ID] = l.TenantSignedAt != nil && l.LandlordSignedAt != nil
				}
				for _, p := range s.Payments {
					if !signed[p.LeaseID] {
						return fmt.Sprintf("payment %s on lease %s before both signatures", p.ID, p.LeaseID)
					}
				}
				return ""
			},
		},
		{
			Name: "O3_one_payment_per_key",
			Check: func(s *Snapshot, _ *History) string {
				byKey := make(map[string]string, len(s.Payments))
				for _, p := range s.Payments {
					if p.IdempotencyKey == "" {
						return fmt.Sprintf("payment %s has no idempotency key", p.ID)
					}
					if other, ok := byKey[p.IdempotencyKey]; ok {
						return fmt.Sprintf("key %s names payments %s and %s", p.IdempotencyKey, other, p.ID)
					}
					byKey[p.IdempotencyKey] = p.ID
				}
				return ""
			},
		},
		{
			Name: "O4_payment_status_forward_only",
			Check: func(s *Snapshot, h *History) string {
				for _, p := range s.Payments {
					prev, ok := h.payments[p.ID]
					if !ok || prev == p.Status {
						continue
					}
					if !lifecycle.PaymentReachable(prev, p.Status) {
						return fmt.Sprintf("payment %s went %s -> %s", p.ID, prev, p.Status)
					}
				}
				return ""
			},
		},
		{
			Name: "O5_signatures_stick",
			Check: func(s *Snapshot, h *History) string {
				for _, l := range s.Leases {
					if h.signed[signature(l.ID, lifecycle.PartyTenant)] && l.TenantSignedAt == nil {
						return fmt.Sprintf("lease %s lost the tenant signature", l.ID)
					}
					if h.signed[signature(l.ID, lifecycle.PartyLandlord)] && l.LandlordSignedAt == nil {
						return fmt.Sprintf("lease %s lost the landlord signature", l.ID)
					}
				}
				return ""
			},
		},
	}
}

// Take reads every lease and payment of the booking through a. Leases are
// read again after the payments so that each payment's lease is at least as
// new as the payment.
func Take(ctx context.Context, a *app.App, bookingID string) (*Snapshot, error) {
	s := &Snapshot{BookingID: bookingID}
	leases, err := listLeases(ctx, a, bookingID)
	if err != nil {
		return nil, err
	}
	for _, l := range leases {
		q := resource.Query{Page: 1, PerPage: 100}
		for {
			page, err := a.Payments.ListByLease(ctx, l.ID, q)
			if err != nil {
				return nil, fmt.Errorf("snapshot payments: %w", err)
			}
			s.Payments = append(s.Payments, page.Data...)
			if !page.HasNext() {
				break
			}
			q.Page++
		}
	}
	if s.Leases, err = listLeases(ctx, a, bookingID); err != nil {
		return nil, err
	}
	return s, nil
}

func listLeases(ctx context.Context, a *app.App, bookingID string) ([]lease.Lease, error) {
	var out []lease.Lease
	q := resource.Query{Page: 1, PerPage: 100}.With("booking_id", bookingID)
	for {
		page, err := a.Leases.List(ctx, lease.ListParams{Query: q})
		if err != nil {
			return nil, fmt.Errorf("snapshot leases: %w", err)
		}
		out = append(out, page.Data...)
		if !page.HasNext() {
			return out, nil
		}
		q.Page++
	}
}

// Run takes a snapshot, executes all oracles and returns the first failure
// (name and detail) or an empty name if all pass.
func Run(ctx context.Context, a *app.App, bookingID string, h *History) (string, string, error) {
	s, err := Take(ctx, a, bookingID)
	if err != nil {
		return "", "", err
	}
	for _, o := range All() {
		if detail := o.Check(s, h); detail != "" {
			return o.Name, detail, nil
		}
	}
	h.remember(s)
	return "", "", nil
}
