// Package overview assembles the caller's dashboard from independent reads
// issued concurrently.
package overview

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"rentflow/booking"
	"rentflow/lease"
	"rentflow/lifecycle"
	"rentflow/resource"
)

type BookingLister interface {
	List(ctx context.Context, params booking.ListParams) (resource.Page[booking.Booking], error)
}

type LeaseLister interface {
	List(ctx context.Context, params lease.ListParams) (resource.Page[lease.Lease], error)
}

type UnreadCounter interface {
	UnreadCount(ctx context.Context) int
}

// Summary is what needs the caller's attention.
type Summary struct {
	PendingBookings []booking.Booking
	ActiveLeases    []lease.Lease
	AwaitingSigning []lease.Lease
	Unread          int
}

type Service struct {
	bookings BookingLister
	leases   LeaseLister
	unread   UnreadCounter
}

func NewService(bookings BookingLister, leases LeaseLister, unread UnreadCounter) *Service {
	return &Service{bookings: bookings, leases: leases, unread: unread}
}

// Load fetches the summary. A failing list fails the whole load and cancels
// the others; the unread count degrades on its own.
func (s *Service) Load(ctx context.Context) (Summary, error) {
	var sum Summary
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		page, err := s.bookings.List(ctx, booking.ListParams{Status: lifecycle.BookingPending})
		if err != nil {
			return fmt.Errorf("overview: bookings: %w", err)
		}
		sum.PendingBookings = page.Data
		return nil
	})
	g.Go(func() error {
		page, err := s.leases.List(ctx, lease.ListParams{Query: resource.Query{PerPage: 100}})
		if err != nil {
			return fmt.Errorf("overview: leases: %w", err)
		}
		for _, l := range page.Data {
			switch l.Status {
			case lifecycle.LeaseActive:
				sum.ActiveLeases = append(sum.ActiveLeases, l)
			case lifecycle.LeasePendingSignature:
				sum.AwaitingSigning = append(sum.AwaitingSigning, l)
			}
		}
		return nil
	})
	if s.unread != nil {
		g.Go(func() error {
			sum.Unread = s.unread.UnreadCount(ctx)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return Summary{}, err
	}
	return sum, nil
}
