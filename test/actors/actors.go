package actors

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"rentflow/app"
	"rentflow/fault"
	"rentflow/lease"
	"rentflow/lifecycle"
	"rentflow/payment"
	"rentflow/resource"
	"rentflow/sandbox"
)

// expected reports whether err is an outcome the actor is meant to provoke
// under contention. Lost responses and timeouts always qualify.
func expected(err error, kinds ...error) bool {
	if errors.Is(err, fault.ErrTransport) {
		return true
	}
	for _, k := range kinds {
		if errors.Is(err, k) {
			return true
		}
	}
	return false
}

func done(ctx context.Context, stop <-chan struct{}) (bool, error) {
	select {
	case <-ctx.Done():
		return true, ctx.Err()
	case <-stop:
		return true, nil
	default:
		return false, nil
	}
}

func jitter(base, spread int) {
	time.Sleep(time.Duration(base+rand.Intn(spread)) * time.Millisecond)
}

// LeaseFor returns the lease drafted from bookingID, if any.
func LeaseFor(ctx context.Context, a *app.App, bookingID string) (lease.Lease, bool, error) {
	page, err := a.Leases.List(ctx, lease.ListParams{
		Query: resource.Query{PerPage: 100}.With("booking_id", bookingID),
	})
	if err != nil {
		return lease.Lease{}, false, err
	}
	if len(page.Data) == 0 {
		return lease.Lease{}, false, nil
	}
	return page.Data[0], true, nil
}

// LeaseCreator keeps drafting a lease for the same booking. Only the first
// draft may succeed; every later one must be refused as a conflict.
func LeaseCreator(ctx context.Context, landlord *app.App, bookingID string, terms lifecycle.LeaseTerms, stop <-chan struct{}) error {
	for {
		if stopped, err := done(ctx, stop); stopped {
			return err
		}
		_, err := landlord.Leases.CreateFromBooking(ctx, lease.CreateParams{BookingID: bookingID, Terms: terms})
		if err != nil && !expected(err, fault.ErrConflict) {
			return fmt.Errorf("lease creator: %w", err)
		}
		jitter(10, 20)
	}
}

// Signer signs the booking's lease for party, repeatedly. Signing twice is a
// no-op.
func Signer(ctx context.Context, a *app.App, bookingID string, party lifecycle.Party, stop <-chan struct{}) error {
	for {
		if stopped, err := done(ctx, stop); stopped {
			return err
		}
		l, ok, err := LeaseFor(ctx, a, bookingID)
		if err != nil && !expected(err) {
			return fmt.Errorf("signer list: %w", err)
		}
		if ok {
			if _, err := a.Leases.Sign(ctx, l.ID, party); err != nil && !expected(err, fault.ErrInvalidState) {
				return fmt.Errorf("signer %s: %w", party, err)
			}
		}
		jitter(20, 40)
	}
}

// Payer submits rent under keys drawn from a shared pool, so several payers
// race on the same key and every lost response is retried with its key.
func Payer(ctx context.Context, tenant *app.App, bookingID string, keys []string, stop <-chan struct{}) error {
	var leaseID string
	for {
		if stopped, err := done(ctx, stop); stopped {
			return err
		}
		if leaseID == "" {
			l, ok, err := LeaseFor(ctx, tenant, bookingID)
			if err != nil && !expected(err) {
				return fmt.Errorf("payer list: %w", err)
			}
			if ok {
				leaseID = l.ID
			}
			jitter(15, 20)
			continue
		}

		_, err := tenant.Payments.Create(ctx, payment.CreateParams{
			LeaseID:        leaseID,
			Amount:         decimal.NewFromInt(5000),
			Method:         lifecycle.MethodAlipay,
			IdempotencyKey: keys[rand.Intn(len(keys))],
		})
		if err != nil && !expected(err, fault.ErrInvalidState) {
			return fmt.Errorf("payer: %w", err)
		}
		jitter(15, 35)
	}
}

// Settler plays the gateway: it moves unsettled payments forward with a
// random verdict, including ones the state machine must refuse.
func Settler(ctx context.Context, a *app.App, bookingID string, stop <-chan struct{}) error {
	verdicts := []lifecycle.PaymentStatus{
		lifecycle.PaymentProcessing,
		lifecycle.PaymentSuccessful,
		lifecycle.PaymentFailed,
	}
	for {
		if stopped, err := done(ctx, stop); stopped {
			return err
		}
		for _, p := range unsettled(ctx, a, bookingID) {
			var out payment.Payment
			err := a.API.Do(ctx, http.MethodPost, "/sandbox/payments/"+p.ID+"/settle",
				sandbox.SettleRequest{Status: verdicts[rand.Intn(len(verdicts))]}, &out, resource.Anonymous())
			if err != nil && !expected(err, fault.ErrInvalidState) {
				return fmt.Errorf("settler: %w", err)
			}
		}
		jitter(50, 50)
	}
}

// Refunder refunds successful payments as the landlord.
func Refunder(ctx context.Context, landlord *app.App, bookingID string, stop <-chan struct{}) error {
	for {
		if stopped, err := done(ctx, stop); stopped {
			return err
		}
		for _, p := range payments(ctx, landlord, bookingID) {
			if p.Status != lifecycle.PaymentSuccessful || rand.Intn(3) != 0 {
				continue
			}
			if _, err := landlord.Payments.Refund(ctx, p.ID, "stress refund"); err != nil && !expected(err, fault.ErrInvalidState) {
				return fmt.Errorf("refunder: %w", err)
			}
		}
		jitter(100, 100)
	}
}

func unsettled(ctx context.Context, a *app.App, bookingID string) []payment.Payment {
	var out []payment.Payment
	for _, p := range payments(ctx, a, bookingID) {
		if !p.Status.Settled() {
			out = append(out, p)
		}
	}
	return out
}

// payments lists the first page of the booking's lease payments. Errors read
// as an empty list; the oracles do the strict reading.
func payments(ctx context.Context, a *app.App, bookingID string) []payment.Payment {
	l, ok, err := LeaseFor(ctx, a, bookingID)
	if err != nil || !ok {
		return nil
	}
	page, err := a.Payments.ListByLease(ctx, l.ID, resource.Query{PerPage: 100})
	if err != nil {
		return nil
	}
	return page.Data
}
