package payment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"rentflow/fault"
	"rentflow/journal"
	"rentflow/lease"
	"rentflow/lifecycle"
	"rentflow/resource"
)

var (
	tenant   = lifecycle.Actor{UserID: "T", Role: lifecycle.RoleTenant}
	landlord = lifecycle.Actor{UserID: "L", Role: lifecycle.RoleLandlord}
	stranger = lifecycle.Actor{UserID: "X", Role: lifecycle.RoleTenant}
	today    = time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
)

func activeLease() lease.Lease {
	signed := today.Add(-48 * time.Hour)
	return lease.Lease{
		ID:               "l-1",
		TenantID:         "T",
		LandlordID:       "L",
		StartDate:        lifecycle.NewDate(2025, time.May, 1),
		EndDate:          lifecycle.NewDate(2026, time.April, 30),
		Status:           lifecycle.LeaseActive,
		TenantSignedAt:   &signed,
		LandlordSignedAt: &signed,
	}
}

func newService(remote *fakeRemote, l lease.Lease, actor lifecycle.Actor) *Service {
	engine := lifecycle.NewEngine(time.UTC).WithClock(func() time.Time { return today })
	leases := &fakeLeases{leases: map[string]lease.Lease{l.ID: l}}
	return NewService(remote, leases, lifecycle.As(actor), engine, nil)
}

func TestCreate_RequiresActiveLease(t *testing.T) {
	pending := activeLease()
	pending.Status = lifecycle.LeasePendingSignature
	pending.LandlordSignedAt = nil

	expired := activeLease()
	expired.EndDate = lifecycle.NewDate(2025, time.May, 31)

	terminated := activeLease()
	terminated.Status = lifecycle.LeaseTerminated

	cases := map[lifecycle.LeaseStatus]lease.Lease{
		lifecycle.LeasePendingSignature: pending,
		lifecycle.LeaseExpired:          expired,
		lifecycle.LeaseTerminated:       terminated,
	}
	for want, l := range cases {
		remote := newFakeRemote()
		svc := newService(remote, l, tenant)

		_, err := svc.Create(context.Background(), CreateParams{LeaseID: "l-1", Amount: decimal.NewFromInt(5000), Method: lifecycle.MethodAlipay})
		if !errors.Is(err, fault.ErrInvalidState) {
			t.Fatalf("%s: expected invalid state, got %v", want, err)
		}
		if fault.Current(err) != string(want) {
			t.Fatalf("%s: expected current status in error, got %q", want, fault.Current(err))
		}
		if remote.creates != 0 {
			t.Fatalf("%s: expected no submission", want)
		}
	}
}

func TestCreate_ValidatesInput(t *testing.T) {
	remote := newFakeRemote()
	svc := newService(remote, activeLease(), tenant)

	for _, params := range []CreateParams{
		{LeaseID: "l-1", Amount: decimal.Zero, Method: lifecycle.MethodAlipay},
		{LeaseID: "l-1", Amount: decimal.NewFromInt(-1), Method: lifecycle.MethodAlipay},
		{LeaseID: "l-1", Amount: decimal.NewFromInt(10), Method: "cash"},
		{Amount: decimal.NewFromInt(10), Method: lifecycle.MethodAlipay},
	} {
		if _, err := svc.Create(context.Background(), params); !errors.Is(err, fault.ErrValidation) {
			t.Fatalf("expected validation error for %+v, got %v", params, err)
		}
	}
	if remote.creates != 0 {
		t.Fatalf("expected no submission")
	}
}

func TestCreate_OnlyTenantOfRecord(t *testing.T) {
	remote := newFakeRemote()
	svc := newService(remote, activeLease(), landlord)

	_, err := svc.Create(context.Background(), CreateParams{LeaseID: "l-1", Amount: decimal.NewFromInt(5000), Method: lifecycle.MethodAlipay})
	if !errors.Is(err, fault.ErrAuthorization) {
		t.Fatalf("expected authorization error, got %v", err)
	}
}

func TestCreate_ReturnsUnsettledPaymentWithKey(t *testing.T) {
	remote := newFakeRemote()
	timeline := journal.NewMemory()
	svc := newService(remote, activeLease(), tenant).WithTimeline(timeline)
	svc.newKey = func() string { return "key-1" }

	p, err := svc.Create(context.Background(), CreateParams{LeaseID: "l-1", Amount: decimal.NewFromInt(5000), Method: lifecycle.MethodAlipay})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if p.Status != lifecycle.PaymentPending && p.Status != lifecycle.PaymentProcessing {
		t.Fatalf("expected unsettled payment, got %s", p.Status)
	}
	if p.IdempotencyKey != "key-1" || remote.keys[0] != "key-1" {
		t.Fatalf("expected key-1 on payment and header, got %q / %v", p.IdempotencyKey, remote.keys)
	}
	if remote.lastPath != "leases/l-1" {
		t.Fatalf("unexpected submission path %q", remote.lastPath)
	}
	events, _ := timeline.Timeline(context.Background(), journal.AggregatePayment, p.ID)
	if len(events) != 1 || events[0].Type != journal.EventPaymentCreated {
		t.Fatalf("expected creation event, got %+v", events)
	}
}

func TestCreate_ReplaysBoundKey(t *testing.T) {
	remote := newFakeRemote()
	ledger := journal.NewMemory()
	svc := newService(remote, activeLease(), tenant).WithLedger(ledger)

	params := CreateParams{LeaseID: "l-1", Amount: decimal.NewFromInt(5000), Method: lifecycle.MethodWeChatPay, IdempotencyKey: "rent-2025-06"}
	first, err := svc.Create(context.Background(), params)
	if err != nil {
		t.Fatalf("first create: %v", err)
	}
	second, err := svc.Create(context.Background(), params)
	if err != nil {
		t.Fatalf("second create: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected the same payment, got %s and %s", first.ID, second.ID)
	}
	if remote.creates != 1 {
		t.Fatalf("expected one submission, got %d", remote.creates)
	}
}

func TestCreate_BoundKeyReplaysAfterLeaseEnded(t *testing.T) {
	remote := newFakeRemote()
	leases := &fakeLeases{leases: map[string]lease.Lease{"l-1": activeLease()}}
	engine := lifecycle.NewEngine(time.UTC).WithClock(func() time.Time { return today })
	svc := NewService(remote, leases, lifecycle.As(tenant), engine, nil).WithLedger(journal.NewMemory())

	params := CreateParams{LeaseID: "l-1", Amount: decimal.NewFromInt(5000), Method: lifecycle.MethodAlipay, IdempotencyKey: "rent-2025-06"}
	first, err := svc.Create(context.Background(), params)
	if err != nil {
		t.Fatalf("first create: %v", err)
	}

	ended := activeLease()
	ended.Status = lifecycle.LeaseTerminated
	leases.leases["l-1"] = ended

	second, err := svc.Create(context.Background(), params)
	if err != nil {
		t.Fatalf("retry after termination: %v", err)
	}
	if second.ID != first.ID || remote.creates != 1 {
		t.Fatalf("expected payment %s replayed without a new submission, got %s after %d submissions", first.ID, second.ID, remote.creates)
	}

	params.IdempotencyKey = "rent-2025-07"
	if _, err := svc.Create(context.Background(), params); !errors.Is(err, fault.ErrInvalidState) {
		t.Fatalf("expected a fresh key to be refused on the ended lease, got %v", err)
	}
}

func TestCreate_UnboundKeyIsResubmittedWithSameHeader(t *testing.T) {
	remote := newFakeRemote()
	ledger := journal.NewMemory()
	svc := newService(remote, activeLease(), tenant).WithLedger(ledger)
	params := CreateParams{LeaseID: "l-1", Amount: decimal.NewFromInt(5000), Method: lifecycle.MethodAlipay, IdempotencyKey: "k"}

	remote.createErr = fault.Transport("post /payments/leases/l-1", context.DeadlineExceeded)
	if _, err := svc.Create(context.Background(), params); !fault.IsTimeout(err) {
		t.Fatalf("expected timeout, got %v", err)
	}
	remote.createErr = nil
	if _, err := svc.Create(context.Background(), params); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if len(remote.keys) != 2 || remote.keys[0] != "k" || remote.keys[1] != "k" {
		t.Fatalf("expected both attempts to carry key k, got %v", remote.keys)
	}
}

func TestCreate_KeyReusedForAnotherLeaseConflicts(t *testing.T) {
	ledger := journal.NewMemory()
	if _, _, err := ledger.Reserve(context.Background(), "k", ledgerScope("l-other")); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	svc := newService(newFakeRemote(), activeLease(), tenant).WithLedger(ledger)

	_, err := svc.Create(context.Background(), CreateParams{LeaseID: "l-1", Amount: decimal.NewFromInt(1), Method: lifecycle.MethodAlipay, IdempotencyKey: "k"})
	if !errors.Is(err, fault.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestReadsRequireRelationship(t *testing.T) {
	remote := newFakeRemote()
	remote.put(Payment{ID: "pay-1", LeaseID: "l-1", TenantID: "T", Status: lifecycle.PaymentPending})

	if _, err := newService(remote, activeLease(), stranger).Get(context.Background(), "pay-1"); !errors.Is(err, fault.ErrNotFound) {
		t.Fatalf("expected not found for stranger, got %v", err)
	}
	if _, err := newService(remote, activeLease(), landlord).Get(context.Background(), "pay-1"); err != nil {
		t.Fatalf("expected landlord to read payment, got %v", err)
	}
	if _, err := newService(remote, activeLease(), stranger).ListByLease(context.Background(), "l-1", resource.Query{}); !errors.Is(err, fault.ErrNotFound) {
		t.Fatalf("expected not found listing a foreign lease, got %v", err)
	}
	if _, err := newService(remote, activeLease(), tenant).ListByLease(context.Background(), "l-404", resource.Query{}); !errors.Is(err, fault.ErrNotFound) {
		t.Fatalf("expected not found for unknown lease, got %v", err)
	}
	page, err := newService(remote, activeLease(), tenant).ListByLease(context.Background(), "l-1", resource.Query{})
	if err != nil || len(page.Data) != 1 {
		t.Fatalf("expected one payment, got %+v %v", page, err)
	}
}

func TestRefund(t *testing.T) {
	remote := newFakeRemote()
	remote.put(Payment{ID: "pay-1", LeaseID: "l-1", TenantID: "T", Status: lifecycle.PaymentProcessing})

	if _, err := newService(remote, activeLease(), landlord).Refund(context.Background(), "pay-1", "overcharge"); !errors.Is(err, fault.ErrInvalidState) {
		t.Fatalf("expected invalid state for unsettled payment, got %v", err)
	}
	remote.settle("pay-1", lifecycle.PaymentSuccessful)
	if _, err := newService(remote, activeLease(), tenant).Refund(context.Background(), "pay-1", "overcharge"); !errors.Is(err, fault.ErrAuthorization) {
		t.Fatalf("expected tenant to be refused, got %v", err)
	}
	p, err := newService(remote, activeLease(), landlord).Refund(context.Background(), "pay-1", "overcharge")
	if err != nil {
		t.Fatalf("refund: %v", err)
	}
	if p.Status != lifecycle.PaymentRefunded {
		t.Fatalf("expected refunded, got %s", p.Status)
	}
}

func TestNewerDiscardsStaleResponses(t *testing.T) {
	t0 := today
	processing := Payment{ID: "p", Status: lifecycle.PaymentProcessing, UpdatedAt: t0}
	successful := Payment{ID: "p", Status: lifecycle.PaymentSuccessful, UpdatedAt: t0.Add(time.Second)}
	pending := Payment{ID: "p", Status: lifecycle.PaymentPending, UpdatedAt: t0.Add(2 * time.Second)}

	if got := Newer(processing, successful); got.Status != lifecycle.PaymentSuccessful {
		t.Fatalf("expected forward move, got %s", got.Status)
	}
	if got := Newer(successful, pending); got.Status != lifecycle.PaymentSuccessful {
		t.Fatalf("expected backwards response to be discarded, got %s", got.Status)
	}
	older := processing
	older.UpdatedAt = t0.Add(-time.Minute)
	older.TransactionID = new(string)
	if got := Newer(processing, older); got.TransactionID != nil {
		t.Fatalf("expected older same-status response to be discarded")
	}
}

func TestAwaitSettlement_WakesOnNudge(t *testing.T) {
	remote := newFakeRemote()
	remote.put(Payment{ID: "pay-1", LeaseID: "l-1", TenantID: "T", Status: lifecycle.PaymentProcessing})
	timeline := journal.NewMemory()
	svc := newService(remote, activeLease(), tenant).WithTimeline(timeline)

	nudges := make(chan string, 2)
	done := make(chan Payment, 1)
	go func() {
		p, err := svc.AwaitSettlement(context.Background(), "pay-1", time.Hour, nudges)
		if err != nil {
			t.Errorf("await: %v", err)
		}
		done <- p
	}()

	remote.waitGets(1)
	remote.settle("pay-1", lifecycle.PaymentSuccessful)
	nudges <- "pay-other"
	nudges <- "pay-1"

	select {
	case p := <-done:
		if p.Status != lifecycle.PaymentSuccessful {
			t.Fatalf("expected successful, got %s", p.Status)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("await did not return after nudge")
	}
	events, _ := timeline.Timeline(context.Background(), journal.AggregatePayment, "pay-1")
	if len(events) != 1 || events[0].Type != journal.EventPaymentSettled {
		t.Fatalf("expected settlement event, got %+v", events)
	}
}

func TestAwaitSettlement_AbandonedByCaller(t *testing.T) {
	remote := newFakeRemote()
	remote.put(Payment{ID: "pay-1", LeaseID: "l-1", TenantID: "T", Status: lifecycle.PaymentPending})
	svc := newService(remote, activeLease(), tenant)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	p, err := svc.AwaitSettlement(ctx, "pay-1", 10*time.Millisecond, nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline, got %v", err)
	}
	if p.Status != lifecycle.PaymentPending {
		t.Fatalf("expected last known status, got %s", p.Status)
	}
}

type fakeLeases struct {
	leases map[string]lease.Lease
}

func (f *fakeLeases) Get(ctx context.Context, id string) (lease.Lease, error) {
	l, ok := f.leases[id]
	if !ok {
		return lease.Lease{}, fault.NotFound("get /leases/"+id, "lease not found")
	}
	return l, nil
}

type fakeRemote struct {
	mu        sync.Mutex
	payments  map[string]Payment
	creates   int
	gets      int
	keys      []string
	lastPath  string
	createErr error
	getSignal chan struct{}
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{payments: map[string]Payment{}, getSignal: make(chan struct{}, 64)}
}

func (f *fakeRemote) put(p Payment) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payments[p.ID] = p
}

func (f *fakeRemote) settle(id string, status lifecycle.PaymentStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := f.payments[id]
	p.Status = status
	p.UpdatedAt = p.UpdatedAt.Add(time.Second)
	f.payments[id] = p
}

func (f *fakeRemote) waitGets(n int) {
	for i := 0; i < n; i++ {
		<-f.getSignal
	}
}

func (f *fakeRemote) Get(ctx context.Context, id string) (Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	select {
	case f.getSignal <- struct{}{}:
	default:
	}
	p, ok := f.payments[id]
	if !ok {
		return Payment{}, fault.NotFound("get /payments/"+id, "payment not found")
	}
	return p, nil
}

func (f *fakeRemote) ListAt(ctx context.Context, q resource.Query, sub ...string) (resource.Page[Payment], error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Payment
	for _, p := range f.payments {
		if len(sub) == 2 && p.LeaseID == sub[1] {
			out = append(out, p)
		}
	}
	return resource.Page[Payment]{Data: out}, nil
}

func (f *fakeRemote) CreateAt(ctx context.Context, body any, sub []string, opts ...resource.RequestOption) (Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := resty.New().R()
	for _, opt := range opts {
		opt(r)
	}
	f.keys = append(f.keys, r.Header.Get(resource.HeaderIdempotencyKey))
	f.lastPath = sub[0] + "/" + sub[1]
	if f.createErr != nil {
		return Payment{}, f.createErr
	}
	f.creates++
	req := body.(createRequest)
	p := Payment{
		ID:        fmt.Sprintf("pay-%d", f.creates),
		LeaseID:   sub[1],
		TenantID:  "T",
		Amount:    req.Amount,
		Method:    req.Method,
		Status:    lifecycle.PaymentPending,
		CreatedAt: today,
		UpdatedAt: today,
	}
	f.payments[p.ID] = p
	return p, nil
}

func (f *fakeRemote) Act(ctx context.Context, id, action string, body any, opts ...resource.RequestOption) (Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := f.payments[id]
	if action == "refund" {
		p.Status = lifecycle.PaymentRefunded
	}
	f.payments[id] = p
	return p, nil
}
