package lease

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"rentflow/booking"
	"rentflow/fault"
	"rentflow/journal"
	"rentflow/lifecycle"
	"rentflow/resource"
)

var (
	tenant   = lifecycle.Actor{UserID: "T", Role: lifecycle.RoleTenant}
	landlord = lifecycle.Actor{UserID: "L", Role: lifecycle.RoleLandlord}
	stranger = lifecycle.Actor{UserID: "X", Role: lifecycle.RoleTenant}
)

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func newClock() *clock {
	return &clock{now: time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)}
}

func newService(remote *fakeRemote, bookings *fakeBookings, actor lifecycle.Actor, c *clock) *Service {
	engine := lifecycle.NewEngine(time.UTC).WithClock(c.Now)
	remote.now = c.Now
	return NewService(remote, bookings, lifecycle.As(actor), engine, nil)
}

func terms() lifecycle.LeaseTerms {
	return lifecycle.LeaseTerms{
		StartDate:       lifecycle.NewDate(2025, time.June, 1),
		EndDate:         lifecycle.NewDate(2026, time.May, 31),
		MonthlyRent:     decimal.NewFromInt(5000),
		SecurityDeposit: decimal.NewFromInt(10000),
		PaymentDueDay:   5,
	}
}

func confirmedBooking() *fakeBookings {
	return &fakeBookings{b: booking.Booking{ID: "b-1", PropertyID: "p-1", TenantID: "T", LandlordID: "L", Status: lifecycle.BookingConfirmed}}
}

func TestCreateFromBooking_RequiresConfirmedBooking(t *testing.T) {
	bookings := confirmedBooking()
	bookings.b.Status = lifecycle.BookingPending
	remote := newFakeRemote()
	svc := newService(remote, bookings, landlord, newClock())

	_, err := svc.CreateFromBooking(context.Background(), CreateParams{BookingID: "b-1", Terms: terms()})
	if !errors.Is(err, fault.ErrInvalidState) || fault.Current(err) != "pending" {
		t.Fatalf("expected invalid state carrying pending, got %v", err)
	}
	if remote.creates != 0 {
		t.Fatalf("expected no lease submitted")
	}
}

func TestCreateFromBooking_OnlyLandlordOfRecord(t *testing.T) {
	remote := newFakeRemote()
	svc := newService(remote, confirmedBooking(), tenant, newClock())

	if _, err := svc.CreateFromBooking(context.Background(), CreateParams{BookingID: "b-1", Terms: terms()}); !errors.Is(err, fault.ErrAuthorization) {
		t.Fatalf("expected authorization error, got %v", err)
	}
}

func TestCreateFromBooking_InvalidTerms(t *testing.T) {
	remote := newFakeRemote()
	svc := newService(remote, confirmedBooking(), landlord, newClock())
	bad := terms()
	bad.EndDate = bad.StartDate

	if _, err := svc.CreateFromBooking(context.Background(), CreateParams{BookingID: "b-1", Terms: bad}); !errors.Is(err, fault.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCreateFromBooking_SecondCallConflicts(t *testing.T) {
	remote := newFakeRemote()
	timeline := journal.NewMemory()
	svc := newService(remote, confirmedBooking(), landlord, newClock()).WithTimeline(timeline)

	l, err := svc.CreateFromBooking(context.Background(), CreateParams{BookingID: "b-1", Terms: terms()})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if l.Status != lifecycle.LeasePendingSignature {
		t.Fatalf("expected pending_signature, got %s", l.Status)
	}

	_, err = svc.CreateFromBooking(context.Background(), CreateParams{BookingID: "b-1", Terms: terms()})
	if !errors.Is(err, fault.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if remote.creates != 1 {
		t.Fatalf("expected exactly one lease submitted, got %d", remote.creates)
	}
	events, _ := timeline.Timeline(context.Background(), journal.AggregateLease, l.ID)
	if len(events) != 1 {
		t.Fatalf("expected one creation event, got %d", len(events))
	}
}

func TestSign_IsIdempotentPerParty(t *testing.T) {
	c := newClock()
	remote := newFakeRemote()
	remote.put(Lease{ID: "l-1", TenantID: "T", LandlordID: "L", StartDate: terms().StartDate, EndDate: terms().EndDate, Status: lifecycle.LeasePendingSignature})
	svc := newService(remote, confirmedBooking(), tenant, c)

	first, err := svc.Sign(context.Background(), "l-1", lifecycle.PartyTenant)
	if err != nil {
		t.Fatalf("first sign: %v", err)
	}
	c.now = c.now.Add(time.Minute)
	second, err := svc.Sign(context.Background(), "l-1", lifecycle.PartyTenant)
	if err != nil {
		t.Fatalf("second sign: %v", err)
	}
	if first.TenantSignedAt == nil || !first.TenantSignedAt.Equal(*second.TenantSignedAt) {
		t.Fatalf("expected identical signature timestamps, got %v and %v", first.TenantSignedAt, second.TenantSignedAt)
	}
	if remote.acts["sign"] != 1 {
		t.Fatalf("expected one sign request, got %d", remote.acts["sign"])
	}
}

func TestSign_WrongPartyForbidden(t *testing.T) {
	remote := newFakeRemote()
	remote.put(Lease{ID: "l-1", TenantID: "T", LandlordID: "L", StartDate: terms().StartDate, EndDate: terms().EndDate, Status: lifecycle.LeasePendingSignature})
	svc := newService(remote, confirmedBooking(), tenant, newClock())

	if _, err := svc.Sign(context.Background(), "l-1", lifecycle.PartyLandlord); !errors.Is(err, fault.ErrAuthorization) {
		t.Fatalf("expected authorization error, got %v", err)
	}
}

func TestSign_BothPartiesActivateInsideWindow(t *testing.T) {
	c := newClock()
	remote := newFakeRemote()
	remote.put(Lease{ID: "l-1", TenantID: "T", LandlordID: "L", StartDate: terms().StartDate, EndDate: terms().EndDate, Status: lifecycle.LeasePendingSignature})

	if _, err := newService(remote, nil, tenant, c).Sign(context.Background(), "l-1", lifecycle.PartyTenant); err != nil {
		t.Fatalf("tenant sign: %v", err)
	}
	l, err := newService(remote, nil, landlord, c).Sign(context.Background(), "l-1", lifecycle.PartyLandlord)
	if err != nil {
		t.Fatalf("landlord sign: %v", err)
	}
	if l.Status != lifecycle.LeaseActive || l.TenantSignedAt == nil || l.LandlordSignedAt == nil {
		t.Fatalf("expected active fully signed lease, got %+v", l)
	}
}

func TestSign_BothPartiesBeforeWindowStayPending(t *testing.T) {
	c := newClock()
	remote := newFakeRemote()
	start := lifecycle.NewDate(2025, time.July, 1)
	remote.put(Lease{ID: "l-1", TenantID: "T", LandlordID: "L", StartDate: start, EndDate: start.AddDays(365), Status: lifecycle.LeasePendingSignature})

	_, _ = newService(remote, nil, tenant, c).Sign(context.Background(), "l-1", lifecycle.PartyTenant)
	l, err := newService(remote, nil, landlord, c).Sign(context.Background(), "l-1", lifecycle.PartyLandlord)
	if err != nil {
		t.Fatalf("landlord sign: %v", err)
	}
	if l.Status != lifecycle.LeasePendingSignature {
		t.Fatalf("expected pending_signature before the start date, got %s", l.Status)
	}

	c.now = time.Date(2025, 7, 1, 0, 0, 1, 0, time.UTC)
	l, err = newService(remote, nil, tenant, c).Get(context.Background(), "l-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if l.Status != lifecycle.LeaseActive {
		t.Fatalf("expected active on the start date, got %s", l.Status)
	}
}

func TestGet_ReportsExpiryWithoutTransition(t *testing.T) {
	c := newClock()
	remote := newFakeRemote()
	signed := c.now
	remote.put(Lease{
		ID: "l-1", TenantID: "T", LandlordID: "L",
		StartDate: terms().StartDate, EndDate: terms().EndDate,
		Status: lifecycle.LeaseActive, TenantSignedAt: &signed, LandlordSignedAt: &signed,
	})
	svc := newService(remote, nil, tenant, c)

	c.now = time.Date(2026, 5, 31, 23, 59, 0, 0, time.UTC)
	if l, _ := svc.Get(context.Background(), "l-1"); l.Status != lifecycle.LeaseActive {
		t.Fatalf("expected active on the end date, got %s", l.Status)
	}
	c.now = time.Date(2026, 6, 1, 0, 0, 1, 0, time.UTC)
	l, err := svc.Get(context.Background(), "l-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if l.Status != lifecycle.LeaseExpired {
		t.Fatalf("expected expired after the end date, got %s", l.Status)
	}
	if len(remote.acts) != 0 {
		t.Fatalf("expected no remote mutation, got %v", remote.acts)
	}
}

func TestGet_HidesForeignLease(t *testing.T) {
	remote := newFakeRemote()
	remote.put(Lease{ID: "l-1", TenantID: "T", LandlordID: "L", Status: lifecycle.LeasePendingSignature})
	if _, err := newService(remote, nil, stranger, newClock()).Get(context.Background(), "l-1"); !errors.Is(err, fault.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestTerminate(t *testing.T) {
	c := newClock()
	signed := c.now
	active := Lease{
		ID: "l-1", TenantID: "T", LandlordID: "L",
		StartDate: terms().StartDate, EndDate: terms().EndDate,
		Status: lifecycle.LeaseActive, TenantSignedAt: &signed, LandlordSignedAt: &signed,
	}

	t.Run("stranger", func(t *testing.T) {
		remote := newFakeRemote()
		remote.put(active)
		if _, err := newService(remote, nil, stranger, c).Terminate(context.Background(), "l-1", "moving"); !errors.Is(err, fault.ErrAuthorization) {
			t.Fatalf("expected authorization error, got %v", err)
		}
	})

	t.Run("missing reason", func(t *testing.T) {
		remote := newFakeRemote()
		remote.put(active)
		if _, err := newService(remote, nil, tenant, c).Terminate(context.Background(), "l-1", "  "); !errors.Is(err, fault.ErrValidation) {
			t.Fatalf("expected validation error, got %v", err)
		}
	})

	t.Run("expired", func(t *testing.T) {
		remote := newFakeRemote()
		remote.put(active)
		late := &clock{now: time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)}
		_, err := newService(remote, nil, tenant, late).Terminate(context.Background(), "l-1", "moving")
		if !errors.Is(err, fault.ErrInvalidState) || fault.Current(err) != "expired" {
			t.Fatalf("expected invalid state carrying expired, got %v", err)
		}
	})

	t.Run("active", func(t *testing.T) {
		remote := newFakeRemote()
		remote.put(active)
		l, err := newService(remote, nil, landlord, c).Terminate(context.Background(), "l-1", "moving")
		if err != nil {
			t.Fatalf("terminate: %v", err)
		}
		if l.Status != lifecycle.LeaseTerminated {
			t.Fatalf("expected terminated, got %s", l.Status)
		}
		if remote.lastTerminate.TerminationDate.String() != "2025-06-01" || !remote.lastTerminate.IsMutualAgreement {
			t.Fatalf("unexpected termination request %+v", remote.lastTerminate)
		}
		if _, err := newService(remote, nil, landlord, c).Terminate(context.Background(), "l-1", "again"); !errors.Is(err, fault.ErrInvalidState) {
			t.Fatalf("expected terminated lease to stay terminated, got %v", err)
		}
	})
}

func TestList_FiltersByDerivedStatus(t *testing.T) {
	c := newClock()
	signed := c.now
	remote := newFakeRemote()
	remote.put(Lease{ID: "l-1", TenantID: "T", LandlordID: "L", StartDate: terms().StartDate, EndDate: terms().EndDate, Status: lifecycle.LeaseActive, TenantSignedAt: &signed, LandlordSignedAt: &signed})
	remote.put(Lease{ID: "l-2", TenantID: "T", LandlordID: "L", StartDate: lifecycle.NewDate(2024, 1, 1), EndDate: lifecycle.NewDate(2024, 12, 31), Status: lifecycle.LeaseActive, TenantSignedAt: &signed, LandlordSignedAt: &signed})

	page, err := newService(remote, nil, tenant, c).List(context.Background(), ListParams{Status: lifecycle.LeaseActive})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Data) != 1 || page.Data[0].ID != "l-1" {
		t.Fatalf("expected only the active lease, got %+v", page.Data)
	}
	if remote.lastQuery.Filters["role"] != "tenant" {
		t.Fatalf("expected tenant role filter, got %+v", remote.lastQuery.Filters)
	}
	if page.Meta.From != nil || page.Meta.To != nil {
		t.Fatalf("expected From/To cleared on a filtered page, got %v/%v", page.Meta.From, page.Meta.To)
	}
	if page.Meta.Total != 2 || page.HasNext() {
		t.Fatalf("expected the unfiltered total and no next page, got %+v", page.Meta)
	}

	all, err := newService(remote, nil, tenant, c).List(context.Background(), ListParams{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if all.Meta.To == nil || *all.Meta.To != 2 {
		t.Fatalf("expected an unfiltered page to keep its range, got %+v", all.Meta)
	}
}

type fakeBookings struct {
	b booking.Booking
}

func (f *fakeBookings) Get(ctx context.Context, id string) (booking.Booking, error) {
	if f == nil || f.b.ID != id {
		return booking.Booking{}, fault.NotFound("get /bookings/"+id, "booking not found")
	}
	return f.b, nil
}

// fakeRemote behaves like the server for the calls the service makes.
type fakeRemote struct {
	now           func() time.Time
	leases        map[string]Lease
	order         []string
	creates       int
	acts          map[string]int
	lastQuery     resource.Query
	lastTerminate terminateRequest
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{leases: map[string]Lease{}, acts: map[string]int{}}
}

func (f *fakeRemote) put(l Lease) {
	if _, ok := f.leases[l.ID]; !ok {
		f.order = append(f.order, l.ID)
	}
	f.leases[l.ID] = l
}

func (f *fakeRemote) Get(ctx context.Context, id string) (Lease, error) {
	l, ok := f.leases[id]
	if !ok {
		return Lease{}, fault.NotFound("get /leases/"+id, "lease not found")
	}
	return l, nil
}

func (f *fakeRemote) List(ctx context.Context, q resource.Query) (resource.Page[Lease], error) {
	f.lastQuery = q
	var out []Lease
	for _, id := range f.order {
		l := f.leases[id]
		if b := q.Filters["booking_id"]; b != "" && l.BookingID != b {
			continue
		}
		out = append(out, l)
	}
	page := resource.Page[Lease]{
		Data: out,
		Meta: resource.Meta{CurrentPage: 1, LastPage: 1, PerPage: q.Normalize().PerPage, Total: len(out)},
	}
	if len(out) > 0 {
		from, to := 1, len(out)
		page.Meta.From, page.Meta.To = &from, &to
	}
	return page, nil
}

func (f *fakeRemote) Create(ctx context.Context, body any, opts ...resource.RequestOption) (Lease, error) {
	f.creates++
	req := body.(createRequest)
	l := Lease{
		ID:            fmt.Sprintf("l-%d", len(f.order)+1),
		BookingID:     req.BookingID,
		PropertyID:    req.PropertyID,
		TenantID:      req.TenantID,
		LandlordID:    "L",
		StartDate:     req.StartDate,
		EndDate:       req.EndDate,
		RentAmount:    req.RentAmount,
		DepositAmount: req.DepositAmount,
		PaymentDueDay: req.PaymentDueDay,
		Status:        lifecycle.LeasePendingSignature,
	}
	f.put(l)
	return l, nil
}

func (f *fakeRemote) Act(ctx context.Context, id, action string, body any, opts ...resource.RequestOption) (Lease, error) {
	f.acts[action]++
	l, ok := f.leases[id]
	if !ok {
		return Lease{}, fault.NotFound("post /leases/"+id, "lease not found")
	}
	at := f.now()
	switch action {
	case "sign":
		if body.(signRequest).Party == lifecycle.PartyTenant {
			l.TenantSignedAt = &at
		} else {
			l.LandlordSignedAt = &at
		}
		if l.TenantSignedAt != nil && l.LandlordSignedAt != nil {
			l.Status = lifecycle.LeaseActive
		}
	case "terminate":
		f.lastTerminate = body.(terminateRequest)
		l.Status = lifecycle.LeaseTerminated
	}
	f.put(l)
	return l, nil
}
