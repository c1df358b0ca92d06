package booking

import (
	"context"
	"errors"
	"testing"
	"time"

	"rentflow/fault"
	"rentflow/journal"
	"rentflow/lifecycle"
	"rentflow/property"
	"rentflow/resource"
)

var now = time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

func newService(remote *fakeRemote, props *fakeProperties, actor lifecycle.Actor) (*Service, *journal.Memory) {
	engine := lifecycle.NewEngine(time.UTC).WithClock(func() time.Time { return now })
	timeline := journal.NewMemory()
	svc := NewService(remote, props, lifecycle.As(actor), engine, nil).WithTimeline(timeline)
	return svc, timeline
}

func TestCreate_RejectsPastTimeWithoutCallingRemote(t *testing.T) {
	remote := &fakeRemote{}
	props := &fakeProperties{prop: property.Property{ID: "p-1", LandlordID: "L", Status: property.StatusAvailable}}
	svc, _ := newService(remote, props, lifecycle.Actor{UserID: "T", Role: lifecycle.RoleTenant})

	_, err := svc.Create(context.Background(), CreateParams{PropertyID: "p-1", RequestedAt: now.Add(-time.Hour)})
	if !errors.Is(err, fault.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if remote.created != 0 || props.calls != 0 {
		t.Fatalf("expected no remote calls")
	}
}

func TestCreate_ConflictWhenPropertyNotBookable(t *testing.T) {
	remote := &fakeRemote{}
	props := &fakeProperties{prop: property.Property{ID: "p-1", LandlordID: "L", Status: property.StatusRented}}
	svc, _ := newService(remote, props, lifecycle.Actor{UserID: "T", Role: lifecycle.RoleTenant})

	_, err := svc.Create(context.Background(), CreateParams{PropertyID: "p-1", RequestedAt: now.Add(24 * time.Hour)})
	if !errors.Is(err, fault.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if remote.created != 0 {
		t.Fatalf("expected no booking submitted")
	}
}

func TestCreate_Success(t *testing.T) {
	remote := &fakeRemote{}
	props := &fakeProperties{prop: property.Property{ID: "p-1", LandlordID: "L", Status: property.StatusAvailable}}
	svc, timeline := newService(remote, props, lifecycle.Actor{UserID: "T", Role: lifecycle.RoleTenant})

	b, err := svc.Create(context.Background(), CreateParams{PropertyID: "p-1", RequestedAt: now.Add(24 * time.Hour), Note: "  after work  "})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if b.Status != lifecycle.BookingPending || b.LandlordID != "L" {
		t.Fatalf("unexpected booking %+v", b)
	}
	if remote.lastCreate.Note != "after work" {
		t.Fatalf("expected trimmed note, got %q", remote.lastCreate.Note)
	}
	events, _ := timeline.Timeline(context.Background(), journal.AggregateBooking, b.ID)
	if len(events) != 1 || events[0].Type != journal.EventBookingCreated {
		t.Fatalf("expected creation event, got %+v", events)
	}
}

func TestTransition_TerminalBookingIsInvalidState(t *testing.T) {
	for _, status := range []lifecycle.BookingStatus{lifecycle.BookingConfirmed, lifecycle.BookingRejected, lifecycle.BookingCancelled} {
		remote := &fakeRemote{stored: Booking{ID: "b-1", TenantID: "T", LandlordID: "L", Status: status}}
		svc, _ := newService(remote, &fakeProperties{}, lifecycle.Actor{UserID: "L", Role: lifecycle.RoleLandlord})

		_, err := svc.Confirm(context.Background(), "b-1")
		if !errors.Is(err, fault.ErrInvalidState) {
			t.Fatalf("%s: expected invalid state, got %v", status, err)
		}
		if fault.Current(err) != string(status) {
			t.Fatalf("%s: expected current status in error, got %q", status, fault.Current(err))
		}
		if remote.acted != 0 {
			t.Fatalf("%s: expected no remote transition", status)
		}
		if remote.stored.Status != status {
			t.Fatalf("%s: status must not change", status)
		}
	}
}

func TestTransition_WrongPartyIsForbidden(t *testing.T) {
	remote := &fakeRemote{stored: Booking{ID: "b-1", TenantID: "T", LandlordID: "L", Status: lifecycle.BookingPending}}
	svc, _ := newService(remote, &fakeProperties{}, lifecycle.Actor{UserID: "T", Role: lifecycle.RoleTenant})

	if _, err := svc.Confirm(context.Background(), "b-1"); !errors.Is(err, fault.ErrAuthorization) {
		t.Fatalf("expected authorization error, got %v", err)
	}
	if remote.acted != 0 {
		t.Fatalf("expected no remote transition")
	}
}

func TestTransition_Success(t *testing.T) {
	remote := &fakeRemote{stored: Booking{ID: "b-1", TenantID: "T", LandlordID: "L", Status: lifecycle.BookingPending}}
	svc, timeline := newService(remote, &fakeProperties{}, lifecycle.Actor{UserID: "L", Role: lifecycle.RoleLandlord})

	b, err := svc.Confirm(context.Background(), "b-1")
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if b.Status != lifecycle.BookingConfirmed || remote.lastAction != "approve" {
		t.Fatalf("unexpected result %+v via %s", b, remote.lastAction)
	}
	events, _ := timeline.Timeline(context.Background(), journal.AggregateBooking, "b-1")
	if len(events) != 1 || events[0].Type != journal.EventBookingConfirmed {
		t.Fatalf("expected confirmation event, got %+v", events)
	}
}

func TestTransition_AlwaysSendsABody(t *testing.T) {
	remote := &fakeRemote{stored: Booking{ID: "b-1", TenantID: "T", LandlordID: "L", Status: lifecycle.BookingPending}}
	svc, _ := newService(remote, &fakeProperties{}, lifecycle.Actor{UserID: "L", Role: lifecycle.RoleLandlord})

	if _, err := svc.Confirm(context.Background(), "b-1"); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	body, ok := remote.lastBody.(transitionRequest)
	if !ok {
		t.Fatalf("expected a transition request body, got %#v", remote.lastBody)
	}
	if body.Reason != "" {
		t.Fatalf("expected no reason, got %q", body.Reason)
	}
}

func TestTransition_RemoteFailureLeavesNoTrace(t *testing.T) {
	remote := &fakeRemote{
		stored: Booking{ID: "b-1", TenantID: "T", LandlordID: "L", Status: lifecycle.BookingPending},
		actErr: fault.Transport("post /bookings/b-1/cancel", context.DeadlineExceeded),
	}
	svc, timeline := newService(remote, &fakeProperties{}, lifecycle.Actor{UserID: "T", Role: lifecycle.RoleTenant})

	_, err := svc.Cancel(context.Background(), "b-1", "")
	if !errors.Is(err, fault.ErrTransport) || !fault.IsTimeout(err) {
		t.Fatalf("expected transport timeout, got %v", err)
	}
	if events, _ := timeline.Timeline(context.Background(), journal.AggregateBooking, "b-1"); len(events) != 0 {
		t.Fatalf("expected no journal entry for failed transition")
	}
}

func TestGet_HidesForeignBookings(t *testing.T) {
	remote := &fakeRemote{stored: Booking{ID: "b-1", TenantID: "T", LandlordID: "L", Status: lifecycle.BookingPending}}
	svc, _ := newService(remote, &fakeProperties{}, lifecycle.Actor{UserID: "X", Role: lifecycle.RoleTenant})

	if _, err := svc.Get(context.Background(), "b-1"); !errors.Is(err, fault.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestList_ScopesByRole(t *testing.T) {
	remote := &fakeRemote{}
	svc, _ := newService(remote, &fakeProperties{}, lifecycle.Actor{UserID: "L", Role: lifecycle.RoleLandlord})

	if _, err := svc.List(context.Background(), ListParams{Status: lifecycle.BookingPending}); err != nil {
		t.Fatalf("list: %v", err)
	}
	if remote.lastQuery.Filters["role"] != "landlord" || remote.lastQuery.Filters["status"] != "pending" {
		t.Fatalf("unexpected filters %+v", remote.lastQuery.Filters)
	}
}

type fakeProperties struct {
	prop  property.Property
	err   error
	calls int
}

func (f *fakeProperties) Get(ctx context.Context, id string) (property.Property, error) {
	f.calls++
	return f.prop, f.err
}

type fakeRemote struct {
	stored     Booking
	actErr     error
	created    int
	acted      int
	lastCreate createRequest
	lastAction string
	lastBody   any
	lastQuery  resource.Query
}

func (f *fakeRemote) Get(ctx context.Context, id string) (Booking, error) {
	if f.stored.ID != id {
		return Booking{}, fault.NotFound("get /bookings/"+id, "booking not found")
	}
	return f.stored, nil
}

func (f *fakeRemote) List(ctx context.Context, q resource.Query) (resource.Page[Booking], error) {
	f.lastQuery = q
	return resource.Page[Booking]{}, nil
}

func (f *fakeRemote) Create(ctx context.Context, body any, opts ...resource.RequestOption) (Booking, error) {
	f.created++
	req := body.(createRequest)
	f.lastCreate = req
	return Booking{
		ID:          "b-new",
		PropertyID:  req.PropertyID,
		TenantID:    "T",
		LandlordID:  "L",
		RequestedAt: req.RequestedAt,
		Note:        req.Note,
		Status:      lifecycle.BookingPending,
	}, nil
}

func (f *fakeRemote) Act(ctx context.Context, id, action string, body any, opts ...resource.RequestOption) (Booking, error) {
	f.acted++
	f.lastAction = action
	f.lastBody = body
	if f.actErr != nil {
		return Booking{}, f.actErr
	}
	next := map[string]lifecycle.BookingStatus{
		"approve": lifecycle.BookingConfirmed,
		"reject":  lifecycle.BookingRejected,
		"cancel":  lifecycle.BookingCancelled,
	}[action]
	f.stored.Status = next
	return f.stored, nil
}
