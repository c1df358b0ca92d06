package maintenance

import (
	"context"
	"errors"
	"testing"
	"time"

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
		PropertyID:       "p-1",
		TenantID:         "T",
		LandlordID:       "L",
		StartDate:        lifecycle.NewDate(2025, time.May, 1),
		EndDate:          lifecycle.NewDate(2026, time.April, 30),
		Status:           lifecycle.LeaseActive,
		TenantSignedAt:   &signed,
		LandlordSignedAt: &signed,
	}
}

func newService(remote *fakeRemote, l lease.Lease, actor lifecycle.Actor) (*Service, *journal.Memory) {
	engine := lifecycle.NewEngine(time.UTC).WithClock(func() time.Time { return today })
	timeline := journal.NewMemory()
	leases := &fakeLeases{leases: map[string]lease.Lease{l.ID: l}}
	return NewService(remote, leases, lifecycle.As(actor), engine, nil).WithTimeline(timeline), timeline
}

func leak() CreateParams {
	return CreateParams{
		LeaseID:     "l-1",
		Title:       " Leaking tap ",
		Description: "Kitchen tap drips all night",
		Type:        lifecycle.MaintenancePlumbing,
	}
}

func TestCreate_FilesAgainstActiveLease(t *testing.T) {
	remote := newFakeRemote()
	svc, timeline := newService(remote, activeLease(), tenant)

	r, err := svc.Create(context.Background(), leak())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if r.Status != lifecycle.MaintenancePending {
		t.Fatalf("expected pending request, got %s", r.Status)
	}
	if remote.lastCreate.PropertyID != "p-1" || remote.lastCreate.Title != "Leaking tap" {
		t.Fatalf("unexpected submission %+v", remote.lastCreate)
	}
	if remote.lastCreate.Priority != lifecycle.PriorityMedium {
		t.Fatalf("expected default priority medium, got %q", remote.lastCreate.Priority)
	}
	events, _ := timeline.Timeline(context.Background(), journal.AggregateMaintenance, r.ID)
	if len(events) != 1 || events[0].Type != journal.EventMaintenanceRequested {
		t.Fatalf("expected request event, got %+v", events)
	}
}

func TestCreate_RefusedOutsideActiveLease(t *testing.T) {
	terminated := activeLease()
	terminated.Status = lifecycle.LeaseTerminated
	remote := newFakeRemote()
	svc, _ := newService(remote, terminated, tenant)

	_, err := svc.Create(context.Background(), leak())
	if !errors.Is(err, fault.ErrInvalidState) || fault.Current(err) != "terminated" {
		t.Fatalf("expected invalid state terminated, got %v", err)
	}
	if remote.creates != 0 {
		t.Fatalf("expected no submission")
	}
}

func TestCreate_ValidatesBeforeAnyCall(t *testing.T) {
	remote := newFakeRemote()
	svc, _ := newService(remote, activeLease(), tenant)

	params := leak()
	params.Type = "roof"
	if _, err := svc.Create(context.Background(), params); !errors.Is(err, fault.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if remote.creates != 0 {
		t.Fatalf("expected no submission")
	}
}

func TestCreate_LandlordCannotFile(t *testing.T) {
	svc, _ := newService(newFakeRemote(), activeLease(), landlord)
	if _, err := svc.Create(context.Background(), leak()); !errors.Is(err, fault.ErrAuthorization) {
		t.Fatalf("expected authorization error, got %v", err)
	}
}

func TestWorkflowThroughCompletionAndFeedback(t *testing.T) {
	ctx := context.Background()
	remote := newFakeRemote()
	remote.put(Request{ID: "m-1", LeaseID: "l-1", TenantID: "T", LandlordID: "L", Status: lifecycle.MaintenancePending})
	owner, timeline := newService(remote, activeLease(), landlord)
	renter, _ := newService(remote, activeLease(), tenant)

	if _, err := owner.UpdateStatus(ctx, StatusParams{RequestID: "m-1", Status: lifecycle.MaintenanceApproved}); err != nil {
		t.Fatalf("approve: %v", err)
	}
	visit := lifecycle.NewDate(2025, time.June, 3)
	r, err := owner.UpdateStatus(ctx, StatusParams{RequestID: "m-1", Status: lifecycle.MaintenanceScheduled, ScheduledDate: visit})
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if r.ScheduledDate == nil || !r.ScheduledDate.Equal(visit) {
		t.Fatalf("expected visit on %s, got %v", visit, r.ScheduledDate)
	}
	if _, err := owner.UpdateStatus(ctx, StatusParams{RequestID: "m-1", Status: lifecycle.MaintenanceInProgress}); err != nil {
		t.Fatalf("start: %v", err)
	}
	cost := decimal.NewFromInt(180)
	r, err = owner.UpdateStatus(ctx, StatusParams{RequestID: "m-1", Status: lifecycle.MaintenanceCompleted, Cost: &cost})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if r.CompletedDate == nil || r.CompletedDate.String() != "2025-06-01" {
		t.Fatalf("expected completion stamped today, got %v", r.CompletedDate)
	}
	if remote.lastPatch != "m-1/status" {
		t.Fatalf("unexpected status path %q", remote.lastPatch)
	}

	r, err = renter.Feedback(ctx, FeedbackParams{RequestID: "m-1", Rating: 5, Feedback: "quick fix"})
	if err != nil {
		t.Fatalf("feedback: %v", err)
	}
	if r.TenantRating == nil || *r.TenantRating != 5 {
		t.Fatalf("expected rating 5, got %v", r.TenantRating)
	}
	if _, err := renter.Feedback(ctx, FeedbackParams{RequestID: "m-1", Rating: 4}); !errors.Is(err, fault.ErrConflict) {
		t.Fatalf("expected second rating refused, got %v", err)
	}

	events, _ := timeline.Timeline(ctx, journal.AggregateMaintenance, "m-1")
	if len(events) != 4 {
		t.Fatalf("expected four status events from the landlord, got %+v", events)
	}
}

func TestUpdateStatus_InvalidMoveLeavesRequestAlone(t *testing.T) {
	remote := newFakeRemote()
	remote.put(Request{ID: "m-1", TenantID: "T", LandlordID: "L", Status: lifecycle.MaintenanceRejected})
	svc, _ := newService(remote, activeLease(), landlord)

	_, err := svc.UpdateStatus(context.Background(), StatusParams{RequestID: "m-1", Status: lifecycle.MaintenanceInProgress})
	if !errors.Is(err, fault.ErrInvalidState) || fault.Current(err) != "rejected" {
		t.Fatalf("expected invalid state rejected, got %v", err)
	}
	if remote.patches != 0 {
		t.Fatalf("expected no remote call")
	}
}

func TestUpdate_OnlyWhilePending(t *testing.T) {
	ctx := context.Background()
	remote := newFakeRemote()
	remote.put(Request{ID: "m-1", TenantID: "T", LandlordID: "L", Title: "Leak", Description: "drip",
		Type: lifecycle.MaintenancePlumbing, Priority: lifecycle.PriorityLow, Status: lifecycle.MaintenancePending})
	svc, _ := newService(remote, activeLease(), tenant)

	high := lifecycle.PriorityHigh
	r, err := svc.Update(ctx, UpdateParams{RequestID: "m-1", Priority: &high})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if r.Priority != lifecycle.PriorityHigh || r.Title != "Leak" {
		t.Fatalf("unexpected request %+v", r)
	}

	blank := "  "
	if _, err := svc.Update(ctx, UpdateParams{RequestID: "m-1", Title: &blank}); !errors.Is(err, fault.ErrValidation) {
		t.Fatalf("expected blank title refused, got %v", err)
	}

	remote.put(Request{ID: "m-2", TenantID: "T", LandlordID: "L", Status: lifecycle.MaintenanceApproved})
	if _, err := svc.Update(ctx, UpdateParams{RequestID: "m-2", Priority: &high}); !errors.Is(err, fault.ErrInvalidState) {
		t.Fatalf("expected approved request locked, got %v", err)
	}
}

func TestGet_HidesForeignRequest(t *testing.T) {
	remote := newFakeRemote()
	remote.put(Request{ID: "m-1", TenantID: "T", LandlordID: "L", Status: lifecycle.MaintenancePending})
	svc, _ := newService(remote, activeLease(), stranger)

	if _, err := svc.Get(context.Background(), "m-1"); !errors.Is(err, fault.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestList_SendsFilters(t *testing.T) {
	remote := newFakeRemote()
	svc, _ := newService(remote, activeLease(), landlord)

	if _, err := svc.List(context.Background(), ListParams{Status: lifecycle.MaintenanceScheduled, PropertyID: "p-1"}); err != nil {
		t.Fatalf("list: %v", err)
	}
	f := remote.lastQuery.Filters
	if f["role"] != "landlord" || f["status"] != "scheduled" || f["property_id"] != "p-1" {
		t.Fatalf("unexpected filters %+v", f)
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

// fakeRemote applies requests the way the server does, without rules.
type fakeRemote struct {
	requests   map[string]Request
	creates    int
	patches    int
	lastCreate createRequest
	lastPatch  string
	lastQuery  resource.Query
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{requests: map[string]Request{}}
}

func (f *fakeRemote) put(r Request) { f.requests[r.ID] = r }

func (f *fakeRemote) Get(ctx context.Context, id string) (Request, error) {
	r, ok := f.requests[id]
	if !ok {
		return Request{}, fault.NotFound("get /maintenance/"+id, "maintenance request not found")
	}
	return r, nil
}

func (f *fakeRemote) List(ctx context.Context, q resource.Query) (resource.Page[Request], error) {
	f.lastQuery = q
	return resource.Page[Request]{}, nil
}

func (f *fakeRemote) Create(ctx context.Context, body any, opts ...resource.RequestOption) (Request, error) {
	f.creates++
	req := body.(createRequest)
	f.lastCreate = req
	r := Request{
		ID:          "m-new",
		LeaseID:     req.LeaseID,
		PropertyID:  req.PropertyID,
		TenantID:    "T",
		LandlordID:  "L",
		Title:       req.Title,
		Description: req.Description,
		Type:        req.Type,
		Priority:    req.Priority,
		Status:      lifecycle.MaintenancePending,
	}
	f.put(r)
	return r, nil
}

func (f *fakeRemote) Patch(ctx context.Context, body any, sub ...string) (Request, error) {
	f.patches++
	r := f.requests[sub[0]]
	f.lastPatch = sub[0]
	switch req := body.(type) {
	case statusRequest:
		f.lastPatch += "/" + sub[1]
		r.Status = req.Status
		if req.ScheduledDate != nil {
			r.ScheduledDate = req.ScheduledDate
		}
		if req.CompletedDate != nil {
			r.CompletedDate = req.CompletedDate
		}
		if req.Cost != nil {
			r.Cost = req.Cost
		}
	case updateRequest:
		if req.Title != nil {
			r.Title = *req.Title
		}
		if req.Priority != nil {
			r.Priority = *req.Priority
		}
	}
	f.put(r)
	return r, nil
}

func (f *fakeRemote) Act(ctx context.Context, id, action string, body any, opts ...resource.RequestOption) (Request, error) {
	r := f.requests[id]
	req := body.(feedbackRequest)
	rating := req.Rating
	r.TenantRating = &rating
	r.TenantFeedback = req.Feedback
	f.put(r)
	return r, nil
}
