// Package app wires the rental services around one authenticated API client.
package app

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"rentflow/booking"
	"rentflow/journal"
	"rentflow/lease"
	"rentflow/lifecycle"
	"rentflow/maintenance"
	"rentflow/notification"
	"rentflow/overview"
	"rentflow/payment"
	"rentflow/property"
	"rentflow/resource"
	"rentflow/session"
)

// Options configures an App.
type Options struct {
	BaseURL    string
	Timeout    time.Duration
	RetryCount int
	Location   *time.Location
	Now        func() time.Time
	Logger     *zap.Logger
	HTTPClient *http.Client

	// Store holds the session; nil keeps it in memory.
	Store session.Store
	// Journal backs idempotency keys and the transition timeline; nil keeps
	// both in memory.
	Journal Journal
}

// Journal is the local store for idempotency keys and the transition timeline.
type Journal interface {
	journal.Ledger
	journal.Recorder
	journal.Reader
}

// App is one user's view of the rental API.
type App struct {
	API           *resource.Client
	Session       *session.Manager
	Engine        *lifecycle.Engine
	Journal       journal.Reader
	Properties    *property.Service
	Bookings      *booking.Service
	Leases        *lease.Service
	Payments      *payment.Service
	Maintenance   *maintenance.Service
	Notifications *notification.Service
	Overview      *overview.Service
}

// New builds an App. Nothing touches the network until a service is called.
func New(opts Options) *App {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	engine := lifecycle.NewEngine(opts.Location)
	if opts.Now != nil {
		engine.WithClock(opts.Now)
	}

	api := resource.New(resource.Options{
		BaseURL:    opts.BaseURL,
		Timeout:    opts.Timeout,
		RetryCount: opts.RetryCount,
		Logger:     logger.Named("api"),
		HTTPClient: opts.HTTPClient,
	})
	sessions := session.NewManager(api, opts.Store, logger.Named("session"))
	if opts.Now != nil {
		sessions.WithClock(opts.Now)
	}

	var store Journal = journal.NewMemory()
	if opts.Journal != nil {
		store = opts.Journal
	}

	properties := property.NewService(property.NewRemote(api))
	bookings := booking.NewService(booking.NewRemote(api), properties, sessions, engine, logger.Named("booking")).
		WithTimeline(store)
	leases := lease.NewService(lease.NewRemote(api), bookings, sessions, engine, logger.Named("lease")).
		WithTimeline(store)
	payments := payment.NewService(payment.NewRemote(api), leases, sessions, engine, logger.Named("payment")).
		WithLedger(store).
		WithTimeline(store)
	repairs := maintenance.NewService(maintenance.NewRemote(api), leases, sessions, engine, logger.Named("maintenance")).
		WithTimeline(store)
	notifications := notification.NewService(api, logger.Named("notification"))

	return &App{
		API:           api,
		Session:       sessions,
		Engine:        engine,
		Journal:       store,
		Properties:    properties,
		Bookings:      bookings,
		Leases:        leases,
		Payments:      payments,
		Maintenance:   repairs,
		Notifications: notifications,
		Overview:      overview.NewService(bookings, leases, notifications),
	}
}
