// Package lifecycle holds the rules every rental aggregate obeys: which status
// transitions exist, who may trigger them, and how a lease's status follows
// from its dates. Services consult it before issuing any remote mutation.
package lifecycle

import (
	"time"

	"rentflow/fault"
)

// Role is the account type attached to an authenticated user.
type Role string

const (
	RoleTenant   Role = "tenant"
	RoleLandlord Role = "landlord"
	RoleAdmin    Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleTenant, RoleLandlord, RoleAdmin:
		return true
	default:
		return false
	}
}

// Party names a side of a booking or lease.
type Party string

const (
	PartyTenant   Party = "tenant"
	PartyLandlord Party = "landlord"
)

func (p Party) Valid() bool {
	return p == PartyTenant || p == PartyLandlord
}

// Actor is the caller on whose behalf an operation runs.
type Actor struct {
	UserID string
	Role   Role
}

// Engine evaluates rules against a clock. The zero value is not usable; use NewEngine.
type Engine struct {
	now func() time.Time
	loc *time.Location
}

// NewEngine creates an engine that observes calendar days in loc.
func NewEngine(loc *time.Location) *Engine {
	if loc == nil {
		loc = time.UTC
	}
	return &Engine{now: time.Now, loc: loc}
}

// WithClock replaces the time source.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Now returns the current instant.
func (e *Engine) Now() time.Time {
	return e.now()
}

// Today returns the current calendar day in the engine's location.
func (e *Engine) Today() Date {
	return DateOf(e.now(), e.loc)
}

// Location returns the zone used for calendar comparisons.
func (e *Engine) Location() *time.Location {
	return e.loc
}

func requireActor(op string, actor Actor) error {
	if actor.UserID == "" {
		return fault.Authentication(op, "no authenticated session")
	}
	return nil
}

// Principal resolves the actor for the current call.
type Principal interface {
	Actor() (Actor, error)
}

type fixedPrincipal Actor

func (p fixedPrincipal) Actor() (Actor, error) {
	if p.UserID == "" {
		return Actor{}, fault.Authentication("session", "no authenticated session")
	}
	return Actor(p), nil
}

// As returns a Principal that always resolves to actor.
func As(actor Actor) Principal {
	return fixedPrincipal(actor)
}
