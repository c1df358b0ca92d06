// Package fault classifies every failure the rental engine surfaces to callers.
//
// Each kind is a sentinel error. A *Error matches its kind through errors.Is,
// so callers branch with errors.Is(err, fault.ErrConflict) no matter how many
// layers wrapped it.
package fault

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrValidation signals malformed or out-of-range input.
	ErrValidation = errors.New("validation error")
	// ErrAuthentication signals bad credentials or an expired token.
	ErrAuthentication = errors.New("authentication error")
	// ErrAuthorization signals the caller lacks the relationship required for the action.
	ErrAuthorization = errors.New("authorization error")
	// ErrConflict signals an invariant violation such as a second lease for one booking.
	ErrConflict = errors.New("conflict error")
	// ErrInvalidState signals the action is illegal for the current status.
	ErrInvalidState = errors.New("invalid state error")
	// ErrNotFound signals the id does not resolve or is not visible to the caller.
	ErrNotFound = errors.New("not found error")
	// ErrTransport signals the request never produced an HTTP response.
	ErrTransport = errors.New("transport error")
	// ErrService signals the remote API answered with a 5xx.
	ErrService = errors.New("service error")
)

// Error carries the classification plus enough context to resynchronize.
type Error struct {
	Kind       error
	Op         string
	Message    string
	Current    string
	HTTPStatus int
	Timeout    bool
	Err        error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	if e.Message != "" {
		b.WriteString(e.Message)
	} else if e.Kind != nil {
		b.WriteString(e.Kind.Error())
	}
	if e.Current != "" {
		fmt.Fprintf(&b, " (current status %s)", e.Current)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Is reports whether target is the kind of this error.
func (e *Error) Is(target error) bool {
	return e.Kind != nil && target == e.Kind
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Validation builds an ErrValidation fault.
func Validation(op, format string, args ...any) error {
	return &Error{Kind: ErrValidation, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Authentication builds an ErrAuthentication fault.
func Authentication(op, format string, args ...any) error {
	return &Error{Kind: ErrAuthentication, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Authorization builds an ErrAuthorization fault.
func Authorization(op, format string, args ...any) error {
	return &Error{Kind: ErrAuthorization, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Conflict builds an ErrConflict fault.
func Conflict(op, format string, args ...any) error {
	return &Error{Kind: ErrConflict, Op: op, Message: fmt.Sprintf(format, args...)}
}

// NotFound builds an ErrNotFound fault.
func NotFound(op, format string, args ...any) error {
	return &Error{Kind: ErrNotFound, Op: op, Message: fmt.Sprintf(format, args...)}
}

// InvalidState builds an ErrInvalidState fault carrying the status the caller
// should resynchronize to.
func InvalidState(op string, current fmt.Stringer, format string, args ...any) error {
	e := &Error{Kind: ErrInvalidState, Op: op, Message: fmt.Sprintf(format, args...)}
	if current != nil {
		e.Current = current.String()
	}
	return e
}

// Transport wraps a failure that produced no HTTP response.
func Transport(op string, err error) error {
	e := &Error{Kind: ErrTransport, Op: op, Message: "request did not complete", Err: err}
	if errors.Is(err, context.DeadlineExceeded) {
		e.Timeout = true
		e.Message = "request timed out"
	}
	var te interface{ Timeout() bool }
	if errors.As(err, &te) && te.Timeout() {
		e.Timeout = true
		e.Message = "request timed out"
	}
	if errors.Is(err, context.Canceled) {
		e.Message = "request abandoned by caller"
	}
	return e
}

// KindOf returns the sentinel kind of err, or nil when err is not classified.
func KindOf(err error) error {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	for _, k := range []error{ErrValidation, ErrAuthentication, ErrAuthorization, ErrConflict, ErrInvalidState, ErrNotFound, ErrTransport, ErrService} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// Current returns the status carried by an InvalidState fault.
func Current(err error) string {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Current
	}
	return ""
}

// IsTimeout reports whether err is a transport fault caused by a timeout.
func IsTimeout(err error) bool {
	var fe *Error
	return errors.As(err, &fe) && fe.Kind == ErrTransport && fe.Timeout
}

// Retryable reports whether err may be retried with backoff. Only transport
// faults qualify; nothing local was mutated before them.
func Retryable(err error) bool {
	return errors.Is(err, ErrTransport) && !errors.Is(err, context.Canceled)
}
