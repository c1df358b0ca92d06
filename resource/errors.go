package resource

import (
	"net/http"
	"strings"

	"github.com/go-resty/resty/v2"

	"rentflow/fault"
)

// APIError is the JSON body the remote API returns on failure.
type APIError struct {
	Message string              `json:"message"`
	Code    string              `json:"code,omitempty"`
	Status  string              `json:"status,omitempty"`
	Errors  map[string][]string `json:"errors,omitempty"`
}

// CodeInvalidState marks a 409 caused by an illegal status transition. Status
// then carries the aggregate's current status.
const CodeInvalidState = "invalid_state"

// classify turns an HTTP error response into a fault.
func classify(op string, resp *resty.Response) error {
	body, _ := resp.Error().(*APIError)
	if body == nil {
		body = &APIError{}
	}
	msg := body.Message
	if msg == "" {
		msg = strings.ToLower(http.StatusText(resp.StatusCode()))
	}

	var kind error
	switch code := resp.StatusCode(); {
	case code == http.StatusBadRequest, code == http.StatusUnprocessableEntity:
		kind = fault.ErrValidation
	case code == http.StatusUnauthorized:
		kind = fault.ErrAuthentication
	case code == http.StatusForbidden:
		kind = fault.ErrAuthorization
	case code == http.StatusNotFound:
		kind = fault.ErrNotFound
	case code == http.StatusConflict:
		kind = fault.ErrConflict
		if body.Code == CodeInvalidState {
			kind = fault.ErrInvalidState
		}
	case code >= 500:
		kind = fault.ErrService
	default:
		kind = fault.ErrValidation
	}

	e := &fault.Error{Kind: kind, Op: op, Message: msg, HTTPStatus: resp.StatusCode()}
	if kind == fault.ErrInvalidState {
		e.Current = body.Status
	}
	return e
}
