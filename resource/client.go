// Package resource is the single request primitive every rentflow service
// uses to talk to the remote rental API. It knows nothing about bookings,
// leases or payments: it injects the bearer token, maps failures onto the
// fault taxonomy and decodes paginated envelopes.
package resource

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"rentflow/fault"
)

// HeaderIdempotencyKey deduplicates mutating submissions on the server.
const HeaderIdempotencyKey = "Idempotency-Key"

// TokenSource supplies the bearer token for the next request.
type TokenSource interface {
	Token() string
}

// Options configures a Client.
type Options struct {
	BaseURL    string
	Timeout    time.Duration
	RetryCount int
	Logger     *zap.Logger
	// HTTPClient overrides the underlying transport, mostly for tests.
	HTTPClient *http.Client
}

// Client issues JSON requests against the remote API.
type Client struct {
	http   *resty.Client
	logger *zap.Logger

	mu             sync.RWMutex
	tokens         TokenSource
	onUnauthorized func()
}

// New builds a Client. Only GET requests are retried; a mutation that never
// got a response is surfaced to the caller instead of being replayed blindly.
func New(opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	var rc *resty.Client
	if opts.HTTPClient != nil {
		rc = resty.NewWithClient(opts.HTTPClient)
	} else {
		rc = resty.New()
	}
	rc.SetBaseURL(strings.TrimRight(opts.BaseURL, "/")).
		SetTimeout(timeout).
		SetRetryCount(opts.RetryCount).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		SetLogger(newRestyLogger(logger)).
		SetHeader("Accept", "application/json").
		SetHeader("Content-Type", "application/json").
		AddRetryCondition(retryReads)

	c := &Client{http: rc, logger: logger}
	rc.OnBeforeRequest(func(_ *resty.Client, r *resty.Request) error {
		if r.Token != "" || isAnonymous(r.Context()) {
			return nil
		}
		if token := c.token(); token != "" {
			r.SetAuthToken(token)
		}
		return nil
	})
	return c
}

// UseCredentials sets the token source consulted before every request.
func (c *Client) UseCredentials(ts TokenSource) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens = ts
}

// OnUnauthorized registers fn to run whenever the API rejects the credential.
func (c *Client) OnUnauthorized(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onUnauthorized = fn
}

func (c *Client) token() string {
	c.mu.RLock()
	ts := c.tokens
	c.mu.RUnlock()
	if ts == nil {
		return ""
	}
	return ts.Token()
}

// RequestOption customizes a single request.
type RequestOption func(*resty.Request)

// WithIdempotencyKey attaches an Idempotency-Key header.
func WithIdempotencyKey(key string) RequestOption {
	return func(r *resty.Request) {
		if key != "" {
			r.SetHeader(HeaderIdempotencyKey, key)
		}
	}
}

// WithBearer sends token instead of the session credential.
func WithBearer(token string) RequestOption {
	return func(r *resty.Request) {
		r.SetAuthToken(token)
	}
}

type anonymousKey struct{}

// Anonymous sends the request without credentials. A 401 on an anonymous
// request reports bad credentials without invalidating the session.
func Anonymous() RequestOption {
	return func(r *resty.Request) {
		r.SetContext(context.WithValue(r.Context(), anonymousKey{}, true))
	}
}

func isAnonymous(ctx context.Context) bool {
	v, _ := ctx.Value(anonymousKey{}).(bool)
	return v
}

// WithQuery attaches paging and filter parameters.
func WithQuery(q Query) RequestOption {
	return func(r *resty.Request) {
		r.SetQueryParams(q.Params())
	}
}

// WithParam attaches a single query parameter.
func WithParam(key, value string) RequestOption {
	return func(r *resty.Request) {
		r.SetQueryParam(key, value)
	}
}

// Do sends one request. body is encoded as JSON when non-nil; a successful
// response is decoded into out when out is non-nil. Failures come back as
// *fault.Error values.
func (c *Client) Do(ctx context.Context, method, path string, body, out any, opts ...RequestOption) error {
	op := strings.ToLower(method) + " " + path

	req := c.http.R().SetContext(ctx).SetError(&APIError{})
	if body != nil {
		req.SetBody(body)
	}
	if out != nil {
		req.SetResult(out)
	}
	for _, opt := range opts {
		opt(req)
	}

	started := time.Now()
	resp, err := req.Execute(method, path)
	if err != nil {
		c.logger.Debug("request failed without response",
			zap.String("method", method),
			zap.String("path", path),
			zap.Duration("elapsed", time.Since(started)),
			zap.Error(err),
		)
		return fault.Transport(op, err)
	}

	c.logger.Debug("request completed",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status_code", resp.StatusCode()),
		zap.Duration("elapsed", time.Since(started)),
	)

	if resp.IsError() {
		ferr := classify(op, resp)
		if errors.Is(ferr, fault.ErrAuthentication) && !isAnonymous(req.Context()) {
			c.unauthorized()
		}
		return ferr
	}
	return nil
}

func (c *Client) unauthorized() {
	c.mu.RLock()
	fn := c.onUnauthorized
	c.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

func retryReads(resp *resty.Response, err error) bool {
	if resp == nil || resp.Request == nil || resp.Request.Method != http.MethodGet {
		return false
	}
	if err != nil {
		return !errors.Is(err, context.Canceled)
	}
	switch resp.StatusCode() {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}
