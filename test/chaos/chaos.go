package chaos

import (
	"errors"
	"io"
	"math/rand"
	"net/http"
	"sync"
	"sync/atomic"
)

// ErrResponseLost is returned in place of a response the server did send.
var ErrResponseLost = errors.New("chaos: response lost")

// Transport loses a share of the responses to mutating requests after the
// server has already applied them, which is what a client sees when a
// connection drops mid-response.
type Transport struct {
	Base     http.RoundTripper
	DropRate float64

	mu      sync.Mutex
	rng     *rand.Rand
	dropped atomic.Int64
}

func NewTransport(base http.RoundTripper, dropRate float64, seed int64) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Transport{Base: base, DropRate: dropRate, rng: rand.New(rand.NewSource(seed))}
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.Base.RoundTrip(req)
	if err != nil || req.Method == http.MethodGet || !t.roll() {
		return resp, err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	t.dropped.Add(1)
	return nil, ErrResponseLost
}

// Dropped counts the responses lost so far.
func (t *Transport) Dropped() int64 {
	return t.dropped.Load()
}

func (t *Transport) roll() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rng.Float64() < t.DropRate
}
