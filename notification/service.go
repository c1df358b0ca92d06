// Package notification reads the caller's notification counters.
package notification

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"rentflow/resource"
)

// Doer sends one request to the remote API.
type Doer interface {
	Do(ctx context.Context, method, path string, body, out any, opts ...resource.RequestOption) error
}

type unreadResponse struct {
	Count int `json:"count"`
}

type Service struct {
	api    Doer
	logger *zap.Logger
}

func NewService(api Doer, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{api: api, logger: logger}
}

// UnreadCount returns the number of unread notifications. It never fails:
// any error degrades to zero.
func (s *Service) UnreadCount(ctx context.Context) int {
	var out unreadResponse
	if err := s.api.Do(ctx, http.MethodGet, "/notifications/unread-count", nil, &out); err != nil {
		s.logger.Warn("unread count unavailable", zap.Error(err))
		return 0
	}
	if out.Count < 0 {
		return 0
	}
	return out.Count
}
