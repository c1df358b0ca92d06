// Package property looks up listings on the remote API. Bookings need it to
// check bookability and to learn the landlord of record.
package property

import (
	"context"
	"fmt"

	"rentflow/resource"
)

// Reader abstracts the remote collection for the service.
type Reader interface {
	Get(ctx context.Context, id string) (Property, error)
	List(ctx context.Context, q resource.Query) (resource.Page[Property], error)
}

// Service exposes read-only property operations.
type Service struct {
	repo Reader
}

// NewService builds a Service using the provided reader.
func NewService(repo Reader) *Service {
	return &Service{repo: repo}
}

// NewRemote returns the /properties collection of api.
func NewRemote(api *resource.Client) Reader {
	return resource.NewCollection[Property](api, "/properties")
}

// Get returns the property for the given identifier.
func (s *Service) Get(ctx context.Context, id string) (Property, error) {
	if id == "" {
		return Property{}, fmt.Errorf("property: missing id")
	}
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return Property{}, fmt.Errorf("property: get %s: %w", id, err)
	}
	return p, nil
}

// List returns one page of properties, optionally filtered by status.
func (s *Service) List(ctx context.Context, status Status, q resource.Query) (resource.Page[Property], error) {
	if status != "" {
		q = q.With("status", string(status))
	}
	page, err := s.repo.List(ctx, q)
	if err != nil {
		return resource.Page[Property]{}, fmt.Errorf("property: list: %w", err)
	}
	return page, nil
}
