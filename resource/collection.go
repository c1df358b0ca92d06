package resource

import (
	"context"
	"net/http"
	"net/url"
	"path"
)

// Collection is a typed view over one REST collection such as /bookings.
type Collection[T any] struct {
	client *Client
	base   string
}

// NewCollection binds T to the collection rooted at base.
func NewCollection[T any](c *Client, base string) *Collection[T] {
	return &Collection[T]{client: c, base: base}
}

func (c *Collection[T]) join(parts ...string) string {
	elems := make([]string, 0, len(parts)+1)
	elems = append(elems, c.base)
	for _, p := range parts {
		elems = append(elems, url.PathEscape(p))
	}
	return path.Join(elems...)
}

// Get fetches one entity by id.
func (c *Collection[T]) Get(ctx context.Context, id string) (T, error) {
	var out T
	err := c.client.Do(ctx, http.MethodGet, c.join(id), nil, &out)
	return out, err
}

// List fetches one page of the collection.
func (c *Collection[T]) List(ctx context.Context, q Query) (Page[T], error) {
	var out Page[T]
	err := c.client.Do(ctx, http.MethodGet, c.base, nil, &out, WithQuery(q))
	return out, err
}

// ListAt fetches one page of a nested collection, e.g. /payments/leases/{id}.
func (c *Collection[T]) ListAt(ctx context.Context, q Query, sub ...string) (Page[T], error) {
	var out Page[T]
	err := c.client.Do(ctx, http.MethodGet, c.join(sub...), nil, &out, WithQuery(q))
	return out, err
}

// Create posts body to the collection root.
func (c *Collection[T]) Create(ctx context.Context, body any, opts ...RequestOption) (T, error) {
	var out T
	err := c.client.Do(ctx, http.MethodPost, c.base, body, &out, opts...)
	return out, err
}

// CreateAt posts body to a nested path under the collection.
func (c *Collection[T]) CreateAt(ctx context.Context, body any, sub []string, opts ...RequestOption) (T, error) {
	var out T
	err := c.client.Do(ctx, http.MethodPost, c.join(sub...), body, &out, opts...)
	return out, err
}

// Act posts to /{base}/{id}/{action} and returns the updated entity.
func (c *Collection[T]) Act(ctx context.Context, id, action string, body any, opts ...RequestOption) (T, error) {
	var out T
	err := c.client.Do(ctx, http.MethodPost, c.join(id, action), body, &out, opts...)
	return out, err
}

// Patch sends a partial update to /{base}/{sub...} and returns the entity.
func (c *Collection[T]) Patch(ctx context.Context, body any, sub ...string) (T, error) {
	var out T
	err := c.client.Do(ctx, http.MethodPatch, c.join(sub...), body, &out)
	return out, err
}
