package resource

import (
	"strconv"
)

const (
	defaultPerPage = 20
	maxPerPage     = 100
)

// Query selects one page of a collection. Filters are sent verbatim as query
// parameters; empty values are dropped.
type Query struct {
	Page    int
	PerPage int
	Filters map[string]string
}

// Normalize clamps paging to sane values.
func (q Query) Normalize() Query {
	if q.Page <= 0 {
		q.Page = 1
	}
	if q.PerPage <= 0 || q.PerPage > maxPerPage {
		q.PerPage = defaultPerPage
	}
	return q
}

// With returns a copy of q with key set to value.
func (q Query) With(key, value string) Query {
	filters := make(map[string]string, len(q.Filters)+1)
	for k, v := range q.Filters {
		filters[k] = v
	}
	filters[key] = value
	q.Filters = filters
	return q
}

// Params renders q as query parameters.
func (q Query) Params() map[string]string {
	q = q.Normalize()
	params := map[string]string{
		"page":  strconv.Itoa(q.Page),
		"limit": strconv.Itoa(q.PerPage),
	}
	for k, v := range q.Filters {
		if v != "" {
			params[k] = v
		}
	}
	return params
}

// Links are the navigation URLs of a page.
type Links struct {
	First *string `json:"first"`
	Last  *string `json:"last"`
	Prev  *string `json:"prev"`
	Next  *string `json:"next"`
}

// Meta describes where a page sits in its collection.
type Meta struct {
	CurrentPage int    `json:"current_page"`
	From        *int   `json:"from"`
	LastPage    int    `json:"last_page"`
	Path        string `json:"path"`
	PerPage     int    `json:"per_page"`
	To          *int   `json:"to"`
	Total       int    `json:"total"`
}

// Page is one slice of a paginated collection.
type Page[T any] struct {
	Data  []T   `json:"data"`
	Links Links `json:"links"`
	Meta  Meta  `json:"meta"`
}

// HasNext reports whether a later page exists.
func (p Page[T]) HasNext() bool {
	return p.Links.Next != nil || p.Meta.CurrentPage < p.Meta.LastPage
}
