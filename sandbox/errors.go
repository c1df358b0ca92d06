package sandbox

import (
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"rentflow/fault"
	"rentflow/resource"
)

// bind decodes the request body into v. An empty body leaves v zero.
func bind(c echo.Context, v any) error {
	if err := c.Bind(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func writeError(c echo.Context, status int, msg string) error {
	return c.JSON(status, resource.APIError{Message: msg})
}

// fail renders a lifecycle fault the way the production API does.
func fail(c echo.Context, err error) error {
	body := resource.APIError{Message: err.Error()}
	var fe *fault.Error
	if errors.As(err, &fe) && fe.Message != "" {
		body.Message = fe.Message
	}

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, fault.ErrValidation):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, fault.ErrAuthentication):
		status = http.StatusUnauthorized
	case errors.Is(err, fault.ErrAuthorization):
		status = http.StatusForbidden
	case errors.Is(err, fault.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, fault.ErrInvalidState):
		status = http.StatusConflict
		body.Code = resource.CodeInvalidState
		body.Status = fault.Current(err)
	case errors.Is(err, fault.ErrConflict):
		status = http.StatusConflict
		body.Code = "conflict"
	}
	return c.JSON(status, body)
}

func notFound(what, id string) error {
	return fault.NotFound("sandbox", "%s %s not found", what, id)
}

// paginate cuts one page out of items using the page and limit parameters.
func paginate[T any](c echo.Context, items []T) resource.Page[T] {
	q := resource.Query{
		Page:    atoiOr(c.QueryParam("page"), 1),
		PerPage: atoiOr(c.QueryParam("limit"), 0),
	}.Normalize()

	total := len(items)
	last := int(math.Max(1, math.Ceil(float64(total)/float64(q.PerPage))))
	start := (q.Page - 1) * q.PerPage
	if start > total {
		start = total
	}
	end := start + q.PerPage
	if end > total {
		end = total
	}

	path := c.Request().URL.Path
	link := func(page int) *string {
		u := *c.Request().URL
		v := u.Query()
		v.Set("page", strconv.Itoa(page))
		v.Set("limit", strconv.Itoa(q.PerPage))
		u.RawQuery = v.Encode()
		s := u.String()
		return &s
	}

	page := resource.Page[T]{
		Data: append([]T{}, items[start:end]...),
		Links: resource.Links{
			First: link(1),
			Last:  link(last),
		},
		Meta: resource.Meta{
			CurrentPage: q.Page,
			LastPage:    last,
			Path:        path,
			PerPage:     q.PerPage,
			Total:       total,
		},
	}
	if q.Page > 1 {
		page.Links.Prev = link(q.Page - 1)
	}
	if q.Page < last {
		page.Links.Next = link(q.Page + 1)
	}
	if end > start {
		from, to := start+1, end
		page.Meta.From, page.Meta.To = &from, &to
	}
	return page
}

func atoiOr(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
