package shared

import (
	"math"
	"net/http"
	"strconv"
)

const (
	defaultPerPage = 25
	maxPerPage     = 200
)

// Pagination contains metadata for paginated listings.
type Pagination struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// Page is the requested window of a listing.
type Page struct {
	Page    int
	PerPage int
}

// Limit returns the SQL LIMIT.
func (p Page) Limit() int { return p.PerPage }

// Offset returns the SQL OFFSET.
func (p Page) Offset() int { return (p.Page - 1) * p.PerPage }

// PageFromRequest reads ?page= and ?per_page=, clamping bad values.
func PageFromRequest(r *http.Request) Page {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("per_page"))
	if page <= 0 {
		page = 1
	}
	if perPage <= 0 {
		perPage = defaultPerPage
	}
	if perPage > maxPerPage {
		perPage = maxPerPage
	}
	return Page{Page: page, PerPage: perPage}
}

// NewPagination computes pagination metadata.
func NewPagination(p Page, total int) Pagination {
	if p.PerPage <= 0 {
		p.PerPage = defaultPerPage
	}
	if p.Page <= 0 {
		p.Page = 1
	}
	totalPages := int(math.Ceil(float64(total) / float64(p.PerPage)))
	return Pagination{Page: p.Page, PerPage: p.PerPage, Total: total, TotalPages: totalPages}
}

// Paged wraps a listing response.
type Paged[T any] struct {
	Data       []T        `json:"data"`
	Pagination Pagination `json:"pagination"`
}
