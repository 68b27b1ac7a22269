package httpserver

import (
	"fmt"
	"net/http"
	"strconv"
)

const (
	DefaultPageSize = 25
	MaxPageSize     = 100
)

// PageRequest is a 1-based page number and page size taken from the
// ?page= and ?page_size= query parameters.
type PageRequest struct {
	Page int
	Size int
}

// Limit is the number of rows to fetch.
func (p PageRequest) Limit() int { return p.Size }

// Offset is the number of rows to skip.
func (p PageRequest) Offset() int { return (p.Page - 1) * p.Size }

// ParsePageRequest reads pagination parameters. Sizes above MaxPageSize are
// clamped; non-positive or non-numeric values are rejected.
func ParsePageRequest(r *http.Request) (PageRequest, error) {
	q := r.URL.Query()
	p := PageRequest{Page: 1, Size: DefaultPageSize}

	var err error
	if p.Page, err = positiveParam(q.Get("page"), "page", p.Page); err != nil {
		return PageRequest{}, err
	}
	if p.Size, err = positiveParam(q.Get("page_size"), "page_size", p.Size); err != nil {
		return PageRequest{}, err
	}
	p.Size = min(p.Size, MaxPageSize)
	return p, nil
}

func positiveParam(raw, name string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%s must be a positive integer", name)
	}
	return n, nil
}

// Page is the list response envelope.
type Page[T any] struct {
	Items      []T  `json:"items"`
	Page       int  `json:"page"`
	PageSize   int  `json:"page_size"`
	TotalItems int  `json:"total_items"`
	TotalPages int  `json:"total_pages"`
	HasNext    bool `json:"has_next"`
}

// NewPage wraps one page of items. A nil slice is encoded as [].
func NewPage[T any](items []T, req PageRequest, total int) Page[T] {
	if items == nil {
		items = []T{}
	}
	pages := 0
	if req.Size > 0 {
		pages = (total + req.Size - 1) / req.Size
	}
	return Page[T]{
		Items:      items,
		Page:       req.Page,
		PageSize:   req.Size,
		TotalItems: total,
		TotalPages: pages,
		HasNext:    req.Page < pages,
	}
}
