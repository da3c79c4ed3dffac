package utils

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
	// MaxPage keeps (page-1)*limit far from int overflow.
	MaxPage = 10000
)

// Pagination is a page request over an in-memory list or a journal table.
type Pagination struct {
	Page   int
	Limit  int
	Offset int
}

// NewPagination clamps page into [1, MaxPage] and limit into [1, MaxLimit];
// a non-positive limit takes DefaultLimit.
func NewPagination(page, limit int) Pagination {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	if page <= 0 {
		page = 1
	}
	if page > MaxPage {
		page = MaxPage
	}

	return Pagination{
		Page:   page,
		Limit:  limit,
		Offset: (page - 1) * limit,
	}
}

// ParsePagination reads page and limit query params.
func ParsePagination(c *fiber.Ctx) Pagination {
	return NewPagination(parseInt(c.Query("page"), 1), parseInt(c.Query("limit"), DefaultLimit))
}

// Bounds returns the slice window [start, end) of the page over n items. Pages
// past the end, and hand-built values with a negative offset or limit, yield an
// empty window.
func (p Pagination) Bounds(n int) (start, end int) {
	if p.Offset < 0 || p.Offset >= n {
		return n, n
	}
	start = p.Offset
	end = n
	if p.Limit > 0 && p.Limit < n-start {
		end = start + p.Limit
	}
	return start, end
}

func parseInt(value string, fallback int) int {
	if parsed, err := strconv.Atoi(value); err == nil {
		return parsed
	}
	return fallback
}
