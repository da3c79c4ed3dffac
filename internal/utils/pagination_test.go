package utils

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseQuery(t *testing.T, query string) Pagination {
	t.Helper()

	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(ParsePagination(c))
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/?"+query, nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var p Pagination
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&p))
	return p
}

func TestParsePagination(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  Pagination
	}{
		{"defaults", "", Pagination{Page: 1, Limit: DefaultLimit, Offset: 0}},
		{"explicit", "page=3&limit=10", Pagination{Page: 3, Limit: 10, Offset: 20}},
		{"garbage", "page=abc&limit=-4", Pagination{Page: 1, Limit: DefaultLimit, Offset: 0}},
		{"huge limit", "page=3&limit=9223372036854775807", Pagination{Page: 3, Limit: MaxLimit, Offset: 2 * MaxLimit}},
		{"huge page", "page=9223372036854775807&limit=9", Pagination{Page: MaxPage, Limit: 9, Offset: (MaxPage - 1) * 9}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseQuery(t, tt.query)
			assert.Equal(t, tt.want, got)
			assert.GreaterOrEqual(t, got.Offset, 0)
		})
	}
}

func TestPaginationBounds(t *testing.T) {
	tests := []struct {
		name       string
		p          Pagination
		n          int
		start, end int
	}{
		{"first page", NewPagination(1, 2), 5, 0, 2},
		{"last partial page", NewPagination(3, 2), 5, 4, 5},
		{"past the end", NewPagination(4, 2), 5, 5, 5},
		{"negative offset", Pagination{Page: 1, Limit: 2, Offset: -6}, 5, 5, 5},
		{"unbounded limit", Pagination{Page: 1, Limit: 0, Offset: 1}, 5, 1, 5},
		{"limit near max int", Pagination{Page: 1, Limit: int(^uint(0) >> 1), Offset: 2}, 5, 2, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end := tt.p.Bounds(tt.n)
			assert.Equal(t, tt.start, start)
			assert.Equal(t, tt.end, end)
		})
	}
}
