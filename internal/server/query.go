package server

import (
	"strconv"
	"strings"
	"time"

	"worknest/internal/repo"
)

const (
	defaultPage  = 1
	defaultLimit = 10
)

// parsePagination turns raw page/limit query strings into an OFFSET/LIMIT
// window. Anything unparseable or below 1 silently falls back to the
// defaults rather than failing the request.
func parsePagination(pageStr, limitStr string) (int, int, repo.Page) {
	page := defaultPage
	if n, err := strconv.Atoi(strings.TrimSpace(pageStr)); err == nil && n >= 1 {
		page = n
	}
	limit := defaultLimit
	if n, err := strconv.Atoi(strings.TrimSpace(limitStr)); err == nil && n >= 1 {
		limit = n
	}
	return page, limit, repo.Page{Limit: limit, Offset: (page - 1) * limit}
}

// sortSpec maps the exposed sort field names of one resource to columns.
type sortSpec struct {
	fields       map[string]string
	defaultField string
	defaultOrder string
}

var (
	projectSort = sortSpec{
		fields: map[string]string{
			"name":      "name",
			"createdAt": "created_at",
			"updatedAt": "updated_at",
		},
		defaultField: "created_at",
		defaultOrder: "desc",
	}
	stageSort = sortSpec{
		fields: map[string]string{
			"name":     "name",
			"position": "position",
		},
		defaultField: "position",
		defaultOrder: "asc",
	}
	taskSort = sortSpec{
		fields: map[string]string{
			"title":     "title",
			"createdAt": "created_at",
			"updatedAt": "updated_at",
		},
		defaultField: "created_at",
		defaultOrder: "desc",
	}
)

// parseSort validates a requested sort against the spec's allow list. An
// unknown field or order falls back silently; only listed columns ever reach
// the ORDER BY clause.
func parseSort(spec sortSpec, field, order string) repo.Sort {
	col, ok := spec.fields[strings.TrimSpace(field)]
	if !ok {
		col = spec.defaultField
	}
	dir := strings.ToLower(strings.TrimSpace(order))
	if dir != "asc" && dir != "desc" {
		dir = spec.defaultOrder
	}
	return repo.Sort{Column: col, Direction: dir}
}

// parseDay expands a YYYY-MM-DD value into an inclusive RFC3339 day range.
// Invalid input is ignored, returning empty bounds.
func parseDay(s string) (string, string) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", ""
	}
	day, err := time.ParseInLocation("2006-01-02", s, time.Local)
	if err != nil {
		return "", ""
	}
	start := day
	end := start.Add(24*time.Hour - time.Second)
	// Stored timestamps are UTC strings, so bounds must be too.
	return start.UTC().Format(time.RFC3339), end.UTC().Format(time.RFC3339)
}

// parseBool accepts only the literal "true"; everything else is false.
func parseBool(s string) bool {
	return strings.TrimSpace(s) == "true"
}

// Paginated is the list response envelope.
type Paginated[T any] struct {
	Data       []T `json:"data"`
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	TotalCount int `json:"totalCount"`
	TotalPages int `json:"totalPages"`
}

func paginated[T any](items []T, page, limit, total int) Paginated[T] {
	if items == nil {
		items = []T{}
	}
	totalPages := 0
	if total > 0 && limit > 0 {
		totalPages = (total + limit - 1) / limit
	}
	return Paginated[T]{
		Data:       items,
		Page:       page,
		Limit:      limit,
		TotalCount: total,
		TotalPages: totalPages,
	}
}
