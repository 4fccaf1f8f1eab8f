package shared

import "math"

const (
	// DefaultPageSize applies when callers omit a size.
	DefaultPageSize = 20
	// MaxPageSize caps listing requests.
	MaxPageSize = 200
)

// Pagination contains metadata for paginated listings.
type Pagination struct {
	Page       int `json:"page"`
	Size       int `json:"size"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// NormalizePage clamps page and size into valid bounds.
func NormalizePage(page, size int) (int, int) {
	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	return page, size
}

// Offset returns the zero-based row offset of the page.
func (p Pagination) Offset() int {
	return (p.Page - 1) * p.Size
}

// NewPagination computes pagination metadata.
func NewPagination(page, size, total int) Pagination {
	page, size = NormalizePage(page, size)
	totalPages := int(math.Ceil(float64(total) / float64(size)))
	return Pagination{Page: page, Size: size, Total: total, TotalPages: totalPages}
}
