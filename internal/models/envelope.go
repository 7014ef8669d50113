package models

// Pagination describes where a page sits in the full result set.
type Pagination struct {
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Total int64 `json:"total"`
	Pages int   `json:"pages"`
}

// PageEnvelope is the uniform paginated response for every listing kind.
type PageEnvelope struct {
	Items      []Listing  `json:"items"`
	Pagination Pagination `json:"pagination"`
}

// HasNext reports whether a page after this one exists.
func (e *PageEnvelope) HasNext() bool {
	return e.Pagination.Page < e.Pagination.Pages
}

// PageCount returns ceil(total/limit); zero when there are no rows.
func PageCount(total int64, limit int) int {
	if limit <= 0 || total <= 0 {
		return 0
	}
	return int((total + int64(limit) - 1) / int64(limit))
}

// NewPagination builds the pagination block for a page.
func NewPagination(page, limit int, total int64) Pagination {
	return Pagination{Page: page, Limit: limit, Total: total, Pages: PageCount(total, limit)}
}

// Featured groups the featured listings of each kind for the home view.
type Featured map[Kind][]Listing
