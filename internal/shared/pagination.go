package shared

// Pagination describes one page of a listing.
type Pagination struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// NewPagination normalises page and perPage and derives the page count.
func NewPagination(page, perPage, total int) Pagination {
	if perPage <= 0 {
		perPage = 20
	}
	if page <= 0 {
		page = 1
	}
	pages := 0
	if total > 0 {
		pages = (total + perPage - 1) / perPage
	}
	return Pagination{Page: page, PerPage: perPage, Total: total, TotalPages: pages}
}

// Offset is the number of rows before this page.
func (p Pagination) Offset() int {
	return (p.Page - 1) * p.PerPage
}
