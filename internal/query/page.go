package query

// PageInfo is the pagination envelope of a paged result.
type PageInfo struct {
	TotalCount  int64 `json:"totalCount"`
	CurrentPage int   `json:"currentPage"`
	PageSize    int   `json:"pageSize"`
	TotalPages  int   `json:"totalPages"`
	HasMore     bool  `json:"hasMore"`
}

// NewPageInfo computes the envelope for one page. TotalPages is the ceiling
// of totalCount over pageSize; HasMore reports whether pages remain after
// page, so the last page and any page beyond it report false.
func NewPageInfo(page, pageSize int, totalCount int64) PageInfo {
	info := PageInfo{TotalCount: totalCount, CurrentPage: page, PageSize: pageSize}
	if pageSize > 0 {
		info.TotalPages = int((totalCount + int64(pageSize) - 1) / int64(pageSize))
	}
	info.HasMore = info.CurrentPage < info.TotalPages
	return info
}

// Page is one page of rows plus its envelope.
type Page struct {
	Data       []map[string]any `json:"data"`
	Pagination PageInfo         `json:"pagination"`
}
