package model

// Pagination はページング済み一覧のメタ情報を表す。
type Pagination struct {
	TotalItems  int  `json:"totalItems"`
	CurrentPage int  `json:"currentPage"`
	PerPage     int  `json:"perPage"`
	TotalPages  int  `json:"totalPages"`
	HasNext     bool `json:"hasNext"`
	HasPrev     bool `json:"hasPrev"`
	NextPage    *int `json:"nextPage"`
	PrevPage    *int `json:"prevPage"`
}

// ページングの既定値と上限
const (
	DefaultPage    = 1
	DefaultPerPage = 10
	MaxPerPage     = 100
)

// NormalizePage はpage/limitを既定値と上限に丸める。
func NormalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = DefaultPage
	}
	if limit < 1 {
		limit = DefaultPerPage
	}
	if limit > MaxPerPage {
		limit = MaxPerPage
	}
	return page, limit
}

// Offset はSQLのOFFSET値を返す。
func Offset(page, limit int) int {
	return (page - 1) * limit
}

// BuildPagination は総件数と現在ページからメタ情報を組み立てる。
// 総ページ数は0件でも1となる。
func BuildPagination(total, page, limit int) Pagination {
	totalPages := 1
	if limit > 0 && total > 0 {
		totalPages = (total + limit - 1) / limit
	}

	p := Pagination{
		TotalItems:  total,
		CurrentPage: page,
		PerPage:     limit,
		TotalPages:  totalPages,
		HasNext:     page < totalPages,
		HasPrev:     page > 1,
	}
	if p.HasNext {
		next := page + 1
		p.NextPage = &next
	}
	if p.HasPrev {
		prev := page - 1
		p.PrevPage = &prev
	}
	return p
}
