package pkg

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
	// MaxPage keeps (page-1)*size far from int overflow.
	MaxPage         = 100_000
)

// Page is a normalized page/size pair.
type Page struct {
	Page int
	Size int
}

func NewPage(page, size int) Page {
	if page <= 0 {
		page = 1
	}
	if page > MaxPage {
		page = MaxPage
	}
	if size <= 0 || size > MaxPageSize {
		size = DefaultPageSize
	}
	return Page{Page: page, Size: size}
}

func (p Page) Offset() int { return (p.Page - 1) * p.Size }

// Pages is the page count for total rows.
func (p Page) Pages(total int64) int {
	if total == 0 {
		return 0
	}
	return int((total + int64(p.Size) - 1) / int64(p.Size))
}

type Paginated[T any] struct {
	Items []T   `json:"items"`
	Total int64 `json:"total"`
	Page  int   `json:"page"`
	Size  int   `json:"size"`
	Pages int   `json:"pages"`
}

func NewPaginated[T any](items []T, total int64, p Page) Paginated[T] {
	if items == nil {
		items = []T{}
	}
	return Paginated[T]{Items: items, Total: total, Page: p.Page, Size: p.Size, Pages: p.Pages(total)}
}
