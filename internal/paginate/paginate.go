// Package paginate slices a filtered result into fixed-size pages.
package paginate

import "github.com/derickschaefer/opendosm/internal/query"

// Page is one slice of a result set plus the state of its controls.
// PageCount is zero when Total is zero, in which case no controls are shown.
type Page[T any] struct {
	Items     []T  `json:"items"`
	Total     int  `json:"total"`
	PageSize  int  `json:"page_size"`
	Current   int  `json:"page"`
	PageCount int  `json:"page_count"`
	HasPrev   bool `json:"has_prev"`
	HasNext   bool `json:"has_next"`
	PrevPage  int  `json:"prev_page,omitempty"`
	NextPage  int  `json:"next_page,omitempty"`
}

// Paginate returns the requested 1-based page of items. Pages past the end
// clamp to the last page, or to 1 when there are no items; page < 1 is
// page 1; size <= 0 uses the default.
func Paginate[T any](items []T, page, size int) Page[T] {
	if size <= 0 {
		size = query.DefaultPageSize
	}
	total := len(items)
	count := (total + size - 1) / size
	if page < 1 {
		page = 1
	}
	if page > count {
		page = max(count, 1)
	}
	p := Page[T]{
		Items:     []T{},
		Total:     total,
		PageSize:  size,
		Current:   page,
		PageCount: count,
	}
	if total == 0 {
		return p
	}
	lo := (page - 1) * size
	hi := lo + size
	if hi > total {
		hi = total
	}
	p.Items = items[lo:hi]
	p.HasPrev = page > 1
	p.HasNext = page < count
	if p.HasPrev {
		p.PrevPage = page - 1
	}
	if p.HasNext {
		p.NextPage = page + 1
	}
	return p
}

// Controls reports whether pagination controls should be rendered.
func (p Page[T]) Controls() bool { return p.PageCount > 1 }

// First and Last are the 1-based positions of the slice within Total, or
// zero for an empty page.
func (p Page[T]) First() int {
	if len(p.Items) == 0 {
		return 0
	}
	return (p.Current-1)*p.PageSize + 1
}

func (p Page[T]) Last() int {
	if len(p.Items) == 0 {
		return 0
	}
	return p.First() + len(p.Items) - 1
}

// Ellipsis marks a gap in a Range strip.
const Ellipsis = -1

const window = 7

// Range returns the page-number strip for current out of total pages.
// Strips longer than seven slots keep the first and last page and collapse
// the rest around current into Ellipsis markers.
func Range(current, total int) []int {
	if total <= 0 {
		return nil
	}
	if current < 1 {
		current = 1
	}
	if current > total {
		current = total
	}
	if total <= window {
		return seq(1, total)
	}
	switch {
	case current <= 4:
		return append(seq(1, 5), Ellipsis, total)
	case current >= total-3:
		return append([]int{1, Ellipsis}, seq(total-4, total)...)
	}
	return []int{1, Ellipsis, current - 1, current, current + 1, Ellipsis, total}
}

func seq(lo, hi int) []int {
	out := make([]int, 0, hi-lo+1)
	for i := lo; i <= hi; i++ {
		out = append(out, i)
	}
	return out
}
