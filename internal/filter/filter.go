// Package filter derives the visible subset of a record collection from a
// query.State. Every predicate is conjunctive: an unset facet matches
// anything, and a record must satisfy every active facet.
package filter

import (
	"sort"
	"strings"
	"time"

	"golang.org/x/text/cases"

	"github.com/derickschaefer/opendosm/internal/model"
	"github.com/derickschaefer/opendosm/internal/query"
)

// Record is anything the engine can filter.
type Record interface {
	SearchFields() []string
	FacetValues(query.Key) []string
	YearSpan() (begin, end int, ok bool)
}

// Apply returns the records matching st, preserving relative order.
// An unconstrained state returns records unchanged.
func Apply[T Record](records []T, st query.State) []T {
	if st.Unconstrained() {
		return records
	}
	fold := cases.Fold()
	needle := fold.String(strings.TrimSpace(st.Search))
	out := make([]T, 0, len(records))
	for _, r := range records {
		if match(r, st, fold, needle) {
			out = append(out, r)
		}
	}
	return out
}

// Match reports whether a single record satisfies st.
func Match[T Record](r T, st query.State) bool {
	fold := cases.Fold()
	return match(r, st, fold, fold.String(strings.TrimSpace(st.Search)))
}

// Casers are stateful, so each call site owns its own.
func match(r Record, st query.State, fold cases.Caser, needle string) bool {
	if needle != "" && !matchSearch(fold, r.SearchFields(), needle) {
		return false
	}
	if st.Frequency != "" && !matchSingle(r.FacetValues(query.KeyFrequency), st.Frequency) {
		return false
	}
	if !matchAll(r.FacetValues(query.KeyGeography), st.Geography) {
		return false
	}
	if !matchAll(r.FacetValues(query.KeyDemography), st.Demography) {
		return false
	}
	if st.Source != "" && !contains(r.FacetValues(query.KeySource), st.Source) {
		return false
	}
	if st.Begin != 0 || st.End != 0 {
		return matchYears(r, st.Begin, st.End)
	}
	return true
}

func matchSearch(fold cases.Caser, fields []string, needle string) bool {
	for _, f := range fields {
		if f != "" && strings.Contains(fold.String(f), needle) {
			return true
		}
	}
	return false
}

func matchSingle(have []string, want string) bool {
	for _, h := range have {
		if strings.EqualFold(h, want) {
			return true
		}
	}
	return false
}

// matchAll is the multi-select predicate: every selected code must be in have.
func matchAll(have, selected []string) bool {
	for _, s := range selected {
		if !matchSingle(have, s) {
			return false
		}
	}
	return true
}

func contains(have []string, want string) bool {
	for _, h := range have {
		if h == want {
			return true
		}
	}
	return false
}

// matchYears requires the record's span to overlap [begin, end]. Either
// bound may be zero (open).
func matchYears(r Record, begin, end int) bool {
	b, e, ok := r.YearSpan()
	if !ok {
		return false
	}
	if begin != 0 && e < begin {
		return false
	}
	if end != 0 && b > end {
		return false
	}
	return true
}

// ─── Sorting ──────────────────────────────────────────────────────────────────

// Dated is a record with a release timestamp.
type Dated interface {
	Released() (t time.Time, ok bool)
}

// SortByDateDesc returns a newly allocated copy of items ordered newest first.
// Items without a parseable date sort last, keeping their relative order.
func SortByDateDesc[T Dated](items []T) []T {
	out := make([]T, len(items))
	copy(out, items)
	sort.SliceStable(out, func(i, j int) bool {
		ti, oki := out[i].Released()
		tj, okj := out[j].Released()
		if oki != okj {
			return oki
		}
		return ti.After(tj)
	})
	return out
}

// ─── Catalogue sections ───────────────────────────────────────────────────────

// Sections filters every subcategory of col and flattens the non-empty ones
// into "Category: Subcategory" sections in document order.
func Sections(col model.Collection, st query.State) []model.Section {
	var out []model.Section
	for _, cat := range col {
		for _, sub := range cat.Subcategories {
			ds := Apply(sub.Datasets, st)
			if len(ds) == 0 {
				continue
			}
			out = append(out, model.Section{
				Title:    cat.Title + ": " + sub.Title,
				Category: cat.Title,
				Datasets: ds,
			})
		}
	}
	return out
}

// Count returns the number of datasets across sections.
func Count(sections []model.Section) int {
	n := 0
	for _, s := range sections {
		n += len(s.Datasets)
	}
	return n
}
