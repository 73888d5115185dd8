// Package query translates between URL query parameters and typed filter
// state. The URL is the only place filter state lives; every change goes
// through Apply, which returns the next canonical query.
package query

import (
	"slices"
	"strings"
)

// Key is a recognised query parameter name.
type Key string

const (
	KeySearch     Key = "search"
	KeyPage       Key = "page"
	KeyFrequency  Key = "frequency"
	KeyGeography  Key = "geography"
	KeyDemography Key = "demography"
	KeySource     Key = "source"
	KeyBegin      Key = "begin"
	KeyEnd        Key = "end"
)

// Kind determines how a facet's raw string is parsed.
type Kind int

const (
	KindText Kind = iota
	KindSingle
	KindMulti
	KindYear
	KindPage
)

// Earliest year offered by the catalogue's begin/end selectors.
const MinYear = 1920

// DefaultPageSize matches the fifteen rows per page used by every listing.
const DefaultPageSize = 15

// Facet describes one filter dimension on a page.
// Options holds locale-independent codes. A nil Options on a single-select
// facet is an open set: any non-empty value is accepted as-is.
type Facet struct {
	Key     Key
	Kind    Kind
	Options []string
}

// PageConfig is the set of keys a page recognises plus its page size.
// PageSize is zero for pages that do not paginate.
type PageConfig struct {
	Name     string
	Facets   []Facet
	PageSize int
}

// ─── Option sets ──────────────────────────────────────────────────────────────

var (
	CatalogueFrequencies = []string{
		"DAILY", "WEEKLY", "MONTHLY", "QUARTERLY", "YEARLY", "INTRADAY", "INFREQUENT", "AS_REQUIRED",
	}
	PublicationFrequencies = []string{"MONTHLY", "QUARTERLY", "YEARLY", "ONE_OFF"}
	Geographies            = []string{"NATIONAL", "STATE", "DISTRICT", "PARLIMEN", "DUN"}
	Demographies           = []string{
		"SEX", "ETHNICITY", "AGE", "RELIGION", "NATIONALITY", "DISABILITY", "MARITAL",
	}
)

// ─── Page configs ─────────────────────────────────────────────────────────────

var (
	Catalogue = PageConfig{
		Name: "catalogue",
		Facets: []Facet{
			{Key: KeySearch, Kind: KindText},
			{Key: KeyFrequency, Kind: KindSingle, Options: CatalogueFrequencies},
			{Key: KeyGeography, Kind: KindMulti, Options: Geographies},
			{Key: KeyDemography, Kind: KindMulti, Options: Demographies},
			{Key: KeySource, Kind: KindSingle},
			{Key: KeyBegin, Kind: KindYear},
			{Key: KeyEnd, Kind: KindYear},
		},
	}

	Publications = PageConfig{
		Name: "publications",
		Facets: []Facet{
			{Key: KeySearch, Kind: KindText},
			{Key: KeyPage, Kind: KindPage},
			{Key: KeyFrequency, Kind: KindSingle, Options: PublicationFrequencies},
			{Key: KeyGeography, Kind: KindMulti, Options: Geographies},
			{Key: KeyDemography, Kind: KindMulti, Options: Demographies},
		},
		PageSize: DefaultPageSize,
	}

	TechnicalNotes = PageConfig{
		Name: "technical-notes",
		Facets: []Facet{
			{Key: KeySearch, Kind: KindText},
			{Key: KeyPage, Kind: KindPage},
		},
		PageSize: DefaultPageSize,
	}

	Upcoming = PageConfig{
		Name: "upcoming",
		Facets: []Facet{
			{Key: KeySearch, Kind: KindText},
			{Key: KeyPage, Kind: KindPage},
		},
		PageSize: DefaultPageSize,
	}
)

// Pages lists every shipped config, in display order.
var Pages = []PageConfig{Catalogue, Publications, TechnicalNotes, Upcoming}

// Lookup returns the config with the given name.
func Lookup(name string) (PageConfig, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, p := range Pages {
		if p.Name == name {
			return p, true
		}
	}
	return PageConfig{}, false
}

// Facet returns the facet registered for key.
func (c PageConfig) Facet(key Key) (Facet, bool) {
	for _, f := range c.Facets {
		if f.Key == key {
			return f, true
		}
	}
	return Facet{}, false
}

// Has reports whether the page recognises key.
func (c PageConfig) Has(key Key) bool {
	_, ok := c.Facet(key)
	return ok
}

// Paginated reports whether the page slices its results.
func (c PageConfig) Paginated() bool {
	return c.PageSize > 0 && c.Has(KeyPage)
}

// WithSources returns a copy of c whose source facet only accepts codes.
// The receiver is left untouched.
func (c PageConfig) WithSources(codes []string) PageConfig {
	out := c
	out.Facets = make([]Facet, len(c.Facets))
	copy(out.Facets, c.Facets)
	for i, f := range out.Facets {
		if f.Key == KeySource {
			out.Facets[i].Options = slices.Clone(codes)
		}
	}
	return out
}

// match returns the canonical option equal (case-insensitively) to v.
func (f Facet) match(v string) (string, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return "", false
	}
	if f.Options == nil {
		return v, true
	}
	for _, opt := range f.Options {
		if strings.EqualFold(opt, v) {
			return opt, true
		}
	}
	return "", false
}
