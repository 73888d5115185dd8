// Package model defines the canonical data types used throughout opendosm.
// These types mirror the documents served by the portal's content store and
// carry the result envelope that every command returns.
package model

import (
	"strings"
	"time"

	"github.com/derickschaefer/opendosm/internal/calendar"
	"github.com/derickschaefer/opendosm/internal/query"
)

// ─── Catalogue ────────────────────────────────────────────────────────────────

// Dataset is one entry of the data catalogue index.
type Dataset struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	Description  string   `json:"desc,omitempty"`
	Frequency    string   `json:"freq,omitempty"`
	Geography    []string `json:"geo,omitempty"`
	Demography   []string `json:"demog,omitempty"`
	Source       []string `json:"source,omitempty"`
	DatasetBegin int      `json:"dataset_begin,omitempty"`
	DatasetEnd   int      `json:"dataset_end,omitempty"`
}

func (d Dataset) SearchFields() []string { return []string{d.Title, d.Description} }

func (d Dataset) FacetValues(k query.Key) []string {
	switch k {
	case query.KeyFrequency:
		return single(d.Frequency)
	case query.KeyGeography:
		return d.Geography
	case query.KeyDemography:
		return d.Demography
	case query.KeySource:
		return d.Source
	}
	return nil
}

// YearSpan is the coverage of the dataset. A dataset with only one bound
// is treated as covering that single year.
func (d Dataset) YearSpan() (int, int, bool) {
	switch {
	case d.DatasetBegin == 0 && d.DatasetEnd == 0:
		return 0, 0, false
	case d.DatasetBegin == 0:
		return d.DatasetEnd, d.DatasetEnd, true
	case d.DatasetEnd == 0:
		return d.DatasetBegin, d.DatasetBegin, true
	}
	return d.DatasetBegin, d.DatasetEnd, true
}

// CatalogueIndex is the catalogue document: grouped datasets plus the list
// of agencies offered in the source selector.
type CatalogueIndex struct {
	Datasets      Collection `json:"datasets"`
	SourceFilters []string   `json:"source_filters"`
}

// Section is one flattened "Category: Subcategory" block of datasets.
type Section struct {
	Title    string    `json:"title"`
	Category string    `json:"category"`
	Datasets []Dataset `json:"datasets"`
}

// CatalogueView is the payload of a filtered catalogue listing.
type CatalogueView struct {
	Sections []Section `json:"sections"`
	Sources  []string  `json:"sources,omitempty"`
	Total    int       `json:"total"`
}

// ─── Publications ─────────────────────────────────────────────────────────────

// Publication is a row of the publications browser or technical notes list.
type Publication struct {
	PublicationID   string   `json:"publication_id"`
	PublicationType string   `json:"publication_type,omitempty"`
	Title           string   `json:"title"`
	Description     string   `json:"description,omitempty"`
	ReleaseDate     string   `json:"release_date"`
	Frequency       string   `json:"frequency,omitempty"`
	Geography       []string `json:"geography,omitempty"`
	Demography      []string `json:"demography,omitempty"`
	TotalDownloads  int      `json:"total_downloads"`
}

func (p Publication) SearchFields() []string { return []string{p.Title, p.Description} }

func (p Publication) FacetValues(k query.Key) []string {
	switch k {
	case query.KeyFrequency:
		return single(p.Frequency)
	case query.KeyGeography:
		return p.Geography
	case query.KeyDemography:
		return p.Demography
	}
	return nil
}

func (p Publication) YearSpan() (int, int, bool) {
	t, ok := p.Released()
	if !ok {
		return 0, 0, false
	}
	return t.Year(), t.Year(), true
}

// Released parses ReleaseDate.
func (p Publication) Released() (time.Time, bool) {
	return ParseTimestamp(p.ReleaseDate)
}

// Resource is one downloadable file of a publication.
type Resource struct {
	ResourceID   int    `json:"resource_id"`
	ResourceName string `json:"resource_name"`
	ResourceLink string `json:"resource_link"`
	ResourceType string `json:"resource_type,omitempty"`
	Downloads    int    `json:"downloads"`
}

// PublicationDetail is a publication together with its resources.
type PublicationDetail struct {
	PublicationID string     `json:"publication_id"`
	Title         string     `json:"title"`
	Description   string     `json:"description,omitempty"`
	ReleaseDate   string     `json:"release_date"`
	Resources     []Resource `json:"resources"`
}

// UpcomingPublication is a scheduled release.
type UpcomingPublication struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Date   string `json:"date"`
	Series string `json:"series,omitempty"`
}

func (u UpcomingPublication) SearchFields() []string { return []string{u.Title} }

func (u UpcomingPublication) FacetValues(query.Key) []string { return nil }

func (u UpcomingPublication) YearSpan() (int, int, bool) {
	t, ok := ParseTimestamp(u.Date)
	if !ok {
		return 0, 0, false
	}
	return t.Year(), t.Year(), true
}

// ISODate returns the calendar day the release falls on.
func (u UpcomingPublication) ISODate() string {
	if len(u.Date) >= 10 {
		return u.Date[:10]
	}
	return u.Date
}

// CalendarView is one month of the release calendar. Weeks holds the 6×7
// desktop grid; Days holds only the days of the month for narrow layouts.
// Exactly one of the two is populated.
type CalendarView struct {
	Navigator calendar.Navigator                    `json:"navigator"`
	CanPrev   bool                                  `json:"can_prev"`
	CanNext   bool                                  `json:"can_next"`
	Weeks     [][]calendar.Day[UpcomingPublication] `json:"weeks,omitempty"`
	Days      []calendar.Day[UpcomingPublication]   `json:"days,omitempty"`
}

// ─── Analytics ────────────────────────────────────────────────────────────────

// DownloadCount is one row of the download totals pipe. ResourceID arrives
// as a string and is compared numerically.
type DownloadCount struct {
	PublicationID  string `json:"publication_id"`
	ResourceID     string `json:"resource_id"`
	TotalDownloads int    `json:"total_downloads"`
}

// DownloadEvent is the body of a download ingestion POST.
type DownloadEvent struct {
	PublicationID string `json:"publication_id"`
	ResourceID    int    `json:"resource_id"`
	Timestamp     string `json:"timestamp"`
}

// ─── National summary data page ───────────────────────────────────────────────

// NSDPItem is a row of the national summary data page download table.
// Rows with a non-empty Category are separators and carry no links.
type NSDPItem struct {
	Title       string `json:"title,omitempty"`
	TitleLink   string `json:"title_link,omitempty"`
	Category    string `json:"category,omitempty"`
	AsOf        string `json:"as_of,omitempty"`
	LastUpdated string `json:"last_updated,omitempty"`
	NextUpdate  string `json:"next_update,omitempty"`
	SDMXXML     string `json:"sdmx_xml,omitempty"`
	SDMXJSON    string `json:"sdmx_json,omitempty"`
	SDMXCSV     string `json:"sdmx_csv,omitempty"`
	SDMXParquet string `json:"sdmx_parquet,omitempty"`
	SDMXExcel   string `json:"sdmx_excel,omitempty"`
}

// IsSeparator reports whether the row is a category heading.
func (n NSDPItem) IsSeparator() bool { return n.Category != "" }

// ─── Query inspection ─────────────────────────────────────────────────────────

// QueryInspection reports how a raw query string decodes for a page.
type QueryInspection struct {
	Page        string      `json:"page"`
	Input       string      `json:"input"`
	Canonical   string      `json:"canonical"`
	IsCanonical bool        `json:"is_canonical"`
	State       query.State `json:"state"`
	Active      []string    `json:"active"`
}

// ─── Result Envelope ─────────────────────────────────────────────────────────

// ResultStats carries performance and cache metadata for a command result.
type ResultStats struct {
	CacheHit   bool  `json:"cache_hit"`
	DurationMs int64 `json:"duration_ms"`
	Items      int   `json:"items"`
}

// Result is the uniform envelope returned by every command.
// The Data field holds the typed payload; Kind identifies what is in it.
// Query is the canonical query string the payload was derived from.
type Result struct {
	Kind        string      `json:"kind"`
	GeneratedAt time.Time   `json:"generated_at"`
	Command     string      `json:"command"`
	Lang        string      `json:"lang,omitempty"`
	Query       string      `json:"query,omitempty"`
	Active      []string    `json:"active,omitempty"`
	Data        interface{} `json:"data"`
	Warnings    []string    `json:"warnings,omitempty"`
	Stats       ResultStats `json:"stats"`
}

// Kind constants for Result.Kind.
const (
	KindCatalogue      = "catalogue"
	KindSources        = "sources"
	KindPublications   = "publications"
	KindPublication    = "publication"
	KindTechnicalNotes = "technical_notes"
	KindUpcoming       = "upcoming"
	KindCalendar       = "calendar"
	KindNSDP           = "nsdp"
	KindViews          = "views"
	KindQuery          = "query"
)

// ─── Helpers ─────────────────────────────────────────────────────────────────

var timestampLayouts = []string{
	"2006-01-02",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	time.RFC3339,
}

// ParseTimestamp accepts the date and datetime shapes the content store uses.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func single(v string) []string {
	if v == "" {
		return nil
	}
	return []string{v}
}
