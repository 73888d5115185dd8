// Package pages turns loaded collections and a decoded query state into the
// payload of one page. The CLI and the HTTP service share these builders so
// a query string means the same thing on both surfaces.
package pages

import (
	"time"

	"github.com/derickschaefer/opendosm/internal/calendar"
	"github.com/derickschaefer/opendosm/internal/filter"
	"github.com/derickschaefer/opendosm/internal/model"
	"github.com/derickschaefer/opendosm/internal/paginate"
	"github.com/derickschaefer/opendosm/internal/query"
)

// CatalogueConfig closes the catalogue's source facet over the agencies the
// index offers.
func CatalogueConfig(idx *model.CatalogueIndex) query.PageConfig {
	return query.Catalogue.WithSources(idx.SourceFilters)
}

// Catalogue filters and groups the index.
func Catalogue(idx *model.CatalogueIndex, st query.State) model.CatalogueView {
	sections := filter.Sections(idx.Datasets, st)
	if sections == nil {
		sections = []model.Section{}
	}
	return model.CatalogueView{
		Sections: sections,
		Sources:  idx.SourceFilters,
		Total:    filter.Count(sections),
	}
}

// Publications filters pubs and returns the requested page. It serves the
// technical notes list too. size <= 0 uses the default page size.
func Publications(pubs []model.Publication, st query.State, size int) paginate.Page[model.Publication] {
	return paginate.Paginate(filter.Apply(pubs, st), st.Page, size)
}

// Upcoming keeps releases dated today or later, filters them and returns
// the requested page.
func Upcoming(items []model.UpcomingPublication, st query.State, size int, today time.Time) paginate.Page[model.UpcomingPublication] {
	return paginate.Paginate(filter.Apply(calendar.Upcoming(items, today), st), st.Page, size)
}

// Calendar lays out the month nav shows.
func Calendar(items []model.UpcomingPublication, nav calendar.Navigator, mobile bool, today time.Time) model.CalendarView {
	v := model.CalendarView{Navigator: nav, CanPrev: nav.CanPrev(), CanNext: nav.CanNext()}
	if mobile {
		v.Days = calendar.Mobile(nav.Shown, items, today)
	} else {
		v.Weeks = calendar.Desktop(nav.Shown, items, today)
	}
	return v
}

// Inspect decodes raw for cfg and reports its canonical form.
func Inspect(cfg query.PageConfig, raw string) model.QueryInspection {
	st, values := query.Parse(cfg, raw)
	canon, ok := query.Canonical(cfg, values)
	active := st.Active(cfg)
	keys := make([]string, len(active))
	for i, k := range active {
		keys[i] = string(k)
	}
	return model.QueryInspection{
		Page:        cfg.Name,
		Input:       raw,
		Canonical:   canon.Encode(),
		IsCanonical: ok,
		State:       st,
		Active:      keys,
	}
}
