package render

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"golang.org/x/text/language"

	"github.com/derickschaefer/opendosm/internal/calendar"
	"github.com/derickschaefer/opendosm/internal/locale"
	"github.com/derickschaefer/opendosm/internal/model"
	"github.com/derickschaefer/opendosm/internal/paginate"
	"github.com/derickschaefer/opendosm/internal/store"
)

// ─── Table ────────────────────────────────────────────────────────────────────

func renderTable(w io.Writer, result *model.Result) error {
	tag := locale.Resolve(result.Lang)
	switch d := result.Data.(type) {
	case model.CatalogueView:
		return renderCatalogueTable(w, d, tag)
	case []string:
		return renderSourcesTable(w, d)
	case paginate.Page[model.Publication]:
		return renderPublicationsTable(w, d, tag, result.Kind != model.KindTechnicalNotes)
	case *model.PublicationDetail:
		return renderPublicationDetailTable(w, d)
	case paginate.Page[model.UpcomingPublication]:
		return renderUpcomingTable(w, d)
	case model.CalendarView:
		if d.Weeks != nil {
			return renderCalendarGrid(w, d)
		}
		return renderCalendarList(w, d)
	case []model.NSDPItem:
		return renderNSDPTable(w, d)
	case []store.View:
		return renderViewsTable(w, d)
	case model.QueryInspection:
		return renderQueryTable(w, d, tag)
	default:
		// Fallback: JSON
		return renderJSON(w, result)
	}
}

func newTable(w io.Writer, headers []string) *tablewriter.Table {
	tw := tablewriter.NewWriter(w)
	tw.SetHeader(headers)
	tw.SetBorder(true)
	tw.SetRowLine(false)
	tw.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	tw.SetAlignment(tablewriter.ALIGN_LEFT)
	tw.SetAutoWrapText(false)
	return tw
}

func renderCatalogueTable(w io.Writer, v model.CatalogueView, tag language.Tag) error {
	if len(v.Sections) == 0 {
		fmt.Fprintln(w, NoEntries)
		return nil
	}
	for i, s := range v.Sections {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "%s (%d)\n", s.Title, len(s.Datasets))
		tw := newTable(w, []string{"ID", "TITLE", "FREQ", "GEOGRAPHY", "YEARS"})
		for _, ds := range s.Datasets {
			years := ""
			if b, e, ok := ds.YearSpan(); ok {
				years = fmt.Sprintf("%d–%d", b, e)
			}
			tw.Append([]string{
				ds.ID,
				truncate(ds.Title, 60),
				locale.Label(tag, ds.Frequency),
				strings.Join(locale.Labels(tag, ds.Geography), ", "),
				years,
			})
		}
		tw.Render()
	}
	fmt.Fprintf(w, "\nTotal datasets: %d\n", v.Total)
	return nil
}

func renderSourcesTable(w io.Writer, sources []string) error {
	if len(sources) == 0 {
		fmt.Fprintln(w, NoEntries)
		return nil
	}
	tw := newTable(w, []string{"SOURCE"})
	for _, s := range sources {
		tw.Append([]string{s})
	}
	tw.Render()
	return nil
}

func renderPublicationsTable(w io.Writer, p paginate.Page[model.Publication], tag language.Tag, downloads bool) error {
	if p.Total == 0 {
		fmt.Fprintln(w, NoEntries)
		return nil
	}
	headers := []string{"ID", "RELEASED", "TITLE", "FREQ"}
	if downloads {
		headers = append(headers, "DOWNLOADS")
	}
	tw := newTable(w, headers)
	if downloads {
		tw.SetColumnAlignment([]int{
			tablewriter.ALIGN_LEFT,
			tablewriter.ALIGN_LEFT,
			tablewriter.ALIGN_LEFT,
			tablewriter.ALIGN_LEFT,
			tablewriter.ALIGN_RIGHT,
		})
	}
	for _, pub := range p.Items {
		row := []string{pub.PublicationID, dateOnly(pub.ReleaseDate), truncate(pub.Title, 60), locale.Label(tag, pub.Frequency)}
		if downloads {
			row = append(row, fmt.Sprintf("%d", pub.TotalDownloads))
		}
		tw.Append(row)
	}
	tw.Render()
	writePager(w, p.Current, p.PageCount, p.Total, p.Controls())
	return nil
}

func renderPublicationDetailTable(w io.Writer, d *model.PublicationDetail) error {
	tw := newTable(w, []string{"FIELD", "VALUE"})
	tw.SetColWidth(80)
	tw.SetAutoWrapText(true)
	tw.Append([]string{"ID", d.PublicationID})
	tw.Append([]string{"Title", d.Title})
	tw.Append([]string{"Released", dateOnly(d.ReleaseDate)})
	if d.Description != "" {
		tw.Append([]string{"Description", truncate(d.Description, 200)})
	}
	tw.Render()
	fmt.Fprintln(w)

	if len(d.Resources) == 0 {
		fmt.Fprintln(w, NoEntries)
		return nil
	}
	rt := newTable(w, []string{"RESOURCE", "NAME", "TYPE", "DOWNLOADS", "LINK"})
	for _, r := range d.Resources {
		rt.Append([]string{fmt.Sprintf("%d", r.ResourceID), truncate(r.ResourceName, 40), r.ResourceType, fmt.Sprintf("%d", r.Downloads), r.ResourceLink})
	}
	rt.Render()
	return nil
}

func renderUpcomingTable(w io.Writer, p paginate.Page[model.UpcomingPublication]) error {
	if p.Total == 0 {
		fmt.Fprintln(w, NoEntries)
		return nil
	}
	tw := newTable(w, []string{"DATE", "TITLE", "SERIES"})
	for _, u := range p.Items {
		tw.Append([]string{u.ISODate(), truncate(u.Title, 60), u.Series})
	}
	tw.Render()
	writePager(w, p.Current, p.PageCount, p.Total, p.Controls())
	return nil
}

// ─── Calendar ─────────────────────────────────────────────────────────────────

const maxCellItems = 3

func monthHeading(w io.Writer, v model.CalendarView) {
	prev, next := " ", " "
	if v.CanPrev {
		prev = "‹"
	}
	if v.CanNext {
		next = "›"
	}
	fmt.Fprintf(w, "%s  %s  %s\n\n", prev, v.Navigator.Shown.First().Format("January 2006"), next)
}

func renderCalendarGrid(w io.Writer, v model.CalendarView) error {
	monthHeading(w, v)
	headers := make([]string, 0, calendar.DaysPerWeek)
	if len(v.Weeks) > 0 {
		for _, d := range v.Weeks[0] {
			headers = append(headers, strings.ToUpper(d.Weekday))
		}
	}
	tw := newTable(w, headers)
	tw.SetRowLine(true)
	for _, week := range v.Weeks {
		row := make([]string, len(week))
		for i, d := range week {
			row[i] = cellText(d)
		}
		tw.Append(row)
	}
	tw.Render()
	return nil
}

func cellText(d calendar.Day[model.UpcomingPublication]) string {
	num := fmt.Sprintf("%2d", d.Day)
	switch {
	case d.Today:
		num = "[" + strings.TrimSpace(num) + "]"
	case !d.InMonth:
		num = "·" + strings.TrimSpace(num)
	}
	lines := []string{num}
	for i, it := range d.Items {
		if i == maxCellItems {
			lines = append(lines, fmt.Sprintf("+%d more", len(d.Items)-maxCellItems))
			break
		}
		lines = append(lines, "• "+truncate(it.Title, 14))
	}
	return strings.Join(lines, "\n")
}

func renderCalendarList(w io.Writer, v model.CalendarView) error {
	monthHeading(w, v)
	tw := newTable(w, []string{"DAY", "DATE", "RELEASES"})
	for _, d := range v.Days {
		titles := make([]string, len(d.Items))
		for i, it := range d.Items {
			titles[i] = truncate(it.Title, 50)
		}
		date := d.Date
		if d.Today {
			date += " (today)"
		}
		tw.Append([]string{d.Weekday, date, strings.Join(titles, "\n")})
	}
	tw.Render()
	return nil
}

// ─── National summary data page ───────────────────────────────────────────────

func renderNSDPTable(w io.Writer, items []model.NSDPItem) error {
	if len(items) == 0 {
		fmt.Fprintln(w, NoEntries)
		return nil
	}
	tw := newTable(w, []string{"TITLE", "AS OF", "LAST UPDATED", "NEXT UPDATE", "SDMX"})
	for _, n := range items {
		if n.IsSeparator() {
			tw.Append([]string{"── " + strings.ToUpper(n.Category), "", "", "", ""})
			continue
		}
		tw.Append([]string{truncate(n.Title, 50), n.AsOf, n.LastUpdated, n.NextUpdate, sdmxFormats(n)})
	}
	tw.Render()
	return nil
}

func sdmxFormats(n model.NSDPItem) string {
	var f []string
	for _, c := range []struct{ name, link string }{
		{"XML", n.SDMXXML}, {"JSON", n.SDMXJSON}, {"CSV", n.SDMXCSV}, {"PARQUET", n.SDMXParquet}, {"EXCEL", n.SDMXExcel},
	} {
		if c.link != "" {
			f = append(f, c.name)
		}
	}
	return strings.Join(f, " ")
}

// ─── Views / Query ────────────────────────────────────────────────────────────

func renderViewsTable(w io.Writer, views []store.View) error {
	if len(views) == 0 {
		fmt.Fprintln(w, NoEntries)
		return nil
	}
	tw := newTable(w, []string{"ID", "NAME", "PAGE", "QUERY", "CREATED"})
	for _, v := range views {
		tw.Append([]string{v.ID[:min(8, len(v.ID))], v.Name, v.Page, truncate(v.Query, 50), v.CreatedAt.Local().Format("2006-01-02 15:04")})
	}
	tw.Render()
	return nil
}

func renderQueryTable(w io.Writer, q model.QueryInspection, tag language.Tag) error {
	tw := newTable(w, []string{"FIELD", "VALUE"})
	canonical := q.Canonical
	if canonical == "" {
		canonical = "(empty)"
	}
	tw.Append([]string{"Page", q.Page})
	tw.Append([]string{"Input", q.Input})
	tw.Append([]string{"Canonical", canonical})
	tw.Append([]string{"Already canonical", fmt.Sprintf("%t", q.IsCanonical)})
	tw.Append([]string{"Filters", fmt.Sprintf("%d", len(q.Active))})
	st := q.State
	if st.Search != "" {
		tw.Append([]string{"search", st.Search})
	}
	if st.Frequency != "" {
		tw.Append([]string{"frequency", locale.Label(tag, st.Frequency)})
	}
	if len(st.Geography) > 0 {
		tw.Append([]string{"geography", strings.Join(locale.Labels(tag, st.Geography), ", ")})
	}
	if len(st.Demography) > 0 {
		tw.Append([]string{"demography", strings.Join(locale.Labels(tag, st.Demography), ", ")})
	}
	if st.Source != "" {
		tw.Append([]string{"source", st.Source})
	}
	if st.Begin != 0 || st.End != 0 {
		tw.Append([]string{"years", fmt.Sprintf("%s–%s", intOrEmpty(st.Begin), intOrEmpty(st.End))})
	}
	tw.Append([]string{"page", fmt.Sprintf("%d", st.Page)})
	tw.Render()
	return nil
}

// ─── Pager ────────────────────────────────────────────────────────────────────

// writePager prints the page strip below a paginated table, or just the
// result count when everything fits on one page.
func writePager(w io.Writer, current, count, total int, controls bool) {
	if !controls {
		fmt.Fprintf(w, "%d results\n", total)
		return
	}
	fmt.Fprintf(w, "Page %d of %d · %d results · %s\n", current, count, total, PageStrip(current, count))
}

// PageStrip renders the numbered page strip, e.g. "‹ 1 … 4 [5] 6 … 10 ›".
func PageStrip(current, count int) string {
	var b strings.Builder
	if current > 1 {
		b.WriteString("‹ ")
	}
	for i, n := range paginate.Range(current, count) {
		if i > 0 {
			b.WriteByte(' ')
		}
		switch n {
		case paginate.Ellipsis:
			b.WriteString("…")
		case current:
			fmt.Fprintf(&b, "[%d]", n)
		default:
			fmt.Fprintf(&b, "%d", n)
		}
	}
	if current < count {
		b.WriteString(" ›")
	}
	return b.String()
}

// Since formats an age for footers and cache listings.
func Since(t time.Time, now time.Time) string {
	d := now.Sub(t).Round(time.Second)
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 48*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	}
	return fmt.Sprintf("%dd ago", int(d.Hours()/24))
}
