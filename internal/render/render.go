// Package render converts Result values into human-readable or machine-parseable
// output. Each format is a separate function; the top-level Render dispatcher
// selects based on the format string.
package render

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/derickschaefer/opendosm/internal/locale"
	"github.com/derickschaefer/opendosm/internal/model"
	"github.com/derickschaefer/opendosm/internal/paginate"
	"github.com/derickschaefer/opendosm/internal/store"
)

// Format constants matching --format flag values.
const (
	FormatTable = "table"
	FormatJSON  = "json"
	FormatJSONL = "jsonl"
	FormatCSV   = "csv"
	FormatTSV   = "tsv"
	FormatMD    = "md"
)

// Formats lists every accepted --format value.
var Formats = []string{FormatTable, FormatJSON, FormatJSONL, FormatCSV, FormatTSV, FormatMD}

// NoEntries is printed by the human formats when a result is empty.
const NoEntries = "No entries."

// Render writes result to w in the specified format.
func Render(w io.Writer, result *model.Result, format string) error {
	switch format {
	case FormatJSON:
		return renderJSON(w, result)
	case FormatJSONL:
		return renderJSONL(w, result)
	case FormatCSV:
		return renderDelimited(w, result, ',')
	case FormatTSV:
		return renderDelimited(w, result, '\t')
	case FormatMD:
		return renderMarkdown(w, result)
	case FormatTable, "":
		return renderTable(w, result)
	default:
		return fmt.Errorf("unknown format %q (formats: %s)", format, strings.Join(Formats, ", "))
	}
}

// ─── JSON ─────────────────────────────────────────────────────────────────────

func renderJSON(w io.Writer, result *model.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// ─── JSONL ────────────────────────────────────────────────────────────────────

// sectionDataset is the JSONL record for one catalogue entry.
type sectionDataset struct {
	Section string `json:"section"`
	model.Dataset
}

func renderJSONL(w io.Writer, result *model.Result) error {
	enc := json.NewEncoder(w)
	switch d := result.Data.(type) {
	case model.CatalogueView:
		for _, s := range d.Sections {
			for _, ds := range s.Datasets {
				if err := enc.Encode(sectionDataset{Section: s.Title, Dataset: ds}); err != nil {
					return err
				}
			}
		}
		return nil
	case paginate.Page[model.Publication]:
		return encodeEach(enc, d.Items)
	case paginate.Page[model.UpcomingPublication]:
		return encodeEach(enc, d.Items)
	case *model.PublicationDetail:
		return encodeEach(enc, d.Resources)
	case model.CalendarView:
		for _, week := range d.Weeks {
			if err := encodeEach(enc, week); err != nil {
				return err
			}
		}
		return encodeEach(enc, d.Days)
	case []model.NSDPItem:
		return encodeEach(enc, d)
	case []store.View:
		return encodeEach(enc, d)
	case []string:
		return encodeEach(enc, d)
	default:
		return enc.Encode(result.Data)
	}
}

func encodeEach[T any](enc *json.Encoder, items []T) error {
	for _, it := range items {
		if err := enc.Encode(it); err != nil {
			return err
		}
	}
	return nil
}

// ─── CSV / TSV ────────────────────────────────────────────────────────────────

func renderDelimited(w io.Writer, result *model.Result, sep rune) error {
	cw := csv.NewWriter(w)
	cw.Comma = sep

	if headers, rows, ok := tabular(result, false); ok {
		_ = cw.Write(headers)
		for _, r := range rows {
			_ = cw.Write(r)
		}
	} else {
		// Fallback: serialize as JSON on a single line
		b, _ := json.Marshal(result.Data)
		_ = cw.Write([]string{string(b)})
	}

	cw.Flush()
	return cw.Error()
}

// ─── Markdown ─────────────────────────────────────────────────────────────────

func renderMarkdown(w io.Writer, result *model.Result) error {
	headers, rows, ok := tabular(result, true)
	if !ok {
		return renderJSON(w, result)
	}
	if len(rows) == 0 {
		fmt.Fprintln(w, NoEntries)
		return nil
	}
	fmt.Fprintf(w, "| %s |\n", strings.Join(headers, " | "))
	seps := make([]string, len(headers))
	for i := range seps {
		seps[i] = "---"
	}
	fmt.Fprintf(w, "|%s|\n", strings.Join(seps, "|"))
	for _, r := range rows {
		cells := make([]string, len(r))
		for i, c := range r {
			cells[i] = mdEscape(c)
		}
		fmt.Fprintf(w, "| %s |\n", strings.Join(cells, " | "))
	}
	return nil
}

// ─── Tabular rows ─────────────────────────────────────────────────────────────

// tabular flattens result into a header and rows for the delimited and
// markdown formats. human selects display labels over raw codes.
func tabular(result *model.Result, human bool) ([]string, [][]string, bool) {
	tag := locale.Resolve(result.Lang)
	label := func(code string) string {
		if human {
			return locale.Label(tag, code)
		}
		return code
	}
	labels := func(codes []string) string {
		if human {
			return strings.Join(locale.Labels(tag, codes), ", ")
		}
		return strings.Join(codes, ";")
	}

	var rows [][]string
	switch d := result.Data.(type) {
	case model.CatalogueView:
		for _, s := range d.Sections {
			for _, ds := range s.Datasets {
				rows = append(rows, []string{s.Title, ds.ID, ds.Title, label(ds.Frequency),
					labels(ds.Geography), labels(ds.Demography), strings.Join(ds.Source, ";"),
					intOrEmpty(ds.DatasetBegin), intOrEmpty(ds.DatasetEnd)})
			}
		}
		return []string{"section", "id", "title", "frequency", "geography", "demography", "source", "dataset_begin", "dataset_end"}, rows, true

	case paginate.Page[model.Publication]:
		for _, p := range d.Items {
			rows = append(rows, []string{p.PublicationID, dateOnly(p.ReleaseDate), p.Title, label(p.Frequency),
				labels(p.Geography), labels(p.Demography), fmt.Sprintf("%d", p.TotalDownloads)})
		}
		return []string{"publication_id", "release_date", "title", "frequency", "geography", "demography", "total_downloads"}, rows, true

	case *model.PublicationDetail:
		for _, r := range d.Resources {
			rows = append(rows, []string{fmt.Sprintf("%d", r.ResourceID), r.ResourceName, r.ResourceType, r.ResourceLink, fmt.Sprintf("%d", r.Downloads)})
		}
		return []string{"resource_id", "resource_name", "resource_type", "resource_link", "downloads"}, rows, true

	case paginate.Page[model.UpcomingPublication]:
		for _, u := range d.Items {
			rows = append(rows, []string{u.ID, u.ISODate(), u.Title, u.Series})
		}
		return []string{"id", "date", "title", "series"}, rows, true

	case model.CalendarView:
		days := d.Days
		for _, week := range d.Weeks {
			days = append(days, week...)
		}
		for _, day := range days {
			for _, u := range day.Items {
				rows = append(rows, []string{day.Date, fmt.Sprintf("%t", day.InMonth), u.ID, u.Title})
			}
		}
		return []string{"date", "in_month", "id", "title"}, rows, true

	case []model.NSDPItem:
		for _, n := range d {
			rows = append(rows, []string{n.Category, n.Title, n.TitleLink, n.AsOf, n.LastUpdated, n.NextUpdate,
				n.SDMXXML, n.SDMXJSON, n.SDMXCSV, n.SDMXParquet, n.SDMXExcel})
		}
		return []string{"category", "title", "title_link", "as_of", "last_updated", "next_update",
			"sdmx_xml", "sdmx_json", "sdmx_csv", "sdmx_parquet", "sdmx_excel"}, rows, true

	case []store.View:
		for _, v := range d {
			rows = append(rows, []string{v.ID, v.Name, v.Page, v.Query, v.CreatedAt.Format(time.RFC3339)})
		}
		return []string{"id", "name", "page", "query", "created_at"}, rows, true

	case []string:
		for _, s := range d {
			rows = append(rows, []string{s})
		}
		return []string{"source"}, rows, true

	case model.QueryInspection:
		rows = [][]string{
			{"page", d.Page},
			{"input", d.Input},
			{"canonical", d.Canonical},
			{"is_canonical", fmt.Sprintf("%t", d.IsCanonical)},
			{"active", strings.Join(d.Active, ",")},
		}
		return []string{"field", "value"}, rows, true
	}
	return nil, nil, false
}

// ─── Warnings / Stats Footer ─────────────────────────────────────────────────

// PrintFooter writes warnings and stats to w when verbose mode is on.
func PrintFooter(w io.Writer, result *model.Result, verbose bool) {
	for _, warn := range result.Warnings {
		fmt.Fprintf(w, "⚠  %s\n", warn)
	}
	if verbose {
		src := "live"
		if result.Stats.CacheHit {
			src = "cache"
		}
		fmt.Fprintf(w, "\n[%s • %d items • %dms • %s]\n",
			result.GeneratedAt.Format(time.RFC3339),
			result.Stats.Items,
			result.Stats.DurationMs,
			src,
		)
		if result.Query != "" {
			fmt.Fprintf(w, "[query: %s]\n", result.Query)
		}
	}
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func intOrEmpty(n int) string {
	if n == 0 {
		return ""
	}
	return fmt.Sprintf("%d", n)
}

// dateOnly trims a timestamp to its calendar day.
func dateOnly(s string) string {
	if t, ok := model.ParseTimestamp(s); ok {
		return t.Format("2006-01-02")
	}
	return s
}

// truncate shortens s to at most n runes, marking the cut with an ellipsis.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}

func mdEscape(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	s = strings.ReplaceAll(s, "\n", " ")
	return s
}
