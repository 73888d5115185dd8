package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/derickschaefer/opendosm/internal/app"
	"github.com/derickschaefer/opendosm/internal/loader"
	"github.com/derickschaefer/opendosm/internal/model"
	"github.com/derickschaefer/opendosm/internal/pages"
	"github.com/derickschaefer/opendosm/internal/query"
	"github.com/derickschaefer/opendosm/internal/render"
)

// outputWriter returns the writer commands print results to: stdout, or
// the --out file. The returned close func is always safe to call.
func outputWriter(stdout io.Writer) (io.Writer, func() error, error) {
	if globalFlags.Out == "" {
		return stdout, func() error { return nil }, nil
	}
	f, err := os.Create(globalFlags.Out)
	if err != nil {
		return nil, nil, fmt.Errorf("creating output file: %w", err)
	}
	return f, f.Close, nil
}

// resolveFormat returns the effective format string, falling back to "table".
func resolveFormat(cfgFormat string) string {
	if globalFlags.Format != "" {
		return globalFlags.Format
	}
	if cfgFormat != "" {
		return cfgFormat
	}
	return render.FormatTable
}

// pageDeps builds deps for a command that reads portal documents and opens
// the local store as a cache when it can.
func pageDeps() (*app.Deps, error) {
	deps, err := buildDeps()
	if err != nil {
		return nil, err
	}
	if err := deps.Config.Validate(); err != nil {
		return nil, err
	}
	deps.UseCache()
	return deps, nil
}

// emit renders result to the output writer. Warnings and, with --verbose,
// stats go to stderr so piped output stays clean.
func emit(cmd *cobra.Command, deps *app.Deps, result *model.Result) error {
	w, closeFn, err := outputWriter(cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer closeFn()

	if err := render.Render(w, result, resolveFormat(deps.Config.Format)); err != nil {
		return err
	}
	if !deps.Config.Quiet {
		render.PrintFooter(cmd.ErrOrStderr(), result, deps.Config.Verbose)
	}
	return nil
}

// printSimpleTable renders a simple table with headers using tablewriter.
// The add callback is called with row values as variadic strings.
func printSimpleTable(w io.Writer, headers []string, fill func(add func(...string))) {
	tw := tablewriter.NewWriter(w)
	tw.SetHeader(headers)
	tw.SetBorder(true)
	tw.SetRowLine(false)
	tw.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	tw.SetAlignment(tablewriter.ALIGN_LEFT)
	tw.SetAutoWrapText(false)

	fill(func(cols ...string) {
		tw.Append(cols)
	})
	tw.Render()
}

// parseIntID parses a string as a non-negative integer ID, with a descriptive label for errors.
func parseIntID(s, label string) (int, error) {
	id, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || id < 0 {
		return 0, fmt.Errorf("invalid %s %q: expected a non-negative integer", label, s)
	}
	return id, nil
}

// ─── Facet flags ──────────────────────────────────────────────────────────────

// stateFlags carries the per-facet flags of a listing command. They are
// applied on top of --query, so a saved query can be narrowed from the
// command line.
type stateFlags struct {
	query      string
	search     string
	frequency  string
	geography  string
	demography string
	source     string
	begin      string
	end        string
	page       int
}

// bind registers --query plus one flag per facet cfg recognises.
func (f *stateFlags) bind(cmd *cobra.Command, cfg query.PageConfig) {
	fl := cmd.Flags()
	fl.StringVar(&f.query, "query", "", `raw query string, e.g. "frequency=MONTHLY&search=cpi"`)
	for _, fc := range cfg.Facets {
		switch fc.Key {
		case query.KeySearch:
			fl.StringVar(&f.search, "search", "", "case-insensitive text match on title and description")
		case query.KeyFrequency:
			fl.StringVar(&f.frequency, "frequency", "", "frequency code: "+strings.ToLower(strings.Join(fc.Options, "|")))
		case query.KeyGeography:
			fl.StringVar(&f.geography, "geography", "", "comma-separated geography codes (all must match)")
		case query.KeyDemography:
			fl.StringVar(&f.demography, "demography", "", "comma-separated demography codes (all must match)")
		case query.KeySource:
			fl.StringVar(&f.source, "source", "", "publishing agency, see 'catalogue sources'")
		case query.KeyBegin:
			fl.StringVar(&f.begin, "begin", "", "earliest year of coverage")
		case query.KeyEnd:
			fl.StringVar(&f.end, "end", "", "latest year of coverage")
		case query.KeyPage:
			fl.IntVar(&f.page, "page", 1, "page number")
		}
	}
}

// raw merges --query with the facet flags set on the command line. A
// changed filter drops the page from --query; an explicit --page is
// applied last and always wins.
func (f *stateFlags) raw(cmd *cobra.Command, cfg query.PageConfig) string {
	_, current := query.Parse(cfg, f.query)
	changed := cmd.Flags().Changed

	upd := query.Updates{}
	for name, v := range map[string]string{
		"search":     f.search,
		"frequency":  f.frequency,
		"geography":  f.geography,
		"demography": f.demography,
		"source":     f.source,
		"begin":      f.begin,
		"end":        f.end,
	} {
		if cmd.Flags().Lookup(name) != nil && changed(name) {
			upd[query.Key(name)] = v
		}
	}
	next := query.Apply(cfg, current, upd)
	if cmd.Flags().Lookup("page") != nil && changed("page") {
		next = query.Apply(cfg, next, query.Updates{query.KeyPage: strconv.Itoa(f.page)})
	}
	return next.Encode()
}

// ─── Pages ────────────────────────────────────────────────────────────────────

// pageNames lists the pages runPage accepts.
func pageNames() string {
	names := make([]string, len(query.Pages))
	for i, p := range query.Pages {
		names[i] = p.Name
	}
	return strings.Join(names, ", ")
}

// runPage loads page and derives its payload from raw. Commands and saved
// views both go through here.
func runPage(ctx context.Context, deps *app.Deps, page, raw string) (*model.Result, error) {
	start := time.Now()
	lang := deps.Lang
	command := page
	if raw != "" {
		command += " ?" + raw
	}

	switch page {
	case query.Catalogue.Name:
		idx, meta, err := deps.Loader.Catalogue(ctx, lang)
		if err != nil {
			return nil, err
		}
		cfg := pages.CatalogueConfig(idx)
		st, _ := query.Parse(cfg, raw)
		view := pages.Catalogue(idx, st)
		return newResult(model.KindCatalogue, command, deps, cfg, st, view, view.Total, meta, start), nil

	case query.Publications.Name, query.TechnicalNotes.Name:
		cfg, kind, load := query.Publications, model.KindPublications, deps.Loader.Publications
		if page == query.TechnicalNotes.Name {
			cfg, kind, load = query.TechnicalNotes, model.KindTechnicalNotes, deps.Loader.TechnicalNotes
		}
		pubs, meta, err := load(ctx, lang)
		if err != nil {
			return nil, err
		}
		st, _ := query.Parse(cfg, raw)
		p := pages.Publications(pubs, st, deps.Config.PageSize)
		st.Page = p.Current
		return newResult(kind, command, deps, cfg, st, p, len(p.Items), meta, start), nil

	case query.Upcoming.Name:
		items, meta, err := deps.Loader.Upcoming(ctx, lang)
		if err != nil {
			return nil, err
		}
		st, _ := query.Parse(query.Upcoming, raw)
		p := pages.Upcoming(items, st, deps.Config.PageSize, time.Now())
		st.Page = p.Current
		return newResult(model.KindUpcoming, command, deps, query.Upcoming, st, p, len(p.Items), meta, start), nil
	}
	return nil, fmt.Errorf("unknown page %q (pages: %s)", page, pageNames())
}

// newResult wraps a page payload in the Result envelope. A zero cfg leaves
// Query and Active empty.
func newResult(kind, command string, deps *app.Deps, cfg query.PageConfig, st query.State, data interface{}, items int, meta loader.Meta, start time.Time) *model.Result {
	res := &model.Result{
		Kind:        kind,
		GeneratedAt: time.Now(),
		Command:     command,
		Lang:        deps.Lang.String(),
		Data:        data,
		Warnings:    meta.Warnings,
		Stats: model.ResultStats{
			CacheHit:   meta.CacheHit,
			DurationMs: time.Since(start).Milliseconds(),
			Items:      items,
		},
	}
	if cfg.Name != "" {
		res.Query = st.String(cfg)
		for _, k := range st.Active(cfg) {
			res.Active = append(res.Active, string(k))
		}
	}
	return res
}
