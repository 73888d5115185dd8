package cmd

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/opendosm/internal/app"
	"github.com/derickschaefer/opendosm/internal/config"
	"github.com/derickschaefer/opendosm/internal/content"
	"github.com/derickschaefer/opendosm/internal/loader"
	"github.com/derickschaefer/opendosm/internal/locale"
	"github.com/derickschaefer/opendosm/internal/query"
)

func TestOutputWriterDefault(t *testing.T) {
	globalFlags.Out = ""
	w, closeFn, err := outputWriter(os.Stdout)
	if err != nil {
		t.Fatalf("outputWriter default: %v", err)
	}
	if w != os.Stdout {
		t.Fatalf("expected stdout writer passthrough")
	}
	if err := closeFn(); err != nil {
		t.Fatalf("default closer should be nil error, got: %v", err)
	}
}

func TestOutputWriterFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "out.txt")
	globalFlags.Out = p
	t.Cleanup(func() { globalFlags.Out = "" })

	w, closeFn, err := outputWriter(os.Stdout)
	if err != nil {
		t.Fatalf("outputWriter file: %v", err)
	}
	if w == os.Stdout {
		t.Fatalf("expected file writer, got stdout")
	}
	if err := closeFn(); err != nil {
		t.Fatalf("closing output writer: %v", err)
	}
	if _, err := os.Stat(p); err != nil {
		t.Fatalf("expected output file to exist: %v", err)
	}
}

func TestParseIntIDAllowsZero(t *testing.T) {
	got, err := parseIntID("0", "resource ID")
	if err != nil {
		t.Fatalf("expected zero to be valid, got error: %v", err)
	}
	if got != 0 {
		t.Fatalf("expected parsed zero, got %d", got)
	}
}

func TestParseIntIDRejectsNegative(t *testing.T) {
	if _, err := parseIntID("-1", "resource ID"); err == nil {
		t.Fatal("expected error for negative id")
	}
	if _, err := parseIntID("pdf", "resource ID"); err == nil {
		t.Fatal("expected error for non-numeric id")
	}
}

func parseStateFlags(t *testing.T, cfg query.PageConfig, args ...string) string {
	t.Helper()
	c := &cobra.Command{Use: "test"}
	var f stateFlags
	f.bind(c, cfg)
	if err := c.Flags().Parse(args); err != nil {
		t.Fatalf("parsing flags %v: %v", args, err)
	}
	return f.raw(c, cfg)
}

func TestStateFlagsFilterDropsQueryPage(t *testing.T) {
	got := parseStateFlags(t, query.Publications, "--query", "page=3&search=gdp", "--frequency", "monthly")
	if got != "frequency=monthly&search=gdp" {
		t.Errorf("expected page dropped on filter change, got %q", got)
	}
}

func TestStateFlagsExplicitPageWins(t *testing.T) {
	got := parseStateFlags(t, query.Publications, "--query", "search=gdp", "--search", "cpi", "--page", "2")
	if got != "page=2&search=cpi" {
		t.Errorf("expected explicit page kept, got %q", got)
	}
}

func TestStateFlagsUnchangedKeepsQuery(t *testing.T) {
	got := parseStateFlags(t, query.Publications, "--query", "?page=4&search=gdp")
	if got != "page=4&search=gdp" {
		t.Errorf("expected --query passed through, got %q", got)
	}
}

func TestStateFlagsOnlyPageFacetsBound(t *testing.T) {
	c := &cobra.Command{Use: "test"}
	var f stateFlags
	f.bind(c, query.TechnicalNotes)
	if c.Flags().Lookup("frequency") != nil {
		t.Error("technical notes should not offer --frequency")
	}
	if c.Flags().Lookup("search") == nil || c.Flags().Lookup("page") == nil {
		t.Error("technical notes should offer --search and --page")
	}
}

func TestPageNames(t *testing.T) {
	if got := pageNames(); got != "catalogue, publications, technical-notes, upcoming" {
		t.Errorf("pageNames: got %q", got)
	}
}

// ─── runPage ──────────────────────────────────────────────────────────────────

type docFetcher map[content.Document]string

func (f docFetcher) Fetch(_ context.Context, ref content.Ref) ([]byte, error) {
	body, ok := f[ref.Doc]
	if !ok {
		return nil, content.ErrNotFound
	}
	return []byte(body), nil
}

func TestRunPageReportsClampedPage(t *testing.T) {
	f := docFetcher{content.DocPublications: `{"results":[
  {"publication_id":"a","title":"A","release_date":"2024-03-01"},
  {"publication_id":"b","title":"B","release_date":"2024-02-01"},
  {"publication_id":"c","title":"C","release_date":"2024-01-01"}
]}`}
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	deps := &app.Deps{
		Config: &config.Config{PageSize: 2},
		Logger: quiet,
		Lang:   locale.English,
		Loader: loader.New(f, nil, nil, loader.Options{}, quiet),
	}

	res, err := runPage(context.Background(), deps, query.Publications.Name, "page=99&search=")
	if err != nil {
		t.Fatalf("runPage: %v", err)
	}
	if res.Query != "page=2" {
		t.Errorf("Query: expected %q, got %q", "page=2", res.Query)
	}
	if res.Stats.Items != 1 {
		t.Errorf("Items: expected 1, got %d", res.Stats.Items)
	}
}
