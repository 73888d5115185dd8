package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/language"

	dto "github.com/prometheus/client_model/go"

	"github.com/derickschaefer/opendosm/internal/analytics"
	"github.com/derickschaefer/opendosm/internal/loader"
	"github.com/derickschaefer/opendosm/internal/locale"
	"github.com/derickschaefer/opendosm/internal/metrics"
	"github.com/derickschaefer/opendosm/internal/model"
)

var fixedNow = time.Date(2024, 9, 14, 9, 0, 0, 0, time.UTC)

// ─── Fakes ────────────────────────────────────────────────────────────────────

type fakeLoader struct {
	mu         sync.Mutex
	err        error
	langs      []language.Tag
	downloaded []string
	pubs       []model.Publication
}

func (f *fakeLoader) seen(lang language.Tag) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.langs = append(f.langs, lang)
	return f.err
}

func (f *fakeLoader) Catalogue(_ context.Context, lang language.Tag) (*model.CatalogueIndex, loader.Meta, error) {
	if err := f.seen(lang); err != nil {
		return nil, loader.Meta{}, err
	}
	return &model.CatalogueIndex{
		Datasets: model.Collection{
			{Title: "Prices", Subcategories: []model.Subcategory{
				{Title: "Consumer", Datasets: []model.Dataset{
					{ID: "cpi", Title: "Consumer Price Index", Frequency: "MONTHLY", Source: []string{"DOSM"}},
					{ID: "cpi_annual", Title: "Annual CPI", Frequency: "YEARLY", Source: []string{"DOSM"}},
				}},
			}},
		},
		SourceFilters: []string{"DOSM", "BNM"},
	}, loader.Meta{CacheHit: true}, nil
}

func (f *fakeLoader) Publications(_ context.Context, lang language.Tag) ([]model.Publication, loader.Meta, error) {
	if err := f.seen(lang); err != nil {
		return nil, loader.Meta{}, err
	}
	return f.pubs, loader.Meta{Warnings: []string{"download counts unavailable: timeout"}}, nil
}

func (f *fakeLoader) Publication(_ context.Context, id string, lang language.Tag) (*model.PublicationDetail, loader.Meta, error) {
	if err := f.seen(lang); err != nil {
		return nil, loader.Meta{}, err
	}
	if id != "cpi_202408" {
		return nil, loader.Meta{}, fmt.Errorf("publication %s: %w", id, loader.ErrNotFound)
	}
	return &model.PublicationDetail{
		PublicationID: id,
		Title:         "CPI August 2024",
		Resources:     []model.Resource{{ResourceID: 1, ResourceName: "Report"}},
	}, loader.Meta{}, nil
}

func (f *fakeLoader) TechnicalNotes(ctx context.Context, lang language.Tag) ([]model.Publication, loader.Meta, error) {
	return f.Publications(ctx, lang)
}

func (f *fakeLoader) Upcoming(_ context.Context, lang language.Tag) ([]model.UpcomingPublication, loader.Meta, error) {
	if err := f.seen(lang); err != nil {
		return nil, loader.Meta{}, err
	}
	return []model.UpcomingPublication{
		{ID: "old", Title: "Trade July", Date: "2024-09-01"},
		{ID: "cpi", Title: "CPI August", Date: "2024-09-20"},
	}, loader.Meta{}, nil
}

func (f *fakeLoader) NSDP(_ context.Context, lang language.Tag) ([]model.NSDPItem, loader.Meta, error) {
	if err := f.seen(lang); err != nil {
		return nil, loader.Meta{}, err
	}
	return []model.NSDPItem{{Category: "Real Sector"}, {Title: "GDP"}}, loader.Meta{}, nil
}

func (f *fakeLoader) Downloaded(pubID string, resID int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.downloaded = append(f.downloaded, fmt.Sprintf("%s/%d", pubID, resID))
}

type fakeRecorder struct {
	err   error
	calls int
}

func (r *fakeRecorder) RecordDownload(context.Context, string, int) error {
	r.calls++
	return r.err
}

// ─── Helpers ──────────────────────────────────────────────────────────────────

func newTestServer(t *testing.T, l *fakeLoader, rec Recorder) http.Handler {
	t.Helper()
	if l.pubs == nil {
		for i := 0; i < 20; i++ {
			l.pubs = append(l.pubs, model.Publication{
				PublicationID: fmt.Sprintf("pub%02d", i),
				Title:         "Monthly survey",
				Frequency:     "MONTHLY",
			})
		}
	}
	s := New(l, rec, Options{
		Now:    func() time.Time { return fixedNow },
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return s.Router()
}

func do(t *testing.T, h http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

type envelope struct {
	Kind     string          `json:"kind"`
	Lang     string          `json:"lang"`
	Query    string          `json:"query"`
	Active   []string        `json:"active"`
	Data     json.RawMessage `json:"data"`
	Warnings []string        `json:"warnings"`
	Stats    model.ResultStats
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func counter(t *testing.T, page string) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, metrics.CanonicalRedirects.WithLabelValues(page).Write(&m))
	return m.GetCounter().GetValue()
}

// ─── Tests ────────────────────────────────────────────────────────────────────

func TestHealthz(t *testing.T) {
	h := newTestServer(t, &fakeLoader{}, nil)
	rec := do(t, h, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestCatalogueRedirectsToCanonical(t *testing.T) {
	h := newTestServer(t, &fakeLoader{}, nil)
	before := counter(t, "catalogue")

	rec := do(t, h, http.MethodGet, "/api/catalogue?frequency=monthly&source=dosm&utm=x&lang=bm")
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/api/catalogue?frequency=MONTHLY&lang=bm&source=DOSM", rec.Header().Get("Location"))
	assert.Equal(t, 1.0, counter(t, "catalogue")-before)
}

func TestCatalogueCanonicalServes(t *testing.T) {
	l := &fakeLoader{}
	h := newTestServer(t, l, nil)

	rec := do(t, h, http.MethodGet, "/api/catalogue?frequency=MONTHLY&lang=bm")
	require.Equal(t, http.StatusOK, rec.Code)
	env := decode(t, rec)
	assert.Equal(t, model.KindCatalogue, env.Kind)
	assert.Equal(t, "ms-MY", env.Lang)
	assert.Equal(t, "frequency=MONTHLY", env.Query)
	assert.Equal(t, []string{"frequency"}, env.Active)
	assert.True(t, env.Stats.CacheHit)

	var view model.CatalogueView
	require.NoError(t, json.Unmarshal(env.Data, &view))
	assert.Equal(t, 1, view.Total)
	require.Len(t, view.Sections, 1)
	assert.Equal(t, "Prices: Consumer", view.Sections[0].Title)
	assert.Equal(t, []language.Tag{locale.Malay}, l.langs)
}

func TestAcceptLanguageFallback(t *testing.T) {
	l := &fakeLoader{}
	h := newTestServer(t, l, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/nsdp", nil)
	req.Header.Set("Accept-Language", "ms;q=0.9, en;q=0.5")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ms-MY", decode(t, rec).Lang)
}

func TestPublicationsPaging(t *testing.T) {
	h := newTestServer(t, &fakeLoader{}, nil)

	rec := do(t, h, http.MethodGet, "/api/publications?page=2")
	require.Equal(t, http.StatusOK, rec.Code)
	env := decode(t, rec)
	assert.Equal(t, "page=2", env.Query)
	assert.Empty(t, env.Active, "page never counts as an active filter")
	assert.Equal(t, []string{"download counts unavailable: timeout"}, env.Warnings)

	var page struct {
		Items   []model.Publication `json:"items"`
		Total   int                 `json:"total"`
		Current int                 `json:"page"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &page))
	assert.Equal(t, 20, page.Total)
	assert.Equal(t, 2, page.Current)
	assert.Len(t, page.Items, 5)
}

func TestPublicationsDefaultPageIsImplicit(t *testing.T) {
	h := newTestServer(t, &fakeLoader{}, nil)
	rec := do(t, h, http.MethodGet, "/api/publications?page=1&search=")
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/api/publications", rec.Header().Get("Location"))
}

func TestPublicationsPastLastPageRedirects(t *testing.T) {
	h := newTestServer(t, &fakeLoader{}, nil)
	before := counter(t, "publications")

	rec := do(t, h, http.MethodGet, "/api/publications?page=99&lang=en")
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/api/publications?lang=en&page=2", rec.Header().Get("Location"))
	assert.Equal(t, 1.0, counter(t, "publications")-before)

	rec = do(t, h, http.MethodGet, "/api/publications?page=3&search=census")
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/api/publications?search=census", rec.Header().Get("Location"))
}

func TestPublicationsOutOfOrderSelectionRedirectsOnce(t *testing.T) {
	h := newTestServer(t, &fakeLoader{}, nil)
	rec := do(t, h, http.MethodGet, "/api/publications?geography=DISTRICT,STATE")
	require.Equal(t, http.StatusFound, rec.Code)
	loc := rec.Header().Get("Location")

	rec = do(t, h, http.MethodGet, loc)
	assert.Equal(t, http.StatusOK, rec.Code, "canonical location %q should be served", loc)
}

func TestPublicationsEmptyResult(t *testing.T) {
	h := newTestServer(t, &fakeLoader{}, nil)
	rec := do(t, h, http.MethodGet, "/api/publications?search=census")
	require.Equal(t, http.StatusOK, rec.Code)
	var page struct {
		Items []model.Publication `json:"items"`
		Total int                 `json:"total"`
	}
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &page))
	assert.Equal(t, 0, page.Total)
	assert.NotNil(t, page.Items)
	assert.Empty(t, page.Items)
}

func TestTechnicalNotesKind(t *testing.T) {
	h := newTestServer(t, &fakeLoader{}, nil)
	rec := do(t, h, http.MethodGet, "/api/technical-notes")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, model.KindTechnicalNotes, decode(t, rec).Kind)
}

func TestPublicationDetail(t *testing.T) {
	h := newTestServer(t, &fakeLoader{}, nil)

	rec := do(t, h, http.MethodGet, "/api/publications/cpi_202408")
	require.Equal(t, http.StatusOK, rec.Code)
	env := decode(t, rec)
	assert.Equal(t, model.KindPublication, env.Kind)
	assert.Equal(t, 1, env.Stats.Items)

	rec = do(t, h, http.MethodGet, "/api/publications/missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"not found"}`, rec.Body.String())
}

func TestUpstreamFailure(t *testing.T) {
	h := newTestServer(t, &fakeLoader{err: errors.New("connection refused")}, nil)
	rec := do(t, h, http.MethodGet, "/api/nsdp")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.NotContains(t, rec.Body.String(), "connection refused")
}

func TestUpcomingDropsPast(t *testing.T) {
	h := newTestServer(t, &fakeLoader{}, nil)
	rec := do(t, h, http.MethodGet, "/api/upcoming")
	require.Equal(t, http.StatusOK, rec.Code)
	var page struct {
		Items []model.UpcomingPublication `json:"items"`
	}
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &page))
	require.Len(t, page.Items, 1)
	assert.Equal(t, "cpi", page.Items[0].ID)
}

func TestCalendar(t *testing.T) {
	h := newTestServer(t, &fakeLoader{}, nil)

	type view struct {
		CanPrev bool                `json:"can_prev"`
		CanNext bool                `json:"can_next"`
		Weeks   [][]json.RawMessage `json:"weeks"`
		Days    []json.RawMessage   `json:"days"`
	}
	get := func(target string) (envelope, view) {
		rec := do(t, h, http.MethodGet, target)
		require.Equal(t, http.StatusOK, rec.Code, target)
		env := decode(t, rec)
		var v view
		require.NoError(t, json.Unmarshal(env.Data, &v))
		return env, v
	}

	env, v := get("/api/upcoming/calendar")
	assert.Equal(t, "2024-09", env.Query)
	assert.Len(t, v.Weeks, 6)
	assert.False(t, v.CanPrev)
	assert.True(t, v.CanNext)

	env, v = get("/api/upcoming/calendar?year=2025&month=2&layout=mobile")
	assert.Equal(t, "2025-02", env.Query)
	assert.Len(t, v.Days, 28)
	assert.Nil(t, v.Weeks)
	assert.True(t, v.CanPrev)

	env, _ = get("/api/upcoming/calendar?year=2020&month=1")
	assert.Equal(t, "2024-09", env.Query, "months before the current one clamp")

	env, v = get("/api/upcoming/calendar?year=2030&month=13")
	assert.Equal(t, "2024-09", env.Query, "malformed month shows the current month")
	assert.Len(t, v.Weeks, 6)
}

func TestDownload(t *testing.T) {
	l := &fakeLoader{}
	rec := &fakeRecorder{}
	h := newTestServer(t, l, rec)

	res := do(t, h, http.MethodPost, "/api/publications/cpi_202408/resources/2/downloads")
	assert.Equal(t, http.StatusAccepted, res.Code)
	assert.JSONEq(t, `{"status":"recorded"}`, res.Body.String())
	assert.Equal(t, []string{"cpi_202408/2"}, l.downloaded)

	rec.err = analytics.ErrPending
	res = do(t, h, http.MethodPost, "/api/publications/cpi_202408/resources/2/downloads")
	assert.Equal(t, http.StatusConflict, res.Code)

	rec.err = errors.New("boom")
	res = do(t, h, http.MethodPost, "/api/publications/cpi_202408/resources/2/downloads")
	assert.Equal(t, http.StatusAccepted, res.Code)
	assert.JSONEq(t, `{"status":"failed"}`, res.Body.String())
	assert.Len(t, l.downloaded, 1, "failed events are not counted locally")

	res = do(t, h, http.MethodPost, "/api/publications/cpi_202408/resources/pdf/downloads")
	assert.Equal(t, http.StatusBadRequest, res.Code)
	assert.Equal(t, 3, rec.calls)
}

func TestDownloadWithoutRecorder(t *testing.T) {
	h := newTestServer(t, &fakeLoader{}, nil)
	res := do(t, h, http.MethodPost, "/api/publications/x/resources/1/downloads")
	assert.Equal(t, http.StatusAccepted, res.Code)
	assert.JSONEq(t, `{"status":"disabled"}`, res.Body.String())
}

func TestUnknownRoute(t *testing.T) {
	h := newTestServer(t, &fakeLoader{}, nil)
	rec := do(t, h, http.MethodGet, "/api/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"not found"}`, rec.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	h := newTestServer(t, &fakeLoader{}, nil)
	do(t, h, http.MethodGet, "/healthz")
	rec := do(t, h, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "opendosm_http_requests_total")
}

func TestServeShutsDownOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ln, err := Listen(ctx, "127.0.0.1:0")
	require.NoError(t, err)

	grp, gctx := errgroup.WithContext(ctx)
	Serve(gctx, grp, &http.Server{Handler: newTestServer(t, &fakeLoader{}, nil)}, ln, time.Second)

	resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.True(t, strings.Contains(string(body), "ok"))

	cancel()
	assert.NoError(t, grp.Wait())
}
