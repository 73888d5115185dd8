// Package server exposes the portal pages as a JSON service. The request
// query string is the page state: non-canonical queries are redirected to
// their canonical form before anything is rendered.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/language"

	"github.com/derickschaefer/opendosm/internal/analytics"
	"github.com/derickschaefer/opendosm/internal/calendar"
	"github.com/derickschaefer/opendosm/internal/loader"
	"github.com/derickschaefer/opendosm/internal/locale"
	"github.com/derickschaefer/opendosm/internal/metrics"
	"github.com/derickschaefer/opendosm/internal/model"
	"github.com/derickschaefer/opendosm/internal/pages"
	"github.com/derickschaefer/opendosm/internal/query"
)

// Server timeouts. Writes get longer than reads because a cold cache
// fetches several upstream documents before the first byte goes out.
const (
	ReadHeaderTimeout = 1 * time.Second
	ReadTimeout       = 5 * time.Second
	WriteTimeout      = 60 * time.Second
	ShutdownTimeout   = 10 * time.Second
)

// Loader is the subset of *loader.Loader the handlers use.
type Loader interface {
	Catalogue(ctx context.Context, lang language.Tag) (*model.CatalogueIndex, loader.Meta, error)
	Publications(ctx context.Context, lang language.Tag) ([]model.Publication, loader.Meta, error)
	Publication(ctx context.Context, id string, lang language.Tag) (*model.PublicationDetail, loader.Meta, error)
	TechnicalNotes(ctx context.Context, lang language.Tag) ([]model.Publication, loader.Meta, error)
	Upcoming(ctx context.Context, lang language.Tag) ([]model.UpcomingPublication, loader.Meta, error)
	NSDP(ctx context.Context, lang language.Tag) ([]model.NSDPItem, loader.Meta, error)
	Downloaded(publicationID string, resourceID int)
}

// Recorder submits download events. *analytics.Client satisfies it.
type Recorder interface {
	RecordDownload(ctx context.Context, publicationID string, resourceID int) error
}

// Options configures a Server.
type Options struct {
	// Lang is used when a request names no language.
	Lang language.Tag
	// PageSize overrides the listing page size when positive.
	PageSize int
	// Now defaults to time.Now.
	Now    func() time.Time
	Logger *slog.Logger
}

// Server holds the handlers' dependencies.
type Server struct {
	load Loader
	rec  Recorder
	opts Options
	log  *slog.Logger
}

// New returns a Server. rec may be nil, in which case download events are
// accepted and dropped.
func New(l Loader, rec Recorder, opts Options) *Server {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Lang == language.Und {
		opts.Lang = locale.English
	}
	return &Server{load: l, rec: rec, opts: opts, log: opts.Logger}
}

// ─── Routing ──────────────────────────────────────────────────────────────────

// Router builds the chi router with the full middleware stack.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/catalogue", s.catalogue)
		r.Get("/technical-notes", s.technicalNotes)
		r.Get("/nsdp", s.nsdp)

		r.Route("/publications", func(r chi.Router) {
			r.Get("/", s.publications)
			r.Get("/{id}", s.publication)
			r.Post("/{id}/resources/{resource}/downloads", s.download)
		})

		r.Route("/upcoming", func(r chi.Router) {
			r.Get("/", s.upcoming)
			r.Get("/calendar", s.calendar)
		})
	})
	return r
}

// requestLogger logs one line per request at info level.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start).String(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// ─── Serving ──────────────────────────────────────────────────────────────────

// Listen creates a TCP listener on addr. Use "127.0.0.1:0" for a random port.
func Listen(ctx context.Context, addr string) (net.Listener, error) {
	var lc net.ListenConfig
	return lc.Listen(ctx, "tcp", addr)
}

// Serve starts srv on listener and shuts it down gracefully when ctx is
// canceled.
func Serve(ctx context.Context, grp *errgroup.Group, srv *http.Server, listener net.Listener, shutdownTimeout time.Duration) {
	srv.ReadHeaderTimeout = ReadHeaderTimeout
	srv.ReadTimeout = ReadTimeout
	srv.WriteTimeout = WriteTimeout

	grp.Go(func() error {
		err := srv.Serve(listener)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})

	grp.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}

// Run listens on addr and serves until ctx is canceled.
func (s *Server) Run(ctx context.Context, addr string) error {
	ln, err := Listen(ctx, addr)
	if err != nil {
		return err
	}
	grp, gctx := errgroup.WithContext(ctx)
	Serve(gctx, grp, &http.Server{Handler: s.Router()}, ln, ShutdownTimeout)
	s.log.Info("listening", "addr", ln.Addr().String())
	return grp.Wait()
}

// ─── Handlers ─────────────────────────────────────────────────────────────────

func (s *Server) catalogue(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	lang := s.lang(r)
	idx, meta, err := s.load.Catalogue(r.Context(), lang)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	// The source facet's options come from the document, so the canonical
	// form is only known after loading.
	cfg := pages.CatalogueConfig(idx)
	st, ok := s.canonical(w, r, cfg)
	if !ok {
		return
	}
	view := pages.Catalogue(idx, st)
	writeJSON(w, http.StatusOK, s.envelope(model.KindCatalogue, r, lang, cfg, st, view, view.Total, meta, start))
}

func (s *Server) publications(w http.ResponseWriter, r *http.Request) {
	s.listing(w, r, query.Publications, model.KindPublications, s.load.Publications)
}

func (s *Server) technicalNotes(w http.ResponseWriter, r *http.Request) {
	s.listing(w, r, query.TechnicalNotes, model.KindTechnicalNotes, s.load.TechnicalNotes)
}

type listFunc func(context.Context, language.Tag) ([]model.Publication, loader.Meta, error)

func (s *Server) listing(w http.ResponseWriter, r *http.Request, cfg query.PageConfig, kind string, load listFunc) {
	start := time.Now()
	st, ok := s.canonical(w, r, cfg)
	if !ok {
		return
	}
	lang := s.lang(r)
	pubs, meta, err := load(r.Context(), lang)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	page := pages.Publications(pubs, st, s.opts.PageSize)
	if s.clamped(w, r, cfg, st, page.Current) {
		return
	}
	writeJSON(w, http.StatusOK, s.envelope(kind, r, lang, cfg, st, page, len(page.Items), meta, start))
}

func (s *Server) publication(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	lang := s.lang(r)
	d, meta, err := s.load.Publication(r.Context(), chi.URLParam(r, "id"), lang)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	res := s.envelope(model.KindPublication, r, lang, query.PageConfig{}, query.State{}, d, len(d.Resources), meta, start)
	res.Query = ""
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) upcoming(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	st, ok := s.canonical(w, r, query.Upcoming)
	if !ok {
		return
	}
	lang := s.lang(r)
	items, meta, err := s.load.Upcoming(r.Context(), lang)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	page := pages.Upcoming(items, st, s.opts.PageSize, s.opts.Now())
	if s.clamped(w, r, query.Upcoming, st, page.Current) {
		return
	}
	writeJSON(w, http.StatusOK, s.envelope(model.KindUpcoming, r, lang, query.Upcoming, st, page, len(page.Items), meta, start))
}

// calendar shows ?year=&month= clamped into the navigable range. Missing
// or malformed values show the current month. layout=mobile lists the
// month's days instead of the 6×7 grid.
func (s *Server) calendar(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	lang := s.lang(r)
	items, meta, err := s.load.Upcoming(r.Context(), lang)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	today := s.opts.Now()
	nav := calendar.NewNavigator(today)
	q := r.URL.Query()
	year, yerr := strconv.Atoi(q.Get("year"))
	month, merr := strconv.Atoi(q.Get("month"))
	if yerr == nil && merr == nil && month >= 1 && month <= 12 {
		nav = nav.Show(calendar.Month{Year: year, Month: time.Month(month)})
	} else if q.Get("nav") == "today" {
		nav = nav.Today()
	}
	view := pages.Calendar(items, nav, q.Get("layout") == "mobile", today)
	n := len(view.Days)
	if n == 0 {
		n = len(view.Weeks) * calendar.DaysPerWeek
	}
	res := s.envelope(model.KindCalendar, r, lang, query.PageConfig{}, query.State{}, view, n, meta, start)
	res.Query = nav.Shown.String()
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) nsdp(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	lang := s.lang(r)
	items, meta, err := s.load.NSDP(r.Context(), lang)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.envelope(model.KindNSDP, r, lang, query.PageConfig{}, query.State{}, items, len(items), meta, start))
}

// download records a resource download. The event is best effort: anything
// short of a malformed request or a pending event is acknowledged with 202.
func (s *Server) download(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	res, err := strconv.Atoi(chi.URLParam(r, "resource"))
	if err != nil || res < 0 {
		writeError(w, http.StatusBadRequest, "resource must be a non-negative integer")
		return
	}
	if s.rec == nil {
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "disabled"})
		return
	}

	switch err := s.rec.RecordDownload(r.Context(), id, res); {
	case err == nil:
		s.load.Downloaded(id, res)
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "recorded"})
	case errors.Is(err, analytics.ErrPending):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, analytics.ErrDisabled):
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "disabled"})
	default:
		s.log.Warn("download event failed", "publication", id, "resource", res, "err", err)
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "failed"})
	}
}

// ─── Helpers ──────────────────────────────────────────────────────────────────

// lang resolves ?lang=, then Accept-Language, then the server default.
func (s *Server) lang(r *http.Request) language.Tag {
	if v := r.URL.Query().Get("lang"); v != "" {
		return locale.Resolve(v)
	}
	if h := r.Header.Get("Accept-Language"); h != "" {
		return locale.Resolve(h)
	}
	return s.opts.Lang
}

// canonical decodes the request query for cfg. When the query is not in
// canonical form it redirects with 302 and returns false. The lang
// parameter is carried over untouched.
func (s *Server) canonical(w http.ResponseWriter, r *http.Request, cfg query.PageConfig) (query.State, bool) {
	q := r.URL.Query()
	lang := q.Get("lang")
	q.Del("lang")

	canon, ok := query.Canonical(cfg, q)
	if ok {
		return query.Decode(cfg, q), true
	}
	s.redirect(w, r, cfg, canon, lang)
	return query.State{}, false
}

// clamped redirects to the page actually served when st asked for one past
// the end. It reports whether a redirect was written.
func (s *Server) clamped(w http.ResponseWriter, r *http.Request, cfg query.PageConfig, st query.State, current int) bool {
	if current == st.Page {
		return false
	}
	st.Page = current
	s.redirect(w, r, cfg, query.Values(cfg, st), r.URL.Query().Get("lang"))
	return true
}

func (s *Server) redirect(w http.ResponseWriter, r *http.Request, cfg query.PageConfig, canon url.Values, lang string) {
	if lang != "" {
		canon.Set("lang", lang)
	}
	target := r.URL.Path
	if enc := canon.Encode(); enc != "" {
		target += "?" + enc
	}
	metrics.CanonicalRedirects.WithLabelValues(cfg.Name).Inc()
	http.Redirect(w, r, target, http.StatusFound)
}

func (s *Server) envelope(kind string, r *http.Request, lang language.Tag, cfg query.PageConfig, st query.State, data any, items int, meta loader.Meta, start time.Time) model.Result {
	res := model.Result{
		Kind:        kind,
		GeneratedAt: s.opts.Now().UTC(),
		Command:     r.Method + " " + r.URL.Path,
		Lang:        lang.String(),
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

// fail maps a load error to a response. A missing essential document is a
// 404; anything else is reported as an upstream failure.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, loader.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	s.log.Error("loading page", "path", r.URL.Path, "err", err)
	writeError(w, http.StatusBadGateway, "upstream unavailable")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
