// Package analytics talks to the download analytics endpoint: it reads the
// per-resource download totals and submits download events.
package analytics

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/derickschaefer/opendosm/internal/metrics"
	"github.com/derickschaefer/opendosm/internal/model"
)

const (
	eventsPath  = "events?name=dgmy_pub_dls"
	countsPath  = "pipes/publication_dls_by_pub_res.json"
	timestampFs = "2006-01-02 15:04:05.000"
)

// ErrPending is returned by RecordDownload while an earlier submission is
// still in flight.
var ErrPending = errors.New("download event already pending")

// ErrDisabled is returned when no endpoint is configured.
var ErrDisabled = errors.New("analytics endpoint not configured")

// Client is the analytics HTTP client. The zero value is not usable; use New.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	now        func() time.Time
	pending    atomic.Bool
}

// New creates a Client. An empty baseURL yields a client whose calls
// return ErrDisabled.
func New(baseURL, token string, timeout time.Duration) *Client {
	if baseURL != "" {
		baseURL = strings.TrimRight(baseURL, "/") + "/"
	}
	return &Client{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
		now:        time.Now,
	}
}

// Enabled reports whether an endpoint is configured.
func (c *Client) Enabled() bool { return c != nil && c.baseURL != "" }

// Counts fetches download totals for every publication resource.
func (c *Client) Counts(ctx context.Context) ([]model.DownloadCount, error) {
	if !c.Enabled() {
		return nil, ErrDisabled
	}
	req, err := c.newRequest(ctx, http.MethodGet, countsPath, nil)
	if err != nil {
		return nil, err
	}
	body, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("download counts: %w", err)
	}
	var raw struct {
		Data []model.DownloadCount `json:"data"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decoding download counts: %w", err)
	}
	return raw.Data, nil
}

// RecordDownload submits one download event. It is best effort and never
// retried; a call made while another is in flight returns ErrPending
// without sending anything.
func (c *Client) RecordDownload(ctx context.Context, publicationID string, resourceID int) error {
	if !c.Enabled() {
		return ErrDisabled
	}
	if !c.pending.CompareAndSwap(false, true) {
		metrics.DownloadEvents.WithLabelValues("pending").Inc()
		return ErrPending
	}
	defer c.pending.Store(false)

	ev := model.DownloadEvent{
		PublicationID: publicationID,
		ResourceID:    resourceID,
		Timestamp:     c.now().Format(timestampFs),
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	req, err := c.newRequest(ctx, http.MethodPost, eventsPath, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	if _, err := c.do(req); err != nil {
		metrics.DownloadEvents.WithLabelValues("error").Inc()
		return fmt.Errorf("download event: %w", err)
	}
	metrics.DownloadEvents.WithLabelValues("ok").Inc()
	slog.Debug("download event recorded", "publication", publicationID, "resource", resourceID)
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	slog.Debug("analytics request", "method", req.Method, "url", req.URL.String())
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}

// ─── Enrichment ───────────────────────────────────────────────────────────────

// Enrich returns a copy of pubs with TotalDownloads summed from counts.
// Publications with no counts get zero.
func Enrich(pubs []model.Publication, counts []model.DownloadCount) []model.Publication {
	totals := make(map[string]int, len(counts))
	for _, c := range counts {
		totals[c.PublicationID] += c.TotalDownloads
	}
	out := make([]model.Publication, len(pubs))
	for i, p := range pubs {
		p.TotalDownloads = totals[p.PublicationID]
		out[i] = p
	}
	return out
}

// EnrichResources returns a copy of d with per-resource download counts.
// Count rows carry the resource id as a string and are compared numerically.
func EnrichResources(d model.PublicationDetail, counts []model.DownloadCount) model.PublicationDetail {
	byRes := make(map[int]int)
	for _, c := range counts {
		if c.PublicationID != d.PublicationID {
			continue
		}
		id, err := strconv.Atoi(strings.TrimSpace(c.ResourceID))
		if err != nil {
			continue
		}
		if _, seen := byRes[id]; !seen {
			byRes[id] = c.TotalDownloads
		}
	}
	res := make([]model.Resource, len(d.Resources))
	for i, r := range d.Resources {
		r.Downloads = byRes[r.ResourceID]
		res[i] = r
	}
	d.Resources = res
	return d
}

// Increment bumps the local counts after a successful download event, so a
// re-render reflects it without refetching.
func Increment(counts []model.DownloadCount, publicationID string, resourceID int) []model.DownloadCount {
	rid := strconv.Itoa(resourceID)
	out := make([]model.DownloadCount, len(counts), len(counts)+1)
	copy(out, counts)
	for i := range out {
		if out[i].PublicationID == publicationID && strings.TrimSpace(out[i].ResourceID) == rid {
			out[i].TotalDownloads++
			return out
		}
	}
	return append(out, model.DownloadCount{PublicationID: publicationID, ResourceID: rid, TotalDownloads: 1})
}
