package content

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/die-net/lrucache"
	"github.com/gregjones/httpcache"
	"golang.org/x/time/rate"
)

const (
	maxRetries        = 4
	userAgent         = "opendosm-cli/1.0"
	maxHTTPCacheBytes = 64 * 1024 * 1024 // 64 MiB
	maxHTTPCacheAge   = 0                // honour upstream headers only
)

// HTTPOptions configures an HTTPSource.
type HTTPOptions struct {
	BaseURL string
	Token   string // sent as a bearer token when set
	Timeout time.Duration
	Rate    float64 // requests per second
	// Transport is the innermost round tripper; nil uses http.DefaultTransport.
	Transport http.RoundTripper
}

// HTTPSource reads documents from an HTTP endpoint. Requests share a rate
// limiter, retry on 429 and 5xx with exponential backoff, and are served
// through an in-memory RFC 7234 cache.
type HTTPSource struct {
	baseURL    string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewHTTPSource creates an HTTPSource for opts.
func NewHTTPSource(opts HTTPOptions) *HTTPSource {
	burst := int(opts.Rate)
	if burst < 1 {
		burst = 1
	}
	limit := rate.Limit(opts.Rate)
	if opts.Rate <= 0 {
		limit = rate.Inf
	}
	inner := opts.Transport
	if inner == nil {
		inner = http.DefaultTransport
	}
	return &HTTPSource{
		baseURL: strings.TrimRight(opts.BaseURL, "/") + "/",
		token:   opts.Token,
		httpClient: &http.Client{
			Transport: &httpcache.Transport{
				Cache:               lrucache.New(maxHTTPCacheBytes, maxHTTPCacheAge),
				Transport:           inner,
				MarkCachedResponses: true,
			},
			Timeout: opts.Timeout,
		},
		limiter: rate.NewLimiter(limit, burst),
	}
}

// Get fetches key relative to the base URL.
func (s *HTTPSource) Get(ctx context.Context, key string) ([]byte, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	reqURL := s.baseURL + strings.TrimLeft(key, "/")
	slog.Debug("content request", "url", reqURL)

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt-1))*500) * time.Millisecond
			slog.Debug("retrying after backoff", "attempt", attempt, "backoff", backoff)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, fmt.Errorf("building request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", userAgent)
		if s.token != "" {
			req.Header.Set("Authorization", "Bearer "+s.token)
		}

		resp, err := s.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = fmt.Errorf("http: %w", err)
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("reading body: %w", err)
			continue
		}

		slog.Debug("content response",
			"status", resp.StatusCode,
			"bytes", len(body),
			"cached", resp.Header.Get(httpcache.XFromCache) != "")

		switch {
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			lastErr = fmt.Errorf("HTTP %d: %s", resp.StatusCode, snippet(body))
			continue
		case resp.StatusCode == http.StatusNotFound:
			return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
		case resp.StatusCode != http.StatusOK:
			return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, snippet(body))
		}
		return body, nil
	}
	return nil, fmt.Errorf("after %d attempts: %w", maxRetries, lastErr)
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
