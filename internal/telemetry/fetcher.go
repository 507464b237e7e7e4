package telemetry

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/i474232898/aeroimpact/internal/metrics"
)

const (
	// DefaultBaseURL is the OpenSky REST API root.
	DefaultBaseURL = "https://opensky-network.org/api"

	statesPath = "/states/all"

	defaultFetchTimeout = 20 * time.Second

	retryAfterHeader  = "X-Rate-Limit-Retry-After-Seconds"
	defaultRetryAfter = 10 * time.Second
	minRetryAfter     = time.Second

	maxSnapshotBody = 32 << 20
)

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher)

// WithBaseURL overrides the API root (useful for testing).
func WithBaseURL(u string) FetcherOption {
	return func(f *Fetcher) { f.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) FetcherOption {
	return func(f *Fetcher) { f.httpClient = hc }
}

// WithTokenCache attaches bearer credentials to every request.
func WithTokenCache(tc *TokenCache) FetcherOption {
	return func(f *Fetcher) { f.tokens = tc }
}

// WithTimeout bounds each individual upstream request.
func WithTimeout(d time.Duration) FetcherOption {
	return func(f *Fetcher) {
		if d > 0 {
			f.timeout = d
		}
	}
}

// WithMetrics records fetches into m.
func WithMetrics(m *metrics.Metrics) FetcherOption {
	return func(f *Fetcher) {
		if m != nil {
			f.metrics = m
		}
	}
}

// Fetcher retrieves raw state-vector snapshots from OpenSky.
type Fetcher struct {
	baseURL    string
	httpClient *http.Client
	tokens     *TokenCache
	timeout    time.Duration
	metrics    *metrics.Metrics
	sleep      func(ctx context.Context, d time.Duration) error
}

// NewFetcher creates a Fetcher. Without WithTokenCache it issues anonymous requests.
func NewFetcher(opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{},
		timeout:    defaultFetchTimeout,
		metrics:    metrics.New(),
		sleep:      sleepContext,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch returns the unmodified /states/all body for filter.
//
// A 429 is retried once after the advertised delay and a 401 is retried once
// with a freshly exchanged token. The 429 check runs first.
func (f *Fetcher) Fetch(ctx context.Context, filter Filter) (RawSnapshot, error) {
	start := time.Now()
	body, err := f.fetch(ctx, filter)
	f.metrics.ObserveFetch(time.Since(start), err)
	if err != nil {
		return nil, err
	}
	return RawSnapshot(body), nil
}

func (f *Fetcher) fetch(ctx context.Context, filter Filter) ([]byte, error) {
	resp, err := f.do(ctx, filter)
	if err != nil {
		return nil, err
	}

	if resp.status == http.StatusTooManyRequests {
		wait := retryAfter(resp.header)
		slog.Warn("telemetry: rate limited, retrying once", "wait", wait)
		f.metrics.RateLimitRetries.Add(1)
		if err := f.sleep(ctx, wait); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrRateLimited, err)
		}
		if resp, err = f.do(ctx, filter); err != nil {
			return nil, err
		}
		if resp.status == http.StatusTooManyRequests {
			return nil, ErrRateLimited
		}
	}

	if resp.status == http.StatusUnauthorized {
		slog.Warn("telemetry: credentials rejected, refreshing token")
		f.metrics.AuthRetries.Add(1)
		f.tokens.Invalidate(resp.token)
		if resp, err = f.do(ctx, filter); err != nil {
			return nil, err
		}
		switch resp.status {
		case http.StatusUnauthorized:
			return nil, ErrAuthentication
		case http.StatusTooManyRequests:
			return nil, ErrRateLimited
		}
	}

	if resp.status < 200 || resp.status > 299 {
		return nil, &UpstreamError{StatusCode: resp.status, Body: snippet(resp.body)}
	}
	return resp.body, nil
}

type rawResponse struct {
	status int
	header http.Header
	body   []byte
	token  string // bearer sent with the request
}

// do performs one GET with a fresh token lookup and reads the whole body.
func (f *Fetcher) do(ctx context.Context, filter Filter) (*rawResponse, error) {
	token, err := f.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	u := f.baseURL + statesPath
	if q := filter.Query(); len(q) > 0 {
		u += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching states: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSnapshotBody))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	return &rawResponse{status: resp.StatusCode, header: resp.Header, body: body, token: token}, nil
}

// retryAfter reads the provider's wait hint in seconds, defaulting to 10s and
// never going below one second.
func retryAfter(h http.Header) time.Duration {
	v := h.Get(retryAfterHeader)
	if v == "" {
		v = h.Get("Retry-After")
	}
	if v == "" {
		return defaultRetryAfter
	}
	secs, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return defaultRetryAfter
	}
	d := time.Duration(secs * float64(time.Second))
	if d < minRetryAfter {
		return minRetryAfter
	}
	return d
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
