package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/i474232898/aeroimpact/internal/metrics"
)

// DefaultSnapshotTTL is how long the default snapshot is served from memory.
const DefaultSnapshotTTL = 90 * time.Second

// sharedFetchTimeout bounds a fetch shared by several callers. It covers two
// upstream requests and one rate-limit wait.
const sharedFetchTimeout = 2 * time.Minute

// Source returns raw snapshots. *Fetcher satisfies it.
type Source interface {
	Fetch(ctx context.Context, filter Filter) (RawSnapshot, error)
}

type snapshotEntry struct {
	flights    []FlightPosition
	capturedAt time.Time
	seq        uint64 // order in which the producing fetch started
}

// SnapshotStatus describes the cached entry for health reporting.
type SnapshotStatus struct {
	Cached     bool      `json:"cached"`
	Flights    int       `json:"flights"`
	CapturedAt time.Time `json:"captured_at,omitempty"`
	Fresh      bool      `json:"fresh"`
}

// SnapshotOption configures a SnapshotCache.
type SnapshotOption func(*SnapshotCache)

// WithTTL sets the freshness window of the cached snapshot.
func WithTTL(d time.Duration) SnapshotOption {
	return func(c *SnapshotCache) {
		if d > 0 {
			c.ttl = d
		}
	}
}

// WithSnapshotMetrics records cache and normalization counters into m.
func WithSnapshotMetrics(m *metrics.Metrics) SnapshotOption {
	return func(c *SnapshotCache) {
		if m != nil {
			c.metrics = m
		}
	}
}

// SnapshotCache memoizes the normalized default snapshot.
type SnapshotCache struct {
	src     Source
	ttl     time.Duration
	now     func() time.Time // injectable for deterministic tests
	metrics *metrics.Metrics

	group singleflight.Group

	mu      sync.RWMutex
	entry   *snapshotEntry
	started uint64
}

// NewSnapshotCache creates a cache in front of src.
func NewSnapshotCache(src Source, opts ...SnapshotOption) *SnapshotCache {
	c := &SnapshotCache{
		src:     src,
		ttl:     DefaultSnapshotTTL,
		now:     time.Now,
		metrics: metrics.New(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetFlights returns the airborne flights for filter. The default filter is
// served from cache while fresh; concurrent misses share one upstream fetch.
// Failures are wrapped in ErrTelemetryUnavailable and leave any cached
// snapshot in place.
func (c *SnapshotCache) GetFlights(ctx context.Context, filter Filter) ([]FlightPosition, error) {
	if !filter.IsDefault() {
		flights, err := c.load(ctx, filter)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrTelemetryUnavailable, err)
		}
		return flights, nil
	}

	if flights, ok := c.fresh(); ok {
		c.metrics.CacheHits.Add(1)
		return flights, nil
	}

	// The shared fetch outlives any single caller; each caller still stops
	// waiting when its own context ends.
	ch := c.group.DoChan("default", func() (interface{}, error) {
		// Another caller may have refreshed while we waited on the group.
		if flights, ok := c.fresh(); ok {
			c.metrics.CacheHits.Add(1)
			return flights, nil
		}
		c.metrics.CacheMisses.Add(1)

		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedFetchTimeout)
		defer cancel()
		return c.loadDefault(fetchCtx)
	})

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", ErrTelemetryUnavailable, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, fmt.Errorf("%w: %w", ErrTelemetryUnavailable, res.Err)
		}
		return cloneFlights(res.Val.([]FlightPosition)), nil
	}
}

// Refresh forces a fetch of the default snapshot regardless of freshness.
// A fetch that started before the current entry's fetch never replaces it.
func (c *SnapshotCache) Refresh(ctx context.Context) error {
	if _, err := c.loadDefault(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrTelemetryUnavailable, err)
	}
	return nil
}

// loadDefault fetches the default snapshot and stores it unless a fetch that
// started later has already stored its result.
func (c *SnapshotCache) loadDefault(ctx context.Context) ([]FlightPosition, error) {
	c.mu.Lock()
	c.started++
	seq := c.started
	c.mu.Unlock()

	flights, err := c.load(ctx, Filter{})
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.entry != nil && c.entry.seq > seq {
		slog.Debug("telemetry: discarded snapshot superseded by a newer fetch", "seq", seq, "current", c.entry.seq)
		return cloneFlights(c.entry.flights), nil
	}
	c.entry = &snapshotEntry{flights: flights, capturedAt: c.now(), seq: seq}
	return flights, nil
}

// Status reports the state of the cached entry.
func (c *SnapshotCache) Status() SnapshotStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.entry == nil {
		return SnapshotStatus{}
	}
	return SnapshotStatus{
		Cached:     true,
		Flights:    len(c.entry.flights),
		CapturedAt: c.entry.capturedAt,
		Fresh:      c.now().Sub(c.entry.capturedAt) < c.ttl,
	}
}

func (c *SnapshotCache) fresh() ([]FlightPosition, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.entry == nil || c.now().Sub(c.entry.capturedAt) >= c.ttl {
		return nil, false
	}
	return cloneFlights(c.entry.flights), true
}

func (c *SnapshotCache) load(ctx context.Context, filter Filter) ([]FlightPosition, error) {
	raw, err := c.src.Fetch(ctx, filter)
	if err != nil {
		return nil, err
	}
	res, err := Normalize(raw)
	if err != nil {
		return nil, err
	}
	c.metrics.MalformedRecords.Add(int64(res.Malformed))
	c.metrics.FilteredRecords.Add(int64(res.OnGround + res.NoPosition))
	if res.Malformed > 0 {
		slog.Warn("telemetry: skipped malformed state vectors", "malformed", res.Malformed, "total", res.Total)
	}
	slog.Debug("telemetry: snapshot normalized",
		"total", res.Total, "airborne", len(res.Flights),
		"on_ground", res.OnGround, "no_position", res.NoPosition)
	return res.Flights, nil
}

// cloneFlights copies the slice so callers cannot mutate the cached entry.
// Pointer fields are shared; FlightPosition values are treated as immutable.
func cloneFlights(in []FlightPosition) []FlightPosition {
	out := make([]FlightPosition, len(in))
	copy(out, in)
	return out
}
