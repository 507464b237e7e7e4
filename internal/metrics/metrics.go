// Package metrics collects process counters for the telemetry gateway and the
// impact engine and renders them in the Prometheus text exposition format.
package metrics

import (
	"io"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

// ContentType is the Content-Type of the /metrics response body.
var ContentType = string(expfmt.NewFormat(expfmt.TypeTextPlain))

// Metrics holds gateway and scoring counters. The zero value is ready to use.
type Metrics struct {
	TokenExchanges   atomic.Int64
	TokenFailures    atomic.Int64
	TelemetryFetches atomic.Int64
	TelemetryErrors  atomic.Int64
	RateLimitRetries atomic.Int64
	AuthRetries      atomic.Int64
	CacheHits        atomic.Int64
	CacheMisses      atomic.Int64
	MalformedRecords atomic.Int64
	FilteredRecords  atomic.Int64
	LastFetchLatency atomic.Int64 // nanoseconds

	mu         sync.Mutex
	bySeverity map[string]int64
}

// New returns an empty Metrics.
func New() *Metrics {
	return &Metrics{bySeverity: make(map[string]int64)}
}

// ObserveFetch records one upstream telemetry fetch and its latency.
func (m *Metrics) ObserveFetch(d time.Duration, err error) {
	m.TelemetryFetches.Add(1)
	m.LastFetchLatency.Store(d.Nanoseconds())
	if err != nil {
		m.TelemetryErrors.Add(1)
	}
}

// ObserveImpact counts one scored impact under its severity tier.
func (m *Metrics) ObserveImpact(severity string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.bySeverity == nil {
		m.bySeverity = make(map[string]int64)
	}
	m.bySeverity[severity]++
}

// ImpactsBySeverity returns a copy of the per-severity impact counts.
func (m *Metrics) ImpactsBySeverity() map[string]int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]int64, len(m.bySeverity))
	for k, v := range m.bySeverity {
		out[k] = v
	}
	return out
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	TokenExchanges     int64            `json:"token_exchanges"`
	TokenFailures      int64            `json:"token_failures"`
	TelemetryFetches   int64            `json:"telemetry_fetches"`
	TelemetryErrors    int64            `json:"telemetry_errors"`
	RateLimitRetries   int64            `json:"rate_limit_retries"`
	AuthRetries        int64            `json:"auth_retries"`
	CacheHits          int64            `json:"cache_hits"`
	CacheMisses        int64            `json:"cache_misses"`
	MalformedRecords   int64            `json:"malformed_records"`
	FilteredRecords    int64            `json:"filtered_records"`
	LastFetchLatencyMs float64          `json:"last_fetch_latency_ms"`
	ImpactsBySeverity  map[string]int64 `json:"impacts_by_severity"`
}

// Snapshot returns a copy of current metrics.
func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		TokenExchanges:     m.TokenExchanges.Load(),
		TokenFailures:      m.TokenFailures.Load(),
		TelemetryFetches:   m.TelemetryFetches.Load(),
		TelemetryErrors:    m.TelemetryErrors.Load(),
		RateLimitRetries:   m.RateLimitRetries.Load(),
		AuthRetries:        m.AuthRetries.Load(),
		CacheHits:          m.CacheHits.Load(),
		CacheMisses:        m.CacheMisses.Load(),
		MalformedRecords:   m.MalformedRecords.Load(),
		FilteredRecords:    m.FilteredRecords.Load(),
		LastFetchLatencyMs: float64(m.LastFetchLatency.Load()) / 1e6,
		ImpactsBySeverity:  m.ImpactsBySeverity(),
	}
}

// WriteText writes every counter to w in the Prometheus text format.
func (m *Metrics) WriteText(w io.Writer) error {
	s := m.Snapshot()

	families := []*dto.MetricFamily{
		counter("aeroimpact_token_exchanges_total", "OAuth2 client-credentials exchanges performed.", s.TokenExchanges),
		counter("aeroimpact_token_failures_total", "Failed OAuth2 client-credentials exchanges.", s.TokenFailures),
		counter("aeroimpact_telemetry_fetches_total", "Upstream state-vector fetches.", s.TelemetryFetches),
		counter("aeroimpact_telemetry_errors_total", "Upstream state-vector fetches that failed.", s.TelemetryErrors),
		counter("aeroimpact_rate_limit_retries_total", "Retries performed after a 429 response.", s.RateLimitRetries),
		counter("aeroimpact_auth_retries_total", "Retries performed after a 401 response.", s.AuthRetries),
		counter("aeroimpact_snapshot_cache_hits_total", "Snapshot requests served from cache.", s.CacheHits),
		counter("aeroimpact_snapshot_cache_misses_total", "Snapshot requests that went upstream.", s.CacheMisses),
		counter("aeroimpact_malformed_records_total", "State vectors skipped because they could not be decoded.", s.MalformedRecords),
		counter("aeroimpact_filtered_records_total", "State vectors dropped as on-ground or without position.", s.FilteredRecords),
		gauge("aeroimpact_last_fetch_latency_seconds", "Latency of the most recent upstream fetch.", s.LastFetchLatencyMs/1000),
	}

	severities := make([]string, 0, len(s.ImpactsBySeverity))
	for k := range s.ImpactsBySeverity {
		severities = append(severities, k)
	}
	sort.Strings(severities)

	impacts := &dto.MetricFamily{
		Name: ptr("aeroimpact_impacts_total"),
		Help: ptr("Impacts scored, by severity tier."),
		Type: dto.MetricType_COUNTER.Enum(),
	}
	for _, sev := range severities {
		impacts.Metric = append(impacts.Metric, &dto.Metric{
			Label:   []*dto.LabelPair{{Name: ptr("severity"), Value: ptr(sev)}},
			Counter: &dto.Counter{Value: ptr(float64(s.ImpactsBySeverity[sev]))},
		})
	}
	if len(impacts.Metric) > 0 {
		families = append(families, impacts)
	}

	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}

func counter(name, help string, v int64) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name:   ptr(name),
		Help:   ptr(help),
		Type:   dto.MetricType_COUNTER.Enum(),
		Metric: []*dto.Metric{{Counter: &dto.Counter{Value: ptr(float64(v))}}},
	}
}

func gauge(name, help string, v float64) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name:   ptr(name),
		Help:   ptr(help),
		Type:   dto.MetricType_GAUGE.Enum(),
		Metric: []*dto.Metric{{Gauge: &dto.Gauge{Value: ptr(v)}}},
	}
}

func ptr[T any](v T) *T { return &v }
