package impact

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/aeroimpact/internal/metrics"
	"github.com/i474232898/aeroimpact/internal/telemetry"
)

type stubWeather struct {
	risk WeatherRisk
	err  error
	fail map[float64]bool // latitudes that fail
}

func (s *stubWeather) Name() string { return "stub-weather" }

func (s *stubWeather) WeatherRisk(_ context.Context, q WeatherQuery) (WeatherRisk, error) {
	if s.err != nil {
		return WeatherRisk{}, s.err
	}
	if s.fail[q.Latitude] {
		return WeatherRisk{}, errors.New("boom")
	}
	r := s.risk
	r.Latitude, r.Longitude, r.Altitude = q.Latitude, q.Longitude, q.Altitude
	return r, nil
}

type stubSatellite struct {
	ctx   SatelliteContext
	err   error
	query ImageryQuery
	mu    sync.Mutex
}

func (s *stubSatellite) Name() string { return "stub-satellite" }

func (s *stubSatellite) SatelliteContext(_ context.Context, q ImageryQuery) (SatelliteContext, error) {
	s.mu.Lock()
	s.query = q
	s.mu.Unlock()
	if s.err != nil {
		return SatelliteContext{}, s.err
	}
	return s.ctx, nil
}

type memStore struct {
	mu    sync.Mutex
	saved []Impact
	err   error
}

func (m *memStore) Save(_ context.Context, imp Impact) (Impact, error) {
	if m.err != nil {
		return Impact{}, m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	imp.ID = fmt.Sprintf("id-%d", len(m.saved)+1)
	m.saved = append(m.saved, imp)
	return imp, nil
}

type recordingNotifier struct {
	mu  sync.Mutex
	ids []string
	err error
}

func (n *recordingNotifier) Publish(_ context.Context, imp Impact) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.ids = append(n.ids, imp.ID)
	return n.err
}

type stubFlights struct {
	flights []telemetry.FlightPosition
	err     error
}

func (s stubFlights) GetFlights(context.Context, telemetry.Filter) ([]telemetry.FlightPosition, error) {
	return s.flights, s.err
}

func newTestService(w WeatherProvider, s SatelliteProvider, opts ...ServiceOption) *Service {
	return NewService(testEngine(), w, s, opts...)
}

func TestAssess_StoresAndNotifies(t *testing.T) {
	store := &memStore{}
	notifier := &recordingNotifier{err: errors.New("broker down")}
	m := metrics.New()
	sat := &stubSatellite{ctx: SatelliteContext{CloudCoverage: f64(50)}}

	svc := newTestService(
		&stubWeather{risk: WeatherRisk{OverallScore: 0.8, Hazards: hazards(0.6, 0.4)}},
		sat,
		WithStore(store), WithNotifier(notifier), WithServiceMetrics(m),
	)

	imp, err := svc.Assess(context.Background(), testPosition())
	require.NoError(t, err)
	assert.Equal(t, "id-1", imp.ID)
	assert.Equal(t, 68.0, imp.ImpactScore)
	assert.Equal(t, SeverityHigh, imp.Severity)
	assert.Equal(t, 45.0, imp.WeatherRisk.Latitude)

	require.Len(t, store.saved, 1)
	assert.Equal(t, []string{"id-1"}, notifier.ids)
	assert.Equal(t, int64(1), m.ImpactsBySeverity()["high"])
	assert.Equal(t, DefaultImageryType, sat.query.ImageryType)
}

func TestAssess_SignalFailureIsNotScored(t *testing.T) {
	store := &memStore{}

	svc := newTestService(&stubWeather{err: errors.New("timeout")}, &stubSatellite{}, WithStore(store))
	_, err := svc.Assess(context.Background(), testPosition())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSignalUnavailable)

	svc = newTestService(&stubWeather{}, &stubSatellite{err: errors.New("503")}, WithStore(store))
	_, err = svc.Assess(context.Background(), testPosition())
	assert.ErrorIs(t, err, ErrSignalUnavailable)
	assert.Contains(t, err.Error(), "stub-satellite")

	assert.Empty(t, store.saved)
}

func TestAssess_InvalidSignalRejected(t *testing.T) {
	svc := newTestService(&stubWeather{risk: WeatherRisk{OverallScore: 7}}, &stubSatellite{})
	_, err := svc.Assess(context.Background(), testPosition())
	assert.ErrorIs(t, err, ErrInvalidSignal)
}

func TestAssess_StoreFailure(t *testing.T) {
	svc := newTestService(&stubWeather{}, &stubSatellite{}, WithStore(&memStore{err: errors.New("disk full")}))
	_, err := svc.Assess(context.Background(), testPosition())
	assert.ErrorContains(t, err, "disk full")
}

func TestEvaluate_DoesNotPersist(t *testing.T) {
	store := &memStore{}
	svc := newTestService(&stubWeather{}, &stubSatellite{}, WithStore(store))
	imp, err := svc.Evaluate(context.Background(), testPosition())
	require.NoError(t, err)
	assert.Empty(t, imp.ID)
	assert.Empty(t, store.saved)
}

func TestAnalyzeFlights(t *testing.T) {
	var flights []telemetry.FlightPosition
	for i := 0; i < 6; i++ {
		p := testPosition()
		p.FlightID = fmt.Sprintf("f%d", i)
		p.Latitude = float64(i)
		flights = append(flights, p)
	}

	store := &memStore{}
	svc := newTestService(
		&stubWeather{risk: WeatherRisk{OverallScore: 0.2}, fail: map[float64]bool{1: true}},
		&stubSatellite{},
		WithStore(store), WithFlights(stubFlights{flights: flights}),
	)

	res, err := svc.AnalyzeFlights(context.Background(), 4)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Analyzed)
	assert.Equal(t, 1, res.Failed)
	require.Len(t, res.Impacts, 3)
	assert.Equal(t, "f0", res.Impacts[0].FlightID)
	assert.Equal(t, "f2", res.Impacts[1].FlightID)
	assert.Equal(t, "f3", res.Impacts[2].FlightID)
	assert.Len(t, store.saved, 3)
}

func TestAnalyzeFlights_SnapshotFailure(t *testing.T) {
	svc := newTestService(&stubWeather{}, &stubSatellite{},
		WithFlights(stubFlights{err: telemetry.ErrTelemetryUnavailable}))
	_, err := svc.AnalyzeFlights(context.Background(), 0)
	assert.ErrorIs(t, err, telemetry.ErrTelemetryUnavailable)

	_, err = newTestService(&stubWeather{}, &stubSatellite{}).AnalyzeFlights(context.Background(), 1)
	assert.Error(t, err)
}
