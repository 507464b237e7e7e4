package impact

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/i474232898/aeroimpact/internal/metrics"
	"github.com/i474232898/aeroimpact/internal/telemetry"
)

const (
	defaultSignalTimeout = 10 * time.Second
	defaultAnalyzeLimit  = 10
	analyzeConcurrency   = 4
)

// ErrSignalUnavailable wraps a failed weather or satellite call.
var ErrSignalUnavailable = errors.New("risk signal unavailable")

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithStore persists every computed impact.
func WithStore(st Store) ServiceOption {
	return func(s *Service) { s.store = st }
}

// WithNotifier publishes every stored impact.
func WithNotifier(n Notifier) ServiceOption {
	return func(s *Service) { s.notifier = n }
}

// WithFlights sets the source used by AnalyzeFlights.
func WithFlights(f FlightSource) ServiceOption {
	return func(s *Service) { s.flights = f }
}

// WithSignalTimeout bounds each risk-signal call.
func WithSignalTimeout(d time.Duration) ServiceOption {
	return func(s *Service) {
		if d > 0 {
			s.signalTimeout = d
		}
	}
}

// WithServiceMetrics counts scored impacts into m.
func WithServiceMetrics(m *metrics.Metrics) ServiceOption {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

// Service orchestrates the risk providers, the engine, persistence and
// notification for one flight at a time.
type Service struct {
	engine        *Engine
	weather       WeatherProvider
	satellite     SatelliteProvider
	store         Store
	notifier      Notifier
	flights       FlightSource
	signalTimeout time.Duration
	metrics       *metrics.Metrics
}

// NewService creates a Service around the two risk providers.
func NewService(engine *Engine, weather WeatherProvider, satellite SatelliteProvider, opts ...ServiceOption) *Service {
	s := &Service{
		engine:        engine,
		weather:       weather,
		satellite:     satellite,
		signalTimeout: defaultSignalTimeout,
		metrics:       metrics.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Evaluate fetches both risk signals concurrently and scores pos without
// storing the result.
func (s *Service) Evaluate(ctx context.Context, pos telemetry.FlightPosition) (Impact, error) {
	var (
		w   WeatherRisk
		sat SatelliteContext
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		cctx, cancel := context.WithTimeout(gctx, s.signalTimeout)
		defer cancel()
		var err error
		w, err = s.weather.WeatherRisk(cctx, WeatherQuery{
			Latitude:  pos.Latitude,
			Longitude: pos.Longitude,
			Altitude:  pos.Altitude,
			Time:      pos.Timestamp,
		})
		if err != nil {
			return fmt.Errorf("%w: weather provider %s: %w", ErrSignalUnavailable, s.weather.Name(), err)
		}
		return nil
	})
	g.Go(func() error {
		cctx, cancel := context.WithTimeout(gctx, s.signalTimeout)
		defer cancel()
		var err error
		sat, err = s.satellite.SatelliteContext(cctx, ImageryQuery{
			Latitude:    pos.Latitude,
			Longitude:   pos.Longitude,
			Time:        pos.Timestamp,
			ImageryType: DefaultImageryType,
		})
		if err != nil {
			return fmt.Errorf("%w: satellite provider %s: %w", ErrSignalUnavailable, s.satellite.Name(), err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return Impact{}, err
	}

	return s.engine.Score(pos, w, sat)
}

// Assess evaluates pos, stores the impact and notifies about it.
// Notification failures are logged and do not fail the call.
func (s *Service) Assess(ctx context.Context, pos telemetry.FlightPosition) (Impact, error) {
	imp, err := s.Evaluate(ctx, pos)
	if err != nil {
		return Impact{}, err
	}

	if s.store != nil {
		if imp, err = s.store.Save(ctx, imp); err != nil {
			return Impact{}, fmt.Errorf("saving impact: %w", err)
		}
	}
	s.metrics.ObserveImpact(string(imp.Severity))

	if s.notifier != nil {
		if err := s.notifier.Publish(ctx, imp); err != nil {
			slog.Warn("impact: notification failed", "impact_id", imp.ID, "err", err)
		}
	}

	slog.Info("impact: assessed flight",
		"flight_id", imp.FlightID,
		"severity", imp.Severity,
		"score", imp.ImpactScore)
	return imp, nil
}

// AnalysisResult summarizes one AnalyzeFlights run.
type AnalysisResult struct {
	Analyzed int      `json:"analyzed"`
	Failed   int      `json:"failed"`
	Impacts  []Impact `json:"impacts"`
}

// AnalyzeFlights assesses the first limit flights of the default snapshot.
// A failing flight is logged and skipped; only a snapshot failure is an error.
func (s *Service) AnalyzeFlights(ctx context.Context, limit int) (AnalysisResult, error) {
	if s.flights == nil {
		return AnalysisResult{}, errors.New("no flight source configured")
	}
	if limit <= 0 {
		limit = defaultAnalyzeLimit
	}

	flights, err := s.flights.GetFlights(ctx, telemetry.Filter{})
	if err != nil {
		return AnalysisResult{}, err
	}
	if len(flights) > limit {
		flights = flights[:limit]
	}

	var (
		mu      sync.Mutex
		results = make([]*Impact, len(flights))
		failed  int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(analyzeConcurrency)
	for i, pos := range flights {
		i, pos := i, pos
		g.Go(func() error {
			imp, err := s.Assess(gctx, pos)
			if err != nil {
				slog.Warn("impact: flight analysis failed", "flight_id", pos.FlightID, "err", err)
				mu.Lock()
				failed++
				mu.Unlock()
				return nil
			}
			results[i] = &imp
			return nil
		})
	}
	_ = g.Wait()

	res := AnalysisResult{Failed: failed, Impacts: make([]Impact, 0, len(flights))}
	for _, imp := range results {
		if imp != nil {
			res.Impacts = append(res.Impacts, *imp)
		}
	}
	res.Analyzed = len(res.Impacts)
	return res, nil
}
