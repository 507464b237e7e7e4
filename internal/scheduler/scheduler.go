package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/i474232898/aeroimpact/internal/impact"
)

const (
	warmTimeout    = 30 * time.Second
	analyzeTimeout = 2 * time.Minute
)

// Warmer refreshes the cached default snapshot.
type Warmer interface {
	Refresh(ctx context.Context) error
}

// Analyzer scores a batch of current flights.
type Analyzer interface {
	AnalyzeFlights(ctx context.Context, limit int) (impact.AnalysisResult, error)
}

// Config selects which jobs run. A zero interval disables its job.
type Config struct {
	WarmInterval    time.Duration
	AnalyzeInterval time.Duration
	AnalyzeLimit    int
}

// Scheduler keeps the flight snapshot warm and periodically analyzes flights.
type Scheduler struct {
	scheduler *gocron.Scheduler
	warmer    Warmer
	analyzer  Analyzer
	cfg       Config
}

// New creates a new Scheduler. Either dependency may be nil to skip its job.
func New(cfg Config, warmer Warmer, analyzer Analyzer) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	return &Scheduler{
		scheduler: s,
		warmer:    warmer,
		analyzer:  analyzer,
		cfg:       cfg,
	}
}

// Start schedules the periodic jobs and starts the underlying scheduler.
func (s *Scheduler) Start() error {
	jobs := 0

	if s.warmer != nil && s.cfg.WarmInterval > 0 {
		_, err := s.scheduler.Every(s.cfg.WarmInterval).SingletonMode().Do(s.warm)
		if err != nil {
			return err
		}
		jobs++
	}

	if s.analyzer != nil && s.cfg.AnalyzeInterval > 0 {
		_, err := s.scheduler.Every(s.cfg.AnalyzeInterval).SingletonMode().Do(s.analyze)
		if err != nil {
			return err
		}
		jobs++
	}

	if jobs == 0 {
		slog.Info("scheduler: no jobs configured; nothing to schedule")
		return nil
	}

	s.scheduler.StartAsync()
	slog.Info("scheduler: started", "jobs", jobs,
		"warm_interval", s.cfg.WarmInterval, "analyze_interval", s.cfg.AnalyzeInterval)
	return nil
}

func (s *Scheduler) warm() {
	ctx, cancel := context.WithTimeout(context.Background(), warmTimeout)
	defer cancel()

	if err := s.warmer.Refresh(ctx); err != nil {
		slog.Warn("scheduler: snapshot refresh failed", "err", err)
		return
	}
	slog.Debug("scheduler: snapshot refreshed")
}

func (s *Scheduler) analyze() {
	ctx, cancel := context.WithTimeout(context.Background(), analyzeTimeout)
	defer cancel()

	res, err := s.analyzer.AnalyzeFlights(ctx, s.cfg.AnalyzeLimit)
	if err != nil {
		slog.Warn("scheduler: flight analysis failed", "err", err)
		return
	}
	slog.Info("scheduler: flight analysis completed", "analyzed", res.Analyzed, "failed", res.Failed)
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
