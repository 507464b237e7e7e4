package providers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/i474232898/aeroimpact/internal/common"
	"github.com/i474232898/aeroimpact/internal/impact"
)

// CompositeWeatherProvider queries several weather providers concurrently and
// merges whatever succeeds. It only fails when every provider fails.
type CompositeWeatherProvider struct {
	providers []impact.WeatherProvider
}

func NewCompositeWeatherProvider(providers ...impact.WeatherProvider) *CompositeWeatherProvider {
	return &CompositeWeatherProvider{providers: providers}
}

func (p *CompositeWeatherProvider) Name() string {
	names := make([]string, 0, len(p.providers))
	for _, wp := range p.providers {
		names = append(names, wp.Name())
	}
	return "composite(" + strings.Join(names, ",") + ")"
}

func (p *CompositeWeatherProvider) WeatherRisk(ctx context.Context, q impact.WeatherQuery) (impact.WeatherRisk, error) {
	if len(p.providers) == 0 {
		return impact.WeatherRisk{}, errors.New("no weather providers configured")
	}

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		risks []impact.WeatherRisk
		errs  []error
	)

	for _, wp := range p.providers {
		wp := wp
		wg.Add(1)
		go func() {
			defer wg.Done()

			r, err := wp.WeatherRisk(ctx, q)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				// Partial success is still a usable signal.
				slog.Warn("weather provider failed", "provider", wp.Name(), "err", err)
				errs = append(errs, fmt.Errorf("%s: %w", wp.Name(), err))
				return
			}
			risks = append(risks, r)
		}()
	}
	wg.Wait()

	if len(risks) == 0 {
		return impact.WeatherRisk{}, errors.Join(errs...)
	}
	return MergeRisks(q, risks), nil
}

// MergeRisks averages the overall scores and keeps the most severe reading
// of each hazard type. Hazards are ordered by type.
func MergeRisks(q impact.WeatherQuery, risks []impact.WeatherRisk) impact.WeatherRisk {
	merged := impact.WeatherRisk{
		Latitude:  q.Latitude,
		Longitude: q.Longitude,
		Altitude:  q.Altitude,
		Hazards:   []impact.WeatherHazard{},
	}
	if len(risks) == 0 {
		merged.Timestamp = q.Time
		return merged
	}

	var sum float64
	byType := make(map[string]impact.WeatherHazard)
	var newest time.Time

	for _, r := range risks {
		sum += r.OverallScore
		if r.Timestamp.After(newest) {
			newest = r.Timestamp
		}
		for _, h := range r.Hazards {
			if cur, ok := byType[h.Type]; !ok || h.Severity > cur.Severity {
				byType[h.Type] = h
			}
		}
	}

	for _, h := range byType {
		merged.Hazards = append(merged.Hazards, h)
	}
	sort.Slice(merged.Hazards, func(i, j int) bool {
		return merged.Hazards[i].Type < merged.Hazards[j].Type
	})

	if newest.IsZero() {
		newest = q.Time
	}
	merged.Timestamp = newest
	merged.OverallScore = common.Round2(sum / float64(len(risks)))
	return merged
}
