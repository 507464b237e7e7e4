package providers

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/i474232898/aeroimpact/internal/common"
	"github.com/i474232898/aeroimpact/internal/impact"
)

const (
	tileZoom  = 2
	maxMapLat = 85.05112878
	tileBase  = "https://tile.openweathermap.org/map"
)

var mockHazardTypes = []string{
	impact.HazardThunderstorm,
	impact.HazardTurbulence,
	impact.HazardIcing,
	impact.HazardWindShear,
	impact.HazardLowVisibility,
}

// lockedRand is a *rand.Rand safe for concurrent use.
type lockedRand struct {
	mu sync.Mutex
	r  *rand.Rand
}

// newLockedRand seeds from the clock when seed is 0.
func newLockedRand(seed int64) *lockedRand {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &lockedRand{r: rand.New(rand.NewSource(seed))}
}

// uniform returns a value in [lo, hi] rounded to two decimals.
func (l *lockedRand) uniform(lo, hi float64) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return common.Round2(lo + l.r.Float64()*(hi-lo))
}

func (l *lockedRand) intn(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Intn(n)
}

// MockWeatherProvider returns random but well-formed weather risks:
// 1-3 hazards with severity in [0.3, 0.9] and an overall score in [0.5, 1.0].
type MockWeatherProvider struct {
	rnd *lockedRand
}

// NewMockWeatherProvider creates a mock; a zero seed is time-based.
func NewMockWeatherProvider(seed int64) *MockWeatherProvider {
	return &MockWeatherProvider{rnd: newLockedRand(seed)}
}

func (p *MockWeatherProvider) Name() string {
	return "mock-weather"
}

func (p *MockWeatherProvider) WeatherRisk(_ context.Context, q impact.WeatherQuery) (impact.WeatherRisk, error) {
	n := 1 + p.rnd.intn(3)
	hazards := make([]impact.WeatherHazard, 0, n)
	for i := 0; i < n; i++ {
		hazards = append(hazards, impact.WeatherHazard{
			Type:        mockHazardTypes[p.rnd.intn(len(mockHazardTypes))],
			Severity:    p.rnd.uniform(0.3, 0.9),
			Description: fmt.Sprintf("detected at %.0fm", q.Altitude),
		})
	}

	return impact.WeatherRisk{
		Latitude:     q.Latitude,
		Longitude:    q.Longitude,
		Altitude:     q.Altitude,
		Timestamp:    time.Now().UTC(),
		OverallScore: p.rnd.uniform(0.5, 1.0),
		Hazards:      hazards,
	}, nil
}

// MockSatelliteProvider points at the public OpenWeatherMap clouds tile
// covering the position and invents a cloud coverage.
type MockSatelliteProvider struct {
	rnd    *lockedRand
	apiKey string
}

// NewMockSatelliteProvider creates a mock; a zero seed is time-based.
// apiKey, when set, is appended to tile URLs as appid.
func NewMockSatelliteProvider(seed int64, apiKey string) *MockSatelliteProvider {
	return &MockSatelliteProvider{rnd: newLockedRand(seed), apiKey: apiKey}
}

func (p *MockSatelliteProvider) Name() string {
	return "mock-satellite"
}

func (p *MockSatelliteProvider) SatelliteContext(_ context.Context, q impact.ImageryQuery) (impact.SatelliteContext, error) {
	layer := q.ImageryType
	if layer == "" {
		layer = impact.DefaultImageryType
	}
	layer += "_new"

	x, y := TileCoordinates(q.Latitude, q.Longitude, tileZoom)
	tile := fmt.Sprintf("%s/%s/%d/%d/%d.png", tileBase, layer, tileZoom, x, y)
	if p.apiKey != "" {
		tile += "?appid=" + p.apiKey
	}
	cloud := p.rnd.uniform(0, 100)

	return impact.SatelliteContext{
		Latitude:      q.Latitude,
		Longitude:     q.Longitude,
		Timestamp:     time.Now().UTC(),
		TileURL:       tile,
		CloudCoverage: &cloud,
		Metadata: map[string]interface{}{
			"source": "mock",
			"layer":  layer,
			"zoom":   tileZoom,
			"x":      x,
			"y":      y,
		},
	}, nil
}

// TileCoordinates returns the slippy-map tile containing lat/lon at zoom.
// Latitude is clamped to the Web Mercator limit.
func TileCoordinates(lat, lon float64, zoom int) (int, int) {
	n := math.Exp2(float64(zoom))
	latRad := common.Clamp(lat, -maxMapLat, maxMapLat) * math.Pi / 180

	x := int(math.Floor(n * (lon + 180) / 360))
	y := int(math.Floor(n * (1 - math.Log(math.Tan(latRad)+1/math.Cos(latRad))/math.Pi) / 2))

	last := int(n) - 1
	return min(max(x, 0), last), min(max(y, 0), last)
}
