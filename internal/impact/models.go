package impact

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/i474232898/aeroimpact/internal/telemetry"
)

// ErrInvalidSignal is returned when a position or risk signal violates its
// declared ranges.
var ErrInvalidSignal = errors.New("invalid risk signal")

// Severity is the coarse classification derived from the impact score.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Severities lists every tier in ascending order.
var Severities = []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}

// Rank orders tiers from 0 (low) to 3 (critical); unknown values rank -1.
func (s Severity) Rank() int {
	for i, v := range Severities {
		if v == s {
			return i
		}
	}
	return -1
}

// AtLeast reports whether s is the same tier as min or above it.
func (s Severity) AtLeast(min Severity) bool {
	return s.Rank() >= min.Rank()
}

// ParseSeverity accepts a tier name in any case.
func ParseSeverity(v string) (Severity, error) {
	s := Severity(strings.ToLower(strings.TrimSpace(v)))
	if s.Rank() < 0 {
		return "", fmt.Errorf("unknown severity %q", v)
	}
	return s, nil
}

// Hazard kinds known to the recommendation table.
const (
	HazardThunderstorm  = "thunderstorm"
	HazardTurbulence    = "turbulence"
	HazardIcing         = "icing"
	HazardWindShear     = "wind_shear"
	HazardLowVisibility = "low_visibility"
	HazardStrongWind    = "strong_wind"
	HazardHeavyRain     = "heavy_rain"
	HazardSnow          = "snow"
)

// WeatherHazard is one named weather danger.
type WeatherHazard struct {
	Type        string  `json:"type" validate:"required"`
	Severity    float64 `json:"severity" validate:"gte=0,lte=1"`
	Description string  `json:"description,omitempty"`
}

// WeatherRisk is the weather provider's assessment for one position.
type WeatherRisk struct {
	Latitude     float64         `json:"latitude"`
	Longitude    float64         `json:"longitude"`
	Altitude     float64         `json:"altitude"`
	Timestamp    time.Time       `json:"timestamp"`
	OverallScore float64         `json:"overall_score" validate:"gte=0,lte=1"`
	Hazards      []WeatherHazard `json:"hazards" validate:"dive"`
}

// SatelliteContext is the imagery provider's view of one position.
// CloudCoverage is a percentage and nil when the provider has no estimate.
type SatelliteContext struct {
	Latitude      float64                `json:"latitude"`
	Longitude     float64                `json:"longitude"`
	Timestamp     time.Time              `json:"timestamp"`
	TileURL       string                 `json:"tile_url,omitempty"`
	SnapshotURL   string                 `json:"snapshot_url,omitempty"`
	CloudCoverage *float64               `json:"cloud_coverage,omitempty" validate:"omitempty,gte=0,lte=100"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
}

// Impact is one scored assessment of a flight. ID is assigned by the store.
type Impact struct {
	ID               string                   `json:"id,omitempty"`
	FlightID         string                   `json:"flight_id"`
	Callsign         *string                  `json:"callsign"`
	Position         telemetry.FlightPosition `json:"position"`
	WeatherRisk      WeatherRisk              `json:"weather_risk"`
	SatelliteContext SatelliteContext         `json:"satellite_context"`
	Severity         Severity                 `json:"severity"`
	ImpactScore      float64                  `json:"impact_score"`
	Description      string                   `json:"description"`
	Recommendations  []string                 `json:"recommendations"`
	CreatedAt        time.Time                `json:"created_at"`
}
