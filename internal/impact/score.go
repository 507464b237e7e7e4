package impact

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/i474232898/aeroimpact/internal/common"
	"github.com/i474232898/aeroimpact/internal/telemetry"
)

// Weight constants for the impact score formula.
// They must sum to 1.0.
const (
	weightWeather     = 0.60
	weightHazardCount = 0.15
	weightMaxHazard   = 0.15
	weightCloud       = 0.10
)

// Each hazard adds this many points to the hazard-count component, capped at 100.
const pointsPerHazard = 20

// Thresholds that map a score to a severity tier. A score equal to a
// threshold belongs to the higher tier.
const (
	ThresholdMedium   = 25.0
	ThresholdHigh     = 50.0
	ThresholdCritical = 75.0
)

const (
	callsignPlaceholder = "unknown callsign"
	noHazardsMarker     = "none detected"
	noCloudMarker       = "unavailable"
)

var validate = validator.New()

// Components are the four pre-weight terms of the score, each in 0–100.
type Components struct {
	Weather     float64 `json:"weather"`
	HazardCount float64 `json:"hazard_count"`
	MaxHazard   float64 `json:"max_hazard"`
	Cloud       float64 `json:"cloud"`
}

// Breakdown computes the pre-weight components. Every term is clamped to its
// native range before weighting.
func Breakdown(w WeatherRisk, s SatelliteContext) Components {
	var maxSev float64
	for _, h := range w.Hazards {
		if sev := common.Clamp(h.Severity, 0, 1); sev > maxSev {
			maxSev = sev
		}
	}

	var cloud float64
	if s.CloudCoverage != nil {
		cloud = common.Clamp(*s.CloudCoverage, 0, 100)
	}

	return Components{
		Weather:     common.Clamp(w.OverallScore, 0, 1) * 100,
		HazardCount: common.Clamp(float64(len(w.Hazards)*pointsPerHazard), 0, 100),
		MaxHazard:   maxSev * 100,
		Cloud:       cloud,
	}
}

// Total is the weighted sum clamped to 0–100 and rounded to two decimals.
func (c Components) Total() float64 {
	sum := c.Weather*weightWeather +
		c.HazardCount*weightHazardCount +
		c.MaxHazard*weightMaxHazard +
		c.Cloud*weightCloud
	return common.Round2(common.Clamp(sum, 0, 100))
}

// SeverityFromScore maps a score to its tier. The tiers partition 0–100.
func SeverityFromScore(score float64) Severity {
	switch {
	case score >= ThresholdCritical:
		return SeverityCritical
	case score >= ThresholdHigh:
		return SeverityHigh
	case score >= ThresholdMedium:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// Engine turns one position and its two risk signals into an Impact.
// Scoring is deterministic; only CreatedAt depends on the clock.
type Engine struct {
	now func() time.Time
}

// NewEngine returns an Engine using the wall clock.
func NewEngine() *Engine {
	return &Engine{now: time.Now}
}

// Score validates its inputs and computes the Impact.
// Out-of-range signals are rejected with ErrInvalidSignal.
func (e *Engine) Score(pos telemetry.FlightPosition, w WeatherRisk, s SatelliteContext) (Impact, error) {
	if err := validateSignals(pos, w, s); err != nil {
		return Impact{}, err
	}

	score := Breakdown(w, s).Total()
	sev := SeverityFromScore(score)

	return Impact{
		FlightID:         pos.FlightID,
		Callsign:         pos.Callsign,
		Position:         pos,
		WeatherRisk:      w,
		SatelliteContext: s,
		Severity:         sev,
		ImpactScore:      score,
		Description:      describe(pos, w, s),
		Recommendations:  Recommend(sev, w.Hazards),
		CreatedAt:        e.now().UTC(),
	}, nil
}

func validateSignals(pos telemetry.FlightPosition, w WeatherRisk, s SatelliteContext) error {
	if err := validate.Struct(pos); err != nil {
		return fmt.Errorf("%w: position: %w", ErrInvalidSignal, err)
	}
	if err := validate.Struct(w); err != nil {
		return fmt.Errorf("%w: weather: %w", ErrInvalidSignal, err)
	}
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("%w: satellite: %w", ErrInvalidSignal, err)
	}
	return nil
}

func describe(pos telemetry.FlightPosition, w WeatherRisk, s SatelliteContext) string {
	hazards := noHazardsMarker
	if len(w.Hazards) > 0 {
		names := make([]string, 0, len(w.Hazards))
		for _, h := range w.Hazards {
			names = append(names, h.Type)
		}
		hazards = strings.Join(names, ", ")
	}

	cloud := noCloudMarker
	if s.CloudCoverage != nil {
		cloud = fmt.Sprintf("%.0f%%", *s.CloudCoverage)
	}

	return fmt.Sprintf("Flight %s (%s) at %.4f, %.4f: weather risk %.0f%%, hazards: %s, cloud coverage: %s.",
		pos.FlightID, pos.CallsignOr(callsignPlaceholder),
		pos.Latitude, pos.Longitude,
		w.OverallScore*100, hazards, cloud)
}
