package impact

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/aeroimpact/internal/telemetry"
)

var fixedNow = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

func testEngine() *Engine {
	return &Engine{now: func() time.Time { return fixedNow }}
}

func f64(v float64) *float64 { return &v }

func str(v string) *string { return &v }

func testPosition() telemetry.FlightPosition {
	return telemetry.FlightPosition{
		FlightID:  "abc123",
		Callsign:  str("UAL123"),
		Latitude:  45.0,
		Longitude: 10.0,
		Altitude:  10000,
		Timestamp: fixedNow,
	}
}

func hazards(sev ...float64) []WeatherHazard {
	out := make([]WeatherHazard, 0, len(sev))
	for _, s := range sev {
		out = append(out, WeatherHazard{Type: HazardTurbulence, Severity: s})
	}
	return out
}

func TestScore_Table(t *testing.T) {
	tests := []struct {
		name      string
		weather   WeatherRisk
		satellite SatelliteContext
		wantScore float64
		wantSev   Severity
	}{
		{
			// 80*0.6 + 40*0.15 + 60*0.15 + 50*0.1 = 48 + 6 + 9 + 5
			name:      "reference example",
			weather:   WeatherRisk{OverallScore: 0.8, Hazards: hazards(0.6, 0.4)},
			satellite: SatelliteContext{CloudCoverage: f64(50)},
			wantScore: 68,
			wantSev:   SeverityHigh,
		},
		{
			name:      "everything maxed clamps to 100",
			weather:   WeatherRisk{OverallScore: 1.0, Hazards: hazards(1, 1, 1, 1, 1, 1, 1, 1, 1, 1)},
			satellite: SatelliteContext{CloudCoverage: f64(100)},
			wantScore: 100,
			wantSev:   SeverityCritical,
		},
		{
			name:      "no signal at all",
			weather:   WeatherRisk{},
			satellite: SatelliteContext{},
			wantScore: 0,
			wantSev:   SeverityLow,
		},
		{
			name:      "absent cloud coverage counts as zero",
			weather:   WeatherRisk{OverallScore: 0.5},
			satellite: SatelliteContext{},
			wantScore: 30,
			wantSev:   SeverityMedium,
		},
		{
			// 0*0.6 + 20*0.15 + 100*0.15 + 0 = 3 + 15
			name:      "single severe hazard",
			weather:   WeatherRisk{Hazards: hazards(1.0)},
			wantScore: 18,
			wantSev:   SeverityLow,
		},
		{
			// 75*0.6 + 60*0.15 + 90*0.15 + 75*0.1 = 45 + 9 + 13.5 + 7.5
			name:      "exactly 75 is critical",
			weather:   WeatherRisk{OverallScore: 0.75, Hazards: hazards(0.9, 0.3, 0.5)},
			satellite: SatelliteContext{CloudCoverage: f64(75)},
			wantScore: 75,
			wantSev:   SeverityCritical,
		},
		{
			// 33.33*0.6 = 19.998 → 20
			name:      "rounded to two decimals",
			weather:   WeatherRisk{OverallScore: 0.3333},
			wantScore: 20,
			wantSev:   SeverityLow,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			imp, err := testEngine().Score(testPosition(), tt.weather, tt.satellite)
			require.NoError(t, err)
			assert.InDelta(t, tt.wantScore, imp.ImpactScore, 1e-9)
			assert.Equal(t, tt.wantSev, imp.Severity)
			assert.GreaterOrEqual(t, imp.ImpactScore, 0.0)
			assert.LessOrEqual(t, imp.ImpactScore, 100.0)
		})
	}
}

func TestBreakdown_ClampsEachTerm(t *testing.T) {
	c := Breakdown(
		WeatherRisk{OverallScore: 3, Hazards: []WeatherHazard{{Type: HazardIcing, Severity: 2}}},
		SatelliteContext{CloudCoverage: f64(-5)},
	)
	assert.Equal(t, 100.0, c.Weather)
	assert.Equal(t, 20.0, c.HazardCount)
	assert.Equal(t, 100.0, c.MaxHazard)
	assert.Equal(t, 0.0, c.Cloud)
	assert.InDelta(t, 78.0, c.Total(), 1e-9)

	big := Components{Weather: 500, HazardCount: 500, MaxHazard: 500, Cloud: 500}
	assert.Equal(t, 100.0, big.Total())
	neg := Components{Weather: -500}
	assert.Equal(t, 0.0, neg.Total())
}

func TestSeverityFromScore_Boundaries(t *testing.T) {
	tests := []struct {
		score float64
		want  Severity
	}{
		{0, SeverityLow},
		{24.99, SeverityLow},
		{25, SeverityMedium},
		{49.99, SeverityMedium},
		{50, SeverityHigh},
		{74.99, SeverityHigh},
		{75, SeverityCritical},
		{100, SeverityCritical},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SeverityFromScore(tt.score), "score %.2f", tt.score)
	}
}

func TestSeverityFromScore_IsMonotonicPartition(t *testing.T) {
	prev := -1
	for i := 0; i <= 10000; i++ {
		sev := SeverityFromScore(float64(i) / 100)
		rank := sev.Rank()
		require.GreaterOrEqual(t, rank, 0)
		require.GreaterOrEqual(t, rank, prev, "tier went down at %d", i)
		prev = rank
	}
	assert.Equal(t, SeverityCritical.Rank(), prev)
}

func TestScore_RejectsInvalidSignals(t *testing.T) {
	bad := testPosition()
	bad.Latitude = 91

	noID := testPosition()
	noID.FlightID = ""

	tests := []struct {
		name      string
		pos       telemetry.FlightPosition
		weather   WeatherRisk
		satellite SatelliteContext
	}{
		{"overall score above 1", testPosition(), WeatherRisk{OverallScore: 1.5}, SatelliteContext{}},
		{"negative hazard severity", testPosition(), WeatherRisk{Hazards: hazards(-0.1)}, SatelliteContext{}},
		{"hazard without type", testPosition(), WeatherRisk{Hazards: []WeatherHazard{{Severity: 0.4}}}, SatelliteContext{}},
		{"cloud coverage above 100", testPosition(), WeatherRisk{}, SatelliteContext{CloudCoverage: f64(120)}},
		{"latitude out of range", bad, WeatherRisk{}, SatelliteContext{}},
		{"missing flight id", noID, WeatherRisk{}, SatelliteContext{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := testEngine().Score(tt.pos, tt.weather, tt.satellite)
			assert.ErrorIs(t, err, ErrInvalidSignal)
		})
	}
}

func TestScore_PopulatesImpact(t *testing.T) {
	w := WeatherRisk{OverallScore: 0.8, Hazards: []WeatherHazard{
		{Type: HazardThunderstorm, Severity: 0.6},
		{Type: HazardIcing, Severity: 0.4},
	}}
	s := SatelliteContext{CloudCoverage: f64(50), TileURL: "https://tiles.example/2/1/1.png"}

	imp, err := testEngine().Score(testPosition(), w, s)
	require.NoError(t, err)

	assert.Equal(t, "abc123", imp.FlightID)
	assert.Equal(t, "UAL123", *imp.Callsign)
	assert.Equal(t, testPosition(), imp.Position)
	assert.Equal(t, w, imp.WeatherRisk)
	assert.Equal(t, s, imp.SatelliteContext)
	assert.Equal(t, fixedNow, imp.CreatedAt)
	assert.Empty(t, imp.ID)
	assert.Equal(t,
		"Flight abc123 (UAL123) at 45.0000, 10.0000: weather risk 80%, hazards: thunderstorm, icing, cloud coverage: 50%.",
		imp.Description)
	assert.Equal(t, []string{
		tierGuidance[SeverityHigh][0],
		hazardGuidance[HazardThunderstorm],
	}, imp.Recommendations)
}

func TestScore_DescriptionPlaceholders(t *testing.T) {
	pos := testPosition()
	pos.Callsign = nil

	imp, err := testEngine().Score(pos, WeatherRisk{}, SatelliteContext{})
	require.NoError(t, err)
	assert.Equal(t,
		"Flight abc123 (unknown callsign) at 45.0000, 10.0000: weather risk 0%, hazards: none detected, cloud coverage: unavailable.",
		imp.Description)
	assert.NotNil(t, imp.Recommendations)
	assert.Empty(t, imp.Recommendations)
}

func TestScore_IsDeterministic(t *testing.T) {
	w := WeatherRisk{OverallScore: 0.42, Hazards: hazards(0.7, 0.2)}
	s := SatelliteContext{CloudCoverage: f64(33)}

	a, err := testEngine().Score(testPosition(), w, s)
	require.NoError(t, err)
	b, err := testEngine().Score(testPosition(), w, s)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestParseSeverity(t *testing.T) {
	s, err := ParseSeverity(" HIGH ")
	require.NoError(t, err)
	assert.Equal(t, SeverityHigh, s)
	assert.True(t, s.AtLeast(SeverityMedium))
	assert.False(t, s.AtLeast(SeverityCritical))

	_, err = ParseSeverity("severe")
	assert.Error(t, err)
}
