package impact

import "github.com/i474232898/aeroimpact/internal/common"

// Hazards at or below this severity get no specific guidance.
const hazardGuidanceThreshold = 0.5

var tierGuidance = map[Severity][]string{
	SeverityCritical: {
		"Urgent action required: consider rerouting or diverting the flight",
		"Contact air traffic control immediately",
	},
	SeverityHigh: {
		"Heightened vigilance required: monitor weather updates closely",
	},
}

var hazardGuidance = map[string]string{
	HazardThunderstorm:  "Avoid convective cells and keep clear of thunderstorm activity",
	HazardTurbulence:    "Expect turbulence: keep seat belt signs on and secure the cabin",
	HazardIcing:         "Activate anti-icing systems and consider a change of altitude",
	HazardWindShear:     "Brief wind shear recovery and go-around procedures for approach and departure",
	HazardLowVisibility: "Check instrument approach availability at destination and alternates",
	HazardStrongWind:    "Review crosswind limits and fuel reserves",
	HazardHeavyRain:     "Expect reduced braking action and visibility due to heavy rain",
	HazardSnow:          "Check runway contamination reports and de-icing availability",
}

// Recommend returns the tier guidance followed by guidance for every hazard
// above 0.5 severity, without duplicates and in first-occurrence order.
func Recommend(sev Severity, hazards []WeatherHazard) []string {
	recs := append([]string{}, tierGuidance[sev]...)
	for _, h := range hazards {
		if h.Severity <= hazardGuidanceThreshold {
			continue
		}
		if g, ok := hazardGuidance[h.Type]; ok {
			recs = append(recs, g)
		}
	}
	return common.Dedupe(recs)
}
