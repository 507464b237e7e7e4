// Package impact scores how weather affects a flight.
//
// The Engine combines a FlightPosition with a WeatherRisk and a
// SatelliteContext into an Impact:
//
//	score = overall_score*100            * 0.60
//	      + min(len(hazards)*20, 100)     * 0.15
//	      + max(hazard severity)*100      * 0.15
//	      + cloud_coverage (0 if absent)  * 0.10
//
// clamped to 0–100 and rounded to two decimals. Tiers start at 25 (medium),
// 50 (high) and 75 (critical).
//
// Service wires the engine to WeatherProvider and SatelliteProvider
// implementations (see package providers), a Store and a Notifier.
package impact
