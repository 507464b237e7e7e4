package impact

import (
	"context"
	"time"

	"github.com/i474232898/aeroimpact/internal/telemetry"
)

// WeatherQuery is what the weather-risk provider is asked about.
type WeatherQuery struct {
	Latitude  float64
	Longitude float64
	Altitude  float64
	Time      time.Time
}

// ImageryQuery is what the imagery provider is asked about.
type ImageryQuery struct {
	Latitude    float64
	Longitude   float64
	Time        time.Time
	ImageryType string
}

// DefaultImageryType is requested when the caller does not pick one.
const DefaultImageryType = "clouds"

// WeatherProvider abstracts a weather-risk source (remote service or mock).
type WeatherProvider interface {
	Name() string
	WeatherRisk(ctx context.Context, q WeatherQuery) (WeatherRisk, error)
}

// SatelliteProvider abstracts an imagery source (remote service or mock).
type SatelliteProvider interface {
	Name() string
	SatelliteContext(ctx context.Context, q ImageryQuery) (SatelliteContext, error)
}

// Store is the persistence contract for computed impacts.
type Store interface {
	Save(ctx context.Context, imp Impact) (Impact, error)
}

// Notifier is told about every stored impact.
type Notifier interface {
	Publish(ctx context.Context, imp Impact) error
}

// FlightSource supplies the current airborne flights.
type FlightSource interface {
	GetFlights(ctx context.Context, filter telemetry.Filter) ([]telemetry.FlightPosition, error)
}
