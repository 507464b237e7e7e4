package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sony/gobreaker"

	"github.com/i474232898/aeroimpact/internal/impact"
)

// Hazard derivation rules for OneCall "current" conditions.
const (
	oneCallBaseScore = 0.3

	strongWindThreshold = 15.0 // m/s
	strongWindFullScale = 30.0 // m/s at which severity reaches 1
	lowVisibilityLimit  = 5000 // metres

	thunderstormSeverity = 0.9
	heavyRainSeverity    = 0.6
	snowSeverity         = 0.5

	strongWindScore    = 0.2
	thunderstormScore  = 0.3
	heavyRainScore     = 0.15
	snowScore          = 0.1
	lowVisibilityScore = 0.15
)

// OneCallProvider derives a WeatherRisk from the weather service's OneCall
// proxy (GET {base}/v1/onecall?lat=..&lon=..).
type OneCallProvider struct {
	name    string
	baseURL string
	token   string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

// NewOneCallProvider creates a OneCallProvider. token is sent as X-Internal-Token.
func NewOneCallProvider(client *http.Client, baseURL, token string) *OneCallProvider {
	return &OneCallProvider{
		name:    "onecall",
		baseURL: baseURL,
		token:   token,
		httpCfg: DefaultHTTPConfig(client),
		circuit: newBreaker("onecall"),
	}
}

func (p *OneCallProvider) Name() string {
	return p.name
}

// oneCallPayload is the subset of the OneCall response we read.
type oneCallPayload struct {
	Current struct {
		WindSpeed  *float64 `json:"wind_speed"`
		Visibility *float64 `json:"visibility"`
		Weather    []struct {
			ID          int    `json:"id"`
			Description string `json:"description"`
		} `json:"weather"`
	} `json:"current"`
}

func (p *OneCallProvider) WeatherRisk(ctx context.Context, q impact.WeatherQuery) (impact.WeatherRisk, error) {
	values := url.Values{}
	values.Set("lat", strconv.FormatFloat(q.Latitude, 'f', -1, 64))
	values.Set("lon", strconv.FormatFloat(q.Longitude, 'f', -1, 64))

	u, err := endpoint(p.baseURL, "/v1/onecall", values)
	if err != nil {
		return impact.WeatherRisk{}, err
	}

	buildRequest := func() (*http.Request, error) {
		req, err := http.NewRequest(http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set(InternalTokenHeader, p.token)
		return req, nil
	}

	resp, err := doRequestWithResilience(ctx, p.httpCfg, p.circuit, buildRequest)
	if err != nil {
		return impact.WeatherRisk{}, err
	}
	defer resp.Body.Close()

	var payload oneCallPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return impact.WeatherRisk{}, fmt.Errorf("decoding onecall response: %w", err)
	}

	risk := deriveRisk(payload)
	risk.Latitude = q.Latitude
	risk.Longitude = q.Longitude
	risk.Altitude = q.Altitude
	risk.Timestamp = time.Now().UTC()
	return risk, nil
}

// deriveRisk applies the hazard rules to the current conditions.
func deriveRisk(payload oneCallPayload) impact.WeatherRisk {
	cur := payload.Current
	score := oneCallBaseScore
	hazards := []impact.WeatherHazard{}

	if cur.WindSpeed != nil && *cur.WindSpeed > strongWindThreshold {
		hazards = append(hazards, impact.WeatherHazard{
			Type:        impact.HazardStrongWind,
			Severity:    math.Min(*cur.WindSpeed/strongWindFullScale, 1),
			Description: fmt.Sprintf("wind at %g m/s", *cur.WindSpeed),
		})
		score += strongWindScore
	}

	for _, w := range cur.Weather {
		switch {
		case w.ID >= 200 && w.ID < 300:
			hazards = append(hazards, impact.WeatherHazard{
				Type:        impact.HazardThunderstorm,
				Severity:    thunderstormSeverity,
				Description: orDefault(w.Description, "thunderstorm"),
			})
			score += thunderstormScore
		case w.ID > 502 && w.ID < 600:
			hazards = append(hazards, impact.WeatherHazard{
				Type:        impact.HazardHeavyRain,
				Severity:    heavyRainSeverity,
				Description: orDefault(w.Description, "heavy rain"),
			})
			score += heavyRainScore
		case w.ID >= 600 && w.ID < 700:
			hazards = append(hazards, impact.WeatherHazard{
				Type:        impact.HazardSnow,
				Severity:    snowSeverity,
				Description: orDefault(w.Description, "snow"),
			})
			score += snowScore
		}
	}

	if cur.Visibility != nil && *cur.Visibility < lowVisibilityLimit {
		vis := math.Max(*cur.Visibility, 0)
		hazards = append(hazards, impact.WeatherHazard{
			Type:        impact.HazardLowVisibility,
			Severity:    1 - vis/lowVisibilityLimit,
			Description: fmt.Sprintf("visibility %gm", vis),
		})
		score += lowVisibilityScore
	}

	return impact.WeatherRisk{
		OverallScore: math.Min(score, 1),
		Hazards:      hazards,
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
