package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sony/gobreaker"

	"github.com/i474232898/aeroimpact/internal/impact"
)

// RiskProvider asks a weather-risk service for a ready-made assessment.
//
//	GET {base}/v1/risk?lat=..&lon=..&alt=..&time=RFC3339
//	-> {"overall_score": 0.4, "hazards": [{"type": "icing", "severity": 0.6, "description": "..."}]}
type RiskProvider struct {
	name    string
	baseURL string
	token   string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

// NewRiskProvider creates a RiskProvider. token is sent as X-Internal-Token when set.
func NewRiskProvider(client *http.Client, baseURL, token string) *RiskProvider {
	return &RiskProvider{
		name:    "weather-risk",
		baseURL: baseURL,
		token:   token,
		httpCfg: DefaultHTTPConfig(client),
		circuit: newBreaker("weather-risk"),
	}
}

func (p *RiskProvider) Name() string {
	return p.name
}

func (p *RiskProvider) WeatherRisk(ctx context.Context, q impact.WeatherQuery) (impact.WeatherRisk, error) {
	ts := q.Time
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	values := url.Values{}
	values.Set("lat", strconv.FormatFloat(q.Latitude, 'f', -1, 64))
	values.Set("lon", strconv.FormatFloat(q.Longitude, 'f', -1, 64))
	values.Set("alt", strconv.FormatFloat(q.Altitude, 'f', -1, 64))
	values.Set("time", ts.UTC().Format(time.RFC3339))

	u, err := endpoint(p.baseURL, "/v1/risk", values)
	if err != nil {
		return impact.WeatherRisk{}, err
	}

	buildRequest := func() (*http.Request, error) {
		req, err := http.NewRequest(http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		if p.token != "" {
			req.Header.Set(InternalTokenHeader, p.token)
		}
		return req, nil
	}

	resp, err := doRequestWithResilience(ctx, p.httpCfg, p.circuit, buildRequest)
	if err != nil {
		return impact.WeatherRisk{}, err
	}
	defer resp.Body.Close()

	var payload struct {
		OverallScore *float64               `json:"overall_score"`
		Hazards      []impact.WeatherHazard `json:"hazards"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return impact.WeatherRisk{}, fmt.Errorf("decoding weather risk: %w", err)
	}
	if payload.OverallScore == nil {
		return impact.WeatherRisk{}, fmt.Errorf("weather risk response has no overall_score")
	}

	return impact.WeatherRisk{
		Latitude:     q.Latitude,
		Longitude:    q.Longitude,
		Altitude:     q.Altitude,
		Timestamp:    ts.UTC(),
		OverallScore: *payload.OverallScore,
		Hazards:      payload.Hazards,
	}, nil
}
