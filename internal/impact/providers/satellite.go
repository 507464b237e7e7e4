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

// SatelliteProvider asks the imagery service for context around a position.
//
//	GET {base}/satellites/context?lat=..&lon=..&time=RFC3339&imagery_type=clouds
//	-> {"tile_url": "...", "snapshot_url": "...", "cloud_coverage": 42.5, "metadata": {...}}
type SatelliteProvider struct {
	name    string
	baseURL string
	token   string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

// NewSatelliteProvider creates a SatelliteProvider. token is sent as X-Internal-Token when set.
func NewSatelliteProvider(client *http.Client, baseURL, token string) *SatelliteProvider {
	return &SatelliteProvider{
		name:    "satellite",
		baseURL: baseURL,
		token:   token,
		httpCfg: DefaultHTTPConfig(client),
		circuit: newBreaker("satellite"),
	}
}

func (p *SatelliteProvider) Name() string {
	return p.name
}

func (p *SatelliteProvider) SatelliteContext(ctx context.Context, q impact.ImageryQuery) (impact.SatelliteContext, error) {
	ts := q.Time
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	imagery := q.ImageryType
	if imagery == "" {
		imagery = impact.DefaultImageryType
	}

	values := url.Values{}
	values.Set("lat", strconv.FormatFloat(q.Latitude, 'f', -1, 64))
	values.Set("lon", strconv.FormatFloat(q.Longitude, 'f', -1, 64))
	values.Set("time", ts.UTC().Format(time.RFC3339))
	values.Set("imagery_type", imagery)

	u, err := endpoint(p.baseURL, "/satellites/context", values)
	if err != nil {
		return impact.SatelliteContext{}, err
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
		return impact.SatelliteContext{}, err
	}
	defer resp.Body.Close()

	var payload struct {
		TileURL       string                 `json:"tile_url"`
		SnapshotURL   string                 `json:"snapshot_url"`
		CloudCoverage *float64               `json:"cloud_coverage"`
		Metadata      map[string]interface{} `json:"metadata"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return impact.SatelliteContext{}, fmt.Errorf("decoding satellite context: %w", err)
	}

	return impact.SatelliteContext{
		Latitude:      q.Latitude,
		Longitude:     q.Longitude,
		Timestamp:     ts.UTC(),
		TileURL:       payload.TileURL,
		SnapshotURL:   payload.SnapshotURL,
		CloudCoverage: payload.CloudCoverage,
		Metadata:      payload.Metadata,
	}, nil
}
