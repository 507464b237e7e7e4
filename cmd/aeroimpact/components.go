package main

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/i474232898/aeroimpact/internal/config"
	"github.com/i474232898/aeroimpact/internal/impact"
	"github.com/i474232898/aeroimpact/internal/impact/providers"
	"github.com/i474232898/aeroimpact/internal/metrics"
	"github.com/i474232898/aeroimpact/internal/notify"
	"github.com/i474232898/aeroimpact/internal/store"
	"github.com/i474232898/aeroimpact/internal/telemetry"
)

// outboundTimeout caps any single outbound HTTP exchange; the per-call
// context deadlines are shorter.
const outboundTimeout = 30 * time.Second

type publisher interface {
	impact.Notifier
	Close()
}

// components is the wired object graph shared by every command.
type components struct {
	metrics   *metrics.Metrics
	snapshots *telemetry.SnapshotCache
	store     store.ImpactStore
	notifier  publisher
	service   *impact.Service
}

func buildComponents(ctx context.Context, cfg *config.AppConfig) (*components, error) {
	m := metrics.New()
	httpClient := &http.Client{Timeout: outboundTimeout}

	tokens := telemetry.NewTokenCache(cfg.OpenSky.ClientID, cfg.OpenSky.ClientSecret,
		telemetry.WithTokenURL(cfg.OpenSky.TokenURL),
		telemetry.WithTokenHTTPClient(httpClient),
		telemetry.WithTokenTimeout(cfg.OpenSky.TokenTimeout),
		telemetry.WithTokenMetrics(m),
	)
	if !cfg.HasCredentials() {
		slog.Warn("opensky: no client credentials configured; using anonymous access")
	}

	fetcher := telemetry.NewFetcher(
		telemetry.WithBaseURL(cfg.OpenSky.BaseURL),
		telemetry.WithHTTPClient(httpClient),
		telemetry.WithTokenCache(tokens),
		telemetry.WithTimeout(cfg.OpenSky.TelemetryTimeout),
		telemetry.WithMetrics(m),
	)
	snapshots := telemetry.NewSnapshotCache(fetcher,
		telemetry.WithTTL(cfg.OpenSky.SnapshotTTL),
		telemetry.WithSnapshotMetrics(m),
	)

	st, err := store.Open(ctx, cfg.Store.Driver, cfg.Store.Path, cfg.Store.MaxHistory)
	if err != nil {
		return nil, err
	}

	pub := newPublisher(cfg.MQTT)

	svc := impact.NewService(impact.NewEngine(),
		weatherProvider(cfg.Signals, httpClient),
		satelliteProvider(cfg.Signals, httpClient),
		impact.WithStore(st),
		impact.WithNotifier(pub),
		impact.WithFlights(snapshots),
		impact.WithSignalTimeout(cfg.Signals.Timeout),
		impact.WithServiceMetrics(m),
	)

	return &components{
		metrics:   m,
		snapshots: snapshots,
		store:     st,
		notifier:  pub,
		service:   svc,
	}, nil
}

func (c *components) Close() {
	c.notifier.Close()
	if err := c.store.Close(); err != nil {
		slog.Warn("store: close failed", "err", err)
	}
}

func weatherProvider(cfg config.SignalsConfig, client *http.Client) impact.WeatherProvider {
	if cfg.MockWeather {
		return providers.NewMockWeatherProvider(cfg.MockSeed)
	}
	switch cfg.WeatherMode {
	case "onecall":
		return providers.NewOneCallProvider(client, cfg.WeatherServiceURL, cfg.ServiceToken)
	case "composite":
		return providers.NewCompositeWeatherProvider(
			providers.NewRiskProvider(client, cfg.WeatherServiceURL, cfg.ServiceToken),
			providers.NewOneCallProvider(client, cfg.WeatherServiceURL, cfg.ServiceToken),
		)
	default:
		return providers.NewRiskProvider(client, cfg.WeatherServiceURL, cfg.ServiceToken)
	}
}

func satelliteProvider(cfg config.SignalsConfig, client *http.Client) impact.SatelliteProvider {
	if cfg.MockSatellite {
		return providers.NewMockSatelliteProvider(cfg.MockSeed, cfg.TileAPIKey)
	}
	return providers.NewSatelliteProvider(client, cfg.SatelliteServiceURL, cfg.ServiceToken)
}

// newPublisher connects to the MQTT broker when one is configured. A broker
// that cannot be reached disables notifications instead of failing startup.
func newPublisher(cfg config.MQTTConfig) publisher {
	if cfg.BrokerURL == "" {
		return notify.Nop{}
	}

	minSeverity := impact.SeverityLow
	if cfg.MinSeverity != "" {
		sev, err := impact.ParseSeverity(cfg.MinSeverity)
		if err != nil {
			slog.Warn("notify: invalid minimum severity; publishing everything", "err", err)
		} else {
			minSeverity = sev
		}
	}

	p, err := notify.NewMQTTPublisher(cfg.BrokerURL, cfg.ClientID, cfg.TopicPrefix, minSeverity)
	if err != nil {
		slog.Warn("notify: mqtt unavailable; impact notifications disabled", "err", err)
		return notify.Nop{}
	}
	return p
}
