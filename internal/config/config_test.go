package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	PathEnv, "PORT", "LOG_LEVEL", "OPENSKY_CLIENT_ID", "OPENSKY_CLIENT_SECRET", "OPENSKY_BASE_URL",
	"OPENSKY_TOKEN_URL", "SNAPSHOT_TTL", "TOKEN_TIMEOUT", "TELEMETRY_TIMEOUT", "SIGNAL_TIMEOUT",
	"USE_MOCK_WEATHER", "USE_MOCK_SATELLITE", "MOCK_SEED", "WEATHER_MODE", "WEATHER_SERVICE_URL",
	"WEATHER_INTERNAL_TOKEN", "SATELLITE_SERVICE_URL", "OPENWEATHER_API_KEY", "STORE_DRIVER",
	"STORE_PATH", "STORE_MAX_HISTORY", "API_INTERNAL_TOKEN", "RATE_LIMIT_PER_MINUTE",
	"SCHEDULER_ENABLED", "WARM_INTERVAL", "ANALYZE_INTERVAL", "ANALYZE_LIMIT", "MQTT_BROKER_URL",
	"MQTT_CLIENT_ID", "MQTT_TOPIC_PREFIX", "MQTT_MIN_SEVERITY",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "aeroimpact.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 90*time.Second, cfg.OpenSky.SnapshotTTL)
	assert.Equal(t, 20*time.Second, cfg.OpenSky.TelemetryTimeout)
	assert.True(t, cfg.Signals.MockWeather)
	assert.True(t, cfg.Signals.MockSatellite)
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, 10, cfg.Scheduler.AnalyzeLimit)
	assert.False(t, cfg.HasCredentials())
}

func TestLoadFileThenEnv(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, `
port: "9090"
opensky:
  client_id: file-id
  client_secret: file-secret
  snapshot_ttl: 45s
signals:
  mock_weather: false
  weather_mode: onecall
  weather_service_url: http://weather.internal
store:
  driver: sqlite
  path: /tmp/impacts.db
`)
	t.Setenv("PORT", "7070")
	t.Setenv("ANALYZE_INTERVAL", "5m")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "7070", cfg.Port)
	assert.Equal(t, 45*time.Second, cfg.OpenSky.SnapshotTTL)
	assert.True(t, cfg.HasCredentials())
	assert.False(t, cfg.Signals.MockWeather)
	assert.Equal(t, "onecall", cfg.Signals.WeatherMode)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, 5*time.Minute, cfg.Scheduler.AnalyzeInterval)
}

func TestLoadPathFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv(PathEnv, writeFile(t, "log_level: debug\n"))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadErrors(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
		file string
	}{
		{name: "bad duration", env: map[string]string{"SNAPSHOT_TTL": "soon"}},
		{name: "bad bool", env: map[string]string{"USE_MOCK_WEATHER": "maybe"}},
		{name: "unknown driver", env: map[string]string{"STORE_DRIVER": "mongo"}},
		{name: "weather url required", env: map[string]string{"USE_MOCK_WEATHER": "false"}},
		{name: "satellite url required", env: map[string]string{"USE_MOCK_SATELLITE": "false"}},
		{name: "bad severity", env: map[string]string{"MQTT_MIN_SEVERITY": "extreme"}},
		{name: "bad weather mode", env: map[string]string{"WEATHER_MODE": "forecast"}},
		{name: "bad yaml", file: "port: [\n"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			path := ""
			if tc.file != "" {
				path = writeFile(t, tc.file)
			}
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	clearEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorContains(t, err, "read config file")
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLogLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLogLevel("warn"))
	assert.Equal(t, slog.LevelError, ParseLogLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLogLevel(""))
}
