package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/i474232898/aeroimpact/internal/telemetry"
)

// PathEnv names the environment variable holding the optional YAML config path.
const PathEnv = "AEROIMPACT_CONFIG"

var validate = validator.New()

type OpenSkyConfig struct {
	ClientID         string        `yaml:"client_id"`
	ClientSecret     string        `yaml:"client_secret"`
	BaseURL          string        `yaml:"base_url" validate:"required,url"`
	TokenURL         string        `yaml:"token_url" validate:"required,url"`
	SnapshotTTL      time.Duration `yaml:"snapshot_ttl" validate:"gt=0"`
	TokenTimeout     time.Duration `yaml:"token_timeout" validate:"gt=0"`
	TelemetryTimeout time.Duration `yaml:"telemetry_timeout" validate:"gt=0"`
}

type SignalsConfig struct {
	Timeout       time.Duration `yaml:"timeout" validate:"gt=0"`
	MockWeather   bool          `yaml:"mock_weather"`
	MockSatellite bool          `yaml:"mock_satellite"`
	// MockSeed 0 seeds the mock providers from the clock.
	MockSeed            int64  `yaml:"mock_seed"`
	WeatherMode         string `yaml:"weather_mode" validate:"oneof=risk onecall composite"`
	WeatherServiceURL   string `yaml:"weather_service_url" validate:"omitempty,url"`
	ServiceToken        string `yaml:"service_token"` // X-Internal-Token for both signal services
	SatelliteServiceURL string `yaml:"satellite_service_url" validate:"omitempty,url"`
	TileAPIKey          string `yaml:"tile_api_key"`
}

type StoreConfig struct {
	Driver     string `yaml:"driver" validate:"oneof=memory sqlite"`
	Path       string `yaml:"path"`
	MaxHistory int    `yaml:"max_history" validate:"gte=0"` // 0 = unlimited
}

type APIConfig struct {
	// InternalToken protects /api when set.
	InternalToken      string `yaml:"internal_token"`
	RateLimitPerMinute int    `yaml:"rate_limit_per_minute" validate:"gte=0"`
}

type SchedulerConfig struct {
	Enabled         bool          `yaml:"enabled"`
	WarmInterval    time.Duration `yaml:"warm_interval" validate:"gte=0"`
	AnalyzeInterval time.Duration `yaml:"analyze_interval" validate:"gte=0"`
	AnalyzeLimit    int           `yaml:"analyze_limit" validate:"gte=1,lte=100"`
}

type MQTTConfig struct {
	BrokerURL   string `yaml:"broker_url"`
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix" validate:"required"`
	MinSeverity string `yaml:"min_severity" validate:"omitempty,oneof=low medium high critical"`
}

type AppConfig struct {
	Port     string `yaml:"port" validate:"required,numeric"`
	LogLevel string `yaml:"log_level" validate:"oneof=debug info warn error"`

	OpenSky   OpenSkyConfig   `yaml:"opensky"`
	Signals   SignalsConfig   `yaml:"signals"`
	Store     StoreConfig     `yaml:"store"`
	API       APIConfig       `yaml:"api"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
}

// Default returns the configuration used when nothing is overridden.
func Default() *AppConfig {
	return &AppConfig{
		Port:     "8080",
		LogLevel: "info",
		OpenSky: OpenSkyConfig{
			BaseURL:          telemetry.DefaultBaseURL,
			TokenURL:         telemetry.DefaultTokenURL,
			SnapshotTTL:      telemetry.DefaultSnapshotTTL,
			TokenTimeout:     10 * time.Second,
			TelemetryTimeout: 20 * time.Second,
		},
		Signals: SignalsConfig{
			Timeout:       10 * time.Second,
			MockWeather:   true,
			MockSatellite: true,
			WeatherMode:   "risk",
		},
		Store: StoreConfig{
			Driver:     "memory",
			Path:       "data/impacts.db",
			MaxHistory: 1000,
		},
		Scheduler: SchedulerConfig{
			Enabled:      true,
			WarmInterval: 60 * time.Second,
			AnalyzeLimit: 10,
		},
		MQTT: MQTTConfig{
			ClientID:    "aeroimpact",
			TopicPrefix: "aeroimpact/impacts",
			MinSeverity: "high",
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file and the
// environment, in that order. An empty path falls back to $AEROIMPACT_CONFIG.
func Load(path string) (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("config: no .env file loaded", "err", err)
	}
	cfg := Default()

	if path == "" {
		path = os.Getenv(PathEnv)
	}
	if path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *AppConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *AppConfig) error {
	var errs []error
	duration := func(key string, dst *time.Duration) {
		d, err := getenvDuration(key, *dst)
		if err != nil {
			errs = append(errs, err)
			return
		}
		*dst = d
	}
	boolean := func(key string, dst *bool) {
		b, err := getenvBool(key, *dst)
		if err != nil {
			errs = append(errs, err)
			return
		}
		*dst = b
	}

	cfg.Port = getenvDefault("PORT", cfg.Port)
	cfg.LogLevel = strings.ToLower(getenvDefault("LOG_LEVEL", cfg.LogLevel))

	cfg.OpenSky.ClientID = getenvDefault("OPENSKY_CLIENT_ID", cfg.OpenSky.ClientID)
	cfg.OpenSky.ClientSecret = getenvDefault("OPENSKY_CLIENT_SECRET", cfg.OpenSky.ClientSecret)
	cfg.OpenSky.BaseURL = getenvDefault("OPENSKY_BASE_URL", cfg.OpenSky.BaseURL)
	cfg.OpenSky.TokenURL = getenvDefault("OPENSKY_TOKEN_URL", cfg.OpenSky.TokenURL)
	duration("SNAPSHOT_TTL", &cfg.OpenSky.SnapshotTTL)
	duration("TOKEN_TIMEOUT", &cfg.OpenSky.TokenTimeout)
	duration("TELEMETRY_TIMEOUT", &cfg.OpenSky.TelemetryTimeout)

	duration("SIGNAL_TIMEOUT", &cfg.Signals.Timeout)
	boolean("USE_MOCK_WEATHER", &cfg.Signals.MockWeather)
	boolean("USE_MOCK_SATELLITE", &cfg.Signals.MockSatellite)
	cfg.Signals.MockSeed = int64(getenvInt("MOCK_SEED", int(cfg.Signals.MockSeed)))
	cfg.Signals.WeatherMode = strings.ToLower(getenvDefault("WEATHER_MODE", cfg.Signals.WeatherMode))
	cfg.Signals.WeatherServiceURL = getenvDefault("WEATHER_SERVICE_URL", cfg.Signals.WeatherServiceURL)
	cfg.Signals.ServiceToken = getenvDefault("WEATHER_INTERNAL_TOKEN", cfg.Signals.ServiceToken)
	cfg.Signals.SatelliteServiceURL = getenvDefault("SATELLITE_SERVICE_URL", cfg.Signals.SatelliteServiceURL)
	cfg.Signals.TileAPIKey = getenvDefault("OPENWEATHER_API_KEY", cfg.Signals.TileAPIKey)

	cfg.Store.Driver = strings.ToLower(getenvDefault("STORE_DRIVER", cfg.Store.Driver))
	cfg.Store.Path = getenvDefault("STORE_PATH", cfg.Store.Path)
	cfg.Store.MaxHistory = getenvInt("STORE_MAX_HISTORY", cfg.Store.MaxHistory)

	cfg.API.InternalToken = getenvDefault("API_INTERNAL_TOKEN", cfg.API.InternalToken)
	cfg.API.RateLimitPerMinute = getenvInt("RATE_LIMIT_PER_MINUTE", cfg.API.RateLimitPerMinute)

	boolean("SCHEDULER_ENABLED", &cfg.Scheduler.Enabled)
	duration("WARM_INTERVAL", &cfg.Scheduler.WarmInterval)
	duration("ANALYZE_INTERVAL", &cfg.Scheduler.AnalyzeInterval)
	cfg.Scheduler.AnalyzeLimit = getenvInt("ANALYZE_LIMIT", cfg.Scheduler.AnalyzeLimit)

	cfg.MQTT.BrokerURL = getenvDefault("MQTT_BROKER_URL", cfg.MQTT.BrokerURL)
	cfg.MQTT.ClientID = getenvDefault("MQTT_CLIENT_ID", cfg.MQTT.ClientID)
	cfg.MQTT.TopicPrefix = getenvDefault("MQTT_TOPIC_PREFIX", cfg.MQTT.TopicPrefix)
	cfg.MQTT.MinSeverity = strings.ToLower(getenvDefault("MQTT_MIN_SEVERITY", cfg.MQTT.MinSeverity))

	return errors.Join(errs...)
}

// Validate checks field ranges and the settings that depend on each other.
func (c *AppConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if !c.Signals.MockWeather && c.Signals.WeatherServiceURL == "" {
		return errors.New("invalid configuration: WEATHER_SERVICE_URL is required when USE_MOCK_WEATHER=false")
	}
	if !c.Signals.MockSatellite && c.Signals.SatelliteServiceURL == "" {
		return errors.New("invalid configuration: SATELLITE_SERVICE_URL is required when USE_MOCK_SATELLITE=false")
	}
	if c.Store.Driver == "sqlite" && c.Store.Path == "" {
		return errors.New("invalid configuration: STORE_PATH is required for the sqlite driver")
	}
	return nil
}

// HasCredentials reports whether OpenSky client credentials are configured.
func (c *AppConfig) HasCredentials() bool {
	return c.OpenSky.ClientID != "" && c.OpenSky.ClientSecret != ""
}

// ParseLogLevel maps a LOG_LEVEL value to a slog level, defaulting to info.
func ParseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getenvBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

func getenvDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
