package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/gridpulse/demand-weather-etl/internal/domain"
)

// City maps a registry city to its source-specific keys. StationID keys the
// weather source (GHCND station), RegionID the demand source (balancing
// authority).
type City struct {
	Name      string  `yaml:"name" validate:"required"`
	StationID string  `yaml:"station_id" validate:"required"`
	RegionID  string  `yaml:"region_id" validate:"required"`
	Timezone  string  `yaml:"timezone"`
	Lat       float64 `yaml:"lat"`
	Lon       float64 `yaml:"lon"`
}

// Retry is the bounded retry-with-backoff policy applied to transient
// source failures.
type Retry struct {
	MaxAttempts int      `yaml:"max_attempts" validate:"min=1"`
	BaseDelay   Duration `yaml:"base_delay"`
	MaxDelay    Duration `yaml:"max_delay"`
	Jitter      float64  `yaml:"jitter" validate:"gte=0,lte=1"`
}

// Quality holds the validator thresholds.
type Quality struct {
	TempMinF            float64 `yaml:"temp_min_f"`
	TempMaxF            float64 `yaml:"temp_max_f" validate:"gtfield=TempMinF"`
	SpikeIQRMultiplier  float64 `yaml:"spike_iqr_multiplier" validate:"gt=0"`
	FreshnessMaxAgeDays int     `yaml:"freshness_max_age_days" validate:"min=0"`
}

// Correlation holds the engine's classification cutoffs.
type Correlation struct {
	StrongCutoff   float64 `yaml:"strong_cutoff" validate:"gt=0,lte=1"`
	ModerateCutoff float64 `yaml:"moderate_cutoff" validate:"gt=0,ltfield=StrongCutoff"`
	MinSampleSize  int     `yaml:"min_sample_size" validate:"min=1"`
}

// Config is the immutable run configuration. It is constructed once by
// Load and passed into every component; nothing reads ambient state after
// that.
type Config struct {
	HTTPAddr        string   `yaml:"http_addr" validate:"required"`
	LogLevel        string   `yaml:"log_level"`
	LogFormat       string   `yaml:"log_format"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`

	WeatherBaseURL string `yaml:"weather_base_url" validate:"required,url"`
	DemandBaseURL  string `yaml:"demand_base_url" validate:"required,url"`
	WeatherToken   string `yaml:"-" validate:"required"`
	DemandAPIKey   string `yaml:"-" validate:"required"`

	DatabasePath string `yaml:"database_path" validate:"required"`
	RawDataDir   string `yaml:"raw_data_dir" validate:"required"`

	KafkaEnabled bool     `yaml:"kafka_enabled"`
	KafkaBrokers []string `yaml:"kafka_brokers"`
	KafkaTopic   string   `yaml:"kafka_topic"`

	FetchConcurrency int      `yaml:"fetch_concurrency" validate:"min=1"`
	FetchTimeout     Duration `yaml:"fetch_timeout"`
	WindowDays       int      `yaml:"window_days" validate:"min=1"`
	Retry            Retry    `yaml:"retry"`

	Quality     Quality     `yaml:"quality"`
	Correlation Correlation `yaml:"correlation"`

	Cities []City `yaml:"cities" validate:"min=1,dive"`
}

// Load builds the configuration: defaults, then the optional YAML file,
// then environment overrides (a .env file is honored when present), then
// validation. Credentials only ever come from the environment.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	if cfg.KafkaEnabled && (len(cfg.KafkaBrokers) == 0 || cfg.KafkaTopic == "") {
		return nil, errors.New("KAFKA_ENABLED is true but brokers or topic are not set")
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Registry returns the city registry keyed by standardized city name, the
// same form the fetcher resolves lookups with, so the configured casing of
// a city name never affects whether it resolves.
func (c *Config) Registry() map[string]City {
	reg := make(map[string]City, len(c.Cities))
	for _, city := range c.Cities {
		reg[domain.StandardizeCity(city.Name)] = city
	}
	return reg
}

func defaults() *Config {
	return &Config{
		HTTPAddr:        ":8080",
		LogLevel:        "info",
		LogFormat:       "json",
		ShutdownTimeout: Duration(10 * time.Second),

		WeatherBaseURL: "https://www.ncei.noaa.gov/cdo-web/api/v2/data",
		DemandBaseURL:  "https://api.eia.gov/v2/electricity/rto/daily-region-data/data/",

		DatabasePath: "data/processed.db",
		RawDataDir:   "data/raw",

		KafkaTopic: "merged-demand-weather",

		FetchConcurrency: 4,
		FetchTimeout:     Duration(2 * time.Minute),
		WindowDays:       90,
		Retry: Retry{
			MaxAttempts: 4,
			BaseDelay:   Duration(500 * time.Millisecond),
			MaxDelay:    Duration(10 * time.Second),
			Jitter:      0.2,
		},

		Quality: Quality{
			TempMinF:            -50,
			TempMaxF:            130,
			SpikeIQRMultiplier:  3,
			FreshnessMaxAgeDays: 2,
		},
		Correlation: Correlation{
			StrongCutoff:   0.7,
			ModerateCutoff: 0.4,
			MinSampleSize:  3,
		},

		Cities: []City{
			{Name: "New York", StationID: "GHCND:USW00094728", RegionID: "NYIS", Timezone: "America/New_York", Lat: 40.7128, Lon: -74.0060},
			{Name: "Chicago", StationID: "GHCND:USW00094846", RegionID: "PJM", Timezone: "America/Chicago", Lat: 41.8781, Lon: -87.6298},
			{Name: "Houston", StationID: "GHCND:USW00012960", RegionID: "ERCO", Timezone: "America/Chicago", Lat: 29.7604, Lon: -95.3698},
			{Name: "Phoenix", StationID: "GHCND:USW00023183", RegionID: "AZPS", Timezone: "America/Phoenix", Lat: 33.4484, Lon: -112.0740},
			{Name: "Seattle", StationID: "GHCND:USW00024233", RegionID: "SCL", Timezone: "America/Los_Angeles", Lat: 47.6062, Lon: -122.3321},
		},
	}
}

func applyEnv(cfg *Config) error {
	cfg.HTTPAddr = envOrDefault("HTTP_ADDR", cfg.HTTPAddr)
	cfg.LogLevel = envOrDefault("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = envOrDefault("LOG_FORMAT", cfg.LogFormat)
	cfg.WeatherBaseURL = envOrDefault("WEATHER_BASE_URL", cfg.WeatherBaseURL)
	cfg.DemandBaseURL = envOrDefault("DEMAND_BASE_URL", cfg.DemandBaseURL)
	cfg.WeatherToken = envOrDefault("NOAA_TOKEN", cfg.WeatherToken)
	cfg.DemandAPIKey = envOrDefault("EIA_API_KEY", cfg.DemandAPIKey)
	cfg.DatabasePath = envOrDefault("DATABASE_PATH", cfg.DatabasePath)
	cfg.RawDataDir = envOrDefault("RAW_DATA_DIR", cfg.RawDataDir)
	cfg.KafkaTopic = envOrDefault("KAFKA_TOPIC", cfg.KafkaTopic)

	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.KafkaBrokers = splitBrokers(v)
	}
	if v := os.Getenv("KAFKA_ENABLED"); v != "" {
		cfg.KafkaEnabled = v == "true"
	}

	for name, dst := range map[string]*Duration{
		"SHUTDOWN_TIMEOUT": &cfg.ShutdownTimeout,
		"FETCH_TIMEOUT":    &cfg.FetchTimeout,
	} {
		if v := os.Getenv(name); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil || d <= 0 {
				return fmt.Errorf("invalid %s: %q", name, v)
			}
			*dst = Duration(d)
		}
	}

	for name, dst := range map[string]*int{
		"FETCH_CONCURRENCY": &cfg.FetchConcurrency,
		"WINDOW_DAYS":       &cfg.WindowDays,
	} {
		if v := os.Getenv(name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				return fmt.Errorf("invalid %s: %q", name, v)
			}
			*dst = n
		}
	}

	return nil
}

func envOrDefault(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}

func splitBrokers(s string) []string {
	var brokers []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			brokers = append(brokers, p)
		}
	}
	return brokers
}
