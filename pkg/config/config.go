// Package config loads tracker settings from defaults, an optional YAML file
// and NTK_ environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/nicktill/ntk-tracker/pkg/logging"
	"github.com/nicktill/ntk-tracker/pkg/timezone"
)

// EnvPrefix namespaces environment overrides: NTK_SERVER__PORT -> server.port.
const EnvPrefix = "NTK_"

// ConfigPathEnvVar points at a YAML file.
const ConfigPathEnvVar = "CONFIG_PATH"

// DefaultConfigPaths are tried when CONFIG_PATH is unset.
var DefaultConfigPaths = []string{"config.yaml", "config.yml", "/etc/ntk-tracker/config.yaml"}

// legacyEnv maps the variable names of earlier deployments.
var legacyEnv = map[string]string{
	"PORT":         "server.port",
	"DATABASE_URL": "storage.postgres.dsn",
	"LOG_LEVEL":    "logging.level",
	"LOG_FORMAT":   "logging.format",
}

var sliceConfigPaths = []string{"server.cors_origins"}

type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Storage   StorageConfig   `koanf:"storage"`
	Timezone  TimezoneConfig  `koanf:"timezone"`
	Scrape    ScrapeConfig    `koanf:"scrape"`
	Predict   PredictConfig   `koanf:"predict"`
	Cache     CacheConfig     `koanf:"cache"`
	RateLimit RateLimitConfig `koanf:"ratelimit"`
	Logging   logging.Config  `koanf:"logging"`
	Export    ExportConfig    `koanf:"export"`
}

type ServerConfig struct {
	Port            string        `koanf:"port" validate:"required,numeric"`
	ReadTimeout     time.Duration `koanf:"read_timeout" validate:"min=1s"`
	WriteTimeout    time.Duration `koanf:"write_timeout" validate:"min=1s"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"min=1s"`
	StaticDir       string        `koanf:"static_dir"`
	CORSOrigins     []string      `koanf:"cors_origins"`
}

type StorageConfig struct {
	Driver       string         `koanf:"driver" validate:"oneof=badger postgres memory"`
	DataDir      string         `koanf:"data_dir"`
	MaxMemoryMB  int64          `koanf:"max_memory_mb" validate:"gte=0"`
	MaxStorageGB int64          `koanf:"max_storage_gb" validate:"gte=0"`
	Postgres     PostgresConfig `koanf:"postgres"`
}

type PostgresConfig struct {
	DSN      string `koanf:"dsn"`
	MaxConns int32  `koanf:"max_conns" validate:"gte=0"`
}

type TimezoneConfig struct {
	Name string `koanf:"name" validate:"required"`
}

type ScrapeConfig struct {
	Enabled   bool          `koanf:"enabled"`
	URL       string        `koanf:"url" validate:"required,url"`
	Selector  string        `koanf:"selector" validate:"required"`
	UserAgent string        `koanf:"user_agent"`
	Interval  time.Duration `koanf:"interval" validate:"min=1s"`
	Timeout   time.Duration `koanf:"timeout" validate:"min=1s"`
	// BreakerFailures consecutive failures open the circuit for BreakerCooldown.
	BreakerFailures uint32        `koanf:"breaker_failures" validate:"gte=1"`
	BreakerCooldown time.Duration `koanf:"breaker_cooldown" validate:"min=1s"`
}

type PredictConfig struct {
	LookbackWeeks int    `koanf:"lookback_weeks" validate:"min=1,max=52"`
	StartOfDay    string `koanf:"start_of_day" validate:"required"`
	EndOfDay      string `koanf:"end_of_day" validate:"required"`
}

// CacheConfig holds per-namespace TTLs.
type CacheConfig struct {
	DefaultTTL    time.Duration `koanf:"default_ttl" validate:"min=1s"`
	History       time.Duration `koanf:"history"`
	Current       time.Duration `koanf:"current"`
	Highest       time.Duration `koanf:"highest"`
	DayOfWeek     time.Duration `koanf:"day_of_week"`
	Daily         time.Duration `koanf:"daily"`
	Weekly        time.Duration `koanf:"weekly"`
	DayAverage    time.Duration `koanf:"day_average"`
	Heatmap       time.Duration `koanf:"heatmap"`
	Predict       time.Duration `koanf:"predict"`
	SweepInterval time.Duration `koanf:"sweep_interval" validate:"min=1s"`
}

// Limit allows Requests per Window per client IP.
type Limit struct {
	Requests int           `koanf:"requests" validate:"gte=1"`
	Window   time.Duration `koanf:"window" validate:"min=1s"`
}

type RateLimitConfig struct {
	Enabled bool  `koanf:"enabled"`
	General Limit `koanf:"general"`
	GraphQL Limit `koanf:"graphql"`
	Predict Limit `koanf:"predict"`
	Export  Limit `koanf:"export"`
}

type ExportConfig struct {
	AllowImport bool  `koanf:"allow_import"`
	MaxImportMB int64 `koanf:"max_import_mb" validate:"gte=1"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:            DefaultPort,
			ReadTimeout:     DefaultReadTimeout,
			WriteTimeout:    DefaultWriteTimeout,
			ShutdownTimeout: DefaultShutdownTimeout,
			StaticDir:       DefaultStaticDir,
			CORSOrigins:     []string{"*"},
		},
		Storage: StorageConfig{
			Driver:       "badger",
			DataDir:      DefaultDataDir,
			MaxMemoryMB:  DefaultMaxMemoryMB,
			MaxStorageGB: DefaultMaxStorageGB,
			Postgres:     PostgresConfig{MaxConns: 10},
		},
		Timezone: TimezoneConfig{Name: timezone.DefaultZone},
		Scrape: ScrapeConfig{
			Enabled:         true,
			URL:             DefaultScrapeURL,
			Selector:        DefaultSelector,
			UserAgent:       DefaultUserAgent,
			Interval:        DefaultScrapeInterval,
			Timeout:         DefaultScrapeTimeout,
			BreakerFailures: BreakerConsecutiveFail,
			BreakerCooldown: BreakerCooldown,
		},
		Predict: PredictConfig{
			LookbackWeeks: DefaultLookbackWeeks,
			StartOfDay:    DefaultStartOfDay,
			EndOfDay:      DefaultEndOfDay,
		},
		Cache: CacheConfig{
			DefaultTTL:    5 * time.Minute,
			History:       time.Minute,
			Current:       30 * time.Second,
			Highest:       5 * time.Minute,
			DayOfWeek:     10 * time.Minute,
			Daily:         30 * time.Minute,
			Weekly:        30 * time.Minute,
			DayAverage:    5 * time.Minute,
			Heatmap:       30 * time.Minute,
			Predict:       2 * time.Minute,
			SweepInterval: CacheSweepInterval,
		},
		RateLimit: RateLimitConfig{
			Enabled: true,
			General: Limit{Requests: 100, Window: 15 * time.Minute},
			GraphQL: Limit{Requests: 50, Window: 15 * time.Minute},
			Predict: Limit{Requests: 30, Window: 5 * time.Minute},
			Export:  Limit{Requests: 5, Window: time.Hour},
		},
		Logging: logging.Config{Level: "info", Format: "json"},
		Export:  ExportConfig{AllowImport: false, MaxImportMB: DefaultMaxImportMB},
	}
}

// Load layers defaults, the config file (explicit path, CONFIG_PATH or a
// default location) and environment variables, then validates.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path == "" {
		path = findConfigFile()
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", legacyTransform), nil); err != nil {
		return nil, fmt.Errorf("failed to load legacy environment: %w", err)
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks struct tags and cross-field rules.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}
	if c.Storage.Driver == "postgres" && c.Storage.Postgres.DSN == "" {
		return errors.New("storage.postgres.dsn is required for the postgres driver")
	}
	if c.Storage.Driver == "badger" && c.Storage.DataDir == "" {
		return errors.New("storage.data_dir is required for the badger driver")
	}
	start, err := timezone.ParseSlot(c.Predict.StartOfDay)
	if err != nil {
		return fmt.Errorf("predict.start_of_day: %w", err)
	}
	end, err := timezone.ParseSlot(c.Predict.EndOfDay)
	if err != nil {
		return fmt.Errorf("predict.end_of_day: %w", err)
	}
	if end <= start {
		return fmt.Errorf("predict.end_of_day %s must be after start_of_day %s", c.Predict.EndOfDay, c.Predict.StartOfDay)
	}
	if _, err := timezone.New(c.Timezone.Name); err != nil {
		return fmt.Errorf("timezone.name: %w", err)
	}
	return nil
}

// envTransform maps NTK_SCRAPE__USER_AGENT to scrape.user_agent.
func envTransform(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	return strings.ReplaceAll(key, "__", ".")
}

// legacyTransform keeps only the known unprefixed names.
func legacyTransform(key string) string {
	return legacyEnv[key]
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// processSliceFields splits comma-separated env values into slices.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok || strVal == "" {
			continue
		}
		var parts []string
		for _, p := range strings.Split(strVal, ",") {
			if p = strings.TrimSpace(p); p != "" {
				parts = append(parts, p)
			}
		}
		if err := k.Set(path, parts); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}
