package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/CUMTD/Mtd.Kiosk/internal/adapters/coolingunit"
	"github.com/CUMTD/Mtd.Kiosk/internal/adapters/kafka"
	"github.com/CUMTD/Mtd.Kiosk/internal/adapters/mqtt"
	"github.com/CUMTD/Mtd.Kiosk/internal/adapters/observability"
	"github.com/CUMTD/Mtd.Kiosk/internal/app/rollup"
	"github.com/CUMTD/Mtd.Kiosk/internal/ports"
	"github.com/CUMTD/Mtd.Kiosk/internal/resilience"
)

type Config struct {
	Server       ServerConfig            `yaml:"server"`
	Metrics      MetricsConfig           `yaml:"metrics"`
	Logging      observability.LogConfig `yaml:"logging"`
	Storage      StorageConfig           `yaml:"storage"`
	Rollup       RollupConfig            `yaml:"rollup"`
	Query        QueryConfig             `yaml:"query"`
	Policy       ports.Policy            `yaml:"policy"`
	MQTT         mqtt.Config             `yaml:"mqtt"`
	Kafka        kafka.Config            `yaml:"kafka"`
	CoolingUnits CoolingUnitConfig       `yaml:"cooling_units"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

type StorageConfig struct {
	Minutely string         `yaml:"minutely"` // "postgres", "influx", "memory"
	Daily    string         `yaml:"daily"`    // "postgres", "memory"
	Postgres PostgresConfig `yaml:"postgres"`
	Influx   InfluxConfig   `yaml:"influx"`
}

type PostgresConfig struct {
	ConnString    string `yaml:"conn_string"`
	MinutelyTable string `yaml:"minutely_table"`
	DailyTable    string `yaml:"daily_table"`
	MaxOpenConns  int    `yaml:"max_open_conns"`
	EnsureSchema  bool   `yaml:"ensure_schema"`
}

type InfluxConfig struct {
	URL    string `yaml:"url"`
	Token  string `yaml:"token"`
	Org    string `yaml:"org"`
	Bucket string `yaml:"bucket"`
}

type RollupConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Timezone     string `yaml:"timezone"`
	RunAt        string `yaml:"run_at"`
	BackfillDays int    `yaml:"backfill_days"`
	Concurrency  int    `yaml:"concurrency"`
}

type QueryConfig struct {
	RecentWindow time.Duration `yaml:"recent_window"`
	Concurrency  int           `yaml:"concurrency"`
}

type CoolingUnitConfig struct {
	APIKey       string               `yaml:"api_key"`
	PollInterval time.Duration        `yaml:"poll_interval"`
	Resilience   resilience.Settings  `yaml:"resilience"`
	Sources      []coolingunit.Source `yaml:"sources"`
}

// Env variables that override file values. Secrets belong here rather than in YAML.
const (
	EnvPostgresConn  = "KIOSK_POSTGRES_CONN"
	EnvInfluxToken   = "KIOSK_INFLUX_TOKEN"
	EnvHTTPAddr      = "KIOSK_HTTP_ADDR"
	EnvMetricsAddr   = "KIOSK_METRICS_ADDR"
	EnvCoolingAPIKey = "KIOSK_COOLING_UNIT_API_KEY"
	EnvMQTTPassword  = "KIOSK_MQTT_PASSWORD"
	EnvTimezone      = "KIOSK_TIMEZONE"
)

// Load reads the YAML file at path. A .env file next to the process is
// loaded first when present; variables already set in the environment win.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(raw)
}

// Parse decodes YAML, applies defaults and env overrides, and validates.
func Parse(raw []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9100"
	}
	if c.Storage.Minutely == "" {
		c.Storage.Minutely = "memory"
	}
	if c.Storage.Daily == "" {
		c.Storage.Daily = "memory"
	}
	if c.Storage.Postgres.MaxOpenConns == 0 {
		c.Storage.Postgres.MaxOpenConns = 10
	}
	if c.Rollup.Timezone == "" {
		c.Rollup.Timezone = "UTC"
	}
	if c.Rollup.RunAt == "" {
		c.Rollup.RunAt = "00:15"
	}
	if c.Rollup.Concurrency == 0 {
		c.Rollup.Concurrency = 4
	}
	if c.Query.RecentWindow == 0 {
		c.Query.RecentWindow = 30 * 24 * time.Hour
	}
	if c.Query.Concurrency == 0 {
		c.Query.Concurrency = 8
	}
	if c.Policy.MaxQueueLen == 0 {
		c.Policy.MaxQueueLen = 10_000
	}
	if c.Policy.MaxBatchSize == 0 {
		c.Policy.MaxBatchSize = 500
	}
	if c.Policy.IdleSleep == 0 {
		c.Policy.IdleSleep = 50 * time.Millisecond
	}
	if c.Policy.OnQueueFull == "" {
		c.Policy.OnQueueFull = "block"
	}
	if c.CoolingUnits.PollInterval == 0 {
		c.CoolingUnits.PollInterval = time.Minute
	}
	c.CoolingUnits.Resilience.ApplyDefaults()
	c.MQTT.ApplyDefaults()
	c.Kafka.ApplyDefaults()
}

func (c *Config) applyEnv() {
	set := func(dst *string, key string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	set(&c.Storage.Postgres.ConnString, EnvPostgresConn)
	set(&c.Storage.Influx.Token, EnvInfluxToken)
	set(&c.Server.Addr, EnvHTTPAddr)
	set(&c.Metrics.Addr, EnvMetricsAddr)
	set(&c.CoolingUnits.APIKey, EnvCoolingAPIKey)
	set(&c.MQTT.Password, EnvMQTTPassword)
	set(&c.Rollup.Timezone, EnvTimezone)
}

// Location resolves the fleet timezone.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Rollup.Timezone)
}

func (c *Config) validate() error {
	switch c.Storage.Minutely {
	case "memory":
	case "postgres":
		if c.Storage.Postgres.ConnString == "" {
			return fmt.Errorf("storage.postgres.conn_string is required for postgres minutely storage")
		}
	case "influx":
		in := c.Storage.Influx
		if in.URL == "" || in.Org == "" || in.Bucket == "" {
			return fmt.Errorf("storage.influx url, org and bucket are required for influx minutely storage")
		}
	default:
		return fmt.Errorf("storage.minutely %q: expected memory, postgres or influx", c.Storage.Minutely)
	}
	switch c.Storage.Daily {
	case "memory":
	case "postgres":
		if c.Storage.Postgres.ConnString == "" {
			return fmt.Errorf("storage.postgres.conn_string is required for postgres daily storage")
		}
	default:
		return fmt.Errorf("storage.daily %q: expected memory or postgres", c.Storage.Daily)
	}

	if _, err := c.Location(); err != nil {
		return fmt.Errorf("rollup.timezone: %w", err)
	}
	if _, _, err := rollup.ParseRunAt(c.Rollup.RunAt); err != nil {
		return fmt.Errorf("rollup: %w", err)
	}
	if c.Rollup.BackfillDays < 0 {
		return fmt.Errorf("rollup.backfill_days must not be negative")
	}
	switch c.Policy.OnQueueFull {
	case "block", "drop", "reject":
	default:
		return fmt.Errorf("policy.on_queue_full %q: expected block, drop or reject", c.Policy.OnQueueFull)
	}
	if err := c.CoolingUnits.Resilience.Validate(); err != nil {
		return fmt.Errorf("cooling_units.resilience: %w", err)
	}
	for i, src := range c.CoolingUnits.Sources {
		if src.KioskID == "" || src.URL == "" {
			return fmt.Errorf("cooling_units.sources[%d]: kiosk_id and url are required", i)
		}
	}
	if err := c.MQTT.Validate(); err != nil {
		return fmt.Errorf("mqtt config: %w", err)
	}
	if err := c.Kafka.Validate(); err != nil {
		return fmt.Errorf("kafka config: %w", err)
	}
	if _, err := observability.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if c.Metrics.Addr == "" {
		return fmt.Errorf("metrics.addr is required")
	}
	return nil
}
