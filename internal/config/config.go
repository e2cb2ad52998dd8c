package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"

	"github.com/couchcryptid/region-aggregator/internal/regions"
	"github.com/couchcryptid/region-aggregator/internal/spatial"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	KafkaBrokers     []string
	KafkaSourceTopic string
	KafkaSinkTopic   string
	KafkaGroupID     string
	HTTPAddr         string
	LogLevel         string
	LogFormat        string
	ShutdownTimeout  time.Duration

	BatchSize          int
	BatchFlushInterval time.Duration

	// Region source.
	RegionsPath      string
	RegionsFormat    string
	Columns          regions.Columns
	SkipInvalid      bool
	ExcludeRegionIDs []string
	DeriveExclusions bool
	MaxSkippedIDs    int

	// Aggregation.
	BucketSizeDegrees  float64
	AggregationWorkers int

	// Optional sinks; empty disables them.
	RedisURL    string
	PostgresDSN string

	// Mapbox name enrichment.
	MapboxToken     string
	MapboxEnabled   bool
	MapboxTimeout   time.Duration
	MapboxCacheSize int

	TracingEnabled bool
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}
	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}
	flushInterval, err := sharedcfg.ParseBatchFlushInterval()
	if err != nil {
		return nil, err
	}
	mapboxTimeout, err := parsePositiveDuration("MAPBOX_TIMEOUT", "5s")
	if err != nil {
		return nil, err
	}
	mapboxCacheSize, err := parseIntRange("MAPBOX_CACHE_SIZE", 1000, 1, 0)
	if err != nil {
		return nil, err
	}
	skipInvalid, err := parseBool("SKIP_INVALID", true)
	if err != nil {
		return nil, err
	}
	derive, err := parseBool("DERIVE_EXCLUSIONS", true)
	if err != nil {
		return nil, err
	}
	maxSkipped, err := parseIntRange("MAX_SKIPPED_IDS", 0, 0, 0)
	if err != nil {
		return nil, err
	}
	bucketSize, err := parseFloatRange("BUCKET_SIZE_DEGREES", 0.5, spatial.MinBucketSize, 180)
	if err != nil {
		return nil, err
	}
	workers, err := parseIntRange("AGGREGATION_WORKERS", runtime.GOMAXPROCS(0), 1, 0)
	if err != nil {
		return nil, err
	}
	tracing, err := parseBool("TRACING_ENABLED", false)
	if err != nil {
		return nil, err
	}

	mapboxToken := os.Getenv("MAPBOX_TOKEN")
	mapboxEnabled := mapboxToken != ""
	if v := os.Getenv("MAPBOX_ENABLED"); v != "" {
		mapboxEnabled = v == "true"
	}

	regionsPath := sharedcfg.EnvOrDefault("REGIONS_PATH", "data/regions.csv")
	format := strings.ToLower(sharedcfg.EnvOrDefault("REGIONS_FORMAT", FormatFromPath(regionsPath)))

	def := regions.DefaultColumns()
	cfg := &Config{
		KafkaBrokers:       sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSourceTopic:   sharedcfg.EnvOrDefault("KAFKA_SOURCE_TOPIC", "raw-point-batches"),
		KafkaSinkTopic:     sharedcfg.EnvOrDefault("KAFKA_SINK_TOPIC", "region-aggregates"),
		KafkaGroupID:       sharedcfg.EnvOrDefault("KAFKA_GROUP_ID", "region-aggregator"),
		HTTPAddr:           sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:           sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:          sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:    shutdownTimeout,
		BatchSize:          batchSize,
		BatchFlushInterval: flushInterval,

		RegionsPath:   regionsPath,
		RegionsFormat: format,
		Columns: regions.Columns{
			ID:       sharedcfg.EnvOrDefault("REGIONS_ID_COLUMN", def.ID),
			Geometry: sharedcfg.EnvOrDefault("REGIONS_GEOMETRY_COLUMN", def.Geometry),
			Value:    sharedcfg.EnvOrDefault("REGIONS_VALUE_COLUMN", def.Value),
			Name:     sharedcfg.EnvOrDefault("REGIONS_NAME_COLUMN", def.Name),
		},
		SkipInvalid:      skipInvalid,
		ExcludeRegionIDs: sharedcfg.ParseBrokers(os.Getenv("EXCLUDE_REGION_IDS")), // same comma-list rules as KAFKA_BROKERS
		DeriveExclusions: derive,
		MaxSkippedIDs:    maxSkipped,

		BucketSizeDegrees:  bucketSize,
		AggregationWorkers: workers,

		RedisURL:    os.Getenv("REDIS_URL"),
		PostgresDSN: os.Getenv("POSTGRES_DSN"),

		MapboxToken:     mapboxToken,
		MapboxEnabled:   mapboxEnabled,
		MapboxTimeout:   mapboxTimeout,
		MapboxCacheSize: mapboxCacheSize,

		TracingEnabled: tracing,
	}

	if len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_BROKERS is required")
	}
	if cfg.KafkaSourceTopic == "" {
		return nil, errors.New("KAFKA_SOURCE_TOPIC is required")
	}
	if cfg.KafkaSinkTopic == "" {
		return nil, errors.New("KAFKA_SINK_TOPIC is required")
	}
	if cfg.RegionsFormat != "csv" && cfg.RegionsFormat != "geojson" {
		return nil, fmt.Errorf("invalid REGIONS_FORMAT %q: must be csv or geojson", cfg.RegionsFormat)
	}
	if cfg.MapboxEnabled && cfg.MapboxToken == "" {
		return nil, errors.New("MAPBOX_ENABLED is true but MAPBOX_TOKEN is not set")
	}

	return cfg, nil
}

// FormatFromPath infers the region source format from a file extension.
func FormatFromPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".geojson", ".json":
		return "geojson"
	default:
		return "csv"
	}
}

// LoaderOptions maps the region settings onto regions.Options.
func (c *Config) LoaderOptions() regions.Options {
	return regions.Options{
		Columns:          c.Columns,
		Exclude:          c.ExcludeRegionIDs,
		DeriveExclusions: c.DeriveExclusions,
		MaxSkippedIDs:    c.MaxSkippedIDs,
	}
}
