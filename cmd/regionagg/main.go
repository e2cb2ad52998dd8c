package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/joho/godotenv"

	httpadapter "github.com/couchcryptid/region-aggregator/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/region-aggregator/internal/adapter/kafka"
	"github.com/couchcryptid/region-aggregator/internal/adapter/mapbox"
	"github.com/couchcryptid/region-aggregator/internal/adapter/postgres"
	redisadapter "github.com/couchcryptid/region-aggregator/internal/adapter/redis"
	"github.com/couchcryptid/region-aggregator/internal/aggregate"
	"github.com/couchcryptid/region-aggregator/internal/config"
	"github.com/couchcryptid/region-aggregator/internal/observability"
	"github.com/couchcryptid/region-aggregator/internal/pipeline"
	"github.com/couchcryptid/region-aggregator/internal/regionindex"
	"github.com/couchcryptid/region-aggregator/internal/regions"
)

const serviceName = "region-aggregator"

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := sharedobs.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	if err := run(cfg, logger, metrics); err != nil {
		logger.Error("region aggregator failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, cfg.TracingEnabled, serviceName, os.Stdout, logger)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer observability.ShutdownTracing(context.Background(), shutdownTracing, logger)

	set, err := loadRegions(ctx, cfg, logger, metrics)
	if err != nil {
		return err
	}

	locator, err := regionindex.NewLocator(set.Regions)
	if err != nil {
		return fmt.Errorf("build region locator: %w", err)
	}

	agg := aggregate.New(aggregate.Options{
		Workers: cfg.AggregationWorkers,
		Logger:  logger,
		Metrics: metrics,
	})
	transformer := pipeline.NewTransformer(set, agg, cfg.BucketSizeDegrees, logger, metrics)

	reader := kafkaadapter.NewReader(cfg, logger)
	writer := kafkaadapter.NewWriter(cfg, logger)
	sinks := []pipeline.Sink{{Name: "kafka", Loader: writer, Required: true}}

	routes := httpadapter.Routes{Locator: locator, Stats: set.Stats}

	if cfg.RedisURL != "" {
		client, err := redisadapter.Open(cfg.RedisURL)
		if err != nil {
			return err
		}
		defer client.Close()
		sink := redisadapter.NewSink(client, logger)
		sinks = append(sinks, pipeline.Sink{Name: "redis", Loader: sink})
		routes.Latest = sink
		logger.Info("redis sink enabled")
	}

	if cfg.PostgresDSN != "" {
		db, err := postgres.Open(cfg.PostgresDSN)
		if err != nil {
			return fmt.Errorf("open postgres: %w", err)
		}
		defer db.Close()
		sink := postgres.NewSink(db, logger)
		if err := sink.EnsureSchema(ctx); err != nil {
			return err
		}
		sinks = append(sinks, pipeline.Sink{Name: "postgres", Loader: sink})
		logger.Info("postgres sink enabled")
	}

	loader := pipeline.NewFanoutLoader(logger, metrics, sinks...)
	p := pipeline.New(reader, transformer, loader, logger, metrics, cfg.BatchSize)

	routes.Ready = p
	srv := httpadapter.NewServer(cfg.HTTPAddr, routes, logger)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start aggregation pipeline.
	go func() {
		if err := p.Run(ctx); err != nil {
			logger.Error("pipeline error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if err := reader.Close(); err != nil {
		logger.Error("kafka reader close error", "error", err)
	}
	if err := writer.Close(); err != nil {
		logger.Error("kafka writer close error", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}

// loadRegions reads the region source once at startup and optionally fills
// missing names from Mapbox.
func loadRegions(ctx context.Context, cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) (regions.RegionSet, error) {
	data, err := os.ReadFile(cfg.RegionsPath)
	if err != nil {
		return regions.RegionSet{}, fmt.Errorf("read regions: %w", err)
	}

	opts := cfg.LoaderOptions()
	opts.Logger = logger
	set, err := regions.NewLoader(opts).Load(ctx, data, cfg.RegionsFormat, cfg.SkipInvalid)
	if err != nil {
		return regions.RegionSet{}, fmt.Errorf("load regions from %s: %w", cfg.RegionsPath, err)
	}
	metrics.RecordLoad(set.Stats)
	if len(set.Regions) == 0 {
		return regions.RegionSet{}, fmt.Errorf("no usable regions in %s", cfg.RegionsPath)
	}

	// Feature-flagged via MAPBOX_ENABLED / MAPBOX_TOKEN.
	if !cfg.MapboxEnabled {
		logger.Info("mapbox name enrichment disabled")
		metrics.GeocodeEnabled.Set(0)
		return set, nil
	}
	metrics.GeocodeEnabled.Set(1)
	client := mapbox.NewClient(cfg.MapboxToken, cfg.MapboxTimeout, logger, metrics)
	geocoder := mapbox.NewCachedGeocoder(client, cfg.MapboxCacheSize, metrics)
	named, err := regions.EnrichNames(ctx, set.Regions, geocoder, logger)
	if err != nil {
		return regions.RegionSet{}, fmt.Errorf("enrich region names: %w", err)
	}
	logger.Info("region names enriched", "named", named, "cache_size", cfg.MapboxCacheSize)
	return set, nil
}
