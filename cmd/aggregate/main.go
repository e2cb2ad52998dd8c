// Command aggregate runs one offline aggregation pass: it loads a region file,
// attributes a point file to the regions and writes a GeoJSON result.
//
// Usage:
//
//	go run ./cmd/aggregate \
//	  -regions data/nuts_regions.csv \
//	  -points data/mock/points_at.json \
//	  -secondary data/countries.geojson \
//	  -out data/out/aggregates.geojson
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/couchcryptid/region-aggregator/internal/aggregate"
	"github.com/couchcryptid/region-aggregator/internal/config"
	"github.com/couchcryptid/region-aggregator/internal/domain"
	"github.com/couchcryptid/region-aggregator/internal/observability"
	"github.com/couchcryptid/region-aggregator/internal/regions"
	"github.com/couchcryptid/region-aggregator/internal/spatial"
)

type options struct {
	regionsPath   string
	pointsPath    string
	secondaryPath string
	format        string
	bucketSize    float64
	skipInvalid   bool
	workers       int
	out           string
}

func main() {
	var opts options
	flag.StringVar(&opts.regionsPath, "regions", "", "region file (CSV or GeoJSON)")
	flag.StringVar(&opts.pointsPath, "points", "", "point batch JSON (object with points, or array); without it the region value column is used")
	flag.StringVar(&opts.secondaryPath, "secondary", "", "optional coarser region file merged for uncovered countries")
	flag.StringVar(&opts.format, "format", "", "region format: csv or geojson (default: from extension)")
	flag.Float64Var(&opts.bucketSize, "bucket-size", 0.5, "spatial bucket size in degrees")
	flag.BoolVar(&opts.skipInvalid, "skip-invalid", true, "skip regions with invalid geometry instead of failing")
	flag.IntVar(&opts.workers, "workers", 0, "aggregation workers (default: GOMAXPROCS)")
	flag.StringVar(&opts.out, "out", "-", "output path, - for stdout")
	logLevel := flag.String("log-level", "info", "debug, info, warn or error")
	flag.Parse()

	if opts.regionsPath == "" {
		flag.Usage()
		os.Exit(2)
	}

	// Logs go to stderr so -out - stays clean JSON.
	logger := observability.NewCLILogger(os.Stderr, *logLevel, "text")
	if err := run(context.Background(), opts, logger); err != nil {
		logger.Error("aggregation failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options, logger *slog.Logger) error {
	primary, err := loadRegionFile(ctx, opts.regionsPath, opts.format, opts.skipInvalid, logger)
	if err != nil {
		return err
	}

	// Without a point file the region value column is the intensity.
	attribute := func(rs []domain.Region) (aggregate.Set, error) {
		return aggregate.PrecomputedResults(rs), nil
	}
	var idx *spatial.Index
	if opts.pointsPath != "" {
		data, err := os.ReadFile(opts.pointsPath)
		if err != nil {
			return fmt.Errorf("read points: %w", err)
		}
		points, err := decodePoints(data)
		if err != nil {
			return fmt.Errorf("decode %s: %w", opts.pointsPath, err)
		}
		idx, err = spatial.BuildIndex(points, opts.bucketSize, logger)
		if err != nil {
			return err
		}
		agg := aggregate.New(aggregate.Options{Workers: opts.workers, Logger: logger})
		attribute = func(rs []domain.Region) (aggregate.Set, error) {
			return agg.Aggregate(ctx, rs, idx)
		}
	}

	set, err := attribute(primary.Regions)
	if err != nil {
		return err
	}
	all := primary.Regions

	if opts.secondaryPath != "" {
		secondary, err := loadRegionFile(ctx, opts.secondaryPath, "", opts.skipInvalid, logger)
		if err != nil {
			return err
		}
		coarse, err := attribute(secondary.Regions)
		if err != nil {
			return err
		}
		set = aggregate.Merge(set.Results, coarse.Results)
		all = append(append([]domain.Region(nil), primary.Regions...), secondary.Regions...)
	}

	fc := aggregate.FeatureCollection(set, all, primary.Stats)
	if err := writeOutput(opts.out, fc); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	attrs := []any{
		"out", opts.out,
		"regions", len(set.Results),
		"min", set.Extremes.Min,
		"max", set.Extremes.Max,
	}
	if idx != nil {
		attrs = append(attrs, "points", idx.Len(), "dropped_points", idx.Dropped())
	}
	logger.Info("aggregation written", attrs...)
	return nil
}

func loadRegionFile(ctx context.Context, path, format string, skipInvalid bool, logger *slog.Logger) (regions.RegionSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return regions.RegionSet{}, fmt.Errorf("read regions: %w", err)
	}
	if format == "" {
		format = config.FormatFromPath(path)
	}
	loader := regions.NewLoader(regions.Options{DeriveExclusions: true, Logger: logger})
	set, err := loader.Load(ctx, data, format, skipInvalid)
	if err != nil {
		return regions.RegionSet{}, fmt.Errorf("load %s: %w", path, err)
	}
	return set, nil
}

// decodePoints accepts a PointBatch object or a bare array of points.
func decodePoints(data []byte) ([]domain.SamplePoint, error) {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var points []domain.SamplePoint
		if err := json.Unmarshal(data, &points); err != nil {
			return nil, err
		}
		return points, nil
	}
	var batch domain.PointBatch
	if err := json.Unmarshal(data, &batch); err != nil {
		return nil, err
	}
	return batch.Points, nil
}

func writeOutput(path string, v any) error {
	var w io.Writer = os.Stdout
	if path != "-" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
