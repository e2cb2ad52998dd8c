// Package aggregate attributes sample-point values to region polygons.
package aggregate

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"time"

	"github.com/golang/geo/s1"
	"github.com/golang/geo/s2"
	"github.com/paulmach/orb"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/region-aggregator/internal/domain"
	"github.com/couchcryptid/region-aggregator/internal/geometry"
	"github.com/couchcryptid/region-aggregator/internal/observability"
	"github.com/couchcryptid/region-aggregator/internal/spatial"
)

const earthRadiusKm = 6371.0088

var tracer = otel.Tracer("github.com/couchcryptid/region-aggregator/internal/aggregate")

// Options configures an Aggregator.
type Options struct {
	// Workers bounds concurrent region evaluations. Zero means GOMAXPROCS.
	Workers int
	// MaxSearchRadius is the last ring the nearest-point fallback inspects.
	// Zero means spatial.DefaultMaxRadius.
	MaxSearchRadius int
	Logger          *slog.Logger
	Metrics         *observability.Metrics
}

// Set is the output of one aggregation pass.
type Set struct {
	Results  []domain.AggregationResult `json:"results"`
	Extremes domain.Extremes            `json:"extremes"`
}

// Aggregator evaluates regions against a bucket index. It holds no per-pass
// state and can be reused.
type Aggregator struct {
	workers   int
	maxRadius int
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// New creates an Aggregator.
func New(opts Options) *Aggregator {
	a := &Aggregator{
		workers:   opts.Workers,
		maxRadius: opts.MaxSearchRadius,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
	}
	if a.workers <= 0 {
		a.workers = runtime.GOMAXPROCS(0)
	}
	if a.maxRadius <= 0 {
		a.maxRadius = spatial.DefaultMaxRadius
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	return a
}

// Aggregate evaluates every region in parallel. Results are returned in the
// order of regions regardless of completion order. Cancelling ctx stops
// new regions from starting and returns ctx.Err().
func (a *Aggregator) Aggregate(ctx context.Context, regions []domain.Region, idx *spatial.Index) (Set, error) {
	if idx == nil {
		return Set{}, errors.New("aggregate: nil index")
	}
	ctx, span := tracer.Start(ctx, "aggregate.run")
	defer span.End()
	start := time.Now()

	results := make([]domain.AggregationResult, len(regions))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.workers)
	for i := range regions {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = a.AggregateRegion(regions[i], idx)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return Set{}, err
	}
	if err := ctx.Err(); err != nil {
		span.RecordError(err)
		return Set{}, err
	}

	set := Set{Results: results, Extremes: domain.ComputeExtremes(results)}
	elapsed := time.Since(start)
	a.metrics.ObserveAggregation(elapsed)
	span.SetAttributes(
		attribute.Int("aggregate.regions", len(regions)),
		attribute.Int("aggregate.points", idx.Len()),
		attribute.Bool("aggregate.extremes_empty", set.Extremes.Empty),
	)
	a.logger.Debug("aggregation pass complete",
		"regions", len(regions),
		"points", idx.Len(),
		"duration", elapsed,
	)
	return set, nil
}

// AggregateRegion evaluates a single region. Containment failures are
// recorded as a warning on the result and the region falls through to the
// nearest-point search.
func (a *Aggregator) AggregateRegion(r domain.Region, idx *spatial.Index) domain.AggregationResult {
	res := domain.AggregationResult{RegionID: r.ID, RegionName: r.Name}
	if r.Geometry == nil {
		res.Warning = "region has no geometry"
		a.metrics.RecordRegion(observability.OutcomeEmpty)
		return res
	}

	centroid := geometry.Centroid(r.Geometry)
	res.Centroid = domain.CoordinateFromPoint(centroid)

	var (
		sum float64
		n   int
	)
	for _, p := range idx.Candidates(r.Geometry.Bound()) {
		in, err := geometry.Contains(r.Geometry, orb.Point{p.Lng, p.Lat})
		if err != nil {
			a.logger.Warn("point-in-polygon failed, using nearest point", "region_id", r.ID, "error", err)
			res.Warning = err.Error()
			sum, n = 0, 0
			break
		}
		if in {
			sum += p.Value
			n++
		}
	}
	if n > 0 {
		res.Intensity = domain.Float(sum / float64(n))
		res.PointCount = n
		a.metrics.RecordRegion(observability.OutcomeMatched)
		return res
	}

	p, ok := idx.Nearest(centroid, a.maxRadius)
	if !ok {
		a.logger.Debug("no sample point near region", "region_id", r.ID, "max_radius", a.maxRadius)
		a.metrics.RecordRegion(observability.OutcomeEmpty)
		return res
	}
	nearest := domain.Coordinate{Lng: p.Lng, Lat: p.Lat}
	res.Intensity = domain.Float(p.Value)
	res.IsFallback = true
	res.NearestPoint = &nearest
	res.NearestDistanceKm = DistanceKm(res.Centroid, nearest)
	a.metrics.RecordRegion(observability.OutcomeFallback)
	return res
}

// DistanceKm returns the great-circle distance between two coordinates.
func DistanceKm(a, b domain.Coordinate) float64 {
	var angle s1.Angle = s2.LatLngFromDegrees(a.Lat, a.Lng).Distance(s2.LatLngFromDegrees(b.Lat, b.Lng))
	return angle.Radians() * earthRadiusKm
}
