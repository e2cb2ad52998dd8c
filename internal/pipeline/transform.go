package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/couchcryptid/region-aggregator/internal/aggregate"
	"github.com/couchcryptid/region-aggregator/internal/domain"
	"github.com/couchcryptid/region-aggregator/internal/observability"
	"github.com/couchcryptid/region-aggregator/internal/regions"
	"github.com/couchcryptid/region-aggregator/internal/spatial"
)

// RegionTransformer aggregates each incoming point batch against the region
// set loaded at startup. The region set is shared read-only across batches;
// the bucket index is rebuilt for every batch.
type RegionTransformer struct {
	regions    []domain.Region
	stats      domain.ProcessingStats
	aggregator *aggregate.Aggregator
	bucketSize float64
	logger     *slog.Logger
	metrics    *observability.Metrics
	newRunID   func() string
}

// NewTransformer creates a RegionTransformer over set.
func NewTransformer(set regions.RegionSet, agg *aggregate.Aggregator, bucketSize float64, logger *slog.Logger, metrics *observability.Metrics) *RegionTransformer {
	if logger == nil {
		logger = slog.Default()
	}
	return &RegionTransformer{
		regions:    set.Regions,
		stats:      set.Stats,
		aggregator: agg,
		bucketSize: bucketSize,
		logger:     logger,
		metrics:    metrics,
		newRunID:   uuid.NewString,
	}
}

// Transform decodes a PointBatch, indexes it and aggregates every region.
func (t *RegionTransformer) Transform(ctx context.Context, raw domain.RawEvent) (domain.OutputEvent, error) {
	out, err := t.Aggregate(ctx, raw)
	if err != nil {
		return domain.OutputEvent{}, err
	}
	return domain.SerializeOutput(out)
}

// Aggregate is Transform without serialization.
func (t *RegionTransformer) Aggregate(ctx context.Context, raw domain.RawEvent) (domain.AggregationOutput, error) {
	batch, err := domain.ParsePointBatch(raw)
	if err != nil {
		return domain.AggregationOutput{}, err
	}

	idx, err := spatial.BuildIndex(batch.Points, t.bucketSize, t.logger)
	if err != nil {
		return domain.AggregationOutput{}, fmt.Errorf("build index for batch %s: %w", batch.ID, err)
	}
	t.metrics.RecordDropped(idx.Dropped())

	set, err := t.aggregator.Aggregate(ctx, t.regions, idx)
	if err != nil {
		return domain.AggregationOutput{}, fmt.Errorf("aggregate batch %s: %w", batch.ID, err)
	}

	out := domain.AggregationOutput{
		RunID:       t.newRunID(),
		BatchID:     batch.ID,
		Source:      batch.Source,
		BatchTime:   batch.Timestamp,
		ProcessedAt: domain.Now(),
		BucketSize:  t.bucketSize,
		PointsUsed:  idx.Len(),
		Dropped:     idx.Dropped(),
		Results:     set.Results,
		Extremes:    set.Extremes,
		Stats:       t.stats,
	}
	t.logger.Info("point batch aggregated",
		"batch_id", out.BatchID,
		"run_id", out.RunID,
		"points", out.PointsUsed,
		"dropped", out.Dropped,
		"regions", len(out.Results),
		"extremes_empty", out.Extremes.Empty,
	)
	return out, nil
}
