// Package redis keeps the most recent aggregation result per region in Redis
// so readers can fetch current values without replaying the sink topic.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/couchcryptid/region-aggregator/internal/domain"
)

const (
	// LatestKey is a hash of region ID -> result JSON from the newest output.
	LatestKey = "regionagg:latest"
	// MetaKey is a hash describing the run that produced LatestKey.
	MetaKey = "regionagg:meta"
)

// Open parses a redis:// URL and returns a client.
func Open(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return goredis.NewClient(opts), nil
}

// Sink writes aggregation outputs to Redis. It implements pipeline.BatchLoader.
type Sink struct {
	client goredis.Cmdable
	logger *slog.Logger
}

// NewSink creates a Sink over client.
func NewSink(client goredis.Cmdable, logger *slog.Logger) *Sink {
	return &Sink{client: client, logger: logger}
}

// LoadBatch replaces the latest-result hash with each output in turn, so the
// last output of the batch wins. Each replacement is one MULTI/EXEC.
func (s *Sink) LoadBatch(ctx context.Context, events []domain.OutputEvent) error {
	for _, ev := range events {
		var out domain.AggregationOutput
		if err := json.Unmarshal(ev.Value, &out); err != nil {
			return fmt.Errorf("decode aggregation output: %w", err)
		}
		fields, err := latestFields(out)
		if err != nil {
			return err
		}

		pipe := s.client.TxPipeline()
		pipe.Del(ctx, LatestKey)
		if len(fields) > 0 {
			pipe.HSet(ctx, LatestKey, fields)
		}
		pipe.HSet(ctx, MetaKey, metaFields(out))
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("write latest results for batch %s: %w", out.BatchID, err)
		}
		s.logger.Debug("latest results cached", "batch_id", out.BatchID, "regions", len(fields))
	}
	return nil
}

// Latest returns the cached result for regionID. ok is false when none is cached.
func (s *Sink) Latest(ctx context.Context, regionID string) (res domain.AggregationResult, ok bool, err error) {
	raw, err := s.client.HGet(ctx, LatestKey, regionID).Result()
	if errors.Is(err, goredis.Nil) {
		return domain.AggregationResult{}, false, nil
	}
	if err != nil {
		return domain.AggregationResult{}, false, err
	}
	if err := json.Unmarshal([]byte(raw), &res); err != nil {
		return domain.AggregationResult{}, false, fmt.Errorf("decode cached result %s: %w", regionID, err)
	}
	return res, true, nil
}

func latestFields(out domain.AggregationOutput) (map[string]any, error) {
	fields := make(map[string]any, len(out.Results))
	for _, r := range out.Results {
		data, err := json.Marshal(r)
		if err != nil {
			return nil, fmt.Errorf("encode result %s: %w", r.RegionID, err)
		}
		fields[r.RegionID] = string(data)
	}
	return fields, nil
}

func metaFields(out domain.AggregationOutput) map[string]any {
	return map[string]any{
		"run_id":         out.RunID,
		"batch_id":       out.BatchID,
		"processed_at":   out.ProcessedAt.UTC().Format(time.RFC3339),
		"min":            strconv.FormatFloat(out.Extremes.Min, 'g', -1, 64),
		"max":            strconv.FormatFloat(out.Extremes.Max, 'g', -1, 64),
		"extremes_empty": strconv.FormatBool(out.Extremes.Empty),
		"regions":        strconv.Itoa(len(out.Results)),
	}
}
