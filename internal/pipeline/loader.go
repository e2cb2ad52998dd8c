package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/region-aggregator/internal/domain"
	"github.com/couchcryptid/region-aggregator/internal/observability"
)

// Sink is one destination for aggregation outputs. A failing required sink
// fails the batch so offsets are not committed; optional sink failures are
// logged and counted.
type Sink struct {
	Name     string
	Loader   BatchLoader
	Required bool
}

// FanoutLoader writes each batch to every sink in order.
type FanoutLoader struct {
	sinks   []Sink
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewFanoutLoader creates a FanoutLoader. Sinks with a nil Loader are ignored.
func NewFanoutLoader(logger *slog.Logger, metrics *observability.Metrics, sinks ...Sink) *FanoutLoader {
	f := &FanoutLoader{logger: logger, metrics: metrics}
	for _, s := range sinks {
		if s.Loader != nil {
			f.sinks = append(f.sinks, s)
		}
	}
	return f
}

// LoadBatch implements BatchLoader.
func (f *FanoutLoader) LoadBatch(ctx context.Context, events []domain.OutputEvent) error {
	for _, s := range f.sinks {
		err := s.Loader.LoadBatch(ctx, events)
		if err == nil {
			continue
		}
		if f.metrics != nil {
			f.metrics.SinkWriteErrors.WithLabelValues(s.Name).Inc()
		}
		if s.Required {
			return fmt.Errorf("%s sink: %w", s.Name, err)
		}
		f.logger.Warn("optional sink write failed", "sink", s.Name, "error", err, "batch_size", len(events))
	}
	return nil
}
