package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/couchcryptid/region-aggregator/internal/domain"
)

const namespace = "region_agg"

// Region outcome labels for RegionsAggregated.
const (
	OutcomeMatched  = "matched"
	OutcomeFallback = "fallback"
	OutcomeEmpty    = "empty"
)

// Metrics holds the Prometheus collectors for region loading, aggregation and
// the batch pipeline. All helper methods are safe on a nil *Metrics.
type Metrics struct {
	// Region load metrics.
	RegionRows          *prometheus.CounterVec // labels: outcome={processed,skipped,errored,excluded,duplicate}
	GeometriesRecovered prometheus.Counter

	// Pipeline metrics.
	BatchesConsumed    prometheus.Counter
	OutputsProduced    prometheus.Counter
	OutputsWithoutData prometheus.Counter
	TransformErrors    prometheus.Counter
	PipelineRunning    prometheus.Gauge
	BatchSize          prometheus.Histogram
	BatchDuration      prometheus.Histogram
	PointsDropped      prometheus.Counter
	SinkWriteErrors    *prometheus.CounterVec // labels: sink

	// Aggregation metrics.
	RegionsAggregated   *prometheus.CounterVec // labels: outcome={matched,fallback,empty}
	AggregationDuration prometheus.Histogram

	// Geocoding metrics.
	GeocodeRequests    *prometheus.CounterVec   // labels: method, outcome={success,error,empty}
	GeocodeCache       *prometheus.CounterVec   // labels: method, result={hit,miss}
	GeocodeAPIDuration *prometheus.HistogramVec // labels: method
	GeocodeEnabled     prometheus.Gauge
}

func newMetrics() *Metrics {
	return &Metrics{
		RegionRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "region_rows_total",
			Help:      "Region source rows by load outcome.",
		}, []string{"outcome"}),
		GeometriesRecovered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geometries_recovered_total",
			Help:      "Region geometries accepted through coordinate recovery.",
		}),
		BatchesConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_consumed_total",
			Help:      "Point batches read from the source topic.",
		}),
		OutputsProduced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outputs_produced_total",
			Help:      "Aggregation outputs written to the sinks.",
		}),
		OutputsWithoutData: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outputs_without_data_total",
			Help:      "Loaded aggregation outputs in which no region had an intensity.",
		}),
		TransformErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transform_errors_total",
			Help:      "Point batches that could not be aggregated.",
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 when the pipeline is active, 0 when shut down.",
		}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_size",
			Help:      "Messages per batch extracted from Kafka.",
			Buckets:   []float64{1, 5, 10, 20, 50, 100, 250, 500, 1000},
		}),
		BatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_processing_duration_seconds",
			Help:      "Duration of a complete batch extract-transform-load cycle.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		}),
		PointsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "points_dropped_total",
			Help:      "Sample points rejected while building the bucket index.",
		}),
		SinkWriteErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_write_errors_total",
			Help:      "Failed writes by sink.",
		}, []string{"sink"}),
		RegionsAggregated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "regions_aggregated_total",
			Help:      "Aggregated regions by outcome.",
		}, []string{"outcome"}),
		AggregationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "aggregation_duration_seconds",
			Help:      "Duration of one aggregation pass over all regions.",
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
		}),
		GeocodeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_requests_total",
			Help:      "Geocoding API requests by method and outcome.",
		}, []string{"method", "outcome"}),
		GeocodeCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_cache_total",
			Help:      "Geocoding cache lookups by method and result.",
		}, []string{"method", "result"}),
		GeocodeAPIDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "geocode_api_duration_seconds",
			Help:      "Mapbox API request duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"method"}),
		GeocodeEnabled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "geocode_enabled",
			Help:      "1 when region name enrichment is enabled, 0 otherwise.",
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.RegionRows,
		m.GeometriesRecovered,
		m.BatchesConsumed,
		m.OutputsProduced,
		m.OutputsWithoutData,
		m.TransformErrors,
		m.PipelineRunning,
		m.BatchSize,
		m.BatchDuration,
		m.PointsDropped,
		m.SinkWriteErrors,
		m.RegionsAggregated,
		m.AggregationDuration,
		m.GeocodeRequests,
		m.GeocodeCache,
		m.GeocodeAPIDuration,
		m.GeocodeEnabled,
	}
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates unregistered Metrics so tests can build as many
// as they need without "already registered" panics.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

// RecordLoad adds one region load's stats to the row counters.
func (m *Metrics) RecordLoad(s domain.ProcessingStats) {
	if m == nil {
		return
	}
	m.RegionRows.WithLabelValues("processed").Add(float64(s.Processed))
	m.RegionRows.WithLabelValues("skipped").Add(float64(s.Skipped - s.Excluded - s.Duplicates))
	m.RegionRows.WithLabelValues("excluded").Add(float64(s.Excluded))
	m.RegionRows.WithLabelValues("duplicate").Add(float64(s.Duplicates))
	m.RegionRows.WithLabelValues("errored").Add(float64(s.Errored))
	m.GeometriesRecovered.Add(float64(s.Recovered))
}

// RecordRegion counts one aggregated region under outcome.
func (m *Metrics) RecordRegion(outcome string) {
	if m == nil {
		return
	}
	m.RegionsAggregated.WithLabelValues(outcome).Inc()
}

// ObserveAggregation records the duration of one aggregation pass.
func (m *Metrics) ObserveAggregation(d time.Duration) {
	if m == nil {
		return
	}
	m.AggregationDuration.Observe(d.Seconds())
}

// RecordDropped counts sample points rejected by the index.
func (m *Metrics) RecordDropped(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.PointsDropped.Add(float64(n))
}
