package pipeline_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/region-aggregator/internal/aggregate"
	"github.com/couchcryptid/region-aggregator/internal/domain"
	"github.com/couchcryptid/region-aggregator/internal/observability"
	"github.com/couchcryptid/region-aggregator/internal/pipeline"
	"github.com/couchcryptid/region-aggregator/internal/regions"
)

// --- mocks ---

type mockExtractor struct {
	events []domain.RawEvent
	index  atomic.Int64
}

func (m *mockExtractor) ExtractBatch(ctx context.Context, batchSize int) ([]domain.RawEvent, error) {
	i := int(m.index.Load())
	if i >= len(m.events) {
		// block until context cancelled to simulate waiting for messages
		<-ctx.Done()
		return nil, ctx.Err()
	}
	end := min(i+batchSize, len(m.events))
	m.index.Store(int64(end))
	return m.events[i:end], nil
}

type mockTransformer struct {
	err error
}

func (m *mockTransformer) Transform(_ context.Context, raw domain.RawEvent) (domain.OutputEvent, error) {
	if m.err != nil {
		return domain.OutputEvent{}, m.err
	}
	return domain.OutputEvent{Key: raw.Key, Value: raw.Value}, nil
}

type mockLoader struct {
	loaded []domain.OutputEvent
	err    error
	calls  int
}

func (m *mockLoader) LoadBatch(_ context.Context, events []domain.OutputEvent) error {
	m.calls++
	if m.err != nil {
		return m.err
	}
	m.loaded = append(m.loaded, events...)
	return nil
}

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func newTestMetrics() *observability.Metrics {
	return observability.NewMetricsForTesting()
}

func rawBatch(t *testing.T, id string, points ...domain.SamplePoint) domain.RawEvent {
	t.Helper()
	data, err := json.Marshal(domain.PointBatch{
		ID:        id,
		Source:    "era5",
		Timestamp: time.Date(2024, time.July, 1, 12, 0, 0, 0, time.UTC),
		Points:    points,
	})
	require.NoError(t, err)
	return domain.RawEvent{Key: []byte(id), Value: data}
}

// --- pipeline loop ---

func TestPipeline_Run_HappyPath(t *testing.T) {
	raw := rawBatch(t, "b-1")

	ext := &mockExtractor{events: []domain.RawEvent{raw}}
	ldr := &mockLoader{}
	metrics := newTestMetrics()

	p := pipeline.New(ext, &mockTransformer{}, ldr, discard, metrics, 10)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	require.NoError(t, p.Run(ctx))
	require.Len(t, ldr.loaded, 1)
	assert.Equal(t, raw.Value, ldr.loaded[0].Value)
	assert.True(t, p.Ready())
	assert.NoError(t, p.CheckReadiness(context.Background()))
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.BatchesConsumed), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.OutputsProduced), 0)
}

type headerTransformer struct {
	empty map[string]bool
}

func (m *headerTransformer) Transform(_ context.Context, raw domain.RawEvent) (domain.OutputEvent, error) {
	id := string(raw.Key)
	return domain.OutputEvent{
		Key:   raw.Key,
		Value: raw.Value,
		Headers: map[string]string{
			domain.HeaderBatchID:       id,
			domain.HeaderExtremesEmpty: strconv.FormatBool(m.empty[id]),
		},
	}, nil
}

func TestPipeline_Run_CountsOutputsWithoutData(t *testing.T) {
	ext := &mockExtractor{events: []domain.RawEvent{rawBatch(t, "b-1"), rawBatch(t, "b-2"), rawBatch(t, "b-3")}}
	ldr := &mockLoader{}
	metrics := newTestMetrics()

	p := pipeline.New(ext, &headerTransformer{empty: map[string]bool{"b-2": true}}, ldr, discard, metrics, 10)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	require.NoError(t, p.Run(ctx))
	require.Len(t, ldr.loaded, 3)
	assert.InDelta(t, 3, testutil.ToFloat64(metrics.OutputsProduced), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.OutputsWithoutData), 0)
}

func TestPipeline_Run_ContextCancellation(t *testing.T) {
	ldr := &mockLoader{}
	p := pipeline.New(&mockExtractor{}, &mockTransformer{}, ldr, discard, newTestMetrics(), 10)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, p.Run(ctx))
	assert.Empty(t, ldr.loaded)
	assert.Error(t, p.CheckReadiness(context.Background()))
}

func TestPipeline_Run_TransformErrorCommitsAndSkips(t *testing.T) {
	var committed atomic.Bool
	raw := rawBatch(t, "b-2")
	raw.Commit = func(context.Context) error {
		committed.Store(true)
		return nil
	}

	ldr := &mockLoader{}
	metrics := newTestMetrics()
	p := pipeline.New(&mockExtractor{events: []domain.RawEvent{raw}},
		&mockTransformer{err: errors.New("bad batch")}, ldr, discard, metrics, 10)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	require.NoError(t, p.Run(ctx))
	assert.Empty(t, ldr.loaded)
	assert.False(t, p.Ready())
	assert.True(t, committed.Load())
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.TransformErrors), 0)
}

func TestPipeline_Run_LoadFailureDoesNotCommit(t *testing.T) {
	var committed atomic.Bool
	raw := rawBatch(t, "b-3")
	raw.Commit = func(context.Context) error {
		committed.Store(true)
		return nil
	}

	ldr := &mockLoader{err: errors.New("kafka down")}
	p := pipeline.New(&mockExtractor{events: []domain.RawEvent{raw}}, &mockTransformer{}, ldr, discard, newTestMetrics(), 10)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	require.NoError(t, p.Run(ctx))
	assert.False(t, committed.Load())
	assert.False(t, p.Ready())
	assert.Equal(t, 1, ldr.calls)
}

// --- transformer ---

const regionCSV = "NUTS_ID,NUTS_NAME,geometry,t2m\n" +
	`AT1,Ostösterreich,"POLYGON((10 47,11 47,11 48,10 48,10 47))",` + "\n" +
	`AT2,Südösterreich,"POLYGON((10.1 45.1,10.4 45.1,10.4 45.4,10.1 45.4))",` + "\n" +
	`AT3,Westösterreich,"POLYGON((40 0,41 0,41 1,40 1,40 0))",` + "\n"

func newRegionTransformer(t *testing.T, metrics *observability.Metrics) *pipeline.RegionTransformer {
	t.Helper()
	set, err := regions.NewLoader(regions.Options{Logger: discard}).LoadCSV(regionCSV, true)
	require.NoError(t, err)
	require.Len(t, set.Regions, 3)
	agg := aggregate.New(aggregate.Options{Workers: 2, Logger: discard, Metrics: metrics})
	return pipeline.NewTransformer(set, agg, 0.5, discard, metrics)
}

func TestRegionTransformer_Transform(t *testing.T) {
	fakeClock := clockwork.NewFakeClockAt(time.Date(2024, time.July, 1, 12, 5, 0, 0, time.UTC))
	domain.SetClock(fakeClock)
	t.Cleanup(func() { domain.SetClock(nil) })

	metrics := newTestMetrics()
	tfm := newRegionTransformer(t, metrics)

	raw := rawBatch(t, "b-7",
		domain.SamplePoint{Lat: 47.5, Lng: 10.5, Value: 20},
		domain.SamplePoint{Lat: 47.2, Lng: 10.2, Value: 10},
		domain.SamplePoint{Lat: 45.05, Lng: 10.05, Value: 12},
	)
	ev, err := tfm.Transform(context.Background(), raw)
	require.NoError(t, err)

	assert.Equal(t, []byte("b-7"), ev.Key)
	assert.Equal(t, "b-7", ev.Headers["batch_id"])
	assert.Equal(t, "2024-07-01T12:05:00Z", ev.Headers["processed_at"])
	assert.NotEmpty(t, ev.Headers["run_id"])

	var out domain.AggregationOutput
	require.NoError(t, json.Unmarshal(ev.Value, &out))
	assert.Equal(t, "era5", out.Source)
	assert.Equal(t, 3, out.PointsUsed)
	assert.Equal(t, 3, out.Stats.Processed)
	require.Len(t, out.Results, 3)

	at1, at2, at3 := out.Results[0], out.Results[1], out.Results[2]
	assert.Equal(t, "AT1", at1.RegionID)
	assert.InDelta(t, 15.0, *at1.Intensity, 1e-9)
	assert.False(t, at1.IsFallback)

	assert.True(t, at2.IsFallback)
	assert.InDelta(t, 12.0, *at2.Intensity, 1e-9)

	assert.Nil(t, at3.Intensity)
	assert.Equal(t, domain.Extremes{Min: 12, Max: 15}, out.Extremes)
}

func TestRegionTransformer_DropsInvalidPoints(t *testing.T) {
	metrics := newTestMetrics()
	tfm := newRegionTransformer(t, metrics)

	raw := domain.RawEvent{Key: []byte("b-8"), Value: []byte(
		`{"id":"b-8","points":[{"lat":47.5,"lon":10.5,"value":3},{"lat":47.5,"value":4},{"lat":95,"lng":10,"value":1}]}`)}
	out, err := tfm.Aggregate(context.Background(), raw)
	require.NoError(t, err)

	assert.Equal(t, 1, out.PointsUsed)
	assert.Equal(t, 2, out.Dropped)
	assert.InDelta(t, 2, testutil.ToFloat64(metrics.PointsDropped), 0)
}

func TestRegionTransformer_InvalidJSON(t *testing.T) {
	tfm := newRegionTransformer(t, newTestMetrics())
	_, err := tfm.Transform(context.Background(), domain.RawEvent{Value: []byte("not json")})
	assert.Error(t, err)
}

// --- fan-out loader ---

func TestFanoutLoader(t *testing.T) {
	events := []domain.OutputEvent{{Key: []byte("k")}}

	t.Run("optional failure is tolerated", func(t *testing.T) {
		metrics := newTestMetrics()
		kafka := &mockLoader{}
		redis := &mockLoader{err: errors.New("redis down")}
		f := pipeline.NewFanoutLoader(discard, metrics,
			pipeline.Sink{Name: "kafka", Loader: kafka, Required: true},
			pipeline.Sink{Name: "redis", Loader: redis},
			pipeline.Sink{Name: "postgres"},
		)
		require.NoError(t, f.LoadBatch(context.Background(), events))
		assert.Len(t, kafka.loaded, 1)
		assert.InDelta(t, 1, testutil.ToFloat64(metrics.SinkWriteErrors.WithLabelValues("redis")), 0)
	})

	t.Run("required failure fails the batch", func(t *testing.T) {
		f := pipeline.NewFanoutLoader(discard, nil,
			pipeline.Sink{Name: "kafka", Loader: &mockLoader{err: errors.New("boom")}, Required: true},
		)
		err := f.LoadBatch(context.Background(), events)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "kafka sink")
	})
}
