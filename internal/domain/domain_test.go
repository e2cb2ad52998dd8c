package domain

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeExtremes(t *testing.T) {
	t.Run("mixed nil and values", func(t *testing.T) {
		var results []AggregationResult
		for i := 0; i < 5; i++ {
			results = append(results, AggregationResult{RegionID: "nil"})
		}
		for _, v := range []float64{10, 12, 14, 16, 18} {
			results = append(results, AggregationResult{Intensity: Float(v)})
		}

		ext := ComputeExtremes(results)
		assert.Equal(t, Extremes{Min: 10, Max: 18}, ext)
	})

	t.Run("all nil", func(t *testing.T) {
		ext := ComputeExtremes([]AggregationResult{{}, {}})
		assert.Equal(t, Extremes{Min: 0, Max: 0, Empty: true}, ext)
	})

	t.Run("empty input", func(t *testing.T) {
		assert.True(t, ComputeExtremes(nil).Empty)
	})

	t.Run("negative values", func(t *testing.T) {
		ext := ComputeExtremes([]AggregationResult{{Intensity: Float(-3.5)}, {Intensity: Float(-1)}})
		assert.Equal(t, -3.5, ext.Min)
		assert.Equal(t, -1.0, ext.Max)
		assert.False(t, ext.Empty)
	})
}

func TestProcessingStats(t *testing.T) {
	s := NewProcessingStats(2)
	s.MarkProcessed()
	s.MarkSkipped("AT1")
	s.MarkExcluded("DE")
	s.MarkSkipped("FR1")
	s.MarkErrored("IT1")

	assert.Equal(t, 5, s.Total)
	assert.Equal(t, 1, s.Processed)
	assert.Equal(t, 3, s.Skipped)
	assert.Equal(t, 1, s.Excluded)
	assert.Equal(t, 1, s.Errored)
	assert.True(t, s.Balanced())
	assert.Equal(t, []string{"AT1", "DE"}, s.SkippedRegions)
	assert.True(t, s.Truncated)
	assert.Equal(t, []string{"IT1"}, s.ErroredRegions)
}

func TestProcessingStats_Unlimited(t *testing.T) {
	s := NewProcessingStats(0)
	for i := 0; i < 100; i++ {
		s.MarkSkipped("X")
	}
	assert.Len(t, s.SkippedRegions, 100)
	assert.False(t, s.Truncated)
}

func TestSamplePoint_UnmarshalMissingFields(t *testing.T) {
	var pts []SamplePoint
	require.NoError(t, json.Unmarshal([]byte(`[{"lat":47.05,"lng":10.05,"value":12},{"lat":1,"value":2},{"lat":1,"lon":2,"value":3}]`), &pts))
	require.Len(t, pts, 3)

	assert.True(t, pts[0].Valid())
	assert.True(t, math.IsNaN(pts[1].Lng))
	assert.False(t, pts[1].Valid())
	assert.Equal(t, 2.0, pts[2].Lng)
}

func TestValidLatLng(t *testing.T) {
	tests := []struct {
		name     string
		lat, lng float64
		want     bool
	}{
		{"origin", 0, 0, true},
		{"bounds", 90, -180, true},
		{"lat too big", 90.0001, 0, false},
		{"lng too big", 0, 200, false},
		{"nan", math.NaN(), 0, false},
		{"inf", 0, math.Inf(1), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidLatLng(tt.lat, tt.lng))
		})
	}
}

func TestCountries(t *testing.T) {
	assert.Equal(t, "AT", CountryPrefix("at130"))
	assert.Empty(t, CountryPrefix("A"))

	name, ok := CountryName("EL")
	assert.True(t, ok)
	assert.Equal(t, "Greece", name)

	assert.True(t, IsCountryLevel("DE"))
	assert.False(t, IsCountryLevel("DE1"))
	assert.False(t, IsCountryLevel("ZZ"))

	covered := CoveredCountries([]string{"DE", "DE1", "FR", "AT12"})
	assert.Equal(t, map[string]bool{"DE": true, "AT": true}, covered)
}

func TestCountryPrefix_FoldsNUTSCodes(t *testing.T) {
	tests := []struct {
		id, want string
	}{
		{"EL30", "GR"},
		{"el", "GR"},
		{"GR", "GR"},
		{"UKI3", "GB"},
		{"GB", "GB"},
		{"DE11", "DE"},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			assert.Equal(t, tt.want, CountryPrefix(tt.id))
		})
	}

	covered := CoveredCountries([]string{"EL30", "UKI3"})
	assert.Equal(t, map[string]bool{"GR": true, "GB": true}, covered)
}

func TestParsePointBatch(t *testing.T) {
	ts := time.Date(2024, time.July, 1, 12, 0, 0, 0, time.UTC)

	t.Run("explicit id", func(t *testing.T) {
		raw := RawEvent{Value: []byte(`{"id":"era5-2024070112","points":[{"lat":47,"lng":10,"value":1.5}]}`), Timestamp: ts}
		batch, err := ParsePointBatch(raw)
		require.NoError(t, err)
		assert.Equal(t, "era5-2024070112", batch.ID)
		assert.Equal(t, ts, batch.Timestamp)
		require.Len(t, batch.Points, 1)
	})

	t.Run("key fallback", func(t *testing.T) {
		batch, err := ParsePointBatch(RawEvent{Key: []byte("k1"), Value: []byte(`{"points":[]}`)})
		require.NoError(t, err)
		assert.Equal(t, "k1", batch.ID)
	})

	t.Run("offset fallback", func(t *testing.T) {
		batch, err := ParsePointBatch(RawEvent{Topic: "t", Partition: 1, Offset: 9, Value: []byte(`{}`)})
		require.NoError(t, err)
		assert.Equal(t, "t-1-9", batch.ID)
	})

	t.Run("invalid JSON", func(t *testing.T) {
		_, err := ParsePointBatch(RawEvent{Value: []byte("{bad")})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "parse point batch")
	})
}

func TestSerializeOutput(t *testing.T) {
	fake := clockwork.NewFakeClockAt(time.Date(2024, time.April, 26, 15, 10, 0, 0, time.UTC))
	SetClock(fake)
	t.Cleanup(func() { SetClock(nil) })

	out := AggregationOutput{
		RunID:       "run-1",
		BatchID:     "batch-1",
		ProcessedAt: Now(),
		Results:     []AggregationResult{{RegionID: "AT1", Intensity: Float(15.2)}},
		Extremes:    Extremes{Min: 15.2, Max: 15.2},
	}

	ev, err := SerializeOutput(out)
	require.NoError(t, err)
	assert.Equal(t, []byte("batch-1"), ev.Key)
	assert.Equal(t, "run-1", ev.Headers["run_id"])
	assert.Equal(t, "2024-04-26T15:10:00Z", ev.Headers["processed_at"])
	assert.Equal(t, "false", ev.Headers[HeaderExtremesEmpty])
	assert.Contains(t, string(ev.Value), `"region_id":"AT1"`)

	out.Extremes = ComputeExtremes(nil)
	ev, err = SerializeOutput(out)
	require.NoError(t, err)
	assert.Equal(t, "true", ev.Headers[HeaderExtremesEmpty])
}
