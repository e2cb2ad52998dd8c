package postgres

import (
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/region-aggregator/internal/domain"
)

func TestResultRows(t *testing.T) {
	processed := time.Date(2024, 7, 1, 12, 5, 0, 0, time.UTC)
	out := domain.AggregationOutput{
		RunID:       "run-1",
		BatchID:     "batch-1",
		ProcessedAt: processed,
		Results: []domain.AggregationResult{
			{RegionID: "AT1", RegionName: "Wien", Intensity: domain.Float(4.5), PointCount: 3,
				Centroid: domain.Coordinate{Lng: 16.4, Lat: 48.2}},
			{RegionID: "AT2", IsFallback: true, Intensity: domain.Float(2), NearestDistanceKm: 12.5},
			{RegionID: "AT3", Warning: "exterior ring has zero area"},
		},
	}

	rows := resultRows(out)
	require.Len(t, rows, 3)
	for _, row := range rows {
		assert.Len(t, row, len(columns))
	}

	assert.Equal(t, []any{
		"run-1", "batch-1", "AT1", "Wien", 4.5, 3, false, 48.2, 16.4, nil, "", nil, processed,
	}, rows[0])
	assert.Equal(t, 12.5, rows[1][9])
	assert.Nil(t, rows[2][4])
	assert.Equal(t, "exterior ring has zero area", rows[2][10])
}

func TestCopyStatement(t *testing.T) {
	stmt := pq.CopyIn(Table, columns...)
	assert.Contains(t, stmt, `COPY "region_aggregates"`)
	assert.Contains(t, stmt, `"nearest_distance_km"`)
	assert.Contains(t, schema, "PRIMARY KEY (run_id, region_id)")
}
