package regionindex_test

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/region-aggregator/internal/domain"
	"github.com/couchcryptid/region-aggregator/internal/regionindex"
)

func box(minLng, minLat, maxLng, maxLat float64) orb.Polygon {
	return orb.Polygon{{
		{minLng, minLat}, {maxLng, minLat}, {maxLng, maxLat}, {minLng, maxLat}, {minLng, minLat},
	}}
}

func TestLocate(t *testing.T) {
	triangle := orb.Polygon{{{0, 0}, {10, 0}, {0, 10}, {0, 0}}}
	loc, err := regionindex.NewLocator([]domain.Region{
		{ID: "AT1", Geometry: box(10, 47, 11, 48)},
		{ID: "AT", Geometry: box(9, 46, 17, 49)},
		{ID: "TRI", Geometry: triangle},
		{ID: "NONE"},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, loc.Len())

	tests := []struct {
		name     string
		lat, lng float64
		want     []string
	}{
		{"nested regions sorted", 47.5, 10.5, []string{"AT", "AT1"}},
		{"outer only", 46.5, 16, []string{"AT"}},
		{"inside triangle", 1, 1, []string{"TRI"}},
		{"inside triangle bbox but outside shape", 9, 9, []string{}},
		{"nowhere", -30, 100, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ids, err := loc.LocateIDs(tt.lat, tt.lng)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestLocate_InvalidCoordinate(t *testing.T) {
	loc, err := regionindex.NewLocator(nil)
	require.NoError(t, err)
	_, err = loc.Locate(91, 0)
	assert.Error(t, err)
}
