package domain

import (
	"math"
	"sort"
)

// AggregationResult is the per-region outcome of one aggregation pass.
type AggregationResult struct {
	RegionID   string   `json:"region_id"`
	RegionName string   `json:"region_name,omitempty"`
	Intensity  *float64 `json:"intensity"`
	PointCount int      `json:"point_count"`
	IsFallback bool     `json:"is_fallback"`

	// Centroid is recorded for every region; the map pin is drawn there.
	Centroid Coordinate `json:"centroid"`

	// NearestPoint and NearestDistanceKm are set only when IsFallback is true.
	NearestPoint      *Coordinate `json:"nearest_point,omitempty"`
	NearestDistanceKm float64     `json:"nearest_distance_km,omitempty"`

	// Warning carries a contained per-region evaluation failure.
	Warning string `json:"warning,omitempty"`
}

// HasData reports whether an intensity could be attributed to the region.
func (r AggregationResult) HasData() bool {
	return r.Intensity != nil
}

// Extremes is the {min, max} range over all non-nil intensities.
type Extremes struct {
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Empty bool    `json:"empty,omitempty"`
}

// ComputeExtremes returns the range of non-nil, finite intensities. When
// there are none it returns {0, 0} with Empty set.
func ComputeExtremes(results []AggregationResult) Extremes {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, r := range results {
		if !r.HasData() {
			continue
		}
		v := *r.Intensity
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if math.IsInf(lo, 1) {
		return Extremes{Empty: true}
	}
	return Extremes{Min: lo, Max: hi}
}

// SortResults orders results by region ID.
func SortResults(results []AggregationResult) {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].RegionID < results[j].RegionID
	})
}

// Float returns a pointer to v.
func Float(v float64) *float64 {
	return &v
}
