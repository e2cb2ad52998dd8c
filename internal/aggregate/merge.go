package aggregate

import (
	"github.com/couchcryptid/region-aggregator/internal/domain"
	"github.com/couchcryptid/region-aggregator/internal/geometry"
)

// Merge combines results from a fine source (e.g. NUTS regions) with those
// of a coarse source (e.g. country polygons). Coarse results are kept only
// for countries the fine source does not cover, and a duplicate ID keeps the
// primary result. The merged list is sorted by region ID with extremes
// recomputed.
func Merge(primary, secondary []domain.AggregationResult) Set {
	ids := make([]string, len(primary))
	seen := make(map[string]bool, len(primary))
	for i, r := range primary {
		ids[i] = r.RegionID
		seen[r.RegionID] = true
	}
	covered := domain.CoveredCountries(ids)

	out := make([]domain.AggregationResult, 0, len(primary)+len(secondary))
	out = append(out, primary...)
	for _, r := range secondary {
		if seen[r.RegionID] || covered[domain.CountryPrefix(r.RegionID)] {
			continue
		}
		seen[r.RegionID] = true
		out = append(out, r)
	}
	domain.SortResults(out)
	return Set{Results: out, Extremes: domain.ComputeExtremes(out)}
}

// PrecomputedResults builds results from the value column of each region,
// for sources that already carry a per-region intensity.
func PrecomputedResults(regions []domain.Region) Set {
	out := make([]domain.AggregationResult, len(regions))
	for i, r := range regions {
		out[i] = domain.AggregationResult{
			RegionID:   r.ID,
			RegionName: r.Name,
		}
		if r.Value != nil {
			out[i].Intensity = domain.Float(*r.Value)
		}
		if r.Geometry != nil {
			out[i].Centroid = domain.CoordinateFromPoint(geometry.Centroid(r.Geometry))
		}
	}
	return Set{Results: out, Extremes: domain.ComputeExtremes(out)}
}
