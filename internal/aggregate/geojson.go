package aggregate

import (
	"github.com/paulmach/orb/geojson"

	"github.com/couchcryptid/region-aggregator/internal/domain"
)

// Feature property and top-level member names of the GeoJSON result document.
const (
	PropID         = "id"
	PropName       = "name"
	PropIntensity  = "intensity"
	PropPointCount = "point_count"
	PropIsFallback = "is_fallback"
	PropCentroid   = "centroid"
	PropNearest    = "nearest"
	PropWarning    = "warning"

	MemberExtremes = "extremes"
	MemberStats    = "stats"
)

// FeatureCollection renders results as GeoJSON, one feature per result in
// result order. Geometries are looked up by region ID; a result without a
// matching region gets a null geometry. Extremes and stats are added as
// top-level members.
func FeatureCollection(set Set, regions []domain.Region, stats domain.ProcessingStats) *geojson.FeatureCollection {
	byID := make(map[string]domain.Region, len(regions))
	for _, r := range regions {
		byID[r.ID] = r
	}

	fc := geojson.NewFeatureCollection()
	for _, res := range set.Results {
		f := &geojson.Feature{Type: "Feature", Properties: resultProperties(res)}
		if r, ok := byID[res.RegionID]; ok {
			f.Geometry = r.Geometry
		}
		fc.Append(f)
	}
	fc.ExtraMembers = geojson.Properties{
		MemberExtremes: set.Extremes,
		MemberStats:    stats,
	}
	return fc
}

func resultProperties(res domain.AggregationResult) geojson.Properties {
	props := geojson.Properties{
		PropID:         res.RegionID,
		PropName:       res.RegionName,
		PropIntensity:  res.Intensity,
		PropPointCount: res.PointCount,
		PropIsFallback: res.IsFallback,
		PropCentroid:   []float64{res.Centroid.Lng, res.Centroid.Lat},
	}
	if res.NearestPoint != nil {
		props[PropNearest] = map[string]float64{
			"lng":         res.NearestPoint.Lng,
			"lat":         res.NearestPoint.Lat,
			"distance_km": res.NearestDistanceKm,
		}
	}
	if res.Warning != "" {
		props[PropWarning] = res.Warning
	}
	return props
}
