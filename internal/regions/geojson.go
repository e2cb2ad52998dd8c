package regions

import (
	"fmt"
	"math"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/couchcryptid/region-aggregator/internal/domain"
	"github.com/couchcryptid/region-aggregator/internal/geometry"
)

// LoadGeoJSON reads a FeatureCollection whose features carry structured
// Polygon or MultiPolygon geometries. WKT parsing is skipped but every
// geometry still passes validation. A document that is not a
// FeatureCollection returns ErrSchema.
func (l *Loader) LoadGeoJSON(data []byte, skipInvalid bool) (RegionSet, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return RegionSet{}, fmt.Errorf("%w: decode feature collection: %v", ErrSchema, err)
	}

	ids := make([]string, 0, len(fc.Features))
	for _, f := range fc.Features {
		ids = append(ids, l.featureID(f))
	}
	excluded := l.exclusions(ids)

	set := RegionSet{Stats: domain.NewProcessingStats(l.maxIDs)}
	accepted := make(map[string]bool, len(fc.Features))
	for i, f := range fc.Features {
		id := ids[i]
		if id == "" {
			l.logger.Warn("skipping feature without identifier", "index", i)
			set.Stats.MarkSkipped("")
			continue
		}
		key := strings.ToUpper(id)
		if excluded[key] {
			l.logger.Debug("excluding region", "region_id", id)
			set.Stats.MarkExcluded(id)
			continue
		}
		if accepted[key] {
			l.logger.Warn("skipping duplicate region", "index", i, "region_id", id)
			set.Stats.MarkDuplicate(id)
			continue
		}

		g := normalizeGeometry(f.Geometry)
		if verr := geometry.Check(g); verr != nil {
			err := geometry.NewError(geometry.KindValidation, id, "", verr)
			l.logger.Warn("region geometry rejected", "region_id", id, "error", err)
			if !skipInvalid {
				return RegionSet{}, err
			}
			set.Stats.MarkSkipped(id)
			continue
		}

		region := domain.Region{
			ID:       id,
			Name:     l.featureName(f),
			Geometry: g,
			Value:    featureValue(f, l.cols.Value),
		}
		region.Name = defaultName(region)
		set.Regions = append(set.Regions, region)
		set.Stats.MarkProcessed()
		accepted[key] = true
	}

	l.logSummary("geojson", set.Stats)
	return set, nil
}

func (l *Loader) featureID(f *geojson.Feature) string {
	for _, key := range []string{l.cols.ID, strings.ToLower(l.cols.ID), "id"} {
		if s := propString(f.Properties, key); s != "" {
			return s
		}
	}
	if s, ok := f.ID.(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

func (l *Loader) featureName(f *geojson.Feature) string {
	if l.cols.Name == "" {
		return ""
	}
	for _, key := range []string{l.cols.Name, strings.ToLower(l.cols.Name), "name"} {
		if s := propString(f.Properties, key); s != "" {
			return s
		}
	}
	return ""
}

func propString(p geojson.Properties, key string) string {
	s, _ := p[key].(string)
	return strings.TrimSpace(s)
}

func featureValue(f *geojson.Feature, key string) *float64 {
	v, ok := f.Properties[key]
	if !ok {
		return nil
	}
	switch n := v.(type) {
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return nil
		}
		return &n
	case string:
		return parseValue(n)
	default:
		return nil
	}
}

// normalizeGeometry closes open rings the same way the WKT parser does.
// Other geometry types pass through so validation can reject them.
func normalizeGeometry(g orb.Geometry) orb.Geometry {
	switch v := g.(type) {
	case orb.Polygon:
		return closePolygon(v)
	case orb.MultiPolygon:
		out := make(orb.MultiPolygon, len(v))
		for i, p := range v {
			out[i] = closePolygon(p)
		}
		return out
	default:
		return g
	}
}

func closePolygon(p orb.Polygon) orb.Polygon {
	out := make(orb.Polygon, len(p))
	for i, r := range p {
		if len(r) > 0 && r[0] != r[len(r)-1] {
			r = append(r.Clone(), r[0])
		}
		out[i] = r
	}
	return out
}
