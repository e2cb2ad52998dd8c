package geometry

import (
	"errors"
	"fmt"

	"github.com/paulmach/orb"

	"github.com/couchcryptid/region-aggregator/internal/domain"
)

// Validate reports whether g is an acceptable region geometry.
func Validate(g orb.Geometry) bool {
	return Check(g) == nil
}

// Check explains why g is not acceptable, or returns nil. Acceptable means a
// Polygon or non-empty MultiPolygon whose rings are closed, have at least four
// points, and stay inside WGS-84 bounds.
func Check(g orb.Geometry) error {
	switch v := g.(type) {
	case nil:
		return errors.New("geometry is nil")
	case orb.Polygon:
		return checkPolygon(v)
	case orb.MultiPolygon:
		if len(v) == 0 {
			return errors.New("multipolygon has no polygons")
		}
		for i, p := range v {
			if err := checkPolygon(p); err != nil {
				return fmt.Errorf("polygon %d: %w", i, err)
			}
		}
		return nil
	default:
		return fmt.Errorf("geometry type %s is not a polygon", g.GeoJSONType())
	}
}

func checkPolygon(p orb.Polygon) error {
	if len(p) == 0 {
		return errors.New("polygon has no rings")
	}
	for i, ring := range p {
		if len(ring) < minRingPoints {
			return fmt.Errorf("ring %d has %d points, need at least %d", i, len(ring), minRingPoints)
		}
		for j, pt := range ring {
			if !domain.ValidLatLng(pt.Lat(), pt.Lon()) {
				return fmt.Errorf("ring %d point %d (%g %g) out of range", i, j, pt.Lon(), pt.Lat())
			}
		}
		if ring[0] != ring[len(ring)-1] {
			return fmt.Errorf("ring %d is not closed", i)
		}
	}
	return nil
}
