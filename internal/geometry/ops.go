package geometry

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// Centroid returns the area-weighted centroid of g. Degenerate (zero-area)
// shapes fall back to the mean of their exterior ring vertices.
func Centroid(g orb.Geometry) orb.Point {
	c, area := planar.CentroidArea(g)
	if area != 0 && !math.IsNaN(area) && !math.IsNaN(c[0]) && !math.IsNaN(c[1]) {
		return c
	}
	return vertexMean(g)
}

func vertexMean(g orb.Geometry) orb.Point {
	var sx, sy float64
	var n int
	add := func(r orb.Ring) {
		for _, pt := range r {
			sx += pt[0]
			sy += pt[1]
			n++
		}
	}
	switch v := g.(type) {
	case orb.Polygon:
		if len(v) > 0 {
			add(v[0])
		}
	case orb.MultiPolygon:
		for _, p := range v {
			if len(p) > 0 {
				add(p[0])
			}
		}
	}
	if n == 0 {
		return orb.Point{}
	}
	return orb.Point{sx / float64(n), sy / float64(n)}
}

// Contains reports whether pt lies inside g, honoring holes. A degenerate
// polygon or a panic inside the planar routines comes back as an error.
func Contains(g orb.Geometry, pt orb.Point) (inside bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			inside = false
			err = fmt.Errorf("point-in-polygon failed: %v", r)
		}
	}()

	switch v := g.(type) {
	case orb.Polygon:
		if err := checkArea(v); err != nil {
			return false, err
		}
		return planar.PolygonContains(v, pt), nil
	case orb.MultiPolygon:
		for i, p := range v {
			if err := checkArea(p); err != nil {
				return false, fmt.Errorf("polygon %d: %w", i, err)
			}
		}
		return planar.MultiPolygonContains(v, pt), nil
	case nil:
		return false, errors.New("geometry is nil")
	default:
		return false, fmt.Errorf("containment not supported for %s", g.GeoJSONType())
	}
}

func checkArea(p orb.Polygon) error {
	if len(p) == 0 {
		return errors.New("polygon has no rings")
	}
	if planar.Area(p[0]) == 0 {
		return errors.New("exterior ring has zero area")
	}
	return nil
}
